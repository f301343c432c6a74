package rate

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobgate/authcore/internal/storage"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	counters := storage.NewFallbackCounters(storage.NewRedisCounters(rdb), storage.NewMemoryCounters(), nil)
	t.Cleanup(counters.Close)

	return NewLimiter(counters, ""), mr
}

func ipRequest(ip string) Request {
	return Request{RemoteIP: ip, Header: http.Header{}}
}

func TestTierConjunction(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t)

	rule := Rule{
		Name: "test",
		Tiers: []Tier{
			{MaxCalls: 2, Window: 10 * time.Second},
			{MaxCalls: 3, Window: time.Minute},
		},
		Identity: IdentityByIP,
	}

	req := ipRequest("10.0.0.1")

	// First two pass both tiers.
	for i := 0; i < 2; i++ {
		decision, err := limiter.Check(ctx, "/jobs", "GET", req, rule)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "request %d", i+1)
	}

	// Third is denied by the first tier even though the second (limit 3)
	// still has capacity.
	decision, err := limiter.Check(ctx, "/jobs", "GET", req, rule)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.RetryAfterSeconds(), 0)
	assert.LessOrEqual(t, decision.RetryAfter, 10*time.Second)
}

func TestDenialStillConsumesPassedTiers(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t)

	rule := Rule{
		Name: "test",
		Tiers: []Tier{
			{MaxCalls: 10, Window: time.Minute},
			{MaxCalls: 1, Window: time.Minute},
		},
		Identity: IdentityByIP,
	}
	req := ipRequest("10.0.0.1")

	decision, err := limiter.Check(ctx, "/jobs", "GET", req, rule)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.Equal(t, 9, decision.Quotas[0].Remaining)

	// Denied by tier 2, but tier 1 was already incremented and stays that
	// way: the next allowed call sees 7 remaining, not 8.
	decision, err = limiter.Check(ctx, "/jobs", "GET", req, rule)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	base := limiter.key("/jobs", "GET", IdentityByIP(req))
	count, ok, err := limiter.counters.Get(ctx, base+":0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), count)
}

func TestIdentitySeparation(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t)

	rule := Rule{
		Name:     "test",
		Tiers:    []Tier{{MaxCalls: 1, Window: time.Minute}},
		Identity: IdentityByIP,
	}

	decision, err := limiter.Check(ctx, "/jobs", "GET", ipRequest("10.0.0.1"), rule)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// Same route+identity: denied.
	decision, err = limiter.Check(ctx, "/jobs", "GET", ipRequest("10.0.0.1"), rule)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// Different IP, different method, different route: all admitted.
	for _, tc := range []struct{ route, method, ip string }{
		{"/jobs", "GET", "10.0.0.2"},
		{"/jobs", "POST", "10.0.0.1"},
		{"/companies", "GET", "10.0.0.1"},
	} {
		decision, err = limiter.Check(ctx, tc.route, tc.method, ipRequest(tc.ip), rule)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "%s %s from %s", tc.method, tc.route, tc.ip)
	}
}

func TestSkipPredicateMutatesNothing(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t)

	rule := Rule{
		Name:     "test",
		Tiers:    []Tier{{MaxCalls: 1, Window: time.Minute}},
		Identity: IdentityByIP,
		Skip:     SkipWithHeader("X-Internal-Bypass", "ops"),
	}

	bypass := ipRequest("10.0.0.1")
	bypass.Header.Set("X-Internal-Bypass", "ops")

	for i := 0; i < 5; i++ {
		decision, err := limiter.Check(ctx, "/jobs", "GET", bypass, rule)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}

	// The skipped calls consumed nothing: a plain request still has the
	// full budget.
	decision, err := limiter.Check(ctx, "/jobs", "GET", ipRequest("10.0.0.1"), rule)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestFallbackKeepsEnforcing(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t)

	rule := Rule{
		Name:     "test",
		Tiers:    []Tier{{MaxCalls: 2, Window: time.Minute}},
		Identity: IdentityByIP,
	}
	req := ipRequest("10.0.0.1")

	decision, err := limiter.Check(ctx, "/jobs", "GET", req, rule)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// Redis goes away mid-test: checks keep working against the in-memory
	// path and keep enforcing, without surfacing errors.
	mr.Close()

	decision, err = limiter.Check(ctx, "/jobs", "GET", req, rule)
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "memory window starts fresh")

	decision, err = limiter.Check(ctx, "/jobs", "GET", req, rule)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.Check(ctx, "/jobs", "GET", req, rule)
	require.NoError(t, err)
	assert.False(t, decision.Allowed, "limits still enforced in memory")
}

func TestResetClearsTiers(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t)

	rule := Rule{
		Name:     "test",
		Tiers:    []Tier{{MaxCalls: 1, Window: time.Minute}},
		Identity: IdentityByIP,
	}
	req := ipRequest("10.0.0.1")

	_, err := limiter.Check(ctx, "/login", "POST", req, rule)
	require.NoError(t, err)

	require.NoError(t, limiter.Reset(ctx, "/login", "POST", req, rule))

	decision, err := limiter.Check(ctx, "/login", "POST", req, rule)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestIdentityExtractors(t *testing.T) {
	t.Run("forwarded for wins", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		header.Set("X-Real-Ip", "198.51.100.2")
		assert.Equal(t, "ip:203.0.113.9", IdentityByIP(Request{RemoteIP: "10.0.0.1", Header: header}))
	})

	t.Run("real ip next", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-Real-Ip", "198.51.100.2")
		assert.Equal(t, "ip:198.51.100.2", IdentityByIP(Request{RemoteIP: "10.0.0.1", Header: header}))
	})

	t.Run("peer address last", func(t *testing.T) {
		assert.Equal(t, "ip:10.0.0.1", IdentityByIP(Request{RemoteIP: "10.0.0.1"}))
		assert.Equal(t, "ip:unknown", IdentityByIP(Request{}))
	})

	t.Run("user falls back to token hash then ip", func(t *testing.T) {
		assert.Equal(t, "user:u1", IdentityByUser(Request{UserID: "u1"}))

		header := http.Header{}
		header.Set("Authorization", "Bearer some-token")
		withToken := IdentityByUser(Request{Header: header})
		assert.Contains(t, withToken, "user:")
		assert.NotEqual(t, "user:some-token", withToken, "raw token must not appear in keys")

		assert.Equal(t, "ip:10.0.0.1", IdentityByUser(Request{RemoteIP: "10.0.0.1"}))
	})

	t.Run("device falls back to ip", func(t *testing.T) {
		assert.Equal(t, "device:d1", IdentityByDevice(Request{DeviceID: "d1"}))
		assert.Equal(t, "ip:10.0.0.1", IdentityByDevice(Request{RemoteIP: "10.0.0.1"}))
	})

	t.Run("global is constant", func(t *testing.T) {
		assert.Equal(t, IdentityGlobal(Request{RemoteIP: "a"}), IdentityGlobal(Request{RemoteIP: "b"}))
	})
}

func TestDefaultRulesValidate(t *testing.T) {
	for name, rule := range DefaultRules() {
		assert.NoError(t, ValidateRule(rule), "rule %q", name)
		assert.Equal(t, name, rule.Name)
	}

	assert.Error(t, ValidateRule(Rule{Name: "empty"}))
	assert.Error(t, ValidateRule(Rule{Name: "bad", Tiers: []Tier{{MaxCalls: 0, Window: time.Minute}}}))
	assert.Error(t, ValidateRule(Rule{Name: "bad", Tiers: []Tier{{MaxCalls: 1, Window: time.Millisecond}}}))
}
