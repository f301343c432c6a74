package rate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jobgate/authcore/internal/storage"
)

// Request carries the request attributes the limiter needs: the transport
// peer, the authenticated principal if any, and headers for proxy-aware IP
// and bypass extraction.
type Request struct {
	// RemoteIP is the transport-level peer address (no port).
	RemoteIP string
	// UserID is set when the request is already authenticated.
	UserID string
	// DeviceID is set for mobile clients that report one.
	DeviceID string
	Header   http.Header
}

// IdentityFunc maps a request to the bucketing key: it decides the fairness
// granularity (per IP, per user, per device, or global).
type IdentityFunc func(Request) string

// SkipFunc short-circuits a check entirely; no counter is mutated.
type SkipFunc func(Request) bool

// Tier is one (max calls, window) pair of a rule.
type Tier struct {
	MaxCalls int
	Window   time.Duration
}

func (t Tier) String() string {
	return strconv.Itoa(t.MaxCalls) + "/" + t.Window.String()
}

// Rule is a named admission policy: an ordered list of tiers that must ALL
// have remaining capacity, plus the identity and skip functions.
type Rule struct {
	Name     string
	Tiers    []Tier
	Identity IdentityFunc
	Skip     SkipFunc
}

// Quota reports a tier's remaining capacity after a check.
type Quota struct {
	Limit     int
	Remaining int
	Window    time.Duration
}

// Decision is the outcome of a rate-limit check. On denial, RetryAfter is
// the remaining window time of the violated tier.
type Decision struct {
	Allowed    bool
	Rule       string
	RetryAfter time.Duration
	Quotas     []Quota
}

// Limiter enforces per-(route, method, identity) admission with multi-tier
// thresholds over a [storage.Counters] backend.
type Limiter struct {
	counters storage.Counters
	prefix   string
}

// NewLimiter creates a [Limiter]. prefix namespaces counter keys and
// defaults to "rl", disjoint from the session keyspace.
func NewLimiter(counters storage.Counters, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{counters: counters, prefix: prefix}
}

// Check admits or denies one request under rule.
//
// Counters are incremented tier by tier BEFORE the threshold comparison, so
// a denied request still consumes one unit on every tier it passed. Earlier
// tiers are not un-incremented on denial: the small over-count is the price
// of keeping each tier a single atomic increment.
func (l *Limiter) Check(ctx context.Context, route, method string, req Request, rule Rule) (Decision, error) {
	if rule.Skip != nil && rule.Skip(req) {
		return Decision{Allowed: true, Rule: rule.Name}, nil
	}

	identity := DefaultIdentity
	if rule.Identity != nil {
		identity = rule.Identity
	}

	base := l.key(route, method, identity(req))
	quotas := make([]Quota, 0, len(rule.Tiers))

	for i, tier := range rule.Tiers {
		key := base + ":" + strconv.Itoa(i)

		count, err := l.counters.IncrementWithTTL(ctx, key, tier.Window)
		if err != nil {
			return Decision{}, err
		}

		if count > int64(tier.MaxCalls) {
			retryAfter, ttlErr := l.counters.TTL(ctx, key)
			if ttlErr != nil || retryAfter <= 0 {
				retryAfter = tier.Window
			}
			return Decision{
				Allowed:    false,
				Rule:       rule.Name,
				RetryAfter: retryAfter,
				Quotas:     []Quota{{Limit: tier.MaxCalls, Remaining: 0, Window: tier.Window}},
			}, nil
		}

		quotas = append(quotas, Quota{
			Limit:     tier.MaxCalls,
			Remaining: tier.MaxCalls - int(count),
			Window:    tier.Window,
		})
	}

	return Decision{Allowed: true, Rule: rule.Name, Quotas: quotas}, nil
}

// Reset clears every tier counter of rule for one identity. Used after a
// successful login to stop counting failed attempts against the user.
func (l *Limiter) Reset(ctx context.Context, route, method string, req Request, rule Rule) error {
	identity := DefaultIdentity
	if rule.Identity != nil {
		identity = rule.Identity
	}

	base := l.key(route, method, identity(req))
	for i := range rule.Tiers {
		if _, err := l.counters.Clear(ctx, base+":"+strconv.Itoa(i)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Limiter) key(route, method, identity string) string {
	sum := sha256.Sum256([]byte(route + ":" + method + ":" + identity))
	return l.prefix + ":" + hex.EncodeToString(sum[:16])
}

// RetryAfterSeconds renders a decision's retry hint for Retry-After headers,
// rounding up so clients never retry early.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (d Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf("allowed rule=%s", d.Rule)
	}
	return fmt.Sprintf("denied rule=%s retry_after=%ds", d.Rule, d.RetryAfterSeconds())
}
