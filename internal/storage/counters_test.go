package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCounters(t *testing.T) (*RedisCounters, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisCounters(rdb), mr
}

func TestRedisCountersFirstWriteSetsExpiry(t *testing.T) {
	ctx := context.Background()
	counters, mr := newRedisCounters(t)

	count, err := counters.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	first := mr.TTL("k1")

	// A late arrival within the same window must not extend the window.
	count, err = counters.IncrementWithTTL(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.LessOrEqual(t, mr.TTL("k1"), first)

	ttl, err := counters.TTL(ctx, "k1")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisCountersWindowReset(t *testing.T) {
	ctx := context.Background()
	counters, mr := newRedisCounters(t)

	_, err := counters.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	count, err := counters.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "counter must reset after the window expires")
}

func TestRedisCountersGetAndClear(t *testing.T) {
	ctx := context.Background()
	counters, _ := newRedisCounters(t)

	_, ok, err := counters.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = counters.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)

	count, ok, err := counters.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), count)

	existed, err := counters.Clear(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = counters.Clear(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRedisCountersUnavailable(t *testing.T) {
	ctx := context.Background()
	counters, mr := newRedisCounters(t)
	mr.Close()

	_, err := counters.IncrementWithTTL(ctx, "k1", time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryCountersExpiry(t *testing.T) {
	ctx := context.Background()

	m := NewMemoryCounters()
	defer m.Close()

	now := time.Now()
	m.now = func() time.Time { return now }

	count, err := m.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = m.IncrementWithTTL(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ttl, err := m.TTL(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl, "late increments must not extend the window")

	now = now.Add(2 * time.Minute)

	_, ok, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must be dropped lazily")

	count, err = m.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryCountersSweep(t *testing.T) {
	ctx := context.Background()

	m := NewMemoryCounters()
	defer m.Close()

	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)
	_, err = m.IncrementWithTTL(ctx, "k2", time.Hour)
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	m.sweep()

	m.mu.Lock()
	_, k1 := m.entries["k1"]
	_, k2 := m.entries["k2"]
	m.mu.Unlock()

	assert.False(t, k1, "expired entry must be swept")
	assert.True(t, k2, "live entry must survive the sweep")
}

func TestFallbackSwitchesToMemory(t *testing.T) {
	ctx := context.Background()
	primary, mr := newRedisCounters(t)

	switched := 0
	fallback := NewFallbackCounters(primary, NewMemoryCounters(), func() { switched++ })
	defer fallback.Close()

	count, err := fallback.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Primary outage mid-flight: counting continues in memory, no error
	// reaches the caller.
	mr.Close()

	count, err = fallback.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "memory fallback starts its own window")

	count, err = fallback.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, 1, switched, "switch hook fires once per transition")
}

func TestFallbackReprobesPrimary(t *testing.T) {
	ctx := context.Background()
	primary, mr := newRedisCounters(t)
	mr.Close()

	fallback := NewFallbackCounters(primary, NewMemoryCounters(), nil)
	defer fallback.Close()

	now := time.Now()
	fallback.now = func() time.Time { return now }

	_, err := fallback.IncrementWithTTL(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fallback.usingMemory())

	// Within the cool-off the primary is not retried.
	now = now.Add(defaultReprobeInterval / 2)
	assert.True(t, fallback.usingMemory())

	// After the cool-off the next call goes back to the primary.
	now = now.Add(defaultReprobeInterval)
	assert.False(t, fallback.usingMemory())
}
