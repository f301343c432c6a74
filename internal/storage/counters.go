package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend transport failures. The fallback layer treats
// it as the signal to switch to in-process counting.
var ErrUnavailable = errors.New("counter store unavailable")

// Counters is the counting primitive behind rate limiting: a TTL-bounded
// integer per key with first-write-sets-expiry semantics. A late increment
// within a window must not extend the window.
type Counters interface {
	// IncrementWithTTL increments key and returns the resulting count. When
	// the key is absent it is created at 1 with the given TTL; otherwise the
	// original TTL is preserved.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the current count and whether the key exists.
	Get(ctx context.Context, key string) (int64, bool, error)
	// TTL reports the remaining window time for key; zero when absent.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Clear removes the counter, reporting whether it existed.
	Clear(ctx context.Context, key string) (bool, error)
}
