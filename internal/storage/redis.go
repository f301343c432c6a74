package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultOpTimeout = 2 * time.Second

// RedisCounters implements [Counters] on a shared Redis backend, so limits
// hold across process restarts and multiple server instances.
type RedisCounters struct {
	redis   redis.UniversalClient
	timeout time.Duration
}

// NewRedisCounters wraps the given client. Every call carries a short
// timeout; a timed-out call surfaces as [ErrUnavailable].
func NewRedisCounters(client redis.UniversalClient) *RedisCounters {
	return &RedisCounters{redis: client, timeout: defaultOpTimeout}
}

func (r *RedisCounters) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// IncrementWithTTL increments key atomically. The TTL is set only on the
// first hit in the window (fixed-window semantics).
func (r *RedisCounters) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count == 1 {
		if err := r.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return count, nil
}

func (r *RedisCounters) Get(ctx context.Context, key string) (int64, bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	count, err := r.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, true, nil
}

func (r *RedisCounters) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	ttl, err := r.redis.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisCounters) Clear(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	n, err := r.redis.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
