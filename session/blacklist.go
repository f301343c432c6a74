package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist holds hashes of consumed and revoked refresh tokens. A listed
// hash makes the token permanently invalid for the remainder of its natural
// lifetime, regardless of session state.
type Blacklist struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewBlacklist creates a token [Blacklist]. prefix defaults to "bl"; it is
// deliberately disjoint from the session prefixes so auth and rate-limit
// keyspaces never collide.
func NewBlacklist(client redis.UniversalClient, prefix string) *Blacklist {
	if prefix == "" {
		prefix = "bl"
	}
	return &Blacklist{
		redis:   client,
		prefix:  prefix,
		timeout: defaultOpTimeout,
	}
}

func (b *Blacklist) key(hash [32]byte) string {
	return b.prefix + ":" + hex.EncodeToString(hash[:])
}

// Claim inserts the token hash with SET NX and TTL up to the token's natural
// expiry. The NX result is the rotation linearization point: of two
// concurrent rotations presenting the same token, exactly one Claim returns
// true. A false result means the token was already consumed, i.e. a replay.
func (b *Blacklist) Claim(ctx context.Context, token string, reason BlacklistReason, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if ttl <= 0 {
		// Token already past its natural expiry; signature verification
		// rejects it on its own, nothing to record.
		return true, nil
	}

	won, err := b.redis.SetNX(ctx, b.key(HashToken(token)), string(reason), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return won, nil
}

// Contains reports whether the token's hash is blacklisted.
func (b *Blacklist) Contains(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	n, err := b.redis.Exists(ctx, b.key(HashToken(token))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Reason returns the recorded blacklist reason for a token, if present.
func (b *Blacklist) Reason(ctx context.Context, token string) (BlacklistReason, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	value, err := b.redis.Get(ctx, b.key(HashToken(token))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return BlacklistReason(value), true, nil
}
