package session

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no session record exists for the key. A
	// missing record means "no valid session": refresh must fail closed.
	ErrNotFound = errors.New("session not found")
	// ErrHashMismatch is returned when a presented refresh token does not
	// match the stored hash. It implies a stale/rotated token or tampering.
	ErrHashMismatch = errors.New("refresh hash mismatch")
	// ErrStoreUnavailable wraps Redis transport failures so callers can fail
	// closed instead of silently accepting an unverifiable session.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

const defaultOpTimeout = 3 * time.Second

// Store is a Redis-backed session store mapping (user, device) to the
// currently-valid refresh session. It supports create-with-clobber, lookup by
// presented token, best-effort last-used updates, and revocation.
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix namespaces every key; it defaults to "rt".
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "rt"
	}
	return &Store{
		redis:   client,
		prefix:  prefix,
		timeout: defaultOpTimeout,
		now:     time.Now,
	}
}

func (s *Store) key(userID, deviceID string) string {
	return s.prefix + ":" + userID + ":" + NormalizeDevice(deviceID)
}

func (s *Store) hashKey(hash [32]byte) string {
	return s.prefix + "h:" + hex.EncodeToString(hash[:])
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Create writes a session record for (userID, deviceID) with TTL equal to the
// refresh token's remaining lifetime, intentionally clobbering any prior
// record for the same key so that at most one session exists per device.
func (s *Store) Create(
	ctx context.Context,
	userID, deviceID, refreshToken string,
	deviceInfo map[string]string,
	ttl time.Duration,
) (*Session, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	deviceID = NormalizeDevice(deviceID)
	now := s.now().Unix()

	sess := &Session{
		UserID:     userID,
		DeviceID:   deviceID,
		TokenHash:  HashToken(refreshToken),
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now + int64(ttl/time.Second),
		DeviceInfo: deviceInfo,
	}

	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	recordKey := s.key(userID, deviceID)

	// Drop the clobbered record's reverse index first; a concurrent create
	// for the same (user, device) is resolved by whichever SET lands last.
	prior, err := s.redis.Get(ctx, recordKey).Bytes()
	switch {
	case err == nil:
		if old, decodeErr := Decode(prior); decodeErr == nil {
			if err := s.redis.Del(ctx, s.hashKey(old.TokenHash)).Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
	case errors.Is(err, redis.Nil):
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey, data, ttl)
		pipe.Set(ctx, s.hashKey(sess.TokenHash), recordKey, ttl)
		pipe.SAdd(ctx, s.userKey(userID), deviceID)
		pipe.Expire(ctx, s.userKey(userID), ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return sess, nil
}

// Find loads the session for (userID, deviceID) and compares the presented
// token's hash against the stored one in constant time. Absent, expired, and
// mismatching sessions are reported as [ErrNotFound] / [ErrHashMismatch].
func (s *Store) Find(ctx context.Context, userID, refreshToken, deviceID string) (*Session, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	sess, err := s.load(ctx, s.key(userID, deviceID))
	if err != nil {
		return nil, err
	}

	presented := HashToken(refreshToken)
	if subtle.ConstantTimeCompare(presented[:], sess.TokenHash[:]) != 1 {
		return nil, ErrHashMismatch
	}

	return sess, nil
}

// FindByToken resolves a session through the hash reverse index, for callers
// that hold a refresh token but no (user, device) key, such as logout.
func (s *Store) FindByToken(ctx context.Context, refreshToken string) (*Session, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	recordKey, err := s.redis.Get(ctx, s.hashKey(HashToken(refreshToken))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return s.load(ctx, recordKey)
}

func (s *Store) load(ctx context.Context, recordKey string) (*Session, error) {
	data, err := s.redis.Get(ctx, recordKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if sess.ExpiresAt <= s.now().Unix() {
		_, _ = s.Revoke(ctx, sess.UserID, sess.DeviceID)
		return nil, ErrNotFound
	}

	return sess, nil
}

// Touch updates LastUsedAt without extending the record's TTL. Failures are
// swallowed: a missed bookkeeping write must never block refresh or login.
func (s *Store) Touch(ctx context.Context, userID, deviceID string) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	recordKey := s.key(userID, deviceID)
	data, err := s.redis.Get(ctx, recordKey).Bytes()
	if err != nil {
		return
	}
	sess, err := Decode(data)
	if err != nil {
		return
	}

	sess.LastUsedAt = s.now().Unix()
	updated, err := Encode(sess)
	if err != nil {
		return
	}

	_ = s.redis.SetArgs(ctx, recordKey, updated, redis.SetArgs{KeepTTL: true}).Err()
}

// Revoke deletes the session for (userID, deviceID) along with its reverse
// index entry. Returns whether a record existed. Idempotent.
func (s *Store) Revoke(ctx context.Context, userID, deviceID string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	deviceID = NormalizeDevice(deviceID)
	recordKey := s.key(userID, deviceID)

	data, err := s.redis.Get(ctx, recordKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, decodeErr := Decode(data)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey)
		if decodeErr == nil {
			pipe.Del(ctx, s.hashKey(sess.TokenHash))
		}
		pipe.SRem(ctx, s.userKey(userID), deviceID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return true, nil
}

// RevokeAll deletes every session for the user (password change, "log out
// everywhere"). Returns the number of sessions destroyed.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	devices, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count := 0
	for _, device := range devices {
		existed, err := s.Revoke(ctx, userID, device)
		if err != nil {
			return count, err
		}
		if existed {
			count++
		}
	}

	if err := s.redis.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return count, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return count, nil
}

// List returns the active sessions for a user. Raw tokens never appear; each
// entry carries a short hash prefix for support tooling.
func (s *Store) List(ctx context.Context, userID string) ([]Info, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	devices, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	infos := make([]Info, 0, len(devices))
	for _, device := range devices {
		sess, err := s.load(ctx, s.key(userID, device))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Expired entry still in the index set; drop it lazily.
				_ = s.redis.SRem(ctx, s.userKey(userID), device).Err()
				continue
			}
			return nil, err
		}
		infos = append(infos, sess.info())
	}

	return infos, nil
}
