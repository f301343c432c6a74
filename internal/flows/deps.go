package flows

import (
	"context"
	"time"

	"github.com/jobgate/authcore/session"
)

// SessionWriter is the session store surface the flows need. Satisfied by
// *session.Store.
type SessionWriter interface {
	Create(ctx context.Context, userID, deviceID, refreshToken string, deviceInfo map[string]string, ttl time.Duration) (*session.Session, error)
	Find(ctx context.Context, userID, refreshToken, deviceID string) (*session.Session, error)
	Revoke(ctx context.Context, userID, deviceID string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// TokenBlacklist is the revocation surface the flows need. Satisfied by
// *session.Blacklist.
type TokenBlacklist interface {
	Contains(ctx context.Context, token string) (bool, error)
	Claim(ctx context.Context, token string, reason session.BlacklistReason, ttl time.Duration) (bool, error)
}
