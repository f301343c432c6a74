package flows

import (
	"context"
	"errors"
	"time"

	"github.com/jobgate/authcore/session"
	"github.com/jobgate/authcore/token"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureReuse
	RefreshFailureTokenInvalid
	RefreshFailureSessionNotFound
	RefreshFailureStore
	RefreshFailureIssue
	RefreshFailureSessionCreate
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	UserID   string
	DeviceID string
	Session  *session.Session
	Pair     token.Pair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh   func(string) (*token.Claims, error)
	IssuePair       func(subject string) (token.Pair, error)
	SessionLifetime func() time.Duration
	Now             func() time.Time
	Sessions        SessionWriter
	Blacklist       TokenBlacklist
}

// RunRefresh rotates one refresh token. The blacklist claim is the single
// decision point under concurrency: whichever caller sets the key first
// proceeds, every other caller holding the same token is treated as replay.
func RunRefresh(ctx context.Context, refreshToken, deviceID string, deps RefreshDeps) RefreshResult {
	deviceID = session.NormalizeDevice(deviceID)

	seen, err := deps.Blacklist.Contains(ctx, refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, DeviceID: deviceID}
	}
	if seen {
		return RefreshResult{Failure: RefreshFailureReuse, DeviceID: deviceID}
	}

	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureTokenInvalid, Err: err, DeviceID: deviceID}
	}
	userID := claims.Subject

	sess, err := deps.Sessions.Find(ctx, userID, refreshToken, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrHashMismatch):
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, UserID: userID, DeviceID: deviceID}
		default:
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID, DeviceID: deviceID}
		}
	}

	// Blacklist the old token for the remainder of its own lifetime. After
	// that the codec rejects it on expiry alone.
	remaining := claims.ExpiresAt.Sub(deps.Now())
	won, err := deps.Blacklist.Claim(ctx, refreshToken, session.ReasonRotated, remaining)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID, DeviceID: deviceID}
	}
	if !won {
		return RefreshResult{Failure: RefreshFailureReuse, UserID: userID, DeviceID: deviceID}
	}

	pair, err := deps.IssuePair(userID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: userID, DeviceID: deviceID}
	}

	// Create clobbers the prior record for this (user, device) key, which
	// retires the old session in the same write.
	next, err := deps.Sessions.Create(ctx, userID, deviceID, pair.Refresh, sess.DeviceInfo, deps.SessionLifetime())
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSessionCreate, Err: err, UserID: userID, DeviceID: deviceID}
	}

	return RefreshResult{
		UserID:   userID,
		DeviceID: deviceID,
		Session:  next,
		Pair:     pair,
	}
}
