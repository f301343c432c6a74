package flows

import (
	"context"
	"time"

	"github.com/jobgate/authcore/session"
	"github.com/jobgate/authcore/token"
)

// LogoutFailureKind classifies logout flow failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureTokenInvalid
	LogoutFailureStore
)

// LogoutResult reports which records the flow touched.
type LogoutResult struct {
	Failure  LogoutFailureKind
	Err      error
	UserID   string
	DeviceID string
	// Existed is false when the session was already gone. Logout stays
	// idempotent either way.
	Existed bool
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	VerifyRefresh func(string) (*token.Claims, error)
	Now           func() time.Time
	Sessions      SessionWriter
	Blacklist     TokenBlacklist
}

// RunLogout blacklists the presented refresh token and removes its session.
func RunLogout(ctx context.Context, refreshToken, deviceID string, deps LogoutDeps) LogoutResult {
	deviceID = session.NormalizeDevice(deviceID)

	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureTokenInvalid, Err: err, DeviceID: deviceID}
	}
	userID := claims.Subject

	remaining := claims.ExpiresAt.Sub(deps.Now())
	if _, err := deps.Blacklist.Claim(ctx, refreshToken, session.ReasonLogout, remaining); err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err, UserID: userID, DeviceID: deviceID}
	}

	existed, err := deps.Sessions.Revoke(ctx, userID, deviceID)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err, UserID: userID, DeviceID: deviceID}
	}

	return LogoutResult{UserID: userID, DeviceID: deviceID, Existed: existed}
}

// RunLogoutAll removes every session the user holds. Outstanding refresh
// tokens die with their session records, so no per-token blacklist writes
// are needed here.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	return deps.Sessions.RevokeAll(ctx, userID)
}
