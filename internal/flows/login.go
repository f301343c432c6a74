package flows

import (
	"context"
	"errors"
	"time"

	"github.com/jobgate/authcore/session"
	"github.com/jobgate/authcore/token"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureUserLookup
	LoginFailureInvalidCredentials
	LoginFailureAccountDisabled
	LoginFailureIssue
	LoginFailureSessionCreate
)

// LoginUserRecord is the flow-local user model.
type LoginUserRecord struct {
	UserID       string
	Identifier   string
	PasswordHash string
	Disabled     bool
}

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure    LoginFailureKind
	Err        error
	UserID     string
	DeviceID   string
	Session    *session.Session
	Pair       token.Pair
	RetryAfter time.Duration
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	// CheckRate reports whether another attempt may proceed. Counter
	// failures are absorbed by the caller, so a nil func or a true result
	// both mean proceed.
	CheckRate       func(context.Context) (allowed bool, retryAfter time.Duration)
	FetchUser       func(context.Context, string) (LoginUserRecord, error)
	UserNotFound    error
	VerifyPassword  func(hash, password string) (bool, error)
	IssuePair       func(subject string) (token.Pair, error)
	SessionLifetime func() time.Duration
	Sessions        SessionWriter
}

// RunLogin authenticates one credential pair and opens a session. The rate
// check runs before any credential work so attempts past the limit are
// refused even with a valid password.
func RunLogin(ctx context.Context, identifier, password, deviceID string, deviceInfo map[string]string, deps LoginDeps) LoginResult {
	deviceID = session.NormalizeDevice(deviceID)

	if deps.CheckRate != nil {
		if allowed, retryAfter := deps.CheckRate(ctx); !allowed {
			return LoginResult{Failure: LoginFailureRateLimited, DeviceID: deviceID, RetryAfter: retryAfter}
		}
	}

	user, err := deps.FetchUser(ctx, identifier)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return LoginResult{Failure: LoginFailureInvalidCredentials, DeviceID: deviceID}
		}
		return LoginResult{Failure: LoginFailureUserLookup, Err: err, DeviceID: deviceID}
	}

	ok, err := deps.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err, UserID: user.UserID, DeviceID: deviceID}
	}
	if user.Disabled {
		return LoginResult{Failure: LoginFailureAccountDisabled, UserID: user.UserID, DeviceID: deviceID}
	}

	pair, err := deps.IssuePair(user.UserID)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.UserID, DeviceID: deviceID}
	}

	sess, err := deps.Sessions.Create(ctx, user.UserID, deviceID, pair.Refresh, deviceInfo, deps.SessionLifetime())
	if err != nil {
		return LoginResult{Failure: LoginFailureSessionCreate, Err: err, UserID: user.UserID, DeviceID: deviceID}
	}

	return LoginResult{
		UserID:   user.UserID,
		DeviceID: deviceID,
		Session:  sess,
		Pair:     pair,
	}
}
