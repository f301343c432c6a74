package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotReady is returned from methods on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCredentials covers unknown identifiers, wrong passwords and
	// disabled accounts. Callers get one generic error for all three.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is the sentinel a UserProvider returns for an unknown
	// identifier. The engine never surfaces it to API callers.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginRateLimited is returned when the auth rule denies a login
	// attempt before credentials are checked.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRateLimited is returned by CheckRateLimit when a rule denies.
	ErrRateLimited = errors.New("rate limited")
	// ErrRefreshInvalid covers expired, malformed and unknown refresh
	// tokens, including tokens whose session is gone.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrRefreshReuse is returned when an already-rotated refresh token is
	// presented again. It wraps [ErrRefreshInvalid] so transport layers that
	// only check for invalid refresh keep returning the same generic
	// response for replays.
	ErrRefreshReuse = fmt.Errorf("reuse detected: %w", ErrRefreshInvalid)
	// ErrTokenInvalid is returned for access tokens that fail validation.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrSessionNotFound is returned when a revocation targets a session
	// that does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable is returned when Redis is down and the operation
	// must fail closed.
	ErrStoreUnavailable = errors.New("auth store unavailable")
	// ErrRuleUnknown is returned by CheckRateLimit for unregistered rules.
	ErrRuleUnknown = errors.New("unknown rate limit rule")
	// ErrOAuthUnsupported is returned by LoginOAuth when the configured
	// UserProvider does not implement [OAuthUserProvider].
	ErrOAuthUnsupported = errors.New("oauth login not supported by user provider")
)
