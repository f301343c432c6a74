package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	internalaudit "github.com/jobgate/authcore/internal/audit"
	"github.com/jobgate/authcore/internal/flows"
	"github.com/jobgate/authcore/session"
	"github.com/jobgate/authcore/token"
)

const (
	loginRoute   = "auth/login"
	loginMethod  = "POST"
	authUserMeta = "identifier"
)

// Login authenticates a credential pair and opens the default "web"
// session. Use [Engine.LoginWithOptions] for device-scoped sessions.
func (e *Engine) Login(ctx context.Context, identifier, password string) (TokenPair, error) {
	return e.LoginWithOptions(ctx, identifier, password, LoginOptions{})
}

// LoginWithOptions authenticates a credential pair. The auth rate rule is
// consulted before credentials are checked, so an attacker past the limit
// learns nothing from a valid guess. Unknown users, wrong passwords and
// disabled accounts all return [ErrInvalidCredentials].
func (e *Engine) LoginWithOptions(ctx context.Context, identifier, password string, opts LoginOptions) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	req := e.requestInfo(ctx, opts.Request)

	deps := flows.LoginDeps{
		CheckRate:    e.authRateCheck(req),
		FetchUser:    e.fetchLoginUser,
		UserNotFound: ErrUserNotFound,
		VerifyPassword: func(hash, password string) (bool, error) {
			return e.passwordHash.Verify(password, hash)
		},
		IssuePair:       e.codec.IssuePair,
		SessionLifetime: e.codec.RefreshTTL,
		Sessions:        e.sessions,
	}

	result := flows.RunLogin(ctx, identifier, password, opts.DeviceID, opts.DeviceInfo, deps)

	switch result.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, internalaudit.TypeLoginSuccess, true, result.UserID, result.DeviceID, req.RemoteIP, nil, nil)
		return result.Pair, nil

	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, internalaudit.TypeLoginRateLimited, false, "", result.DeviceID, req.RemoteIP, ErrLoginRateLimited, map[string]string{
			authUserMeta: identifier,
		})
		return TokenPair{}, ErrLoginRateLimited

	case flows.LoginFailureInvalidCredentials, flows.LoginFailureAccountDisabled:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, internalaudit.TypeLoginFailure, false, result.UserID, result.DeviceID, req.RemoteIP, ErrInvalidCredentials, map[string]string{
			authUserMeta: identifier,
		})
		return TokenPair{}, ErrInvalidCredentials

	case flows.LoginFailureUserLookup, flows.LoginFailureSessionCreate:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, internalaudit.TypeLoginFailure, false, result.UserID, result.DeviceID, req.RemoteIP, ErrStoreUnavailable, nil)
		return TokenPair{}, joinStoreErr(result.Err)

	default:
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, result.Err
	}
}

// Refresh rotates a refresh token for the default "web" session.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return e.RefreshDevice(ctx, refreshToken, "")
}

// RefreshDevice rotates a refresh token. The old token is dead after the
// first successful call; presenting it again returns [ErrRefreshReuse].
func (e *Engine) RefreshDevice(ctx context.Context, refreshToken, deviceID string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	deps := flows.RefreshDeps{
		VerifyRefresh: func(s string) (*token.Claims, error) {
			return e.codec.VerifyType(s, token.TypeRefresh)
		},
		IssuePair:       e.codec.IssuePair,
		SessionLifetime: e.codec.RefreshTTL,
		Now:             time.Now,
		Sessions:        e.sessions,
		Blacklist:       e.blacklist,
	}

	result := flows.RunRefresh(ctx, refreshToken, deviceID, deps)

	switch result.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, internalaudit.TypeTokenRefreshed, true, result.UserID, result.DeviceID, "", nil, nil)
		return result.Pair, nil

	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricReplayDetected)
		e.emitAudit(ctx, internalaudit.TypeTokenReplay, false, result.UserID, result.DeviceID, "", ErrRefreshReuse, nil)
		return TokenPair{}, ErrRefreshReuse

	case flows.RefreshFailureTokenInvalid, flows.RefreshFailureSessionNotFound:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, internalaudit.TypeTokenRefreshed, false, result.UserID, result.DeviceID, "", ErrRefreshInvalid, nil)
		return TokenPair{}, ErrRefreshInvalid

	case flows.RefreshFailureStore, flows.RefreshFailureSessionCreate:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, internalaudit.TypeTokenRefreshed, false, result.UserID, result.DeviceID, "", ErrStoreUnavailable, nil)
		return TokenPair{}, joinStoreErr(result.Err)

	default:
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, result.Err
	}
}

// Logout blacklists the presented refresh token and removes its session.
// Logging out a session that is already gone still succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken, deviceID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	deps := flows.LogoutDeps{
		VerifyRefresh: func(s string) (*token.Claims, error) {
			return e.codec.VerifyType(s, token.TypeRefresh)
		},
		Now:       time.Now,
		Sessions:  e.sessions,
		Blacklist: e.blacklist,
	}

	result := flows.RunLogout(ctx, refreshToken, deviceID, deps)

	switch result.Failure {
	case flows.LogoutFailureNone:
		e.metricInc(MetricLogout)
		if result.Existed {
			e.metricInc(MetricSessionInvalidated)
		}
		e.emitAudit(ctx, internalaudit.TypeLogout, true, result.UserID, result.DeviceID, "", nil, nil)
		return nil

	case flows.LogoutFailureTokenInvalid:
		return ErrRefreshInvalid

	default:
		return joinStoreErr(result.Err)
	}
}

// LogoutAll removes every session the user holds and reports how many were
// revoked.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	count, err := flows.RunLogoutAll(ctx, userID, flows.LogoutDeps{Sessions: e.sessions})
	if err != nil {
		return count, joinStoreErr(err)
	}

	e.metricInc(MetricLogoutAll)
	for i := 0; i < count; i++ {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, internalaudit.TypeLogoutAll, true, userID, "", "", nil, nil)
	return count, nil
}

// ValidateAccess verifies an access token and returns its principal. It
// performs no I/O.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.codec.VerifyType(accessToken, token.TypeAccess)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return &Principal{
		UserID:    claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Sessions lists a user's active sessions. Entries carry hash prefixes,
// never token material.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	infos, err := e.sessions.List(ctx, userID)
	if err != nil {
		return nil, joinStoreErr(err)
	}
	return infos, nil
}

// RevokeSession removes one session by device key.
func (e *Engine) RevokeSession(ctx context.Context, userID, deviceID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	existed, err := e.sessions.Revoke(ctx, userID, deviceID)
	if err != nil {
		return joinStoreErr(err)
	}
	if !existed {
		return ErrSessionNotFound
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, internalaudit.TypeSessionRevoked, true, userID, session.NormalizeDevice(deviceID), "", nil, nil)
	return nil
}

func (e *Engine) fetchLoginUser(ctx context.Context, identifier string) (flows.LoginUserRecord, error) {
	rec, err := e.userProvider.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return flows.LoginUserRecord{}, err
	}
	return flows.LoginUserRecord{
		UserID:       rec.UserID,
		Identifier:   rec.Identifier,
		PasswordHash: rec.PasswordHash,
		Disabled:     rec.Disabled,
	}, nil
}

// authRateCheck binds the auth rule to one request. Counter failures are
// handled inside the limiter's fallback chain, so any residual error here
// fails open.
func (e *Engine) authRateCheck(req RequestInfo) func(context.Context) (bool, time.Duration) {
	if e.limiter == nil {
		return nil
	}
	rule, ok := e.config.RateLimit.Rules[RuleAuth]
	if !ok {
		return nil
	}

	return func(ctx context.Context) (bool, time.Duration) {
		decision, err := e.limiter.Check(ctx, loginRoute, loginMethod, req, rule)
		if err != nil {
			return true, 0
		}
		if !decision.Allowed {
			e.metricInc(MetricRateLimitHit)
			return false, decision.RetryAfter
		}
		return true, 0
	}
}

// requestInfo prefers an explicit RequestInfo and otherwise reconstructs
// one from context values.
func (e *Engine) requestInfo(ctx context.Context, override *RequestInfo) RequestInfo {
	if override != nil {
		return *override
	}

	req := RequestInfo{RemoteIP: clientIPFromContext(ctx)}
	if ua := userAgentFromContext(ctx); ua != "" {
		req.Header = http.Header{"User-Agent": []string{ua}}
	}
	return req
}

// joinStoreErr maps storage failures onto the public sentinel while keeping
// the cause in the chain.
func joinStoreErr(err error) error {
	if err == nil {
		return ErrStoreUnavailable
	}
	if errors.Is(err, session.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
