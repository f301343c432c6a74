package authcore

import (
	"context"
	"errors"

	internalaudit "github.com/jobgate/authcore/internal/audit"
	"github.com/jobgate/authcore/session"
)

// OAuthProfile is an already-exchanged identity from an external provider.
// Code exchange and profile fetch happen outside the engine; only the stable
// provider id and email reach it.
type OAuthProfile struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

// OAuthUserProvider is implemented by hosts that support social login.
// GetUserByProvider must return [ErrUserNotFound] (or an error wrapping it)
// when no account is linked to (provider, providerID). Any other error, such
// as an account-conflict error from the host, passes through untouched.
type OAuthUserProvider interface {
	GetUserByProvider(ctx context.Context, provider, providerID string) (UserRecord, error)
}

// LoginOAuth opens a session for an externally authenticated principal. The
// auth rate rule applies the same way it does to password logins.
func (e *Engine) LoginOAuth(ctx context.Context, profile OAuthProfile, opts LoginOptions) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	provider, ok := e.userProvider.(OAuthUserProvider)
	if !ok {
		return TokenPair{}, ErrOAuthUnsupported
	}
	if profile.Provider == "" || profile.ProviderID == "" {
		return TokenPair{}, ErrInvalidCredentials
	}

	req := e.requestInfo(ctx, opts.Request)
	deviceID := session.NormalizeDevice(opts.DeviceID)
	meta := map[string]string{"provider": profile.Provider}

	if check := e.authRateCheck(req); check != nil {
		if allowed, _ := check(ctx); !allowed {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, internalaudit.TypeLoginRateLimited, false, "", deviceID, req.RemoteIP, ErrLoginRateLimited, meta)
			return TokenPair{}, ErrLoginRateLimited
		}
	}

	rec, err := provider.GetUserByProvider(ctx, profile.Provider, profile.ProviderID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, internalaudit.TypeLoginFailure, false, "", deviceID, req.RemoteIP, ErrInvalidCredentials, meta)
			return TokenPair{}, ErrInvalidCredentials
		}
		// Host-level errors (account conflicts, backend failures) are the
		// caller's to interpret.
		return TokenPair{}, err
	}
	if rec.Disabled {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, internalaudit.TypeLoginFailure, false, rec.UserID, deviceID, req.RemoteIP, ErrInvalidCredentials, meta)
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := e.codec.IssuePair(rec.UserID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, err
	}

	if _, err := e.sessions.Create(ctx, rec.UserID, deviceID, pair.Refresh, opts.DeviceInfo, e.codec.RefreshTTL()); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, internalaudit.TypeLoginFailure, false, rec.UserID, deviceID, req.RemoteIP, ErrStoreUnavailable, meta)
		return TokenPair{}, joinStoreErr(err)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, internalaudit.TypeLoginSuccess, true, rec.UserID, deviceID, req.RemoteIP, nil, meta)
	return pair, nil
}
