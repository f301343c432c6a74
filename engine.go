package authcore

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/jobgate/authcore/internal/audit"
	"github.com/jobgate/authcore/internal/rate"
	"github.com/jobgate/authcore/internal/storage"
	"github.com/jobgate/authcore/password"
	"github.com/jobgate/authcore/session"
	"github.com/jobgate/authcore/token"
)

// Engine is the token lifecycle and rate limiting core. Build one with
// [Builder.Build]; all methods are safe for concurrent use.
type Engine struct {
	config       Config
	codec        *token.Codec
	sessions     *session.Store
	blacklist    *session.Blacklist
	limiter      *rate.Limiter
	counters     *storage.FallbackCounters
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	userProvider UserProvider
}

// Close flushes the audit dispatcher and stops the in-memory counter
// janitor. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.counters != nil {
		e.counters.Close()
	}
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// onStoreFallback is invoked once per Redis-to-memory counter transition.
func (e *Engine) onStoreFallback() {
	e.metricInc(MetricStoreFallback)
	e.emitAudit(context.Background(), internalaudit.TypeStoreFallback, false, "", "", "", nil, nil)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	deviceID string,
	ip string,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		DeviceID:  deviceID,
		IP:        ip,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = code
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRefreshReuse):
		return "refresh_reuse"
	case errors.Is(err, ErrRefreshInvalid), errors.Is(err, ErrTokenInvalid):
		return "invalid_token"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrStoreUnavailable):
		return "backend_unavailable"
	default:
		return "internal_error"
	}
}
