package authcore

import (
	"context"

	internalaudit "github.com/jobgate/authcore/internal/audit"
)

// CheckRateLimit evaluates the named rule against one request and consumes
// quota on every tier the request passes. Callers decide what to do with a
// denial; [Engine.Allow] is the error-returning shorthand.
//
// Counter backend failures never deny: the limiter falls back to in-process
// counters, and any residual error fails open.
func (e *Engine) CheckRateLimit(ctx context.Context, ruleName, route, method string, req RequestInfo) (Decision, error) {
	if e == nil {
		return Decision{}, ErrEngineNotReady
	}
	if e.limiter == nil {
		return Decision{Allowed: true, Rule: ruleName}, nil
	}

	rule, ok := e.config.RateLimit.Rules[ruleName]
	if !ok {
		return Decision{}, ErrRuleUnknown
	}

	decision, err := e.limiter.Check(ctx, route, method, req, rule)
	if err != nil {
		return Decision{Allowed: true, Rule: ruleName}, nil
	}

	if !decision.Allowed {
		e.metricInc(MetricRateLimitHit)
		e.emitAudit(ctx, internalaudit.TypeRateLimitExceeded, false, req.UserID, req.DeviceID, req.RemoteIP, ErrRateLimited, map[string]string{
			"rule":  ruleName,
			"route": route,
		})
	}

	return decision, nil
}

// Allow wraps [Engine.CheckRateLimit] and returns [ErrRateLimited] on
// denial.
func (e *Engine) Allow(ctx context.Context, ruleName, route, method string, req RequestInfo) error {
	decision, err := e.CheckRateLimit(ctx, ruleName, route, method, req)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return ErrRateLimited
	}
	return nil
}

// ResetRateLimit clears the named rule's counters for one request identity.
// Intended for admin tooling and tests.
func (e *Engine) ResetRateLimit(ctx context.Context, ruleName, route, method string, req RequestInfo) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.limiter == nil {
		return nil
	}

	rule, ok := e.config.RateLimit.Rules[ruleName]
	if !ok {
		return ErrRuleUnknown
	}
	return e.limiter.Reset(ctx, route, method, req, rule)
}
