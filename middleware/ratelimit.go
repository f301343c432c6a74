package middleware

import (
	"net"
	"net/http"
	"strconv"

	authcore "github.com/jobgate/authcore"
)

// RateLimit enforces the named rule before the handler runs. Denied
// requests get 429 with a Retry-After header; allowed requests carry
// X-RateLimit-Limit and X-RateLimit-Remaining for the tightest tier.
//
// Place RateLimit after [Guard] when the rule keys on user or device
// identity, so the principal is already in context.
func RateLimit(engine *authcore.Engine, ruleName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := engine.CheckRateLimit(r.Context(), ruleName, r.URL.Path, r.Method, requestInfo(r))
			if err != nil {
				// Unknown rule is a wiring bug; fail open rather than
				// taking the route down.
				next.ServeHTTP(w, r)
				return
			}

			writeQuotaHeaders(w, decision)

			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestInfo(r *http.Request) authcore.RequestInfo {
	info := authcore.RequestInfo{
		RemoteIP: remoteIP(r.RemoteAddr),
		Header:   r.Header,
	}
	if principal, ok := PrincipalFromContext(r.Context()); ok {
		info.UserID = principal.UserID
	}
	return info
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func writeQuotaHeaders(w http.ResponseWriter, decision authcore.Decision) {
	if len(decision.Quotas) == 0 {
		return
	}

	// Report the tier with the least headroom.
	tightest := decision.Quotas[0]
	for _, q := range decision.Quotas[1:] {
		if q.Remaining < tightest.Remaining {
			tightest = q
		}
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(tightest.Limit))
	remaining := tightest.Remaining
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}
