package rate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ClientIP extracts the client address with proxy support: first hop of
// X-Forwarded-For, then X-Real-IP, then the transport peer.
func ClientIP(req Request) string {
	if req.Header != nil {
		if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
			if first, _, ok := strings.Cut(forwarded, ","); ok || first != "" {
				return strings.TrimSpace(first)
			}
		}
		if real := req.Header.Get("X-Real-Ip"); real != "" {
			return real
		}
	}
	if req.RemoteIP != "" {
		return req.RemoteIP
	}
	return "unknown"
}

// IdentityByIP buckets strictly by client address. Used for anonymous
// endpoints such as login and registration.
func IdentityByIP(req Request) string {
	return "ip:" + ClientIP(req)
}

// IdentityByUser buckets by authenticated user, falling back to a hash of
// the bearer token and finally to the client address.
func IdentityByUser(req Request) string {
	if req.UserID != "" {
		return "user:" + req.UserID
	}
	if req.Header != nil {
		if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			sum := sha256.Sum256([]byte(auth[len("Bearer "):]))
			return "user:" + hex.EncodeToString(sum[:8])
		}
	}
	return IdentityByIP(req)
}

// IdentityByDevice buckets by reported device, falling back to the client
// address. Used for mobile auth endpoints.
func IdentityByDevice(req Request) string {
	if req.DeviceID != "" {
		return "device:" + req.DeviceID
	}
	return IdentityByIP(req)
}

// IdentityGlobal buckets every request together, for endpoint-wide limits.
func IdentityGlobal(Request) string {
	return "global"
}

// DefaultIdentity is IP plus a short user-agent hash, separating distinct
// clients behind one NAT without trusting anything the client controls for
// more than bucketing.
func DefaultIdentity(req Request) string {
	ua := ""
	if req.Header != nil {
		ua = req.Header.Get("User-Agent")
	}
	sum := sha256.Sum256([]byte(ua))
	return ClientIP(req) + ":" + hex.EncodeToString(sum[:4])
}

// SkipWithHeader returns a [SkipFunc] admitting requests that carry the
// given header value, e.g. an internal admin bypass.
func SkipWithHeader(name, value string) SkipFunc {
	return func(req Request) bool {
		return req.Header != nil && req.Header.Get(name) == value
	}
}
