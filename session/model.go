package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// WebDevice is the device key used for cookie-based web sessions, where the
// client does not report a device identifier.
const WebDevice = "web"

// Session is one refresh-token session, keyed by (UserID, DeviceID). The raw
// refresh token is never stored; only TokenHash.
type Session struct {
	UserID     string
	DeviceID   string
	TokenHash  [32]byte
	CreatedAt  int64
	LastUsedAt int64
	ExpiresAt  int64
	// DeviceInfo is client-reported metadata (platform, app version). It is
	// never trusted for authorization; display and audit only.
	DeviceInfo map[string]string
}

// Info is the listing view of a session, safe to return to session-management
// UIs: it carries a short hash prefix instead of the full token hash.
type Info struct {
	DeviceID        string
	TokenHashPrefix string
	CreatedAt       time.Time
	LastUsedAt      time.Time
	ExpiresAt       time.Time
	DeviceInfo      map[string]string
}

// BlacklistReason records why a token hash was blacklisted.
type BlacklistReason string

const (
	ReasonRotated      BlacklistReason = "rotated"
	ReasonManualRevoke BlacklistReason = "manual_revoke"
	ReasonLogout       BlacklistReason = "logout"
)

// HashToken computes the one-way hash under which refresh tokens are stored,
// blacklisted, and indexed.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// NormalizeDevice maps an absent device identifier to [WebDevice].
func NormalizeDevice(deviceID string) string {
	if deviceID == "" {
		return WebDevice
	}
	return deviceID
}

func (s *Session) info() Info {
	return Info{
		DeviceID:        s.DeviceID,
		TokenHashPrefix: hex.EncodeToString(s.TokenHash[:6]),
		CreatedAt:       time.Unix(s.CreatedAt, 0).UTC(),
		LastUsedAt:      time.Unix(s.LastUsedAt, 0).UTC(),
		ExpiresAt:       time.Unix(s.ExpiresAt, 0).UTC(),
		DeviceInfo:      s.DeviceInfo,
	}
}
