package authcore

import (
	"context"
	"time"

	internalaudit "github.com/jobgate/authcore/internal/audit"
	"github.com/jobgate/authcore/internal/rate"
	"github.com/jobgate/authcore/session"
	"github.com/jobgate/authcore/token"
)

// TokenPair is the access/refresh pair returned by Login and Refresh.
type TokenPair = token.Pair

// Principal is the identity carried by a verified access token.
type Principal struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserRecord is the account shape the engine needs from the host
// application. The engine never writes user records.
type UserRecord struct {
	UserID       string
	Identifier   string
	PasswordHash string
	Disabled     bool
}

// UserProvider is the interface host applications implement to let the
// engine look up credentials. GetUserByIdentifier must return
// [ErrUserNotFound] (or an error wrapping it) for unknown identifiers;
// any other error is treated as a backend failure.
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
}

// LoginOptions carries the optional parts of a login request.
type LoginOptions struct {
	// DeviceID distinguishes concurrent sessions per user. Empty means the
	// shared "web" session slot.
	DeviceID string
	// DeviceInfo is free-form client metadata stored with the session.
	DeviceInfo map[string]string
	// Request, when set, feeds the auth rate rule and audit events. Without
	// it the engine falls back to WithClientIP context values.
	Request *RequestInfo
}

// SessionInfo is the caller-visible session projection. Token material
// appears only as a short hash prefix.
type SessionInfo = session.Info

// Rate limiting surface, re-exported from the internal limiter so hosts can
// define rules without importing internal packages.
type (
	RequestInfo  = rate.Request
	Rule         = rate.Rule
	Tier         = rate.Tier
	Decision     = rate.Decision
	Quota        = rate.Quota
	IdentityFunc = rate.IdentityFunc
	SkipFunc     = rate.SkipFunc
)

// Built-in rule names registered by defaultConfig.
const (
	RuleAuth   = rate.RuleAuth
	RuleAPI    = rate.RuleAPI
	RuleStrict = rate.RuleStrict
	RuleUpload = rate.RuleUpload
	RulePublic = rate.RulePublic
)

// Identity extractors for rate rules.
var (
	IdentityByIP     = rate.IdentityByIP
	IdentityByUser   = rate.IdentityByUser
	IdentityByDevice = rate.IdentityByDevice
	IdentityGlobal   = rate.IdentityGlobal
	DefaultIdentity  = rate.DefaultIdentity
	SkipWithHeader   = rate.SkipWithHeader
)

// AuditEvent is the structured record handed to audit sinks.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit
// dispatcher. Implementations must be safe for concurrent use.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// io.Writer, one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

var (
	NewChannelSink    = internalaudit.NewChannelSink
	NewJSONWriterSink = internalaudit.NewJSONWriterSink
)
