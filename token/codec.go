package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type discriminates access tokens from refresh tokens inside the signed
// payload. A refresh token presented where an access token is expected (or
// the reverse) fails verification.
type Type string

const (
	// TypeAccess marks short-lived request credentials.
	TypeAccess Type = "access"
	// TypeRefresh marks the longer-lived credentials exchanged during rotation.
	TypeRefresh Type = "refresh"
)

var (
	// ErrTokenInvalid covers malformed encoding, signature mismatch, and
	// expiry. Callers must not distinguish these cases toward clients.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenTypeMismatch is returned when a token verifies but carries the
	// wrong type claim.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// Config holds the signing material and lifetimes for a [Codec].
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	// Secret is the HMAC-SHA256 signing secret. Required, minimum 32 bytes.
	Secret []byte
	// AccessTTL defaults to 30 minutes when zero.
	AccessTTL time.Duration
	// RefreshTTL defaults to 7 days when zero.
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
	// TimeFunc overrides the clock for issuing and verification. Tests use
	// this to make expiry deterministic. Defaults to [time.Now].
	TimeFunc func() time.Time
}

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	minSecretBytes = 32
)

// Claims is the decoded payload of a verified token.
type Claims struct {
	TokenType Type `json:"type"`
	jwt.RegisteredClaims
}

// Pair bundles a freshly issued access/refresh token pair. Both tokens share
// the same subject; expiries are independent.
type Pair struct {
	Access            string
	Refresh           string
	AccessTTLSeconds  int64
	RefreshTTLSeconds int64
}

// Codec mints and verifies access and refresh tokens. It owns no mutable
// state; all methods are safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a [Codec]. TTLs fall back to package
// defaults when zero.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("token: secret must be at least 32 bytes")
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token: negative TTL configuration")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: invalid leeway configuration")
	}
	if cfg.TimeFunc == nil {
		cfg.TimeFunc = time.Now
	}
	return &Codec{config: cfg}, nil
}

// AccessTTL reports the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }

// IssueAccess mints an access token for subject with expiry now+AccessTTL.
func (c *Codec) IssueAccess(subject string) (string, error) {
	return c.issue(subject, TypeAccess, c.config.AccessTTL)
}

// IssueRefresh mints a refresh token for subject with expiry now+RefreshTTL.
func (c *Codec) IssueRefresh(subject string) (string, error) {
	return c.issue(subject, TypeRefresh, c.config.RefreshTTL)
}

// IssuePair mints an access and a refresh token sharing the same subject.
func (c *Codec) IssuePair(subject string) (Pair, error) {
	access, err := c.IssueAccess(subject)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := c.IssueRefresh(subject)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Access:            access,
		Refresh:           refresh,
		AccessTTLSeconds:  int64(c.config.AccessTTL / time.Second),
		RefreshTTLSeconds: int64(c.config.RefreshTTL / time.Second),
	}, nil
}

func (c *Codec) issue(subject string, typ Type, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token: empty subject")
	}

	now := c.config.TimeFunc()
	claims := Claims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.config.Issuer,
			// Unique jti keeps two tokens issued in the same second
			// distinguishable, which revocation relies on.
			ID: uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.Secret)
}

// Verify parses and validates tokenStr. Every failure mode collapses into
// [ErrTokenInvalid]; Verify never panics on hostile input.
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.config.TimeFunc),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return c.config.Secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	switch claims.TokenType {
	case TypeAccess, TypeRefresh:
	default:
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// VerifyType verifies tokenStr and additionally requires the embedded type
// claim to match typ.
func (c *Codec) VerifyType(tokenStr string, typ Type) (*Claims, error) {
	claims, err := c.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != typ {
		return nil, ErrTokenTypeMismatch
	}
	return claims, nil
}
