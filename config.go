package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/jobgate/authcore/internal/rate"
)

// JWTConfig controls token issuance and verification.
type JWTConfig struct {
	// Secret is the HMAC-SHA256 signing key. Minimum 32 bytes.
	Secret []byte
	// AccessTTL is the access token lifetime. Default 30 minutes.
	AccessTTL time.Duration
	// RefreshTTL is the refresh token and session lifetime. Default 7 days.
	RefreshTTL time.Duration
	// Issuer, when set, is stamped into and required from every token.
	Issuer string
	// Leeway tolerates clock skew during validation. Capped at 2 minutes.
	Leeway time.Duration
}

// SessionConfig controls Redis key layout for sessions and the blacklist.
type SessionConfig struct {
	RedisPrefix     string
	BlacklistPrefix string
}

// RateLimitConfig controls the fixed-window limiter.
type RateLimitConfig struct {
	Enabled     bool
	RedisPrefix string
	// FallbackReprobe is how long the limiter stays on in-memory counters
	// after a Redis failure before retrying Redis.
	FallbackReprobe time.Duration
	// Rules maps rule names to definitions. defaultConfig seeds the
	// built-in auth/api/strict/upload/public rules.
	Rules map[string]Rule
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the request path when
	// the buffer is full. Dropped counts are observable via AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// PasswordConfig holds Argon2id parameters for password verification.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Config is the full engine configuration. Zero values are filled from
// defaultConfig by the Builder; only JWT.Secret has no default.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Password  PasswordConfig
}

func defaultConfig() Config {
	rules := make(map[string]Rule, 5)
	for name, rule := range rate.DefaultRules() {
		rules[name] = rule
	}

	return Config{
		JWT: JWTConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			RedisPrefix:     "rt",
			BlacklistPrefix: "bl",
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			RedisPrefix:     "rl",
			FallbackReprobe: 30 * time.Second,
			Rules:           rules,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

// Validate checks invariants the engine cannot repair on its own.
func (c Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT.Secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT.AccessTTL must be shorter than JWT.RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT.Leeway must be between 0 and 2 minutes")
	}
	if c.Session.RedisPrefix == "" || c.Session.BlacklistPrefix == "" {
		return errors.New("session prefixes must not be empty")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RedisPrefix == "" {
			return errors.New("RateLimit.RedisPrefix must not be empty")
		}
		for name, rule := range c.RateLimit.Rules {
			if name != rule.Name {
				return fmt.Errorf("rate rule registered under %q but named %q", name, rule.Name)
			}
			if err := rate.ValidateRule(rule); err != nil {
				return fmt.Errorf("rate rule %q: %w", name, err)
			}
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make(map[string]Rule, len(cfg.RateLimit.Rules))
		for name, rule := range cfg.RateLimit.Rules {
			out.RateLimit.Rules[name] = rule
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
