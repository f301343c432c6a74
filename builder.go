package authcore

import (
	"errors"

	internalaudit "github.com/jobgate/authcore/internal/audit"
	"github.com/jobgate/authcore/internal/rate"
	"github.com/jobgate/authcore/internal/storage"
	"github.com/jobgate/authcore/password"
	"github.com/jobgate/authcore/session"
	"github.com/jobgate/authcore/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use; Build fails on a
// second call.
type Builder struct {
	config       Config
	redis        redis.UniversalClient
	userProvider UserProvider
	auditSink    AuditSink
	built        bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. Missing rate rules are not
// re-seeded; start from DefaultConfig when only overriding parts.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithSecret(secret []byte) *Builder {
	b.config.JWT.Secret = cloneBytes(secret)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRateRule registers or replaces one named rule.
func (b *Builder) WithRateRule(rule Rule) *Builder {
	if b.config.RateLimit.Rules == nil {
		b.config.RateLimit.Rules = make(map[string]Rule)
	}
	b.config.RateLimit.Rules[rule.Name] = rule
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// DefaultConfig exposes the builder defaults so callers can tweak rather
// than rebuild the configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		codec:        codec,
		sessions:     session.NewStore(b.redis, cfg.Session.RedisPrefix),
		blacklist:    session.NewBlacklist(b.redis, cfg.Session.BlacklistPrefix),
		passwordHash: hasher,
		userProvider: b.userProvider,
		metrics:      NewMetrics(cfg.Metrics),
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	if cfg.RateLimit.Enabled {
		fallback := storage.NewFallbackCounters(
			storage.NewRedisCounters(b.redis),
			storage.NewMemoryCounters(),
			func() { engine.onStoreFallback() },
		)
		fallback.SetReprobe(cfg.RateLimit.FallbackReprobe)
		engine.counters = fallback
		engine.limiter = rate.NewLimiter(fallback, cfg.RateLimit.RedisPrefix)
	}

	b.built = true

	return engine, nil
}
