package authcore

import (
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	internalaudit "github.com/sportsprop/authcore/internal/audit"
	"github.com/sportsprop/authcore/jwt"
	"github.com/sportsprop/authcore/lockout"
	"github.com/sportsprop/authcore/password"
	"github.com/sportsprop/authcore/session"
	"github.com/sportsprop/authcore/totp"
)

// dummyPassword is hashed once at build time so unknown identities cost the
// same verify as known ones.
const dummyPassword = "authcore-timing-equalizer"

// Builder assembles an Engine. A Builder can be used once.
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithCredentials(store).
//		Build()
type Builder struct {
	config Config

	credentials CredentialStore
	totpStore   TOTPStore
	profiles    ProfileStore
	auditSink   AuditSink

	logger  *zap.Logger
	clock   clockwork.Clock
	durable session.Durable
	redis   redis.UniversalClient

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCredentials sets the required credential collaborator.
func (b *Builder) WithCredentials(cs CredentialStore) *Builder {
	b.credentials = cs
	return b
}

// WithTOTPStore enables the second factor. Without it Login never asks
// for a TOTP code.
func (b *Builder) WithTOTPStore(ts TOTPStore) *Builder {
	b.totpStore = ts
	return b
}

// WithProfiles enables the per-user personal-information password check.
func (b *Builder) WithProfiles(ps ProfileStore) *Builder {
	b.profiles = ps
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

// WithSessionDurable mirrors every session change into d. If d also
// implements session.Loader, Engine.RestoreSessions reloads from it.
func (b *Builder) WithSessionDurable(d session.Durable) *Builder {
	b.durable = d
	return b
}

// WithRedis mirrors sessions into Redis under Config.Session.RedisPrefix.
// It is ignored when WithSessionDurable is also set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. The background
// sweeper starts here; call Engine.Close to stop it.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(cfg.Password.Hasher)
	if err != nil {
		return nil, err
	}
	policy, err := password.NewPolicy(cfg.Password.Policy)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:    cfg.Token.TTL,
		Secret: cloneBytes(cfg.Token.Secret),
		Issuer: cfg.Token.Issuer,
		Leeway: cfg.Token.Leeway,
		KeyID:  cfg.Token.KeyID,
	}, jwt.WithClock(clock))
	if err != nil {
		return nil, err
	}

	// -------- LOCKOUT --------
	attempts, err := lockout.NewTracker(lockout.Config{
		MaxAttempts: cfg.Lockout.MaxAttempts,
		Window:      cfg.Lockout.Window,
	}, clock)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		clock:       clock,
		logger:      logger.Named("authcore"),
		attempts:    attempts,
		tokens:      tokens,
		hasher:      hasher,
		policy:      policy,
		dummyHash:   dummy,
		totp:        totp.New(cfg.TOTP, clock),
		credentials: b.credentials,
		totpStore:   b.totpStore,
		profiles:    b.profiles,
		metrics:     NewMetrics(cfg.Metrics),
		stop:        make(chan struct{}),
	}

	// -------- SESSIONS --------
	durable := b.durable
	if durable == nil && b.redis != nil {
		durable = session.NewRedisMirror(b.redis, cfg.Session.RedisPrefix)
	}
	engine.durable = durable

	opts := []session.Option{
		session.WithClock(clock),
		session.WithLogger(engine.logger),
		session.WithEvictHook(engine.onSessionEvicted),
	}
	if durable != nil {
		opts = append(opts, session.WithDurable(durable))
	}
	engine.sessions = session.NewStore(session.Config{
		Timeout:       cfg.Session.Timeout,
		MaxConcurrent: cfg.Session.MaxConcurrent,
	}, opts...)

	// -------- AUDIT --------
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, engine.logger)

	if cfg.Session.SweepInterval > 0 {
		engine.startSweeper(cfg.Session.SweepInterval)
	}

	b.built = true

	return engine, nil
}
