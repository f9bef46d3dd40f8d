package authcore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sportsprop/authcore/internal/logging"
	"github.com/sportsprop/authcore/jwt"
	"github.com/sportsprop/authcore/lockout"
	"github.com/sportsprop/authcore/password"
	"github.com/sportsprop/authcore/session"
	"github.com/sportsprop/authcore/totp"
)

// Config is the full engine configuration. Build it with DefaultConfig or
// LoadConfig and adjust before passing it to the Builder; it is treated as
// immutable afterwards.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Lockout  LockoutConfig  `yaml:"lockout"`
	Token    TokenConfig    `yaml:"token"`
	Password PasswordConfig `yaml:"password"`
	TOTP     totp.Config    `yaml:"totp"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds session lifetime and per-identity concurrency.
// Expiry is absolute from creation.
type SessionConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	// RedisPrefix namespaces the durable session mirror, when one is wired.
	RedisPrefix string `yaml:"redis_prefix"`
	// SweepInterval drives the background purge of expired sessions and
	// stale attempt history. Zero disables it.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures HS256 bearer tokens. Secret is read from the
// environment only and has no yaml tag.
type TokenConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
	Leeway time.Duration `yaml:"leeway"`
	KeyID  string        `yaml:"key_id"`
	Secret []byte        `yaml:"-"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Hasher password.Config       `yaml:"hasher"`
	Policy password.PolicyConfig `yaml:"policy"`
	// UpgradeOnLogin rehashes stored digests with weaker parameters after a
	// successful login.
	UpgradeOnLogin bool `yaml:"upgrade_on_login"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
	File  string `yaml:"file"`
}

// Logger converts c into the logging package configuration.
func (c LoggingConfig) Logger() logging.Config {
	return logging.Config{Level: c.Level, Dev: c.Dev, File: c.File}
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: 5 failures per 15 minutes,
// 2 hour sessions, 3 concurrent sessions, 1 hour tokens, bcrypt cost 12.
// Token.Secret is left empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Timeout:       session.DefaultTimeout,
			MaxConcurrent: session.DefaultMaxConcurrent,
			RedisPrefix:   session.DefaultRedisPrefix,
			SweepInterval: time.Minute,
		},
		Lockout: LockoutConfig{
			MaxAttempts: lockout.DefaultMaxAttempts,
			Window:      lockout.DefaultWindow,
		},
		Token: TokenConfig{
			TTL: jwt.DefaultTTL,
		},
		Password: PasswordConfig{
			Hasher:         password.DefaultConfig(),
			Policy:         password.DefaultPolicyConfig(),
			UpgradeOnLogin: true,
		},
		TOTP: totp.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Password.Policy.CommonPatterns = cloneStrings(cfg.Password.Policy.CommonPatterns)
	out.Password.Policy.PersonalWords = cloneStrings(cfg.Password.Policy.PersonalWords)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

/*
====================================
LOADING
====================================
*/

// LoadConfig resolves configuration in priority order: defaults, then each
// YAML file in paths (later files override earlier ones, missing files are
// skipped), then environment variables. The result is validated.
func LoadConfig(paths ...string) (Config, error) {
	cfg, err := ReadConfig(paths...)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadConfig is LoadConfig without validation, for offline tooling that
// never signs tokens and so has no use for a secret.
func ReadConfig(paths ...string) (Config, error) {
	cfg := defaultConfig()

	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error
	if cfg.Lockout.MaxAttempts, err = envInt("MAX_ATTEMPTS", cfg.Lockout.MaxAttempts); err != nil {
		return err
	}
	if cfg.Lockout.Window, err = envDuration("LOCKOUT_DURATION", cfg.Lockout.Window); err != nil {
		return err
	}
	if cfg.Session.Timeout, err = envDuration("SESSION_TIMEOUT", cfg.Session.Timeout); err != nil {
		return err
	}
	if cfg.Session.MaxConcurrent, err = envInt("MAX_CONCURRENT_SESSIONS", cfg.Session.MaxConcurrent); err != nil {
		return err
	}
	if cfg.Token.TTL, err = envDuration("TOKEN_TTL", cfg.Token.TTL); err != nil {
		return err
	}
	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		cfg.Token.Secret = []byte(secret)
	}
	cfg.TOTP.Issuer = envOrDefault("TOTP_ISSUER", cfg.TOTP.Issuer)
	cfg.Logging.Level = envOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = envOrDefault("LOG_FILE", cfg.Logging.File)
	if v := strings.TrimSpace(os.Getenv("LOG_DEV")); v != "" {
		cfg.Logging.Dev = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

// envDuration accepts Go duration strings ("15m") or a bare number of
// seconds ("900").
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate fails fast on unusable settings. A missing or short signing
// secret is always an error.
func (c *Config) Validate() error {
	// Session
	if c.Session.Timeout <= 0 {
		return errors.New("Session Timeout must be > 0")
	}
	if c.Session.MaxConcurrent <= 0 {
		return errors.New("Session MaxConcurrent must be > 0")
	}
	if c.Session.SweepInterval < 0 {
		return errors.New("Session SweepInterval must be >= 0")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}

	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if len(c.Token.Secret) == 0 {
		return errors.New("Token Secret is required (set JWT_SECRET_KEY)")
	}
	if len(c.Token.Secret) < jwt.MinSecretBytes {
		return fmt.Errorf("Token Secret must be at least %d bytes", jwt.MinSecretBytes)
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Password
	switch c.Password.Hasher.Algorithm {
	case "", password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return errors.New("Password Hasher Algorithm must be bcrypt or argon2id")
	}
	if c.Password.Policy.MinLength < 0 {
		return errors.New("Password Policy MinLength must be >= 0")
	}
	if c.Password.Policy.MinClasses < 0 || c.Password.Policy.MinClasses > 4 {
		return errors.New("Password Policy MinClasses must be between 0 and 4")
	}

	// TOTP
	if err := c.TOTP.Validate(); err != nil {
		return err
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a setting that is valid but weakens the deployment.
type LintWarning struct {
	Code    string
	Message string
}

type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

// Lint reports risky but valid settings. It never fails.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.Token.TTL > c.Session.Timeout {
		add("token_outlives_session", "Token TTL is longer than the session Timeout")
	}
	if c.Token.Leeway > 30*time.Second {
		add("leeway_large", "Token Leeway above 30s widens the expiry window")
	}
	if c.Lockout.MaxAttempts > 10 {
		add("lockout_lenient", "Lockout MaxAttempts above 10 weakens brute-force protection")
	}
	if c.Lockout.Window < time.Minute {
		add("lockout_window_short", "Lockout Window below 1m barely slows guessing")
	}
	if c.Password.Hasher.Algorithm != password.AlgorithmArgon2id &&
		c.Password.Hasher.BcryptCost > 0 && c.Password.Hasher.BcryptCost < password.DefaultBcryptCost {
		add("bcrypt_cost_low", "bcrypt cost below 12")
	}
	if c.Password.Policy.MinLength > 0 && c.Password.Policy.MinLength < password.DefaultMinLength {
		add("password_min_length_low", "password MinLength below 12")
	}
	if c.TOTP.Window > 2 {
		add("totp_window_wide", "TOTP Window above 2 steps accepts stale codes")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "audit events are disabled")
	}
	return ws
}
