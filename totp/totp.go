package totp

import (
	"errors"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"

	"github.com/sportsprop/authcore/internal"
)

const (
	DefaultIssuer = "SportsPropPredictor"
	DefaultDigits = 6
	DefaultPeriod = 30
	DefaultWindow = 1

	// secretBytes is 160 bits, 32 base32 characters.
	secretBytes = 20
)

var (
	// ErrInvalidSecret is returned for secrets that are not valid base32.
	ErrInvalidSecret = errors.New("totp: invalid secret")
	// ErrMissingIdentity is returned when a provisioning URI has no account.
	ErrMissingIdentity = errors.New("totp: missing identity")
)

// Config defines the TOTP parameters shared by enrolment and verification.
// Period is in seconds.
type Config struct {
	Issuer             string `yaml:"issuer"`
	Digits             int    `yaml:"digits"`
	Period             uint   `yaml:"period"`
	Window             uint   `yaml:"window"`
	BackupCodeCount    int    `yaml:"backup_code_count"`
	BackupCodeValidity int    `yaml:"backup_code_valid_days"`
}

func DefaultConfig() Config {
	return Config{
		Issuer:             DefaultIssuer,
		Digits:             DefaultDigits,
		Period:             DefaultPeriod,
		Window:             DefaultWindow,
		BackupCodeCount:    DefaultBackupCodeCount,
		BackupCodeValidity: DefaultBackupCodeValidDays,
	}
}

func (c Config) Validate() error {
	if c.Digits != 6 && c.Digits != 8 {
		return errors.New("totp Digits must be 6 or 8")
	}
	if c.Period == 0 {
		return errors.New("totp Period must be > 0")
	}
	if c.Window > 10 {
		return errors.New("totp Window must be <= 10")
	}
	if c.BackupCodeCount < 0 || c.BackupCodeValidity < 0 {
		return errors.New("totp backup code settings must be >= 0")
	}
	return nil
}

// Authenticator generates and checks RFC 6238 codes (HMAC-SHA1) against
// its clock. It holds no per-user state and is safe for concurrent use.
type Authenticator struct {
	cfg   Config
	clock clockwork.Clock
}

// New fills zero fields of cfg from DefaultConfig. A nil clock selects the
// real clock.
func New(cfg Config, clock clockwork.Clock) *Authenticator {
	def := DefaultConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.Digits == 0 {
		cfg.Digits = def.Digits
	}
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if cfg.BackupCodeCount == 0 {
		cfg.BackupCodeCount = def.BackupCodeCount
	}
	if cfg.BackupCodeValidity == 0 {
		cfg.BackupCodeValidity = def.BackupCodeValidity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authenticator{cfg: cfg, clock: clock}
}

// Config returns the effective configuration.
func (a *Authenticator) Config() Config {
	return a.cfg
}

// GenerateSecret returns a fresh 160-bit secret as unpadded base32.
func (a *Authenticator) GenerateSecret() (string, error) {
	return internal.RandomBase32(secretBytes)
}

// ProvisioningURI returns the otpauth:// URI an authenticator app scans.
// An empty issuer selects the configured one.
func (a *Authenticator) ProvisioningURI(identity, secret, issuer string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", ErrMissingIdentity
	}
	if issuer == "" {
		issuer = a.cfg.Issuer
	}
	raw, err := internal.DecodeBase32(secret)
	if err != nil || len(raw) == 0 {
		return "", ErrInvalidSecret
	}

	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      issuer,
		AccountName: identity,
		Period:      a.cfg.Period,
		Secret:      raw,
		Digits:      a.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// Verify reports whether code matches secret at the current time step or
// within window steps either side. Malformed input is simply false.
func (a *Authenticator) Verify(secret, code string, window uint) bool {
	code = strings.TrimSpace(code)
	if len(code) != a.cfg.Digits || !isNumeric(code) || secret == "" {
		return false
	}

	ok, err := pqtotp.ValidateCustom(code, secret, a.clock.Now().UTC(), a.validateOpts(window))
	if err != nil {
		return false
	}
	return ok
}

// VerifyDefault is Verify with the configured window.
func (a *Authenticator) VerifyDefault(secret, code string) bool {
	return a.Verify(secret, code, a.cfg.Window)
}

// Code returns the code for the current time step.
func (a *Authenticator) Code(secret string) (string, error) {
	code, err := pqtotp.GenerateCodeCustom(secret, a.clock.Now().UTC(), a.validateOpts(0))
	if err != nil {
		return "", ErrInvalidSecret
	}
	return code, nil
}

func (a *Authenticator) validateOpts(window uint) pqtotp.ValidateOpts {
	return pqtotp.ValidateOpts{
		Period:    a.cfg.Period,
		Skew:      window,
		Digits:    a.digits(),
		Algorithm: otp.AlgorithmSHA1,
	}
}

func (a *Authenticator) digits() otp.Digits {
	if a.cfg.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
