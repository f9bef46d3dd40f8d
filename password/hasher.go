package password

import (
	"errors"
	"strings"
)

// Algorithm names accepted in Config.Algorithm.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = algorithmID

	// DefaultMaxPasswordBytes bounds argon2id input. Bcrypt is capped at 72
	// bytes regardless of this value.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrMalformedHash is returned when a stored digest cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrUnsupportedHash is returned for digests of an unknown algorithm.
	ErrUnsupportedHash = errors.New("password: unsupported hash algorithm")
	// ErrPasswordTooLong is returned by Hash for input over the byte limit.
	ErrPasswordTooLong = errors.New("password: too long")
)

// Config selects the algorithm used for new digests. Verification accepts
// either encoding regardless of Algorithm.
type Config struct {
	Algorithm        string       `yaml:"algorithm"`
	BcryptCost       int          `yaml:"bcrypt_cost"`
	Argon2           Argon2Config `yaml:"argon2"`
	MaxPasswordBytes int          `yaml:"max_password_bytes"`
}

// DefaultConfig returns bcrypt at cost 12.
func DefaultConfig() Config {
	return Config{
		Algorithm:        AlgorithmBcrypt,
		BcryptCost:       DefaultBcryptCost,
		Argon2:           DefaultArgon2Config(),
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Hasher hashes with the configured algorithm and verifies any supported
// digest. Safe for concurrent use.
type Hasher struct {
	algorithm string
	maxBytes  int
	bcrypt    *Bcrypt
	argon2    *Argon2
}

// NewHasher validates cfg. Zero fields take their defaults.
func NewHasher(cfg Config) (*Hasher, error) {
	def := DefaultConfig()
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	if cfg.Argon2 == (Argon2Config{}) {
		cfg.Argon2 = def.Argon2
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = def.MaxPasswordBytes
	}

	if cfg.Algorithm != AlgorithmBcrypt && cfg.Algorithm != AlgorithmArgon2id {
		return nil, errors.New("password algorithm must be bcrypt or argon2id")
	}

	b, err := NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	a, err := NewArgon2(cfg.Argon2, cfg.MaxPasswordBytes)
	if err != nil {
		return nil, err
	}

	maxBytes := cfg.MaxPasswordBytes
	if cfg.Algorithm == AlgorithmBcrypt && maxBytes > bcryptMaxBytes {
		maxBytes = bcryptMaxBytes
	}

	return &Hasher{
		algorithm: cfg.Algorithm,
		maxBytes:  maxBytes,
		bcrypt:    b,
		argon2:    a,
	}, nil
}

// Algorithm returns the algorithm used for new digests.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Hash returns a salted digest that embeds its own cost parameters.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) > h.maxBytes {
		return "", ErrPasswordTooLong
	}
	if h.algorithm == AlgorithmArgon2id {
		return h.argon2.Hash(password)
	}
	return h.bcrypt.Hash(password)
}

// Verify compares password with encodedHash in constant time. A mismatch is
// (false, nil); only a malformed or unknown digest returns an error.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case isBcryptDigest(encodedHash):
		return h.bcrypt.Verify(password, encodedHash)
	case strings.HasPrefix(encodedHash, argon2Prefix):
		return h.argon2.Verify(password, encodedHash)
	case encodedHash == "" || !strings.HasPrefix(encodedHash, "$"):
		return false, ErrMalformedHash
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash reports whether encodedHash should be replaced on the next
// successful login: either it uses another algorithm or weaker parameters.
func (h *Hasher) NeedsRehash(encodedHash string) (bool, error) {
	switch {
	case isBcryptDigest(encodedHash):
		if h.algorithm != AlgorithmBcrypt {
			return true, nil
		}
		return h.bcrypt.NeedsUpgrade(encodedHash)
	case strings.HasPrefix(encodedHash, argon2Prefix):
		if h.algorithm != AlgorithmArgon2id {
			return true, nil
		}
		return h.argon2.NeedsUpgrade(encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}
