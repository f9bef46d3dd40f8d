package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID  = "argon2id"
	argon2Prefix = "$" + algorithmID + "$"

	minArgon2MemoryKiB uint32 = 8 * 1024
	minArgon2SaltBytes uint32 = 16
	minArgon2KeyBytes  uint32 = 16
)

var phcB64 = base64.RawStdEncoding

// Argon2Config holds argon2id cost parameters. MemoryKiB is in KiB.
type Argon2Config struct {
	MemoryKiB   uint32 `yaml:"memory_kib"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
}

// DefaultArgon2Config returns 64 MiB, 3 passes, 2 lanes.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		MemoryKiB:   64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) Validate() error {
	switch {
	case c.MemoryKiB < minArgon2MemoryKiB:
		return fmt.Errorf("password argon2 memory must be >= %d KiB", minArgon2MemoryKiB)
	case c.Time < 1:
		return errors.New("password argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password argon2 parallelism must be >= 1")
	case c.SaltLength < minArgon2SaltBytes:
		return fmt.Errorf("password argon2 salt length must be >= %d", minArgon2SaltBytes)
	case c.KeyLength < minArgon2KeyBytes:
		return fmt.Errorf("password argon2 key length must be >= %d", minArgon2KeyBytes)
	}
	return nil
}

// weakerThan reports whether any cost parameter of c is below target, or
// the key length differs.
func (c Argon2Config) weakerThan(target Argon2Config) bool {
	return c.MemoryKiB < target.MemoryKiB ||
		c.Time < target.Time ||
		c.Parallelism < target.Parallelism ||
		c.KeyLength != target.KeyLength
}

// Argon2 hashes passwords with argon2id into PHC strings of the form
// $argon2id$v=19$m=<kib>,t=<passes>,p=<lanes>$<salt>$<key>.
type Argon2 struct {
	cfg      Argon2Config
	maxBytes int
}

// NewArgon2 validates cfg. Inputs longer than maxBytes are refused by Hash
// and never match in Verify; maxBytes <= 0 selects DefaultMaxPasswordBytes.
func NewArgon2(cfg Argon2Config, maxBytes int) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg, maxBytes: maxBytes}, nil
}

// Hash returns a PHC digest with a fresh random salt. Password bytes are
// used as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) > a.maxBytes {
		return "", ErrPasswordTooLong
	}
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	d := phcDigest{params: a.cfg, salt: salt}
	d.key = d.derive(password)
	return d.String(), nil
}

// Verify recomputes the key with the parameters stored in encodedHash.
// It returns (false, nil) on mismatch and wraps ErrMalformedHash or
// ErrUnsupportedHash when the digest cannot be used.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	d, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	if len(password) > a.maxBytes {
		return false, nil
	}
	return subtle.ConstantTimeCompare(d.derive(password), d.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the configured ones.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	d, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return d.params.weakerThan(a.cfg), nil
}

type phcDigest struct {
	params Argon2Config
	salt   []byte
	key    []byte
}

func (d phcDigest) derive(password string) []byte {
	return argon2.IDKey([]byte(password), d.salt,
		d.params.Time, d.params.MemoryKiB, d.params.Parallelism, d.params.KeyLength)
}

func (d phcDigest) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		d.params.MemoryKiB, d.params.Time, d.params.Parallelism,
		phcB64.EncodeToString(d.salt), phcB64.EncodeToString(d.key))
}

func parsePHC(encoded string) (phcDigest, error) {
	var d phcDigest

	rest, ok := strings.CutPrefix(encoded, argon2Prefix)
	if !ok {
		if strings.HasPrefix(encoded, "$") {
			return d, ErrUnsupportedHash
		}
		return d, ErrMalformedHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return d, fmt.Errorf("%w: expected 4 argon2id fields, got %d", ErrMalformedHash, len(fields))
	}

	version, ok := strings.CutPrefix(fields[0], "v=")
	if !ok {
		return d, fmt.Errorf("%w: missing argon2 version", ErrMalformedHash)
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return d, fmt.Errorf("%w: argon2 version %q", ErrUnsupportedHash, version)
	}

	if err := parseCostParams(fields[1], &d.params); err != nil {
		return d, err
	}

	var err error
	if d.salt, err = decodePHCField(fields[2]); err != nil {
		return d, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	if uint32(len(d.salt)) < minArgon2SaltBytes {
		return d, fmt.Errorf("%w: salt shorter than %d bytes", ErrMalformedHash, minArgon2SaltBytes)
	}
	if d.key, err = decodePHCField(fields[3]); err != nil {
		return d, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	if len(d.key) == 0 {
		return d, fmt.Errorf("%w: empty key", ErrMalformedHash)
	}
	d.params.SaltLength = uint32(len(d.salt))
	d.params.KeyLength = uint32(len(d.key))
	return d, nil
}

// parseCostParams reads "m=..,t=..,p=.." in that order.
func parseCostParams(field string, out *Argon2Config) error {
	parts := strings.Split(field, ",")
	if len(parts) != 3 {
		return fmt.Errorf("%w: argon2 parameters %q", ErrMalformedHash, field)
	}
	targets := []struct {
		name string
		bits int
		min  uint64
		set  func(uint64)
	}{
		{"m", 32, uint64(minArgon2MemoryKiB), func(v uint64) { out.MemoryKiB = uint32(v) }},
		{"t", 32, 1, func(v uint64) { out.Time = uint32(v) }},
		{"p", 8, 1, func(v uint64) { out.Parallelism = uint8(v) }},
	}
	for i, tgt := range targets {
		raw, ok := strings.CutPrefix(parts[i], tgt.name+"=")
		if !ok {
			return fmt.Errorf("%w: expected %s= in %q", ErrMalformedHash, tgt.name, field)
		}
		v, err := strconv.ParseUint(raw, 10, tgt.bits)
		if err != nil || v < tgt.min {
			return fmt.Errorf("%w: invalid %s parameter %q", ErrMalformedHash, tgt.name, raw)
		}
		tgt.set(v)
	}
	return nil
}

// decodePHCField accepts unpadded base64 and the padded form some encoders
// emit.
func decodePHCField(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return phcB64.DecodeString(s)
}
