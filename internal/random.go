package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"errors"
)

// SessionID is a 128-bit random session token.
type SessionID [16]byte

var sessionIDLen = base64.RawURLEncoding.EncodedLen(len(SessionID{}))

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) Bytes() []byte {
	return s[:]
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID accepts only the canonical encoding produced by String.
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID
	if len(sessionID) != sessionIDLen {
		return sid, errors.New("invalid session id size")
	}

	raw, err := base64.RawURLEncoding.Strict().DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// RandomBase32 returns n random bytes encoded as unpadded upper-case base32.
func RandomBase32(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid random size")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32NoPad.EncodeToString(buf), nil
}

// DecodeBase32 accepts upper or lower case input with or without padding.
func DecodeBase32(s string) ([]byte, error) {
	clean := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '=' || c == ' ':
			continue
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}
		clean = append(clean, c)
	}
	return base32NoPad.DecodeString(string(clean))
}

func HashValue(v string) [32]byte {
	return sha256.Sum256([]byte(v))
}
