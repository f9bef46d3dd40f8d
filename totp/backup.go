package totp

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/sportsprop/authcore/internal"
)

const (
	DefaultBackupCodeCount     = 5
	DefaultBackupCodeValidDays = 30

	// 5 random bytes encode to exactly 8 base32 characters.
	backupCodeBytes = 5
	maxBackupCodes  = 20
)

// BackupCode is a single-use recovery code. All codes of one batch share
// ExpiresAt.
type BackupCode struct {
	Code      string    `json:"code"`
	Used      bool      `json:"used"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BackupCodeRecord is the stored form of a BackupCode: the plaintext is
// only ever shown to the user once.
type BackupCodeRecord struct {
	Hash      string
	ExpiresAt time.Time
	Used      bool
}

// GenerateBackupCodes returns n fresh codes valid for validDays. Zero values
// select the configured defaults.
func (a *Authenticator) GenerateBackupCodes(n, validDays int) ([]BackupCode, error) {
	if n <= 0 {
		n = a.cfg.BackupCodeCount
	}
	if validDays <= 0 {
		validDays = a.cfg.BackupCodeValidity
	}
	if n > maxBackupCodes {
		return nil, errors.New("totp: too many backup codes requested")
	}

	expires := a.clock.Now().UTC().Add(time.Duration(validDays) * 24 * time.Hour)
	codes := make([]BackupCode, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		code, err := internal.RandomBase32(backupCodeBytes)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, BackupCode{Code: code, ExpiresAt: expires})
	}
	return codes, nil
}

// Record returns the hashed form of c bound to identity.
func (c BackupCode) Record(identity string) BackupCodeRecord {
	return BackupCodeRecord{
		Hash:      HashBackupCode(identity, c.Code),
		ExpiresAt: c.ExpiresAt,
		Used:      c.Used,
	}
}

// CanonicalBackupCode upper-cases code and strips dashes and spaces.
func CanonicalBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// FormatBackupCode splits a code in two halves for display.
func FormatBackupCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// HashBackupCode binds a canonicalized code to identity so equal codes of
// different users never collide in storage.
func HashBackupCode(identity, code string) string {
	canonical := CanonicalBackupCode(code)
	sum := internal.HashValue(identity + "\x00" + canonical)
	return hex.EncodeToString(sum[:])
}
