package totp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateBackupCodesDefaults(t *testing.T) {
	a, clock := newAuthenticator(t)

	codes, err := a.GenerateBackupCodes(0, 0)
	require.NoError(t, err)
	require.Len(t, codes, DefaultBackupCodeCount)

	wantExpiry := clock.Now().UTC().Add(DefaultBackupCodeValidDays * 24 * time.Hour)
	seen := map[string]bool{}
	for _, c := range codes {
		require.Len(t, c.Code, 8)
		require.False(t, c.Used)
		require.True(t, c.ExpiresAt.Equal(wantExpiry))
		require.False(t, seen[c.Code], "duplicate code %s", c.Code)
		seen[c.Code] = true
	}
}

func TestGenerateBackupCodesCustom(t *testing.T) {
	a, clock := newAuthenticator(t)

	codes, err := a.GenerateBackupCodes(10, 7)
	require.NoError(t, err)
	require.Len(t, codes, 10)
	require.True(t, codes[0].ExpiresAt.Equal(clock.Now().UTC().Add(7*24*time.Hour)))

	_, err = a.GenerateBackupCodes(maxBackupCodes+1, 1)
	require.Error(t, err)
}

func TestHashBackupCode(t *testing.T) {
	h := HashBackupCode("alice", "abcd-efgh")
	require.Len(t, h, 64)
	require.Equal(t, h, HashBackupCode("alice", "ABCDEFGH"))
	require.NotEqual(t, h, HashBackupCode("bob", "ABCDEFGH"))

	rec := BackupCode{Code: "ABCDEFGH", ExpiresAt: time.Unix(10, 0)}.Record("alice")
	require.Equal(t, h, rec.Hash)
	require.False(t, rec.Used)
}
