package totp

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

// RFC 6238 appendix B SHA1 seed, base32 encoded.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func newAuthenticator(t *testing.T) (*Authenticator, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Unix(1111111109, 0))
	return New(Config{}, clock), clock
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := pqtotp.GenerateCodeCustom(secret, at, pqtotp.ValidateOpts{
		Period:    DefaultPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestDefaults(t *testing.T) {
	a, _ := newAuthenticator(t)
	cfg := a.Config()
	require.Equal(t, DefaultIssuer, cfg.Issuer)
	require.Equal(t, 6, cfg.Digits)
	require.Equal(t, uint(30), cfg.Period)
	require.NoError(t, cfg.Validate())
}

func TestGenerateSecret(t *testing.T) {
	a, _ := newAuthenticator(t)

	s1, err := a.GenerateSecret()
	require.NoError(t, err)
	require.Len(t, s1, 32)
	require.NotContains(t, s1, "=")

	s2, err := a.GenerateSecret()
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)
}

func TestRFCVector(t *testing.T) {
	a, _ := newAuthenticator(t)

	// RFC 6238 SHA1 at T=1111111109 is 07081804; six digits keep the tail.
	code, err := a.Code(rfcSecret)
	require.NoError(t, err)
	require.Equal(t, "081804", code)
	require.True(t, a.Verify(rfcSecret, "081804", 0))
}

func TestVerifyWindow(t *testing.T) {
	a, clock := newAuthenticator(t)
	secret, err := a.GenerateSecret()
	require.NoError(t, err)

	now := clock.Now()
	current := codeAt(t, secret, now)
	previous := codeAt(t, secret, now.Add(-30*time.Second))
	twoBack := codeAt(t, secret, now.Add(-60*time.Second))

	require.True(t, a.Verify(secret, current, 0))
	require.True(t, a.Verify(secret, previous, 1))
	if previous != current {
		require.False(t, a.Verify(secret, previous, 0))
	}
	if twoBack != current && twoBack != previous && twoBack != codeAt(t, secret, now.Add(30*time.Second)) {
		require.False(t, a.Verify(secret, twoBack, 1))
	}
}

func TestVerifyExpiresAfterWindow(t *testing.T) {
	a, clock := newAuthenticator(t)
	secret, err := a.GenerateSecret()
	require.NoError(t, err)

	code := codeAt(t, secret, clock.Now())
	require.True(t, a.VerifyDefault(secret, code))

	clock.Advance(2 * time.Minute)
	fresh := []string{
		codeAt(t, secret, clock.Now().Add(-30*time.Second)),
		codeAt(t, secret, clock.Now()),
		codeAt(t, secret, clock.Now().Add(30*time.Second)),
	}
	for _, c := range fresh {
		if c == code {
			t.Skip("code collided with a later step")
		}
	}
	require.False(t, a.VerifyDefault(secret, code))
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	a, _ := newAuthenticator(t)

	require.False(t, a.Verify(rfcSecret, "", 1))
	require.False(t, a.Verify(rfcSecret, "12345", 1))
	require.False(t, a.Verify(rfcSecret, "12a456", 1))
	require.False(t, a.Verify("", "081804", 1))
	require.False(t, a.Verify("not base32!", "081804", 1))
	require.True(t, a.Verify(rfcSecret, " 081804 ", 0))
}

func TestProvisioningURI(t *testing.T) {
	a, _ := newAuthenticator(t)

	uri, err := a.ProvisioningURI("alice@example.com", rfcSecret, "")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "otpauth://totp/"))

	u, err := url.Parse(uri)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, DefaultIssuer, q.Get("issuer"))
	require.Equal(t, rfcSecret, q.Get("secret"))
	require.Equal(t, "6", q.Get("digits"))
	require.Contains(t, u.Path, "alice@example.com")

	uri, err = a.ProvisioningURI("alice", rfcSecret, "Other")
	require.NoError(t, err)
	require.Contains(t, uri, "issuer=Other")

	_, err = a.ProvisioningURI("", rfcSecret, "")
	require.ErrorIs(t, err, ErrMissingIdentity)
	_, err = a.ProvisioningURI("alice", "!!", "")
	require.ErrorIs(t, err, ErrInvalidSecret)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Digits = 7
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Period = 0
	require.Error(t, cfg.Validate())
}
