package jwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/sportsprop/authcore/permission"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, cfg Config) (*Manager, *clockwork.FakeClock) {
	t.Helper()
	if cfg.Secret == nil {
		cfg.Secret = testSecret
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	m, err := NewManager(cfg, WithClock(clock))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, clock
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	token, err := m.Issue("alice", []string{"ANALYST"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "alice" || len(claims.Roles) != 1 || claims.Roles[0] != "ANALYST" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestPayloadWireFormat(t *testing.T) {
	m, clock := newTestManager(t, Config{})

	token, err := m.Issue("alice", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(parts))
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if len(payload) != 3 {
		t.Fatalf("expected exactly user_id, roles, exp; got %v", payload)
	}
	if payload["user_id"] != "alice" {
		t.Fatalf("unexpected user_id: %v", payload["user_id"])
	}
	if roles, ok := payload["roles"].([]any); !ok || len(roles) != 0 {
		t.Fatalf("expected empty roles array, got %v", payload["roles"])
	}
	wantExp := float64(clock.Now().Add(DefaultTTL).Unix())
	if payload["exp"] != wantExp {
		t.Fatalf("expected exp %v, got %v", wantExp, payload["exp"])
	}

	header, _ := base64.RawURLEncoding.DecodeString(parts[0])
	if !strings.Contains(string(header), `"alg":"HS256"`) {
		t.Fatalf("unexpected header: %s", header)
	}
}

func TestVerifyExpired(t *testing.T) {
	m, clock := newTestManager(t, Config{})

	token, err := m.Issue("alice", []string{"USER"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(DefaultTTL - time.Second)
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected token valid before exp: %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := m.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyLeeway(t *testing.T) {
	m, clock := newTestManager(t, Config{Leeway: 30 * time.Second})

	token, _ := m.Issue("alice", nil)
	clock.Advance(DefaultTTL + 15*time.Second)
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := m.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken past leeway, got %v", err)
	}
}

func TestFlippedSignatureIsInvalidNotExpired(t *testing.T) {
	m, clock := newTestManager(t, Config{})

	token, _ := m.Issue("alice", []string{"ADMIN"})
	dot := strings.LastIndexByte(token, '.')
	sig := token[dot+1:]

	// The final base64url character carries padding bits, so flip every
	// character but that one.
	for i := 0; i < len(sig)-1; i++ {
		tampered := []byte(sig)
		tampered[i] = flipBase64(tampered[i])
		bad := token[:dot+1] + string(tampered)
		if _, err := m.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("byte %d: expected ErrInvalidToken, got %v", i, err)
		}
	}

	// Signature is checked before exp, so a forged expired token is still
	// reported as invalid.
	clock.Advance(2 * DefaultTTL)
	forged := []byte(sig)
	forged[0] = flipBase64(forged[0])
	if _, err := m.Verify(token[:dot+1] + string(forged)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for forged expired token, got %v", err)
	}
}

func flipBase64(c byte) byte {
	if c == 'A' {
		return 'B'
	}
	return 'A'
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	m, clock := newTestManager(t, Config{})

	claims := Claims{UserID: "alice", Roles: []string{"ADMIN"}, RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Minute)),
	}}

	hs512, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(hs512); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected HS512 to be rejected, got %v", err)
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.Verify(none); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}
}

func TestVerifyRequiresExpAndUserID(t *testing.T) {
	m, clock := newTestManager(t, Config{})

	noExp, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{UserID: "alice"}).SignedString(testSecret)
	if _, err := m.Verify(noExp); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected missing exp to be rejected, got %v", err)
	}

	noUser, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Minute)),
	}}).SignedString(testSecret)
	if _, err := m.Verify(noUser); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected missing user_id to be rejected, got %v", err)
	}
}

func TestIssuerIsEnforcedWhenConfigured(t *testing.T) {
	m, clock := newTestManager(t, Config{Issuer: "authcore"})

	token, _ := m.Issue("alice", nil)
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected own issuer to pass: %v", err)
	}

	other, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{UserID: "alice", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Minute)),
	}}).SignedString(testSecret)
	if _, err := m.Verify(other); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong issuer to fail, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	guest, _ := m.Issue("g", []string{"GUEST"})
	analyst, _ := m.Issue("a", []string{"ANALYST"})
	unknown, _ := m.Issue("u", []string{"SUPERUSER"})

	if _, err := m.Authorize(guest, permission.ViewPrediction); err != nil {
		t.Fatalf("guest should view predictions: %v", err)
	}
	if _, err := m.Authorize(guest, permission.CreatePrediction); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("guest must not create predictions, got %v", err)
	}
	if _, err := m.Authorize(analyst, permission.DeletePrediction, permission.UpdatePrediction); err != nil {
		t.Fatalf("analyst holds one of the required permissions: %v", err)
	}
	claims, err := m.Authorize(analyst, permission.AdminAccess)
	if !errors.Is(err, ErrPermissionDenied) || claims == nil || claims.UserID != "a" {
		t.Fatalf("expected denial with claims, got %v %+v", err, claims)
	}
	if _, err := m.Authorize(unknown, permission.ViewPrediction); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("unknown roles must fail closed, got %v", err)
	}
	if _, err := m.Authorize("garbage", permission.ViewPrediction); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestUnknownKidFails(t *testing.T) {
	other := []byte("fedcba9876543210fedcba9876543210")
	m, _ := newTestManager(t, Config{
		KeyID:         "k1",
		VerifySecrets: map[string][]byte{"k1": testSecret, "k0": other},
	})

	good, err := m.Issue("alice", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	old, _ := newTestManager(t, Config{Secret: other, KeyID: "k0"})
	rotated, _ := old.Issue("alice", nil)
	if _, err := m.Verify(rotated); err != nil {
		t.Fatalf("expected token under previous kid to pass: %v", err)
	}

	stranger, _ := newTestManager(t, Config{Secret: other, KeyID: "k9"})
	unknownKid, _ := stranger.Issue("alice", nil)
	if _, err := m.Verify(unknownKid); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected unknown kid failure, got %v", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{},
		{Secret: []byte("short")},
		{Secret: testSecret, TTL: -time.Second},
		{Secret: testSecret, Leeway: time.Hour},
		{Secret: testSecret, KeyID: "k2", VerifySecrets: map[string][]byte{"k1": testSecret}},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}
