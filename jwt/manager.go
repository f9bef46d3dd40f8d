package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/sportsprop/authcore/permission"
)

const (
	DefaultTTL = time.Hour

	// MinSecretBytes is the shortest accepted HS256 secret.
	MinSecretBytes = 32
	maxLeeway      = 2 * time.Minute
)

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, wrong
	// algorithms and unusable claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for a correctly signed token past exp.
	ErrExpiredToken = errors.New("token expired")
	// ErrPermissionDenied is returned by Authorize when none of the
	// required permissions is granted by the token's roles.
	ErrPermissionDenied = errors.New("permission denied")
)

// Config holds the HS256 signing parameters. Secret must come from the
// deployment environment.
//
// KeyID and VerifySecrets allow secret rotation: tokens are signed with
// Secret under KeyID, and verified with the secret named by their kid.
type Config struct {
	TTL           time.Duration
	Secret        []byte
	Issuer        string
	Leeway        time.Duration
	KeyID         string
	VerifySecrets map[string][]byte
}

// Claims is the token payload: {"user_id", "roles", "exp"} plus "iss" when
// an issuer is configured.
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Permissions returns the union of the permission sets of c.Roles.
func (c *Claims) Permissions() permission.Set {
	return permission.PermissionsOfNames(c.Roles)
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// Manager issues and verifies bearer tokens. It is stateless and safe for
// concurrent use.
type Manager struct {
	config Config
	clock  clockwork.Clock
	parser *jwt.Parser
}

// NewManager validates cfg. A zero TTL selects DefaultTTL.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a secret")
	}
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", MinSecretBytes)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifySecrets {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify secret map contains empty kid")
		}
		if len(key) < MinSecretBytes {
			return nil, fmt.Errorf("verify secret for kid %q is too short", kid)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifySecrets) > 0 {
		if _, ok := cfg.VerifySecrets[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifySecrets")
		}
	}

	m := &Manager{config: cfg, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(m)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

// TTL returns the token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Issue signs a token for identity carrying roles, valid for TTL.
func (m *Manager) Issue(identity string, roles []string) (string, error) {
	if identity == "" {
		return "", errors.New("empty identity")
	}
	if roles == nil {
		roles = []string{}
	}

	claims := Claims{
		UserID: identity,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(m.clock.Now().Add(m.config.TTL)),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	return token.SignedString(m.config.Secret)
}

// Verify checks the signature first and only then the claims. Expiry is
// reported as ErrExpiredToken; every other failure as ErrInvalidToken.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	token, err := m.parser.ParseWithClaims(tokenStr, &Claims{}, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	return claims, nil
}

// Authorize verifies tokenStr and requires its roles to grant at least one
// of required. With no required permissions any valid token passes. On
// denial the verified claims are returned alongside ErrPermissionDenied.
func (m *Manager) Authorize(tokenStr string, required ...permission.Permission) (*Claims, error) {
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if len(required) == 0 {
		return claims, nil
	}
	if !claims.Permissions().Intersects(permission.NewSet(required...)) {
		return claims, ErrPermissionDenied
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(m.config.VerifySecrets) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := m.config.VerifySecrets[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}

	if m.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != m.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}
	return m.config.Secret, nil
}
