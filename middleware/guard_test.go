package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/permission"
)

const testPassword = "Correct-Horse-9!"

type staticCredentials struct {
	hashes map[string]string
	roles  map[string][]string
}

func (s *staticCredentials) FetchPasswordHash(_ context.Context, identity string) (string, error) {
	h, ok := s.hashes[identity]
	if !ok {
		return "", authcore.ErrUserNotFound
	}
	return h, nil
}

func (s *staticCredentials) FetchRoles(_ context.Context, identity string) ([]string, error) {
	return s.roles[identity], nil
}

func (s *staticCredentials) UpdatePasswordHash(_ context.Context, identity, hash string) error {
	s.hashes[identity] = hash
	return nil
}

type fixture struct {
	engine *authcore.Engine
	clock  *clockwork.FakeClock
	router chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Hasher.BcryptCost = 4
	cfg.Session.SweepInterval = 0
	cfg.Audit.Enabled = false

	creds := &staticCredentials{hashes: map[string]string{}, roles: map[string][]string{}}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	engine, err := authcore.New().WithConfig(cfg).WithClock(clock).WithCredentials(creds).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	for identity, role := range map[string]string{"ada": "admin", "uma": "user"} {
		hash, err := engine.HashPassword(testPassword)
		require.NoError(t, err)
		creds.hashes[identity] = hash
		creds.roles[identity] = []string{role}
	}

	ok := func(w http.ResponseWriter, r *http.Request) {
		claims, found := ClaimsFromContext(r.Context())
		if !found {
			http.Error(w, "no claims", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(claims.UserID))
	}

	r := chi.NewRouter()
	r.With(RequireJWTOnly(engine)).Get("/me", ok)
	r.With(Guard(engine, permission.ViewPrediction)).Get("/predictions", ok)
	r.With(Guard(engine, permission.AuditLogView)).Get("/audit", ok)
	r.With(RequireStrict(engine, permission.AdminAccess)).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
		sess, found := SessionFromContext(r.Context())
		if !found {
			http.Error(w, "no session", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(sess.Identity))
	})

	return &fixture{engine: engine, clock: clock, router: r}
}

func (f *fixture) login(t *testing.T, identity string) *authcore.LoginResult {
	t.Helper()
	res, err := f.engine.Login(context.Background(), identity, testPassword, "")
	require.NoError(t, err)
	return res
}

func (f *fixture) do(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestGuardStatusCodes(t *testing.T) {
	f := newFixture(t)
	uma := f.login(t, "uma")
	ada := f.login(t, "ada")

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"missing header", "/me", nil, http.StatusUnauthorized},
		{"wrong scheme", "/me", map[string]string{"Authorization": "Basic " + uma.AccessToken}, http.StatusUnauthorized},
		{"empty bearer", "/me", map[string]string{"Authorization": "Bearer "}, http.StatusUnauthorized},
		{"garbage token", "/me", bearer("not.a.token"), http.StatusUnauthorized},
		{"authenticated", "/me", bearer(uma.AccessToken), http.StatusOK},
		{"lowercase scheme", "/me", map[string]string{"Authorization": "bearer " + uma.AccessToken}, http.StatusOK},
		{"permission granted", "/predictions", bearer(uma.AccessToken), http.StatusOK},
		{"permission denied", "/audit", bearer(uma.AccessToken), http.StatusForbidden},
		{"admin permission", "/audit", bearer(ada.AccessToken), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.path, tt.headers)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestGuardExpiredTokenIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	uma := f.login(t, "uma")

	f.clock.Advance(time.Hour + time.Second)
	require.Equal(t, http.StatusUnauthorized, f.do("/predictions", bearer(uma.AccessToken)).Code)
}

func TestGuardPutsClaimsInContext(t *testing.T) {
	f := newFixture(t)
	uma := f.login(t, "uma")

	rec := f.do("/me", bearer(uma.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "uma", rec.Body.String())
}

func TestRequireStrictNeedsLiveSession(t *testing.T) {
	f := newFixture(t)
	ada := f.login(t, "ada")
	uma := f.login(t, "uma")

	headers := bearer(ada.AccessToken)
	require.Equal(t, http.StatusUnauthorized, f.do("/admin", headers).Code)

	headers[SessionHeader] = uma.SessionToken
	require.Equal(t, http.StatusUnauthorized, f.do("/admin", headers).Code, "session of another user")

	headers[SessionHeader] = ada.SessionToken
	rec := f.do("/admin", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ada", rec.Body.String())

	require.NoError(t, f.engine.Logout(context.Background(), ada.SessionToken))
	require.Equal(t, http.StatusUnauthorized, f.do("/admin", headers).Code)
	require.Equal(t, http.StatusOK, f.do("/audit", bearer(ada.AccessToken)).Code, "stateless guard ignores sessions")
}

func TestErrorWriterReceivesRejections(t *testing.T) {
	f := newFixture(t)
	uma := f.login(t, "uma")

	type rejection struct {
		status int
		err    error
	}
	var got []rejection
	g := New(f.engine, WithErrorWriter(func(w http.ResponseWriter, _ *http.Request, status int, err error) {
		got = append(got, rejection{status, err})
		w.WriteHeader(status)
	}))

	r := chi.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.With(g.JWTOnly()).Get("/me", noop)
	r.With(g.Require(permission.AuditLogView)).Get("/audit", noop)
	r.With(g.Strict()).Get("/strict", noop)

	serve := func(path string, headers map[string]string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusUnauthorized, serve("/me", nil))
	require.Equal(t, http.StatusForbidden, serve("/audit", bearer(uma.AccessToken)))
	require.Equal(t, http.StatusUnauthorized, serve("/strict", bearer(uma.AccessToken)))
	require.Equal(t, http.StatusOK, serve("/me", bearer(uma.AccessToken)))

	require.Len(t, got, 3)
	require.ErrorIs(t, got[0].err, authcore.ErrInvalidToken)
	require.Equal(t, http.StatusForbidden, got[1].status)
	require.ErrorIs(t, got[1].err, authcore.ErrPermissionDenied)
	require.ErrorIs(t, got[2].err, authcore.ErrSessionInvalid)
}

func TestRequestContextCarriesClientInfo(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	req.Header.Set("User-Agent", "scout/2")

	f := newFixture(t)
	ctx := RequestContext(req)
	res, err := f.engine.Login(ctx, "uma", testPassword, "")
	require.NoError(t, err)

	sessions := f.engine.ActiveSessions("uma")
	require.Len(t, sessions, 1)
	require.Equal(t, res.SessionToken, sessions[0].Token)
	require.Equal(t, "198.51.100.4", sessions[0].Metadata["ip"])
	require.Equal(t, "scout/2", sessions[0].Metadata["user_agent"])
}
