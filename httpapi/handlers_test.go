package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/credstore"
	"github.com/sportsprop/authcore/metrics/export/prometheus"
	"github.com/sportsprop/authcore/middleware"
	"github.com/sportsprop/authcore/totp"
)

const adminPassword = "Admin-Pass-2026!"

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

type apiFixture struct {
	engine *authcore.Engine
	store  *credstore.Store
	router http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	store, err := credstore.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Hasher.BcryptCost = 4
	cfg.Session.SweepInterval = 0
	cfg.Audit.Enabled = false

	engine, err := authcore.New().
		WithConfig(cfg).
		WithCredentials(store).
		WithTOTPStore(store).
		WithProfiles(store).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	hash, err := engine.HashPassword(adminPassword)
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, credstore.User{Identity: "root", PasswordHash: hash, Roles: []string{"admin"}})
	require.NoError(t, err)

	h := NewHandler(engine,
		WithUsers(store),
		WithMetricsHandler(prometheus.NewPrometheusExporter(engine).Handler()))
	return &apiFixture{engine: engine, store: store, router: NewRouter(h)}
}

func (f *apiFixture) call(t *testing.T, method, path string, body any, headers map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func (f *apiFixture) login(t *testing.T, identity, pw string) loginResponse {
	t.Helper()
	code, env := f.call(t, http.MethodPost, "/auth/v1/login", loginRequest{Identity: identity, Password: pw}, nil)
	require.Equal(t, http.StatusOK, code, "login %s: %+v", identity, env.Error)
	var res loginResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	return res
}

func auth(res loginResponse) map[string]string {
	return map[string]string{
		"Authorization":          "Bearer " + res.AccessToken,
		middleware.SessionHeader: res.SessionToken,
	}
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	code, env := f.call(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", env.Message)
}

func TestLoginErrorsAreUniform(t *testing.T) {
	f := newAPIFixture(t)

	code, unknown := f.call(t, http.MethodPost, "/auth/v1/login", loginRequest{Identity: "ghost", Password: "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, code)
	code, wrong := f.call(t, http.MethodPost, "/auth/v1/login", loginRequest{Identity: "root", Password: "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, unknown.Error, wrong.Error)
	require.Equal(t, "INVALID_CREDENTIALS", wrong.Error.Code)

	code, env := f.call(t, http.MethodPost, "/auth/v1/login", map[string]string{"identity": "root", "pass": "x"}, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestLockoutReturns429(t *testing.T) {
	f := newAPIFixture(t)
	for i := 0; i < 5; i++ {
		f.call(t, http.MethodPost, "/auth/v1/login", loginRequest{Identity: "root", Password: "nope"}, nil)
	}

	code, env := f.call(t, http.MethodPost, "/auth/v1/login", loginRequest{Identity: "root", Password: adminPassword}, nil)
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Equal(t, "ACCOUNT_LOCKED", env.Error.Code)

	f.engine.UnlockAccount(context.Background(), "root")
	f.login(t, "root", adminPassword)
}

func TestAdminCreatesUserWhoCanLogIn(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "root", adminPassword)

	code, env := f.call(t, http.MethodPost, "/admin/v1/users", createUserRequest{
		Identity: "uma", Password: "short", Roles: []string{"user"},
	}, auth(admin))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "WEAK_PASSWORD", env.Error.Code)
	require.NotEmpty(t, env.Error.Details)

	code, env = f.call(t, http.MethodPost, "/admin/v1/users", createUserRequest{
		Identity: "uma", Password: "Velvet-Harbor-42#", Roles: []string{"user"}, Name: "Uma Lind",
	}, auth(admin))
	require.Equal(t, http.StatusCreated, code, "%+v", env.Error)

	code, env = f.call(t, http.MethodPost, "/admin/v1/users", createUserRequest{
		Identity: "uma", Password: "Velvet-Harbor-42#",
	}, auth(admin))
	require.Equal(t, http.StatusConflict, code)

	uma := f.login(t, "uma", "Velvet-Harbor-42#")
	require.Equal(t, []string{"USER"}, uma.Roles)

	code, env = f.call(t, http.MethodPost, "/admin/v1/users", createUserRequest{Identity: "x"}, auth(uma))
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "error", env.Status)
	require.Equal(t, "FORBIDDEN", env.Error.Code)
	code, env = f.call(t, http.MethodPost, "/admin/v1/users", createUserRequest{Identity: "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestSessionsAndLogout(t *testing.T) {
	f := newAPIFixture(t)
	first := f.login(t, "root", adminPassword)
	second := f.login(t, "root", adminPassword)

	code, env := f.call(t, http.MethodGet, "/auth/v1/sessions", nil, auth(second))
	require.Equal(t, http.StatusOK, code)
	var views []sessionView
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, 2)
	require.False(t, views[0].Current)
	require.True(t, views[1].Current)

	code, _ = f.call(t, http.MethodPost, "/auth/v1/logout", nil, auth(first))
	require.Equal(t, http.StatusOK, code)
	code, env = f.call(t, http.MethodPost, "/auth/v1/logout", nil, auth(first))
	require.Equal(t, http.StatusUnauthorized, code, "strict routes need a live session")
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	code, env = f.call(t, http.MethodPost, "/auth/v1/logout-all", nil, auth(second))
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"revoked":1}`, string(env.Data))
}

func TestAssessPasswordIsPublic(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.call(t, http.MethodPost, "/auth/v1/password/assess", passwordRequest{Password: "password123"}, nil)
	require.Equal(t, http.StatusOK, code)
	var res assessmentResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.False(t, res.Assessment.Overall)
	require.NotEmpty(t, res.Feedback)

	code, env = f.call(t, http.MethodPost, "/auth/v1/password/assess", passwordRequest{Password: "Marigold-Root-88!", Identity: "marigold"}, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.False(t, res.Assessment.NoPersonalInfo)
}

func TestPasswordResetRevokesSessions(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "root", adminPassword)

	code, env := f.call(t, http.MethodPost, "/auth/v1/password/reset", passwordRequest{Password: "weak"}, auth(admin))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "WEAK_PASSWORD", env.Error.Code)
	require.NotEmpty(t, env.Error.Details)

	code, _ = f.call(t, http.MethodPost, "/auth/v1/password/reset", passwordRequest{Password: "Granite-Falcon-71%"}, auth(admin))
	require.Equal(t, http.StatusOK, code)

	code, _ = f.call(t, http.MethodPost, "/auth/v1/logout", nil, auth(admin))
	require.Equal(t, http.StatusUnauthorized, code)
	f.login(t, "root", "Granite-Falcon-71%")
}

func TestTOTPRoutesWithoutEnrolment(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "root", adminPassword)

	code, env := f.call(t, http.MethodPost, "/auth/v1/totp/backup-codes", nil, auth(admin))
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "TOTP_NOT_ENROLLED", env.Error.Code)

	code, env = f.call(t, http.MethodPost, "/auth/v1/totp/enroll", nil, auth(admin))
	require.Equal(t, http.StatusOK, code)
	var enrollment map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &enrollment))
	require.NotEmpty(t, enrollment["secret"])
	require.Contains(t, enrollment["provisioning_uri"], "otpauth://totp/")

	code, env = f.call(t, http.MethodPost, "/auth/v1/totp/confirm", confirmTOTPRequest{Secret: enrollment["secret"], Code: "000000"}, auth(admin))
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "INVALID_TOTP", env.Error.Code)
}

func TestTOTPEnrolmentNeedsLiveSessionAndNeverReplaces(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "root", adminPassword)

	bearerOnly := map[string]string{"Authorization": "Bearer " + admin.AccessToken}
	code, _ := f.call(t, http.MethodPost, "/auth/v1/totp/enroll", nil, bearerOnly)
	require.Equal(t, http.StatusUnauthorized, code)

	code, env := f.call(t, http.MethodPost, "/auth/v1/totp/enroll", nil, auth(admin))
	require.Equal(t, http.StatusOK, code)
	var enrollment map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &enrollment))

	otp, err := totp.New(authcore.DefaultConfig().TOTP, nil).Code(enrollment["secret"])
	require.NoError(t, err)
	code, _ = f.call(t, http.MethodPost, "/auth/v1/totp/confirm", confirmTOTPRequest{Secret: enrollment["secret"], Code: otp}, auth(admin))
	require.Equal(t, http.StatusOK, code)

	code, env = f.call(t, http.MethodPost, "/auth/v1/totp/enroll", nil, auth(admin))
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "TOTP_ALREADY_ENROLLED", env.Error.Code)
	code, env = f.call(t, http.MethodPost, "/auth/v1/totp/confirm", confirmTOTPRequest{Secret: enrollment["secret"], Code: otp}, auth(admin))
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "TOTP_ALREADY_ENROLLED", env.Error.Code)

	// A token that outlives its session cannot touch the second factor.
	code, _ = f.call(t, http.MethodPost, "/auth/v1/logout", nil, auth(admin))
	require.Equal(t, http.StatusOK, code)
	code, _ = f.call(t, http.MethodDelete, "/auth/v1/totp", nil, auth(admin))
	require.Equal(t, http.StatusUnauthorized, code)
	stored, err := f.store.FetchTOTPSecret(context.Background(), "root")
	require.NoError(t, err)
	require.Equal(t, enrollment["secret"], stored)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.login(t, "root", adminPassword)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "authcore_login_success_total 1")
}
