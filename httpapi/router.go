package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/credstore"
	"github.com/sportsprop/authcore/middleware"
	"github.com/sportsprop/authcore/permission"
)

const maxBodyBytes = 64 << 10

// Users provisions accounts for the admin routes. *credstore.Store
// satisfies it.
type Users interface {
	CreateUser(ctx context.Context, u credstore.User) (string, error)
	SetRoles(ctx context.Context, identity string, roles []string) error
	DeleteUser(ctx context.Context, identity string) error
}

// Handler binds the engine and the account store to HTTP routes.
type Handler struct {
	engine  *authcore.Engine
	users   Users
	logger  *zap.Logger
	metrics http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithUsers enables the /admin/v1/users routes.
func WithUsers(users Users) Option {
	return func(h *Handler) { h.users = users }
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(metrics http.Handler) Option {
	return func(h *Handler) { h.metrics = metrics }
}

func NewHandler(engine *authcore.Engine, opts ...Option) *Handler {
	h := &Handler{engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter registers every route and the shared middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	guards := middleware.New(h.engine, middleware.WithErrorWriter(h.rejected))

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/password/assess", h.assessPassword)

		r.Group(func(r chi.Router) {
			r.Use(guards.JWTOnly())
			r.Post("/logout-all", h.logoutAll)
			r.Get("/sessions", h.listSessions)
		})

		r.Group(func(r chi.Router) {
			r.Use(guards.Strict())
			r.Post("/logout", h.logout)
			r.Post("/password/reset", h.resetPassword)
			r.Post("/totp/enroll", h.enrollTOTP)
			r.Post("/totp/confirm", h.confirmTOTP)
			r.Post("/totp/backup-codes", h.regenerateBackupCodes)
			r.Delete("/totp", h.disableTOTP)
		})
	})

	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(guards.Require(permission.AdminAccess))
		r.Post("/users/{identity}/unlock", h.unlock)
		r.Get("/users/{identity}/sessions", h.userSessions)
		r.Post("/users/{identity}/logout-all", h.adminLogoutAll)

		if h.users != nil {
			r.With(guards.Require(permission.CreateUser)).Post("/users", h.createUser)
			r.With(guards.Require(permission.UpdateUser)).Put("/users/{identity}/roles", h.setRoles)
			r.With(guards.Require(permission.DeleteUser)).Delete("/users/{identity}", h.deleteUser)
		}
	})

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		}
		switch {
		case status >= 500:
			h.logger.Error("http request", fields...)
		case status >= 400:
			h.logger.Warn("http request", fields...)
		default:
			h.logger.Debug("http request", fields...)
		}
	})
}
