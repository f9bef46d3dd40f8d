package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/jwt"
	"github.com/sportsprop/authcore/permission"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return claims, ok
}

// ErrorWriter answers a request a guard rejected. status is 401 or 403 and
// err is authcore.ErrInvalidToken, ErrExpiredToken, ErrSessionInvalid or
// ErrPermissionDenied.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, err error)

// Option configures a Guards set.
type Option func(*Guards)

// WithErrorWriter replaces the plain-text rejection body.
func WithErrorWriter(fn ErrorWriter) Option {
	return func(g *Guards) {
		if fn != nil {
			g.reject = fn
		}
	}
}

// Guards builds route guards that share one engine and one rejection
// writer.
type Guards struct {
	engine *authcore.Engine
	reject ErrorWriter
}

func New(engine *authcore.Engine, opts ...Option) *Guards {
	g := &Guards{engine: engine, reject: plainError}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func plainError(w http.ResponseWriter, _ *http.Request, status int, _ error) {
	http.Error(w, http.StatusText(status), status)
}

// Guard is New(engine).Require(required...).
func Guard(engine *authcore.Engine, required ...permission.Permission) func(http.Handler) http.Handler {
	return New(engine).Require(required...)
}

// Require verifies the bearer token and requires its roles to grant at
// least one of required. With no permissions any valid token passes.
// Missing, malformed and expired tokens all get the same 401; a valid token
// without the permission gets 403.
func (g *Guards) Require(required ...permission.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := RequestContext(r)
			claims, status, err := g.authorize(ctx, r, required)
			if err != nil {
				g.reject(w, r, status, err)
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Guards) authorize(ctx context.Context, r *http.Request, required []permission.Permission) (*jwt.Claims, int, error) {
	if g.engine == nil {
		return nil, http.StatusUnauthorized, authcore.ErrInvalidToken
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, http.StatusUnauthorized, authcore.ErrInvalidToken
	}

	claims, err := g.engine.Authorize(ctx, token, required...)
	switch {
	case err == nil:
		return claims, http.StatusOK, nil
	case errors.Is(err, authcore.ErrPermissionDenied):
		return nil, http.StatusForbidden, err
	default:
		return nil, http.StatusUnauthorized, err
	}
}

// RequestContext returns r's context carrying the client IP and user agent
// for session metadata and audit events.
func RequestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if ip := clientIP(r); ip != "" {
		ctx = authcore.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = authcore.WithUserAgent(ctx, ua)
	}
	return ctx
}

// clientIP uses RemoteAddr only. Put a trusted proxy middleware such as
// chi's RealIP in front when running behind a load balancer.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
