package middleware

import (
	"context"
	"net/http"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/permission"
	"github.com/sportsprop/authcore/session"
)

// SessionHeader carries the opaque session token next to the bearer token.
const SessionHeader = "X-Session-Token"

type sessionContextKey struct{}

// SessionFromContext returns the session stored by RequireStrict.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(session.Session)
	return sess, ok
}

// RequireStrict is New(engine).Strict(required...).
func RequireStrict(engine *authcore.Engine, required ...permission.Permission) func(http.Handler) http.Handler {
	return New(engine).Strict(required...)
}

// Strict is Require plus a live session check: the request must also
// present a session token, in SessionHeader, that belongs to the token's
// user. Logged-out or evicted sessions are rejected even while the bearer
// token is unexpired.
func (g *Guards) Strict(required ...permission.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := RequestContext(r)
			claims, status, err := g.authorize(ctx, r, required)
			if err != nil {
				g.reject(w, r, status, err)
				return
			}

			sess, err := g.engine.ValidateSession(ctx, r.Header.Get(SessionHeader))
			if err != nil || sess.Identity != claims.UserID {
				g.reject(w, r, http.StatusUnauthorized, authcore.ErrSessionInvalid)
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			ctx = context.WithValue(ctx, sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
