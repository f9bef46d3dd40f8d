package middleware

import (
	"net/http"

	"github.com/sportsprop/authcore"
)

// RequireJWTOnly authenticates the bearer token without consulting the
// session table or checking permissions. Use it for routes any signed-in
// caller may reach.
func RequireJWTOnly(engine *authcore.Engine) func(http.Handler) http.Handler {
	return New(engine).JWTOnly()
}

// JWTOnly is Require with no permissions.
func (g *Guards) JWTOnly() func(http.Handler) http.Handler {
	return g.Require()
}
