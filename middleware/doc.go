// Package middleware adapts engine authorization to net/http handlers.
//
// # Guards
//
//   - [Guard] verifies the bearer token and checks permissions.
//   - [RequireJWTOnly] verifies the bearer token only.
//   - [RequireStrict] is Guard plus a live session lookup.
//
// The same three are methods on [Guards], built by [New]. Pass
// [WithErrorWriter] there to render rejections in the caller's own error
// format instead of plain text.
//
// Verified claims are placed in the request context; read them with
// [ClaimsFromContext]. Token failures of any kind produce 401, a valid token
// lacking the permission produces 403.
//
// This package only translates HTTP to engine calls. It never parses tokens
// itself.
package middleware
