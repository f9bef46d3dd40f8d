// Package totp provides the second authentication factor: RFC 6238 codes
// through github.com/pquerna/otp and single-use backup codes.
//
// Time comes from an injected clockwork.Clock so tests can step across
// 30 second periods deterministically.
package totp
