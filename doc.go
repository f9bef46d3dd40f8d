// Package authcore is the authentication and session security core: login
// with lockout, bounded concurrent sessions, HS256 bearer tokens with role
// based authorization, adaptive password hashing with a strength policy, and
// TOTP second factors with backup codes.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config]
// and the collaborator interfaces ([CredentialStore], [TOTPStore],
// [ProfileStore], [AuditSink]). Each security primitive lives in its own
// sub-package (session, lockout, permission, jwt, password, totp) and can be
// used without the Engine.
//
// # State
//
// The session table and the attempt history are owned by one Engine and
// guarded by their own mutexes. Nothing is a package-level singleton, so
// independent engines never interfere. An optional durable mirror (Redis)
// receives session writes but is only read back by [Engine.RestoreSessions].
//
// # Errors
//
// Token failures are split into [ErrInvalidToken] and [ErrExpiredToken] so
// tampering can be told apart from expiry; HTTP layers should answer both
// with the same 401. [ErrAccountLocked] never reveals the remaining attempt
// count or whether the identity exists.
package authcore
