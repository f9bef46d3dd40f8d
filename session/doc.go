// Package session owns the login session table.
//
// # Model
//
// [Store] is the authoritative in-process table keyed by an opaque 128-bit
// token. Expiry is absolute: a session dies Timeout after CreatedAt no
// matter how often it is validated. LastActivityAt is kept for display and
// audit only. Each identity may hold at most MaxConcurrent live sessions;
// creating one more evicts the oldest.
//
// # Durability
//
// [RedisMirror] implements [Durable] and [Loader]. The Store writes through
// to it on create and delete and reloads from it with [Store.Restore] at
// startup. The mirror is never read on the request path.
//
// # What this package must NOT do
//
//   - Import authcore, jwt, or permission (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store plaintext secrets in [Session] fields.
package session
