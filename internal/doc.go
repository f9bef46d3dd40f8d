// Package internal contains helpers that are private to authcore: secure
// random tokens and hashing of short secrets.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - logging: zap logger construction with optional rotating file output
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
