// Package password implements password hashing, verification and strength
// assessment.
//
// # Output format
//
// New digests use bcrypt at cost 12 by default:
//
//	$2a$12$<22 char salt><31 char hash>
//
// argon2id is selectable and encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.Verify] dispatches on the digest prefix, so accounts keep working
// when the configured algorithm changes. [Hasher.NeedsRehash] reports digests
// made with another algorithm or weaker parameters so the caller can re-hash
// on the next successful login.
//
// # Strength policy
//
// [Policy.Assess] checks length, character classes, a denylist of common
// substrings and a generic personal-word list. [Policy.AssessFor] also
// rejects passwords containing the account's own profile values.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Log plaintext passwords or hash parameters at runtime.
package password
