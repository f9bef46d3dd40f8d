// Package jwt issues and verifies HS256 bearer tokens and authorizes them
// against the role table in package permission.
//
// The payload is {"user_id", "roles", "exp"}. Verification pins the
// algorithm, checks the signature before any claim, and reports expiry
// separately from every other failure.
package jwt
