// Package permission holds the static role and permission catalogue used for
// authorization decisions.
//
// # Model
//
// [Role] and [Permission] are closed enumerations. The role-to-permission
// table is a fixed array indexed by role and holding a [Mask64] bitset, so a
// role that is not declared cannot be looked up by accident. Role names
// arriving from tokens or storage are parsed with [ParseRole]; anything
// unknown is denied.
//
// Roles are totally ordered (GUEST < USER < ANALYST < ADMIN) and
// [CanUpgrade] only allows moves to a strictly higher role.
//
// # What this package must NOT do
//
//   - Mutate the table at runtime.
//   - Access Redis, databases, or the network.
//   - Import authcore, jwt, or session.
package permission
