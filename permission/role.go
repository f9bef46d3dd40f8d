package permission

import "strings"

// Role is a closed enumeration of principal roles. Declaration order is the
// upgrade order: a role may only be upgraded to one declared after it.
// The zero value is not a role and is rejected everywhere.
type Role uint8

const (
	RoleGuest Role = iota + 1
	RoleUser
	RoleAnalyst
	RoleAdmin

	roleLimit
)

var roleNames = [roleLimit]string{
	RoleGuest:   "GUEST",
	RoleUser:    "USER",
	RoleAnalyst: "ANALYST",
	RoleAdmin:   "ADMIN",
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r >= RoleGuest && r < roleLimit
}

func (r Role) String() string {
	if !r.Valid() {
		return "UNKNOWN"
	}
	return roleNames[r]
}

// ParseRole resolves a role name case-insensitively. Surrounding whitespace
// is ignored.
func ParseRole(name string) (Role, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return 0, false
	}
	for r := RoleGuest; r < roleLimit; r++ {
		if roleNames[r] == name {
			return r, true
		}
	}
	return 0, false
}

// RolesOf parses every name and returns the known roles in input order,
// skipping unknown names and duplicates. The second result lists the names
// that could not be parsed.
func RolesOf(names []string) ([]Role, []string) {
	roles := make([]Role, 0, len(names))
	var unknown []string
	var seen [roleLimit]bool
	for _, name := range names {
		r, ok := ParseRole(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		roles = append(roles, r)
	}
	return roles, unknown
}

// Roles returns every declared role in upgrade order.
func Roles() []Role {
	out := make([]Role, 0, int(roleLimit)-1)
	for r := RoleGuest; r < roleLimit; r++ {
		out = append(out, r)
	}
	return out
}
