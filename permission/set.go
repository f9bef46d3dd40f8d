package permission

import "strings"

// Set is an immutable-by-value collection of permissions.
type Set struct {
	mask Mask64
}

// NewSet returns a set holding perms. Undeclared permissions are ignored.
func NewSet(perms ...Permission) Set {
	var s Set
	for _, p := range perms {
		if p.Valid() {
			s.mask.Set(int(p))
		}
	}
	return s
}

func (s Set) Has(p Permission) bool {
	if !p.Valid() {
		return false
	}
	return s.mask.Has(int(p))
}

// Union returns the permissions present in s or other.
func (s Set) Union(other Set) Set {
	return Set{mask: s.mask | other.mask}
}

// Intersects reports whether s and other share a permission.
func (s Set) Intersects(other Set) bool {
	return s.mask.Intersects(other.mask)
}

func (s Set) Len() int {
	return s.mask.Count()
}

func (s Set) Empty() bool {
	return s.mask == 0
}

// Mask exposes the raw bitset.
func (s Set) Mask() Mask64 {
	return s.mask
}

// Slice lists the permissions in declaration order.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, s.Len())
	for p := Permission(0); p < permissionLimit; p++ {
		if s.mask.Has(int(p)) {
			out = append(out, p)
		}
	}
	return out
}

func (s Set) String() string {
	perms := s.Slice()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.String()
	}
	return "{" + strings.Join(names, ",") + "}"
}
