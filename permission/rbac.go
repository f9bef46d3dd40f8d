package permission

// rolePermissions is indexed by Role. Index 0 is the invalid role and stays
// empty, so lookups on unknown roles fail closed.
var rolePermissions = [roleLimit]Set{
	RoleGuest: NewSet(
		ViewPrediction,
	),
	RoleUser: NewSet(
		CreatePrediction,
		ViewPrediction,
	),
	RoleAnalyst: NewSet(
		CreatePrediction,
		UpdatePrediction,
		ViewPrediction,
	),
	RoleAdmin: NewSet(
		CreateUser,
		UpdateUser,
		DeleteUser,
		ViewUserProfile,
		CreatePrediction,
		UpdatePrediction,
		DeletePrediction,
		ViewPrediction,
		AdminAccess,
		SystemConfig,
		AuditLogView,
	),
}

// HasPermission reports whether role grants perm. Unknown roles grant nothing.
func HasPermission(role Role, perm Permission) bool {
	if !role.Valid() {
		return false
	}
	return rolePermissions[role].Has(perm)
}

// PermissionsOf returns the permission set of role, empty for unknown roles.
func PermissionsOf(role Role) Set {
	if !role.Valid() {
		return Set{}
	}
	return rolePermissions[role]
}

// CanUpgrade reports whether a principal holding from may be moved to to.
// Only strictly higher roles qualify; unknown roles never do.
func CanUpgrade(from, to Role) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to > from
}

// CanUpgradeNames is CanUpgrade over role names.
func CanUpgradeNames(from, to string) bool {
	f, ok := ParseRole(from)
	if !ok {
		return false
	}
	t, ok := ParseRole(to)
	if !ok {
		return false
	}
	return CanUpgrade(f, t)
}

// PermissionsOfNames returns the union of the permission sets of the named
// roles. Unknown names contribute nothing.
func PermissionsOfNames(names []string) Set {
	var out Set
	roles, _ := RolesOf(names)
	for _, r := range roles {
		out = out.Union(rolePermissions[r])
	}
	return out
}
