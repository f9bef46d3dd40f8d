package permission

import (
	"strings"
)

// Permission is a closed enumeration of permission tags. Its numeric value
// is the bit position used in [Mask64].
type Permission uint8

const (
	CreateUser Permission = iota
	UpdateUser
	DeleteUser
	ViewUserProfile
	CreatePrediction
	UpdatePrediction
	DeletePrediction
	ViewPrediction
	AdminAccess
	SystemConfig
	AuditLogView

	permissionLimit
)

// The table below must fit a single Mask64.
var _ = [64 - int(permissionLimit)]struct{}{}

var permissionNames = [permissionLimit]string{
	CreateUser:       "CREATE_USER",
	UpdateUser:       "UPDATE_USER",
	DeleteUser:       "DELETE_USER",
	ViewUserProfile:  "VIEW_USER_PROFILE",
	CreatePrediction: "CREATE_PREDICTION",
	UpdatePrediction: "UPDATE_PREDICTION",
	DeletePrediction: "DELETE_PREDICTION",
	ViewPrediction:   "VIEW_PREDICTION",
	AdminAccess:      "ADMIN_ACCESS",
	SystemConfig:     "SYSTEM_CONFIG",
	AuditLogView:     "AUDIT_LOG_VIEW",
}

var nameToPermission = func() map[string]Permission {
	m := make(map[string]Permission, int(permissionLimit))
	for p := Permission(0); p < permissionLimit; p++ {
		m[permissionNames[p]] = p
	}
	return m
}()

func (p Permission) Valid() bool {
	return p < permissionLimit
}

func (p Permission) String() string {
	if !p.Valid() {
		return "UNKNOWN"
	}
	return permissionNames[p]
}

// ParsePermission resolves a permission tag case-insensitively.
func ParsePermission(name string) (Permission, bool) {
	p, ok := nameToPermission[strings.ToUpper(strings.TrimSpace(name))]
	return p, ok
}

// Permissions returns every declared permission in declaration order.
func Permissions() []Permission {
	out := make([]Permission, 0, int(permissionLimit))
	for p := Permission(0); p < permissionLimit; p++ {
		out = append(out, p)
	}
	return out
}
