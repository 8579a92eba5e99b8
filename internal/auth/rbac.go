package auth

import "slices"

// Role is the kind of caller an actor token represents
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleApp     Role = "app"
	RoleAdmin   Role = "admin"
)

var roles = []Role{RoleCitizen, RoleApp, RoleAdmin}

// ValidRole reports whether r is a known role
func ValidRole(r Role) bool {
	return slices.Contains(roles, r)
}

// Allowed reports whether r is one of permitted. Admin is always allowed.
func Allowed(r Role, permitted ...Role) bool {
	return r == RoleAdmin || slices.Contains(permitted, r)
}
