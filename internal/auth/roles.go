package auth

// Admin roles, lowest privilege first.
const (
	RoleViewer     = "viewer"
	RoleOperator   = "operator"
	RoleSuperAdmin = "superadmin"
)

var roleRank = map[string]int{
	RoleViewer:     1,
	RoleOperator:   2,
	RoleSuperAdmin: 3,
}

// ValidRole reports whether role is a known admin role.
func ValidRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// AtLeast reports whether role grants everything min grants.
func AtLeast(role, min string) bool {
	have, ok := roleRank[role]
	return ok && have >= roleRank[min]
}
