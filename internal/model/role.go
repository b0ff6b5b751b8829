package model

// Role names. Permissions are derived from the role, never stored.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// Permission codes gating route access and handover transitions.
const (
	PermProductsRead    = "products.read"
	PermProductsManage  = "products.manage"
	PermHandoverRequest = "handovers.request"
	PermHandoverReturn  = "handovers.return"
	PermHandoverManage  = "handovers.manage"
	PermUsersRead       = "users.read"
	PermUsersWrite      = "users.write"
	PermAuditRead       = "audit.read"
)

// rolePermissions maps each role to the permission codes it carries.
var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermProductsRead, PermProductsManage,
		PermHandoverRequest, PermHandoverReturn, PermHandoverManage,
		PermUsersRead, PermUsersWrite,
		PermAuditRead,
	},
	RoleManager: {
		PermProductsRead, PermProductsManage,
		PermHandoverRequest, PermHandoverReturn, PermHandoverManage,
		PermAuditRead,
	},
	RoleEmployee: {
		PermProductsRead,
		PermHandoverRequest, PermHandoverReturn,
	},
}

// ValidRole reports whether role is one of the known role names.
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// PermissionsForRole returns the permission codes derived from a role.
// Unknown roles get no permissions.
func PermissionsForRole(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// RoleHasPermission reports whether role carries the given permission code.
func RoleHasPermission(role, perm string) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
