// Package rbac provides role-based access control checks.
package rbac

import "github.com/NicolasHaas/sanction/pkg/model"

// grants maps roles to the permission patterns they hold.
var grants = map[model.Role][]model.Permission{
	model.RoleAdmin: {
		"sanction.*",
	},
	model.RoleModerator: {
		"sanction.notify.*",
		"sanction.command.*",
	},
	model.RoleUser: {
		// No special permissions, only sees its own punishments
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role model.Role, perm model.Permission) bool {
	for _, pattern := range grants[role] {
		if perm.Matches(pattern) {
			return true
		}
	}
	return false
}

// RequirePermission returns an error message if the role lacks the permission, or empty string if allowed.
func RequirePermission(role model.Role, perm model.Permission) string {
	if HasPermission(role, perm) {
		return ""
	}
	return "permission denied: " + string(perm) + " requires higher role"
}
