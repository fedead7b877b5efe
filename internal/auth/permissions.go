package auth

import "strings"

// PermissionAll is the explicit grant-everything sentinel. Functionally
// equivalent to holding RoleSuperAdmin, but attached to a single user's
// grant list rather than a role.
const PermissionAll Permission = "*"

// wildcardSuffix marks a domain-wide grant, e.g. "game:*".
const wildcardSuffix = ":*"

// rolePermissions maps each named role to its default grants.
// This is the single source of truth for role-based authorisation;
// per-user Permissions extend (never shrink) these defaults.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		"profile:read",
		"profile:write",
	},
	RoleAdmin: {
		"profile:read",
		"profile:write",
		"users:read",
		"users:write",
		"stats:read",
		"audit:read",
	},
	// RoleSuperAdmin is handled as a bypass in Authorize, not via this map.
}

// PermissionsForRole returns a copy of the default grants for a role.
// Returns nil for unknown roles and for the super-admin bypass role.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// Authorize decides whether the user may perform the named permission.
// Evaluation order: super-admin bypass, then role defaults, then the
// user's explicit grants. Inactive or nil users are always denied, and
// an uncovered permission is an ordinary false, never an error.
func Authorize(user *User, required Permission) bool {
	if user == nil || !user.IsActive || required == "" {
		return false
	}

	for _, role := range user.Roles {
		if role == RoleSuperAdmin {
			return true
		}
		for _, granted := range rolePermissions[role] {
			if permissionMatches(granted, required) {
				return true
			}
		}
	}

	for _, granted := range user.Permissions {
		if permissionMatches(granted, required) {
			return true
		}
	}

	return false
}

// permissionMatches reports whether a single grant covers a request.
// A grant matches by exact equality, by the "*" sentinel, or by a
// domain wildcard: "game:*" covers "game:play" and "game:admin" but
// never "payments:refund". The domain prefix includes the separator,
// so "game:*" cannot leak into "gamete:anything".
func permissionMatches(granted, required Permission) bool {
	if granted == required || granted == PermissionAll {
		return true
	}
	if strings.HasSuffix(string(granted), wildcardSuffix) {
		domain := strings.TrimSuffix(string(granted), "*")
		return strings.HasPrefix(string(required), domain)
	}
	return false
}
