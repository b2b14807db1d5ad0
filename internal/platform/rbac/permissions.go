package rbac

import "workspace-backbone/backend/internal/membership/domain"

// Permission names follow resource:action.
const (
	PermOrgManage       = "org:manage"
	PermMemberInvite    = "member:invite"
	PermMemberRemove    = "member:remove"
	PermMessageRead     = "message:read"
	PermMessageWrite    = "message:write"
	PermMessageModerate = "message:moderate"
	PermSessionRevoke   = "session:revoke"
	PermAuditRead       = "audit:read"
	PermDeviceManage    = "device:manage"
)

// rolePermissions is the full role-to-permission matrix. Membership
// checks are a map lookup; callers never enumerate roles themselves.
var rolePermissions = map[string]map[string]struct{}{
	domain.RoleOwner: permSet(
		PermOrgManage, PermMemberInvite, PermMemberRemove,
		PermMessageRead, PermMessageWrite, PermMessageModerate,
		PermSessionRevoke, PermAuditRead, PermDeviceManage,
	),
	domain.RoleAdmin: permSet(
		PermMemberInvite, PermMemberRemove,
		PermMessageRead, PermMessageWrite, PermMessageModerate,
		PermSessionRevoke, PermDeviceManage,
	),
	domain.RoleSecurityAdmin: permSet(
		PermMessageRead, PermSessionRevoke, PermAuditRead, PermDeviceManage,
	),
	domain.RoleComplianceAdmin: permSet(
		PermMessageRead, PermAuditRead,
	),
	domain.RoleMember: permSet(
		PermMessageRead, PermMessageWrite,
	),
	domain.RoleGuest: permSet(
		PermMessageRead,
	),
}

func permSet(perms ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether a role grants a permission. Unknown
// roles grant nothing.
func HasPermission(role, permission string) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[permission]
	return ok
}
