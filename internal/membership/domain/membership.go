package domain

import "time"

const (
	RoleOwner           = "OWNER"
	RoleAdmin           = "ADMIN"
	RoleSecurityAdmin   = "SECURITY_ADMIN"
	RoleComplianceAdmin = "COMPLIANCE_ADMIN"
	RoleMember          = "MEMBER"
	RoleGuest           = "GUEST"
)

// Membership ties a user to an org with a role. A user without a
// membership row has no standing in the org at all.
type Membership struct {
	ID        string
	OrgID     string
	UserID    string
	Role      string
	CreatedAt time.Time
}

func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleSecurityAdmin, RoleComplianceAdmin, RoleMember, RoleGuest:
		return true
	}
	return false
}
