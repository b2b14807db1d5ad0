package domain

import "time"

// Well-known audit actions.
const (
	ActionLogin             = "auth.login"
	ActionLoginFailed       = "auth.login_failed"
	ActionAccountLocked     = "auth.account_locked"
	ActionLogout            = "auth.logout"
	ActionLogoutAll         = "auth.logout_all"
	ActionTokenRefreshed    = "auth.token_refreshed"
	ActionTokenReuse        = "auth.token_reuse_detected"
	ActionPasswordChanged   = "auth.password_changed"
	ActionRegistered        = "auth.registered"
	ActionSessionRevoked    = "session.revoked"
	ActionDeviceTrustChange = "device.trust_changed"
)

// Entry is one audit record. TargetID identifies what was acted on
// (session id, user id, device id) and Detail carries free-form
// context.
type Entry struct {
	ID        string
	OrgID     string
	ActorID   string
	Action    string
	TargetID  string
	Detail    string
	CreatedAt time.Time
}
