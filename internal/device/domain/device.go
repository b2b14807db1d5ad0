package domain

import "time"

const (
	TrustUnknown = "UNKNOWN"
	TrustTrusted = "TRUSTED"
	TrustBlocked = "BLOCKED"
)

// Device is a client endpoint a user has logged in from, keyed by the
// client-supplied device identifier within (user, device).
type Device struct {
	ID          string
	OrgID       string
	UserID      string
	DeviceID    string
	Fingerprint string
	OS          string
	TrustLevel  string
	LastSeenAt  time.Time
	CreatedAt   time.Time
}
