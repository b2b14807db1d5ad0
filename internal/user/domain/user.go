package domain

import "time"

// User is an account within an org. Email is unique per org, not
// globally, so the same address can exist under different workspaces.
type User struct {
	ID                  string
	OrgID               string
	Email               string
	DisplayName         string
	PasswordHash        string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account is inside a lockout window.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
