package domain

import "time"

const (
	StatusActive  = "ACTIVE"
	StatusRevoked = "REVOKED"
)

// Session is one refresh-token generation within a session family.
// Rotation creates a child row and marks the parent consumed; the
// family identifier survives across rotations so every descendant of
// a login can be revoked together.
type Session struct {
	ID               string
	OrgID            string
	UserID           string
	DeviceID         string
	FamilyID         string
	ParentSessionID  string
	RefreshTokenHash string
	Status           string
	ConsumedAt       *time.Time
	ExpiresAt        time.Time
	CreatedAt        time.Time
	LastUsedAt       *time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

func (s *Session) Revoked() bool {
	return s.Status == StatusRevoked
}

// Consumed reports whether this generation's refresh token has already
// been exchanged for a child session.
func (s *Session) Consumed() bool {
	return s.ConsumedAt != nil
}
