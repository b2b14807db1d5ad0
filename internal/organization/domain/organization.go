package domain

import "time"

// Organization is a workspace tenant. Every other row in the system
// hangs off one of these.
type Organization struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}
