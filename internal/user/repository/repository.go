package repository

import (
	"context"
	"time"

	"workspace-backbone/backend/internal/user/domain"
)

// Repository persists user accounts. Lookups return (nil, nil) when no
// row matches.
type Repository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByOrgAndEmail(ctx context.Context, orgID, email string) (*domain.User, error)
	// UpdateLoginSecurity records a failed attempt count and an
	// optional lockout deadline in one write.
	UpdateLoginSecurity(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error
	ClearFailedLogins(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}
