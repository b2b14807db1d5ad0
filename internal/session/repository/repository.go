package repository

import (
	"context"
	"time"

	"workspace-backbone/backend/internal/session/domain"
)

// Repository persists session rows. GetByID returns (nil, nil) when no
// row exists so callers can distinguish absence from storage failure.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeFamily(ctx context.Context, familyID string) (int64, error)
	RevokeAllByOrg(ctx context.Context, orgID string) (int64, error)
	RevokeAllByUser(ctx context.Context, orgID, userID string) (int64, error)
	MarkConsumed(ctx context.Context, id string, at time.Time) error
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	ListByUserAndOrg(ctx context.Context, orgID, userID string) ([]*domain.Session, error)
}
