package repository

import (
	"context"

	"workspace-backbone/backend/internal/membership/domain"
)

type Repository interface {
	Create(ctx context.Context, m *domain.Membership) error
	// Get returns (nil, nil) when the user has no membership in the org.
	Get(ctx context.Context, orgID, userID string) (*domain.Membership, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	UpdateRole(ctx context.Context, orgID, userID, role string) error
	Delete(ctx context.Context, orgID, userID string) error
}
