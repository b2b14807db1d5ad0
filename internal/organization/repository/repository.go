package repository

import (
	"context"

	"workspace-backbone/backend/internal/organization/domain"
)

type Repository interface {
	Create(ctx context.Context, o *domain.Organization) error
	// GetByID and GetBySlug return (nil, nil) when no org matches.
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Organization, error)
}
