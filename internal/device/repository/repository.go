package repository

import (
	"context"

	"workspace-backbone/backend/internal/device/domain"
)

// Repository persists the device registry. Upsert inserts a new device
// or refreshes fingerprint, OS and last-seen on the existing row.
type Repository interface {
	Upsert(ctx context.Context, d *domain.Device) (*domain.Device, error)
	ListByUser(ctx context.Context, orgID, userID string) ([]*domain.Device, error)
	SetTrustLevel(ctx context.Context, id, trustLevel string) error
}
