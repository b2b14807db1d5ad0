package repository

import (
	"context"
	"database/sql"
	"fmt"

	"workspace-backbone/backend/internal/device/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, d *domain.Device) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO devices (id, org_id, user_id, device_id, fingerprint, os, trust_level, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			os = EXCLUDED.os,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, org_id, user_id, device_id, fingerprint, os, trust_level, last_seen_at, created_at`,
		d.ID, d.OrgID, d.UserID, d.DeviceID, d.Fingerprint, d.OS, d.TrustLevel, d.LastSeenAt,
	)
	out := &domain.Device{}
	if err := row.Scan(&out.ID, &out.OrgID, &out.UserID, &out.DeviceID, &out.Fingerprint,
		&out.OS, &out.TrustLevel, &out.LastSeenAt, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, orgID, userID string) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, user_id, device_id, fingerprint, os, trust_level, last_seen_at, created_at
		FROM devices
		WHERE org_id = $1 AND user_id = $2
		ORDER BY last_seen_at DESC`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []*domain.Device
	for rows.Next() {
		d := &domain.Device{}
		if err := rows.Scan(&d.ID, &d.OrgID, &d.UserID, &d.DeviceID, &d.Fingerprint,
			&d.OS, &d.TrustLevel, &d.LastSeenAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SetTrustLevel(ctx context.Context, id, trustLevel string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET trust_level = $1 WHERE id = $2`, trustLevel, id)
	if err != nil {
		return fmt.Errorf("set device trust: %w", err)
	}
	return nil
}
