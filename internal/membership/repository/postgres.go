package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"workspace-backbone/backend/internal/membership/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *domain.Membership) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO org_memberships (id, org_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.OrgID, m.UserID, m.Role, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, orgID, userID string) (*domain.Membership, error) {
	m := &domain.Membership{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, org_id, user_id, role, created_at
		FROM org_memberships WHERE org_id = $1 AND user_id = $2`,
		orgID, userID,
	).Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, user_id, role, created_at
		FROM org_memberships WHERE org_id = $1
		ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []*domain.Membership
	for rows.Next() {
		m := &domain.Membership{}
		if err := rows.Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) UpdateRole(ctx context.Context, orgID, userID, role string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE org_memberships SET role = $1 WHERE org_id = $2 AND user_id = $3`,
		role, orgID, userID)
	if err != nil {
		return fmt.Errorf("update membership role: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, orgID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM org_memberships WHERE org_id = $1 AND user_id = $2`,
		orgID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}
