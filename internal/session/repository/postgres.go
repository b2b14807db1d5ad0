package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"workspace-backbone/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, org_id, user_id, device_id, family_id, parent_session_id,
	refresh_token_hash, status, consumed_at, expires_at, created_at, last_used_at`

func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12)`,
		s.ID, s.OrgID, s.UserID, s.DeviceID, s.FamilyID, s.ParentSessionID,
		s.RefreshTokenHash, s.Status, s.ConsumedAt, s.ExpiresAt, s.CreatedAt, s.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $1 WHERE id = $2`,
		domain.StatusRevoked, id)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $1
		WHERE family_id = $2 AND status <> $1`,
		domain.StatusRevoked, familyID)
	if err != nil {
		return 0, fmt.Errorf("revoke session family: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) RevokeAllByOrg(ctx context.Context, orgID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $1
		WHERE org_id = $2 AND status <> $1`,
		domain.StatusRevoked, orgID)
	if err != nil {
		return 0, fmt.Errorf("revoke org sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, orgID, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $1
		WHERE org_id = $2 AND user_id = $3 AND status <> $1`,
		domain.StatusRevoked, orgID, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET consumed_at = $1 WHERE id = $2 AND consumed_at IS NULL`,
		at, id)
	if err != nil {
		return fmt.Errorf("mark session consumed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET last_used_at = $1 WHERE id = $2`,
		at, id)
	if err != nil {
		return fmt.Errorf("update session last used: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUserAndOrg(ctx context.Context, orgID, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE org_id = $1 AND user_id = $2
		ORDER BY created_at DESC`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s      domain.Session
		parent sql.NullString
	)
	if err := row.Scan(
		&s.ID, &s.OrgID, &s.UserID, &s.DeviceID, &s.FamilyID, &parent,
		&s.RefreshTokenHash, &s.Status, &s.ConsumedAt, &s.ExpiresAt, &s.CreatedAt, &s.LastUsedAt,
	); err != nil {
		return nil, err
	}
	s.ParentSessionID = parent.String
	return &s, nil
}
