package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"workspace-backbone/backend/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, org_id, email, display_name, password_hash,
	failed_login_attempts, locked_until, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.OrgID, u.Email, u.DisplayName, u.PasswordHash,
		u.FailedLoginAttempts, u.LockedUntil, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByOrgAndEmail(ctx context.Context, orgID, email string) (*domain.User, error) {
	return r.getOne(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE org_id = $1 AND lower(email) = lower($2)`, orgID, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.OrgID, &u.Email, &u.DisplayName, &u.PasswordHash,
		&u.FailedLoginAttempts, &u.LockedUntil, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) UpdateLoginSecurity(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = $1, locked_until = $2, updated_at = now()
		WHERE id = $3`,
		failedAttempts, lockedUntil, id)
	if err != nil {
		return fmt.Errorf("update login security: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ClearFailedLogins(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear failed logins: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}
