package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"workspace-backbone/backend/internal/organization/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, o *domain.Organization) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)`,
		o.ID, o.Name, o.Slug, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	return r.getOne(ctx, `SELECT id, name, slug, created_at FROM organizations WHERE id = $1`, id)
}

func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return r.getOne(ctx, `SELECT id, name, slug, created_at FROM organizations WHERE slug = $1`, slug)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Organization, error) {
	o := &domain.Organization{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}
