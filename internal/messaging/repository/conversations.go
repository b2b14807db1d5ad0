package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"workspace-backbone/backend/internal/messaging/domain"
)

// Conversations persists conversations and their membership rows.
type Conversations interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Conversation, error)
	AddMember(ctx context.Context, m *domain.Member) error
	IsMember(ctx context.Context, orgID, conversationID, userID string) (bool, error)
	FilterMember(ctx context.Context, orgID string, conversationIDs []string, userID string) ([]string, error)
	ListForUser(ctx context.Context, orgID, userID string) ([]*domain.Conversation, error)
}

type PostgresConversations struct {
	db *sql.DB
}

func NewPostgresConversations(db *sql.DB) *PostgresConversations {
	return &PostgresConversations{db: db}
}

func (r *PostgresConversations) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, org_id, title, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.OrgID, c.Title, c.CreatedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *PostgresConversations) GetByID(ctx context.Context, orgID, id string) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, org_id, title, created_by, created_at
		FROM conversations WHERE org_id = $1 AND id = $2`, orgID, id,
	).Scan(&c.ID, &c.OrgID, &c.Title, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *PostgresConversations) AddMember(ctx context.Context, m *domain.Member) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversation_members (id, org_id, conversation_id, user_id, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		m.ID, m.OrgID, m.ConversationID, m.UserID, m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation member: %w", err)
	}
	return nil
}

func (r *PostgresConversations) IsMember(ctx context.Context, orgID, conversationID, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM conversation_members
		WHERE org_id = $1 AND conversation_id = $2 AND user_id = $3`,
		orgID, conversationID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check conversation member: %w", err)
	}
	return true, nil
}

func (r *PostgresConversations) FilterMember(ctx context.Context, orgID string, conversationIDs []string, userID string) ([]string, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(conversationIDs))
	args := []any{orgID, userID}
	for i, id := range conversationIDs {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id FROM conversation_members
		WHERE org_id = $1 AND user_id = $2
		AND conversation_id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("filter conversation members: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter conversation members: %w", err)
	}
	return out, nil
}

func (r *PostgresConversations) ListForUser(ctx context.Context, orgID, userID string) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.org_id, c.title, c.created_by, c.created_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE c.org_id = $1 AND m.user_id = $2
		ORDER BY c.created_at DESC`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Title, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}
