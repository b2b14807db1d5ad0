package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workspace-backbone/backend/internal/messaging/domain"
)

// PostgresMessages stores messages. It implements the tenant guard's
// delegate contract, so every read and write arrives with the org
// already injected into filter and data.
type PostgresMessages struct {
	db *sql.DB
}

func NewPostgresMessages(db *sql.DB) *PostgresMessages {
	return &PostgresMessages{db: db}
}

const messageColumns = `id, org_id, conversation_id, author_id, body, mentions, is_deleted, edited_at, created_at`

func (r *PostgresMessages) FindFirst(ctx context.Context, f *domain.MessageFilter) (*domain.Message, error) {
	where, args := messageWhere(f)
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages `+where+` LIMIT 1`, args...)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return m, nil
}

func (r *PostgresMessages) FindMany(ctx context.Context, f *domain.MessageFilter) ([]*domain.Message, error) {
	where, args := messageWhere(f)
	query := `SELECT ` + messageColumns + ` FROM messages ` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

func (r *PostgresMessages) Create(ctx context.Context, d *domain.MessageData) (*domain.Message, error) {
	body := ""
	if d.Body != nil {
		body = *d.Body
	}
	mentions, err := json.Marshal(d.Mentions)
	if err != nil {
		return nil, fmt.Errorf("marshal mentions: %w", err)
	}
	m := &domain.Message{
		ID:             uuid.NewString(),
		OrgID:          d.OrgID(),
		ConversationID: d.ConversationID,
		AuthorID:       d.AuthorID,
		Body:           body,
		Mentions:       d.Mentions,
		CreatedAt:      time.Now(),
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, false, NULL, $7)`,
		m.ID, m.OrgID, m.ConversationID, m.AuthorID, m.Body, mentions, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (r *PostgresMessages) UpdateMany(ctx context.Context, f *domain.MessageFilter, d *domain.MessageData) (int64, error) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 8)
	if d.Body != nil {
		args = append(args, *d.Body)
		sets = append(sets, fmt.Sprintf("body = $%d", len(args)))
	}
	if d.Mentions != nil {
		mentions, err := json.Marshal(d.Mentions)
		if err != nil {
			return 0, fmt.Errorf("marshal mentions: %w", err)
		}
		args = append(args, mentions)
		sets = append(sets, fmt.Sprintf("mentions = $%d", len(args)))
	}
	if d.IsDeleted != nil {
		args = append(args, *d.IsDeleted)
		sets = append(sets, fmt.Sprintf("is_deleted = $%d", len(args)))
	}
	if d.EditedAt != nil {
		args = append(args, *d.EditedAt)
		sets = append(sets, fmt.Sprintf("edited_at = $%d", len(args)))
	}
	if len(sets) == 0 {
		return 0, nil
	}
	where, whereArgs := messageWhereOffset(f, len(args))
	args = append(args, whereArgs...)
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET `+strings.Join(sets, ", ")+` `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("update messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresMessages) DeleteMany(ctx context.Context, f *domain.MessageFilter) (int64, error) {
	where, args := messageWhere(f)
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.RowsAffected()
}

func messageWhere(f *domain.MessageFilter) (string, []any) {
	return messageWhereOffset(f, 0)
}

func messageWhereOffset(f *domain.MessageFilter, offset int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, offset+len(args)))
	}
	// The guard guarantees the org is always set; everything else is
	// optional.
	add("org_id = $%d", f.OrgID())
	if id := f.ID(); id != "" {
		add("id = $%d", id)
	}
	if f.ConversationID != "" {
		add("conversation_id = $%d", f.ConversationID)
	}
	if f.AuthorID != "" {
		add("author_id = $%d", f.AuthorID)
	}
	if f.CreatedBefore != nil {
		add("created_at < $%d", *f.CreatedBefore)
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var (
		m        domain.Message
		mentions []byte
	)
	if err := row.Scan(&m.ID, &m.OrgID, &m.ConversationID, &m.AuthorID, &m.Body,
		&mentions, &m.IsDeleted, &m.EditedAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	if len(mentions) > 0 {
		if err := json.Unmarshal(mentions, &m.Mentions); err != nil {
			return nil, fmt.Errorf("unmarshal mentions: %w", err)
		}
	}
	return &m, nil
}
