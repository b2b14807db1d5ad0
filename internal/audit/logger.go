package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"workspace-backbone/backend/internal/audit/domain"
)

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e *domain.Entry) error
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*domain.Entry, error)
}

// Logger records audit events best-effort: a failed write is logged
// and swallowed so auditing never fails the operation it describes.
type Logger struct {
	store Store
	now   func() time.Time
}

func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

func (l *Logger) Record(ctx context.Context, orgID, actorID, action, targetID, detail string) {
	e := &domain.Entry{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		ActorID:   actorID,
		Action:    action,
		TargetID:  targetID,
		Detail:    detail,
		CreatedAt: l.now(),
	}
	if err := l.store.Insert(ctx, e); err != nil {
		log.Printf("[audit] record %s for org %s: %v", action, orgID, err)
	}
}
