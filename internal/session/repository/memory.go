package repository

import (
	"context"
	"sync"
	"time"

	"workspace-backbone/backend/internal/session/domain"
)

// MemRepository is an in-memory Repository used in tests and seeding.
type MemRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewMemRepository() *MemRepository {
	return &MemRepository{sessions: make(map[string]*domain.Session)}
}

func (r *MemRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *MemRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemRepository) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.Status = domain.StatusRevoked
	}
	return nil
}

func (r *MemRepository) RevokeFamily(_ context.Context, familyID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.FamilyID == familyID && s.Status != domain.StatusRevoked {
			s.Status = domain.StatusRevoked
			n++
		}
	}
	return n, nil
}

func (r *MemRepository) RevokeAllByOrg(_ context.Context, orgID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.OrgID == orgID && s.Status != domain.StatusRevoked {
			s.Status = domain.StatusRevoked
			n++
		}
	}
	return n, nil
}

func (r *MemRepository) RevokeAllByUser(_ context.Context, orgID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.OrgID == orgID && s.UserID == userID && s.Status != domain.StatusRevoked {
			s.Status = domain.StatusRevoked
			n++
		}
	}
	return n, nil
}

func (r *MemRepository) MarkConsumed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.ConsumedAt == nil {
		t := at
		s.ConsumedAt = &t
	}
	return nil
}

func (r *MemRepository) UpdateLastUsed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		t := at
		s.LastUsedAt = &t
	}
	return nil
}

func (r *MemRepository) ListByUserAndOrg(_ context.Context, orgID, userID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.OrgID == orgID && s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}
