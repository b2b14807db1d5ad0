package tenant

import (
	"context"
	"sync"
)

// MemDelegate is an in-memory Delegate backed by a slice. It powers guard and
// service tests; production delegates live with their owning feature and talk
// to Postgres. The caller supplies the entity-specific behavior: how a filter
// matches a row, how a payload becomes a new row, and how a payload mutates
// an existing row.
type MemDelegate[E any, PF Filter, PD Scoped] struct {
	mu     sync.Mutex
	rows   []*E
	match  func(e *E, filter PF) bool
	insert func(data PD) *E
	apply  func(e *E, data PD)
}

// NewMemDelegate returns a MemDelegate with the given match/insert/apply
// behavior.
func NewMemDelegate[E any, PF Filter, PD Scoped](
	match func(e *E, filter PF) bool,
	insert func(data PD) *E,
	apply func(e *E, data PD),
) *MemDelegate[E, PF, PD] {
	return &MemDelegate[E, PF, PD]{match: match, insert: insert, apply: apply}
}

// Seed appends rows directly, bypassing scoping. Test setup only.
func (m *MemDelegate[E, PF, PD]) Seed(rows ...*E) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
}

// All returns a snapshot of every stored row, bypassing scoping. Test
// assertions only.
func (m *MemDelegate[E, PF, PD]) All() []*E {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*E, len(m.rows))
	copy(out, m.rows)
	return out
}

func (m *MemDelegate[E, PF, PD]) FindFirst(ctx context.Context, filter PF) (*E, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.rows {
		if m.match(e, filter) {
			return e, nil
		}
	}
	return nil, nil
}

func (m *MemDelegate[E, PF, PD]) FindMany(ctx context.Context, filter PF) ([]*E, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*E
	for _, e := range m.rows {
		if m.match(e, filter) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemDelegate[E, PF, PD]) Create(ctx context.Context, data PD) (*E, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.insert(data)
	m.rows = append(m.rows, e)
	return e, nil
}

func (m *MemDelegate[E, PF, PD]) UpdateMany(ctx context.Context, filter PF, data PD) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.rows {
		if m.match(e, filter) {
			m.apply(e, data)
			n++
		}
	}
	return n, nil
}

func (m *MemDelegate[E, PF, PD]) DeleteMany(ctx context.Context, filter PF) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var n int64
	for _, e := range m.rows {
		if m.match(e, filter) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.rows = kept
	return n, nil
}
