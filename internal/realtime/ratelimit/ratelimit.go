package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by connection id.
// State is per-process; each gateway instance enforces its own window.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	conns  map[string][]time.Time
	now    func() time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		conns:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an attempt and reports whether it fits in the window.
func (l *Limiter) Allow(connID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.conns[connID][:0]
	for _, t := range l.conns[connID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.conns[connID] = kept
		return false
	}
	l.conns[connID] = append(kept, now)
	return true
}

// Forget drops all state for a connection; call on disconnect.
func (l *Limiter) Forget(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, connID)
}
