package presence

import "sync"

// Presence statuses. Anything else sent by a client is coerced to
// online; offline removes the entry entirely so the tracker stays
// bounded by currently-present users.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusDND     = "dnd"
	StatusOffline = "offline"
)

func SanitizeStatus(s string) string {
	switch s {
	case StatusOnline, StatusAway, StatusDND, StatusOffline:
		return s
	}
	return StatusOnline
}

// Tracker holds per-org presence state for connected users.
type Tracker struct {
	mu   sync.RWMutex
	orgs map[string]map[string]string // orgID -> userID -> status
}

func NewTracker() *Tracker {
	return &Tracker{orgs: make(map[string]map[string]string)}
}

// Set records a user's status. Returns the sanitized status that was
// actually stored (or broadcastable offline).
func (t *Tracker) Set(orgID, userID, status string) string {
	status = SanitizeStatus(status)
	t.mu.Lock()
	defer t.mu.Unlock()
	if status == StatusOffline {
		if users, ok := t.orgs[orgID]; ok {
			delete(users, userID)
			if len(users) == 0 {
				delete(t.orgs, orgID)
			}
		}
		return status
	}
	users, ok := t.orgs[orgID]
	if !ok {
		users = make(map[string]string)
		t.orgs[orgID] = users
	}
	users[userID] = status
	return status
}

// Get reports a user's status; absent users are offline.
func (t *Tracker) Get(orgID, userID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if users, ok := t.orgs[orgID]; ok {
		if s, ok := users[userID]; ok {
			return s
		}
	}
	return StatusOffline
}

// Snapshot returns a copy of all present users in an org.
func (t *Tracker) Snapshot(orgID string) map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	users := t.orgs[orgID]
	out := make(map[string]string, len(users))
	for id, s := range users {
		out[id] = s
	}
	return out
}
