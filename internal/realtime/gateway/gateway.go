package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"workspace-backbone/backend/internal/realtime/eventlog"
	"workspace-backbone/backend/internal/realtime/presence"
	"workspace-backbone/backend/internal/realtime/ratelimit"
	"workspace-backbone/backend/internal/security"
)

const (
	typingLimit  = 20
	typingWindow = 10 * time.Second
)

// AccessValidator authenticates the token presented at connect time.
type AccessValidator interface {
	ValidateAccess(token string) (*security.Identity, error)
}

// ConversationMembers answers membership questions for room joins.
type ConversationMembers interface {
	IsMember(ctx context.Context, orgID, conversationID, userID string) (bool, error)
	// FilterMember returns the subset of conversationIDs the user
	// belongs to.
	FilterMember(ctx context.Context, orgID string, conversationIDs []string, userID string) ([]string, error)
}

// RemoteEvent is a frame replicated to other gateway instances.
type RemoteEvent struct {
	OriginID string   `json:"originId"`
	Rooms    []string `json:"rooms"`
	Frame    []byte   `json:"frame"`
}

// Backplane replicates room broadcasts across gateway instances.
type Backplane interface {
	Publish(ctx context.Context, ev RemoteEvent) error
}

// Hub owns all websocket clients on this instance, room membership,
// the event log and presence. Room names are "org:<id>" and
// "conversation:<id>".
type Hub struct {
	log       *eventlog.Log
	presence  *presence.Tracker
	typing    *ratelimit.Limiter
	members   ConversationMembers
	tokens    AccessValidator
	backplane Backplane
	originID  string

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(log *eventlog.Log, members ConversationMembers, tokens AccessValidator, backplane Backplane) *Hub {
	return &Hub{
		log:       log,
		presence:  presence.NewTracker(),
		typing:    ratelimit.New(typingLimit, typingWindow),
		members:   members,
		tokens:    tokens,
		backplane: backplane,
		originID:  uuid.NewString(),
		rooms:     make(map[string]map[*Client]struct{}),
	}
}

func OrgRoom(orgID string) string           { return "org:" + orgID }
func ConversationRoom(convID string) string { return "conversation:" + convID }

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[room]
	if !ok {
		clients = make(map[*Client]struct{})
		h.rooms[room] = clients
	}
	clients[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		if clients, ok := h.rooms[room]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = make(map[string]struct{})
}

func (h *Hub) inRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Publish appends an event to the org's log and fans the resulting
// envelope out to the named rooms, locally and across the backplane.
func (h *Hub) Publish(ctx context.Context, orgID, eventType string, payload any, rooms ...string) eventlog.Envelope {
	env := h.log.Append(orgID, eventType, payload)
	frame, err := json.Marshal(serverFrame{Op: opEvent, Event: &env})
	if err != nil {
		log.Printf("[gateway] marshal event %s: %v", eventType, err)
		return env
	}
	h.fanout(rooms, frame)
	h.replicate(ctx, rooms, frame)
	return env
}

// broadcastTransient delivers a frame to rooms without touching the
// event log. Typing and presence churn is not replayable.
func (h *Hub) broadcastTransient(ctx context.Context, rooms []string, f serverFrame) {
	frame, err := json.Marshal(f)
	if err != nil {
		log.Printf("[gateway] marshal %s: %v", f.Op, err)
		return
	}
	h.fanout(rooms, frame)
	h.replicate(ctx, rooms, frame)
}

func (h *Hub) replicate(ctx context.Context, rooms []string, frame []byte) {
	if h.backplane == nil {
		return
	}
	if err := h.backplane.Publish(ctx, RemoteEvent{OriginID: h.originID, Rooms: rooms, Frame: frame}); err != nil {
		log.Printf("[gateway] backplane publish: %v", err)
	}
}

// DeliverRemote fans out a frame received from another instance.
func (h *Hub) DeliverRemote(ev RemoteEvent) {
	if ev.OriginID == h.originID {
		return
	}
	h.fanout(ev.Rooms, ev.Frame)
}

// fanout pushes a frame to every client in the rooms, at most once per
// client even when rooms overlap.
func (h *Hub) fanout(rooms []string, frame []byte) {
	targets := make(map[*Client]struct{})
	h.mu.RLock()
	for _, room := range rooms {
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for c := range targets {
		c.enqueue(frame)
	}
}

// OriginID identifies this instance on the backplane.
func (h *Hub) OriginID() string { return h.originID }

// Presence exposes the tracker for HTTP snapshots.
func (h *Hub) Presence() *presence.Tracker { return h.presence }

// Log exposes the event log for services that publish through HTTP.
func (h *Hub) Log() *eventlog.Log { return h.log }
