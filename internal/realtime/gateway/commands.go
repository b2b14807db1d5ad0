package gateway

import (
	"context"
	"encoding/json"
	"time"

	"workspace-backbone/backend/internal/realtime/eventlog"
	"workspace-backbone/backend/internal/realtime/presence"
)

// Client-to-server ops.
const (
	cmdSubscribe   = "subscribe.conversation"
	cmdResubscribe = "resubscribe.conversations"
	cmdResync      = "realtime.resync"
	cmdPresence    = "presence.update"
	cmdTypingStart = "typing.start"
	cmdTypingStop  = "typing.stop"
)

// Server-to-client ops.
const (
	opHello = "hello"
	opEvent = "event"
	opAck   = "ack"
	opError = "error"
)

// Error codes carried on error frames.
const (
	codeBadRequest        = "BAD_REQUEST"
	codeNotInConversation = "NOT_IN_CONVERSATION"
	codeRateLimited       = "RATE_LIMITED"
)

const (
	maxResubscribe     = 200
	maxResyncLimit     = 500
	defaultResyncLimit = 100
)

type command struct {
	Op              string   `json:"op"`
	ID              string   `json:"id,omitempty"`
	ConversationID  string   `json:"conversationId,omitempty"`
	ConversationIDs []string `json:"conversationIds,omitempty"`
	// AfterSeq is signed so out-of-range client values clamp to zero
	// instead of failing the whole command at decode time.
	AfterSeq int64  `json:"afterSeq,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Status   string `json:"status,omitempty"`
}

type serverFrame struct {
	Op        string             `json:"op"`
	ID        string             `json:"id,omitempty"`
	Cmd       string             `json:"cmd,omitempty"`
	ConnID    string             `json:"connId,omitempty"`
	LatestSeq uint64             `json:"latestSeq,omitempty"`
	Code      string             `json:"code,omitempty"`
	Event     *eventlog.Envelope `json:"event,omitempty"`
	Data      any                `json:"data,omitempty"`
}

type resyncResult struct {
	Events    []eventlog.Envelope `json:"events"`
	LatestSeq uint64              `json:"latestSeq"`
	OldestSeq uint64              `json:"oldestSeq"`
}

type resubscribeResult struct {
	Subscribed []string `json:"subscribed"`
}

func (h *Hub) sendFrame(c *Client, f serverFrame) {
	frame, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (h *Hub) sendError(c *Client, cmd command, code string) {
	h.sendFrame(c, serverFrame{Op: opError, ID: cmd.ID, Cmd: cmd.Op, Code: code})
}

func (h *Hub) sendAck(c *Client, cmd command, data any) {
	h.sendFrame(c, serverFrame{Op: opAck, ID: cmd.ID, Cmd: cmd.Op, Data: data})
}

// handleCommand dispatches one client frame.
func (h *Hub) handleCommand(c *Client, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.sendError(c, cmd, codeBadRequest)
		return
	}
	ctx := context.Background()

	switch cmd.Op {
	case cmdSubscribe:
		h.subscribeConversation(ctx, c, cmd)
	case cmdResubscribe:
		h.resubscribeConversations(ctx, c, cmd)
	case cmdResync:
		h.resync(c, cmd)
	case cmdPresence:
		h.updatePresence(ctx, c, cmd)
	case cmdTypingStart, cmdTypingStop:
		h.typingSignal(ctx, c, cmd)
	default:
		h.sendError(c, cmd, codeBadRequest)
	}
}

func (h *Hub) subscribeConversation(ctx context.Context, c *Client, cmd command) {
	if cmd.ConversationID == "" {
		h.sendError(c, cmd, codeBadRequest)
		return
	}
	ok, err := h.members.IsMember(ctx, c.orgID, cmd.ConversationID, c.userID)
	if err != nil || !ok {
		h.sendError(c, cmd, codeNotInConversation)
		return
	}
	h.join(c, ConversationRoom(cmd.ConversationID))
	h.sendAck(c, cmd, map[string]string{"conversationId": cmd.ConversationID})
}

// resubscribeConversations rejoins a batch of conversation rooms after
// a reconnect. Duplicates collapse, the batch is capped, and rooms the
// user does not belong to are silently skipped.
func (h *Hub) resubscribeConversations(ctx context.Context, c *Client, cmd command) {
	seen := make(map[string]struct{}, len(cmd.ConversationIDs))
	unique := make([]string, 0, len(cmd.ConversationIDs))
	for _, id := range cmd.ConversationIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
		if len(unique) == maxResubscribe {
			break
		}
	}

	allowed, err := h.members.FilterMember(ctx, c.orgID, unique, c.userID)
	if err != nil {
		h.sendError(c, cmd, codeBadRequest)
		return
	}
	for _, id := range allowed {
		h.join(c, ConversationRoom(id))
	}
	h.sendAck(c, cmd, resubscribeResult{Subscribed: allowed})
}

func (h *Hub) resync(c *Client, cmd command) {
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultResyncLimit
	}
	if limit > maxResyncLimit {
		limit = maxResyncLimit
	}
	after := cmd.AfterSeq
	if after < 0 {
		after = 0
	}
	events, oldest := h.log.Query(c.orgID, uint64(after), limit)
	h.sendAck(c, cmd, resyncResult{
		Events:    events,
		LatestSeq: h.log.LatestSeq(c.orgID),
		OldestSeq: oldest,
	})
}

func (h *Hub) updatePresence(ctx context.Context, c *Client, cmd command) {
	status := h.presence.Set(c.orgID, c.userID, cmd.Status)
	h.broadcastTransient(ctx, []string{OrgRoom(c.orgID)}, serverFrame{
		Op: opEvent,
		Event: &eventlog.Envelope{
			OrgID:     c.orgID,
			Type:      "presence.updated",
			Payload:   map[string]string{"userId": c.userID, "status": status},
			CreatedAt: time.Now(),
		},
	})
	h.sendAck(c, cmd, nil)
}

func (h *Hub) typingSignal(ctx context.Context, c *Client, cmd command) {
	if cmd.ConversationID == "" {
		h.sendError(c, cmd, codeBadRequest)
		return
	}
	room := ConversationRoom(cmd.ConversationID)
	// Room membership stands in for a store lookup: a connection only
	// ever joins a conversation room after subscribe verified its
	// membership, so typing needs a prior subscribe on this connection.
	if !h.inRoom(c, room) {
		h.sendError(c, cmd, codeNotInConversation)
		return
	}
	eventType := "typing.started"
	if cmd.Op == cmdTypingStop {
		eventType = "typing.stopped"
	} else if !h.typing.Allow(c.id) {
		// Only starts count against the window; stops always pass so a
		// rate-limited client can still clear its indicator.
		h.sendError(c, cmd, codeRateLimited)
		return
	}
	h.broadcastTransient(ctx, []string{room}, serverFrame{
		Op: opEvent,
		Event: &eventlog.Envelope{
			OrgID:     c.orgID,
			Type:      eventType,
			Payload:   map[string]string{"conversationId": cmd.ConversationID, "userId": c.userID},
			CreatedAt: time.Now(),
		},
	})
	h.sendAck(c, cmd, nil)
}

// disconnect tears down everything a connection held: room
// memberships, typing budget, and presence, which flips to offline and
// is announced to the org.
func (h *Hub) disconnect(c *Client) {
	h.leaveAll(c)
	h.typing.Forget(c.id)
	c.close()
	h.presence.Set(c.orgID, c.userID, presence.StatusOffline)
	h.broadcastTransient(context.Background(), []string{OrgRoom(c.orgID)}, serverFrame{
		Op: opEvent,
		Event: &eventlog.Envelope{
			OrgID:     c.orgID,
			Type:      "presence.updated",
			Payload:   map[string]string{"userId": c.userID, "status": presence.StatusOffline},
			CreatedAt: time.Now(),
		},
	})
}
