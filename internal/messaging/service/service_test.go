package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"workspace-backbone/backend/internal/messaging/domain"
	"workspace-backbone/backend/internal/realtime/eventlog"
	"workspace-backbone/backend/internal/tenant"
)

type memConversations struct {
	mu      sync.Mutex
	convs   map[string]*domain.Conversation
	members map[string]map[string]bool // conversationID -> userID
}

func newMemConversations() *memConversations {
	return &memConversations{
		convs:   make(map[string]*domain.Conversation),
		members: make(map[string]map[string]bool),
	}
}

func (r *memConversations) Create(_ context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.convs[c.ID] = &cp
	return nil
}

func (r *memConversations) GetByID(_ context.Context, orgID, id string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[id]; ok && c.OrgID == orgID {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *memConversations) AddMember(_ context.Context, m *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[m.ConversationID] == nil {
		r.members[m.ConversationID] = make(map[string]bool)
	}
	r.members[m.ConversationID][m.UserID] = true
	return nil
}

func (r *memConversations) IsMember(_ context.Context, _, conversationID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[conversationID][userID], nil
}

func (r *memConversations) FilterMember(_ context.Context, _ string, conversationIDs []string, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, id := range conversationIDs {
		if r.members[id][userID] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memConversations) ListForUser(_ context.Context, orgID, userID string) ([]*domain.Conversation, error) {
	return nil, nil
}

type recordedEvent struct {
	orgID     string
	eventType string
	rooms     []string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	seq    uint64
}

func (p *recordingPublisher) Publish(_ context.Context, orgID, eventType string, payload any, rooms ...string) eventlog.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.events = append(p.events, recordedEvent{orgID: orgID, eventType: eventType, rooms: rooms})
	return eventlog.Envelope{Seq: p.seq, OrgID: orgID, Type: eventType, Payload: payload}
}

func (p *recordingPublisher) last(t *testing.T) recordedEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		t.Fatal("no events published")
	}
	return p.events[len(p.events)-1]
}

func newMessageDelegate() *tenant.MemDelegate[domain.Message, *domain.MessageFilter, *domain.MessageData] {
	return tenant.NewMemDelegate(
		func(e *domain.Message, f *domain.MessageFilter) bool {
			if id := f.ID(); id != "" && e.ID != id {
				return false
			}
			if f.OrgID() != "" && e.OrgID != f.OrgID() {
				return false
			}
			if f.ConversationID != "" && e.ConversationID != f.ConversationID {
				return false
			}
			if f.AuthorID != "" && e.AuthorID != f.AuthorID {
				return false
			}
			if f.CreatedBefore != nil && !e.CreatedAt.Before(*f.CreatedBefore) {
				return false
			}
			return true
		},
		func(d *domain.MessageData) *domain.Message {
			body := ""
			if d.Body != nil {
				body = *d.Body
			}
			return &domain.Message{
				ID:             uuid.NewString(),
				OrgID:          d.OrgID(),
				ConversationID: d.ConversationID,
				AuthorID:       d.AuthorID,
				Body:           body,
				Mentions:       d.Mentions,
				CreatedAt:      time.Now(),
			}
		},
		func(e *domain.Message, d *domain.MessageData) {
			if d.Body != nil {
				e.Body = *d.Body
			}
			if d.Mentions != nil {
				e.Mentions = d.Mentions
			}
			if d.IsDeleted != nil {
				e.IsDeleted = *d.IsDeleted
			}
			if d.EditedAt != nil {
				e.EditedAt = d.EditedAt
			}
		},
	)
}

type fixture struct {
	svc       *Service
	convs     *memConversations
	publisher *recordingPublisher
}

func newFixture() *fixture {
	convs := newMemConversations()
	publisher := &recordingPublisher{}
	return &fixture{
		svc:       New(newMessageDelegate(), convs, publisher),
		convs:     convs,
		publisher: publisher,
	}
}

func (f *fixture) conversation(t *testing.T, orgID string, members ...string) *domain.Conversation {
	t.Helper()
	conv, err := f.svc.CreateConversation(context.Background(), orgID, members[0], "general", members[1:])
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return conv
}

func TestCreateConversation_EnrollsMembers(t *testing.T) {
	f := newFixture()
	conv := f.conversation(t, "org-1", "u1", "u2", "u2")

	for _, u := range []string{"u1", "u2"} {
		ok, _ := f.convs.IsMember(context.Background(), "org-1", conv.ID, u)
		if !ok {
			t.Errorf("%s should be a member", u)
		}
	}
	ev := f.publisher.last(t)
	if ev.eventType != "conversation.created" || ev.rooms[0] != "org:org-1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestSend(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.conversation(t, "org-1", "u1", "u2")

	msg, err := f.svc.Send(ctx, "org-1", conv.ID, "u1", "hi @u2, see @u2 and @u3")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.OrgID != "org-1" || msg.ConversationID != conv.ID {
		t.Errorf("message = %+v", msg)
	}
	if !reflect.DeepEqual(msg.Mentions, []string{"u2", "u3"}) {
		t.Errorf("mentions = %v, want [u2 u3]", msg.Mentions)
	}
	ev := f.publisher.last(t)
	if ev.eventType != "message.created" || ev.rooms[0] != "conversation:"+conv.ID {
		t.Errorf("event = %+v", ev)
	}

	// Non-members cannot post.
	if _, err := f.svc.Send(ctx, "org-1", conv.ID, "outsider", "hi"); !errors.Is(err, ErrNotConversationMember) {
		t.Errorf("outsider Send err = %v, want ErrNotConversationMember", err)
	}
}

func TestEdit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.conversation(t, "org-1", "u1", "u2")
	msg, _ := f.svc.Send(ctx, "org-1", conv.ID, "u1", "original")

	edited, err := f.svc.Edit(ctx, "org-1", msg.ID, "u1", "fixed typo")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Body != "fixed typo" || edited.EditedAt == nil {
		t.Errorf("edited = %+v", edited)
	}

	if _, err := f.svc.Edit(ctx, "org-1", msg.ID, "u2", "hijack"); !errors.Is(err, ErrNotMessageAuthor) {
		t.Errorf("non-author edit err = %v, want ErrNotMessageAuthor", err)
	}
	if _, err := f.svc.Edit(ctx, "org-1", "missing", "u1", "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("missing message err = %v, want ErrMessageNotFound", err)
	}
	// A message from another org is invisible here.
	if _, err := f.svc.Edit(ctx, "org-2", msg.ID, "u1", "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("cross-org edit err = %v, want ErrMessageNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.conversation(t, "org-1", "u1", "u2")
	msg, _ := f.svc.Send(ctx, "org-1", conv.ID, "u1", "regret this")

	if err := f.svc.Delete(ctx, "org-1", msg.ID, "u2", false); !errors.Is(err, ErrNotMessageAuthor) {
		t.Fatalf("non-author delete err = %v, want ErrNotMessageAuthor", err)
	}
	// Moderators can delete anyone's message.
	if err := f.svc.Delete(ctx, "org-1", msg.ID, "u2", true); err != nil {
		t.Fatalf("moderator delete: %v", err)
	}
	if err := f.svc.Delete(ctx, "org-1", msg.ID, "u1", false); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("double delete err = %v, want ErrMessageNotFound", err)
	}
	ev := f.publisher.last(t)
	if ev.eventType != "message.deleted" {
		t.Errorf("event = %+v", ev)
	}
}

func TestList(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.conversation(t, "org-1", "u1")
	for i := 0; i < 3; i++ {
		f.svc.Send(ctx, "org-1", conv.ID, "u1", "msg")
	}

	page, err := f.svc.List(ctx, "org-1", conv.ID, "u1", "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Messages) != 3 || page.NextCursor != "" {
		t.Errorf("page = %d messages, cursor %q", len(page.Messages), page.NextCursor)
	}

	if _, err := f.svc.List(ctx, "org-1", conv.ID, "outsider", "", 10); !errors.Is(err, ErrNotConversationMember) {
		t.Errorf("outsider list err = %v, want ErrNotConversationMember", err)
	}
	if _, err := f.svc.List(ctx, "org-1", conv.ID, "u1", "%%%not-base64%%%", 10); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("bad cursor err = %v, want ErrInvalidCursor", err)
	}
}

func TestParseMentions(t *testing.T) {
	tests := []struct {
		body string
		want []string
	}{
		{"no mentions here", nil},
		{"hey @alice", []string{"alice"}},
		{"@alice @bob @alice", []string{"alice", "bob"}},
		{"email a@b.co is not @ alone", []string{"b.co"}},
		{"@user.name-x rocks", []string{"user.name-x"}},
	}
	for _, tt := range tests {
		if got := ParseMentions(tt.body); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseMentions(%q) = %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	got, err := DecodeCursor(EncodeCursor(ts))
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("round trip = %v, want %v", got, ts)
	}
	if _, err := DecodeCursor("!!!"); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("garbage cursor err = %v, want ErrInvalidCursor", err)
	}
}
