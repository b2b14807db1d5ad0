package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"workspace-backbone/backend/internal/messaging/domain"
	"workspace-backbone/backend/internal/messaging/repository"
	"workspace-backbone/backend/internal/realtime/eventlog"
	"workspace-backbone/backend/internal/realtime/gateway"
	"workspace-backbone/backend/internal/tenant"
)

var (
	ErrNotConversationMember = errors.New("NOT_IN_CONVERSATION")
	ErrMessageNotFound       = errors.New("MESSAGE_NOT_FOUND")
	ErrNotMessageAuthor      = errors.New("NOT_MESSAGE_AUTHOR")
	ErrInvalidCursor         = errors.New("INVALID_CURSOR")
)

const defaultPageSize = 50

// Publisher fans events out to connected clients. The gateway hub
// satisfies it; tests use a recording fake.
type Publisher interface {
	Publish(ctx context.Context, orgID, eventType string, payload any, rooms ...string) eventlog.Envelope
}

// MessageStore is the unbound message delegate; the service binds it
// to the caller's org on every operation.
type MessageStore = tenant.Delegate[domain.Message, *domain.MessageFilter, *domain.MessageData]

type Service struct {
	messages      MessageStore
	conversations repository.Conversations
	publisher     Publisher
	now           func() time.Time
}

func New(messages MessageStore, conversations repository.Conversations, publisher Publisher) *Service {
	return &Service{
		messages:      messages,
		conversations: conversations,
		publisher:     publisher,
		now:           time.Now,
	}
}

func (s *Service) guard(orgID string) *tenant.Guard[domain.Message, domain.MessageFilter, domain.MessageData, *domain.MessageFilter, *domain.MessageData] {
	return tenant.Bind(s.messages, orgID)
}

// CreateConversation opens a conversation and enrolls the creator plus
// the given members.
func (s *Service) CreateConversation(ctx context.Context, orgID, creatorID, title string, memberIDs []string) (*domain.Conversation, error) {
	now := s.now()
	conv := &domain.Conversation{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Title:     title,
		CreatedBy: creatorID,
		CreatedAt: now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, userID := range append([]string{creatorID}, memberIDs...) {
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		if err := s.conversations.AddMember(ctx, &domain.Member{
			ID:             uuid.NewString(),
			OrgID:          orgID,
			ConversationID: conv.ID,
			UserID:         userID,
			JoinedAt:       now,
		}); err != nil {
			return nil, err
		}
	}
	s.publisher.Publish(ctx, orgID, "conversation.created",
		map[string]any{"conversationId": conv.ID, "title": title, "createdBy": creatorID},
		gateway.OrgRoom(orgID))
	return conv, nil
}

// Send posts a message. The author must be a member of the
// conversation; mentions are parsed out of the body.
func (s *Service) Send(ctx context.Context, orgID, conversationID, authorID, body string) (*domain.Message, error) {
	ok, err := s.conversations.IsMember(ctx, orgID, conversationID, authorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConversationMember
	}

	msg, err := s.guard(orgID).Create(ctx, &domain.MessageData{
		ConversationID: conversationID,
		AuthorID:       authorID,
		Body:           &body,
		Mentions:       ParseMentions(body),
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	s.publisher.Publish(ctx, orgID, "message.created", msg,
		gateway.ConversationRoom(conversationID))
	return msg, nil
}

// Edit replaces a message body. Only the author can edit.
func (s *Service) Edit(ctx context.Context, orgID, messageID, editorID, body string) (*domain.Message, error) {
	g := s.guard(orgID)
	msg, err := g.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.IsDeleted {
		return nil, ErrMessageNotFound
	}
	if msg.AuthorID != editorID {
		return nil, ErrNotMessageAuthor
	}

	editedAt := s.now()
	filter := &domain.MessageFilter{}
	filter.SetID(messageID)
	mentions := ParseMentions(body)
	if _, err := g.UpdateMany(ctx, filter, &domain.MessageData{
		Body:     &body,
		Mentions: mentions,
		EditedAt: &editedAt,
	}); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}

	msg.Body = body
	msg.Mentions = mentions
	msg.EditedAt = &editedAt
	s.publisher.Publish(ctx, orgID, "message.updated", msg,
		gateway.ConversationRoom(msg.ConversationID))
	return msg, nil
}

// Delete soft-deletes a message. Moderators may delete anyone's
// messages; everyone else only their own.
func (s *Service) Delete(ctx context.Context, orgID, messageID, actorID string, moderator bool) error {
	g := s.guard(orgID)
	msg, err := g.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.IsDeleted {
		return ErrMessageNotFound
	}
	if msg.AuthorID != actorID && !moderator {
		return ErrNotMessageAuthor
	}

	deleted := true
	filter := &domain.MessageFilter{}
	filter.SetID(messageID)
	if _, err := g.UpdateMany(ctx, filter, &domain.MessageData{IsDeleted: &deleted}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.publisher.Publish(ctx, orgID, "message.deleted",
		map[string]string{"messageId": messageID, "conversationId": msg.ConversationID},
		gateway.ConversationRoom(msg.ConversationID))
	return nil
}

// Page is one slice of conversation history, newest first.
type Page struct {
	Messages   []*domain.Message
	NextCursor string
}

// List pages through a conversation's history. The cursor encodes the
// created-at of the last message of the previous page.
func (s *Service) List(ctx context.Context, orgID, conversationID, userID, cursor string, limit int) (*Page, error) {
	ok, err := s.conversations.IsMember(ctx, orgID, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConversationMember
	}
	if limit <= 0 || limit > 200 {
		limit = defaultPageSize
	}

	filter := &domain.MessageFilter{
		ConversationID: conversationID,
		Limit:          limit + 1,
	}
	if cursor != "" {
		before, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		filter.CreatedBefore = &before
	}
	msgs, err := s.guard(orgID).FindMany(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := &Page{Messages: msgs}
	if len(msgs) > limit {
		page.Messages = msgs[:limit]
		page.NextCursor = EncodeCursor(page.Messages[limit-1].CreatedAt)
	}
	return page, nil
}

var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9][a-zA-Z0-9._-]*)`)

// ParseMentions extracts @handles from a message body, deduplicated in
// order of first appearance.
func ParseMentions(body string) []string {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// EncodeCursor packs a timestamp into an opaque page cursor.
func EncodeCursor(t time.Time) string {
	return base64.RawURLEncoding.EncodeToString([]byte(t.UTC().Format(time.RFC3339Nano)))
}

func DecodeCursor(cursor string) (time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, ErrInvalidCursor
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, ErrInvalidCursor
	}
	return t, nil
}
