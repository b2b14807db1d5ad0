package domain

import "time"

// Conversation is a chat channel or DM thread inside an org.
type Conversation struct {
	ID        string
	OrgID     string
	Title     string
	CreatedBy string
	CreatedAt time.Time
}

// Member ties a user to a conversation.
type Member struct {
	ID             string
	OrgID          string
	ConversationID string
	UserID         string
	JoinedAt       time.Time
}

// Message is one post in a conversation. Deletes are soft so the
// tombstone keeps its place in history.
type Message struct {
	ID             string
	OrgID          string
	ConversationID string
	AuthorID       string
	Body           string
	Mentions       []string
	IsDeleted      bool
	EditedAt       *time.Time
	CreatedAt      time.Time
}

// MessageFilter selects messages. It carries the org binding for the
// tenant guard plus message-specific criteria, including a
// created-before cursor for paging.
type MessageFilter struct {
	id    string
	orgID string

	ConversationID string
	AuthorID       string
	CreatedBefore  *time.Time
	Limit          int
}

func (f *MessageFilter) OrgID() string      { return f.orgID }
func (f *MessageFilter) SetOrgID(id string) { f.orgID = id }
func (f *MessageFilter) SetID(id string)    { f.id = id }
func (f *MessageFilter) ID() string         { return f.id }

// MessageData creates or partially updates a message. Pointer fields
// are left untouched when nil.
type MessageData struct {
	orgID string

	ConversationID string
	AuthorID       string
	Body           *string
	Mentions       []string
	IsDeleted      *bool
	EditedAt       *time.Time
}

func (d *MessageData) OrgID() string      { return d.orgID }
func (d *MessageData) SetOrgID(id string) { d.orgID = id }
