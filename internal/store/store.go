// ABOUTME: Store interface and data types for the messaging document store
// ABOUTME: Defines Conversation, Message structs and the primitives all components rely on

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrClosed is returned when an operation is attempted on a closed store
var ErrClosed = errors.New("store closed")

// ErrInvalidParticipant is returned when a subscription is opened without a user id
var ErrInvalidParticipant = errors.New("participant id is required")

// Conversation is a two-party conversation record. Participants always holds
// exactly two user ids. LastMessage and LastMessageAt are a denormalized
// summary cache updated after each send; they may lag behind the message set.
type Conversation struct {
	ID               string
	Participants     []string
	ParticipantNames map[string]string // denormalized display names keyed by user id
	LastMessage      string
	LastMessageAt    *time.Time // store-assigned; nil until the first send
	CreatedAt        time.Time  // store-assigned
}

// OtherParticipant returns the participant that is not userID, or "" when
// the record has no resolvable other side (malformed participants, or the
// user is not actually a member).
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != "" && p != userID {
			return p
		}
	}
	return ""
}

// Message is a single message inside a conversation. Immutable once created;
// removed only by the cascade delete of its parent conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string // display name snapshot taken at send time
	Text           string
	Timestamp      time.Time // store-assigned, monotonic per store
}

// Snapshot is a fully materialized view of every conversation matching a
// subscription's participant filter at a given store revision.
type Snapshot struct {
	Revision      uint64
	Conversations []*Conversation
}

// Store is the document-store contract shared by all messaging components.
// Timestamps (CreatedAt, Timestamp, LastMessageAt) are assigned by the store
// on write, never by the caller. Delete operations are idempotent: deleting
// an id that is already gone succeeds as a no-op.
type Store interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error)
	// UpdateConversationSummary sets LastMessage and stamps LastMessageAt
	// with a fresh store timestamp. Returns ErrNotFound when the
	// conversation no longer exists.
	UpdateConversationSummary(ctx context.Context, id, lastMessage string) error
	DeleteConversation(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, msg *Message) error
	// ListMessages returns the full message set ordered ascending by
	// store-assigned timestamp.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	ListMessageIDs(ctx context.Context, conversationID string) ([]string, error)
	DeleteMessage(ctx context.Context, conversationID, messageID string) error

	// WatchConversations opens a live snapshot stream for every
	// conversation whose participants include userID. The current state is
	// delivered as the first snapshot.
	WatchConversations(userID string) (*ConversationSub, error)
	// WatchMessages opens a live stream over one conversation's ordered
	// message set. Every change re-delivers the full set.
	WatchMessages(conversationID string) (*MessageSub, error)

	Close() error
}
