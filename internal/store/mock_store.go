// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject per-operation failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing. Zero value is
// not usable; call NewMockStore. Failure injection fields let tests force
// individual operations to fail.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message // keyed by conversation id
	lastTS        time.Time
	hub           *hub

	// Failure injection. When set, the corresponding operation returns the
	// error without touching state.
	FailCreateMessage error
	FailUpdateSummary error
	FailDeleteConv    error
	FailDeleteMessage error
	FailListConvs     error
	FailListMessages  error

	// DeleteLog records delete operations in order: "msg:<id>" and
	// "conv:<id>" entries. Guarded by mu.
	DeleteLog []string
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	m := &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
	m.hub = newHub(m, nil)
	return m
}

func (m *MockStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(m.lastTS) {
		t = m.lastTS.Add(time.Microsecond)
	}
	m.lastTS = t
	return t
}

// CreateConversation stores a new conversation, assigning CreatedAt.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	conv.CreatedAt = m.now()
	c := *conv
	c.Participants = append([]string(nil), conv.Participants...)
	m.conversations[c.ID] = &c
	m.mu.Unlock()

	m.hub.notify()
	return nil
}

// SeedConversation inserts a conversation verbatim, keeping the caller's
// timestamps. Test helper for building snapshots with known ordering.
func (m *MockStore) SeedConversation(conv *Conversation) {
	m.mu.Lock()
	c := *conv
	m.conversations[c.ID] = &c
	m.mu.Unlock()

	m.hub.notify()
}

// GetConversation retrieves a conversation by id.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conv
	return &c, nil
}

// ListConversationsByParticipant returns conversations including userID,
// ordered by creation time.
func (m *MockStore) ListConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailListConvs != nil {
		return nil, m.FailListConvs
	}

	var convs []*Conversation
	for _, conv := range m.conversations {
		for _, p := range conv.Participants {
			if p == userID {
				c := *conv
				convs = append(convs, &c)
				break
			}
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})
	return convs, nil
}

// UpdateConversationSummary updates the summary cache with a fresh timestamp.
func (m *MockStore) UpdateConversationSummary(ctx context.Context, id, lastMessage string) error {
	m.mu.Lock()
	if m.FailUpdateSummary != nil {
		err := m.FailUpdateSummary
		m.mu.Unlock()
		return err
	}
	conv, ok := m.conversations[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	ts := m.now()
	conv.LastMessage = lastMessage
	conv.LastMessageAt = &ts
	m.mu.Unlock()

	m.hub.notify()
	return nil
}

// DeleteConversation removes a conversation; no-op when absent.
func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.FailDeleteConv != nil {
		err := m.FailDeleteConv
		m.mu.Unlock()
		return err
	}
	_, existed := m.conversations[id]
	delete(m.conversations, id)
	m.DeleteLog = append(m.DeleteLog, "conv:"+id)
	m.mu.Unlock()

	if existed {
		m.hub.notify()
	}
	return nil
}

// CreateMessage appends a message, assigning its timestamp.
func (m *MockStore) CreateMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	if m.FailCreateMessage != nil {
		err := m.FailCreateMessage
		m.mu.Unlock()
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.Timestamp = m.now()
	mc := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &mc)
	m.mu.Unlock()

	m.hub.notify()
	return nil
}

// ListMessages returns messages ascending by timestamp.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailListMessages != nil {
		return nil, m.FailListMessages
	}

	msgs := make([]*Message, 0, len(m.messages[conversationID]))
	for _, msg := range m.messages[conversationID] {
		c := *msg
		msgs = append(msgs, &c)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

// ListMessageIDs returns the ids of messages under the conversation.
func (m *MockStore) ListMessageIDs(ctx context.Context, conversationID string) ([]string, error) {
	msgs, err := m.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

// DeleteMessage removes one message; no-op when absent.
func (m *MockStore) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	m.mu.Lock()
	if m.FailDeleteMessage != nil {
		err := m.FailDeleteMessage
		m.mu.Unlock()
		return err
	}
	existed := false
	msgs := m.messages[conversationID]
	for i, msg := range msgs {
		if msg.ID == messageID {
			m.messages[conversationID] = append(msgs[:i], msgs[i+1:]...)
			existed = true
			break
		}
	}
	m.DeleteLog = append(m.DeleteLog, "msg:"+messageID)
	m.mu.Unlock()

	if existed {
		m.hub.notify()
	}
	return nil
}

// WatchConversations opens a live snapshot stream filtered by participant.
func (m *MockStore) WatchConversations(userID string) (*ConversationSub, error) {
	return m.hub.subscribeConversations(userID)
}

// WatchMessages opens a live ordered message stream for one conversation.
func (m *MockStore) WatchMessages(conversationID string) (*MessageSub, error) {
	return m.hub.subscribeMessages(conversationID)
}

// Notify forces a fan-out pass, as if a mutation committed. Test helper for
// exercising duplicate snapshot delivery.
func (m *MockStore) Notify() {
	m.hub.notify()
}

// Close terminates all subscriptions.
func (m *MockStore) Close() error {
	m.hub.close()
	return nil
}
