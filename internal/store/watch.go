// ABOUTME: Live snapshot fan-out for conversation and message subscriptions
// ABOUTME: Every committed mutation bumps a revision and re-delivers filtered snapshots in order

package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// snapshotQueryTimeout bounds the store queries a single fan-out pass may
// spend per subscriber.
const snapshotQueryTimeout = 5 * time.Second

// snapshotReader is what the hub needs from its backing store to
// materialize snapshots.
type snapshotReader interface {
	ListConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
}

// hub tracks open subscriptions and pushes them a fresh snapshot after every
// committed store mutation. Snapshots for one subscriber are delivered in
// revision order; a failed snapshot query terminates that subscriber's
// stream with the error rather than silently stalling it.
type hub struct {
	mu       sync.Mutex
	reader   snapshotReader
	logger   *slog.Logger
	revision uint64
	convSubs map[string]*ConversationSub
	msgSubs  map[string]*MessageSub
	closed   bool

	// notifyMu serializes fan-out passes so subscribers observe
	// revisions in the order the store committed them.
	notifyMu sync.Mutex
}

func newHub(reader snapshotReader, logger *slog.Logger) *hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub{
		reader:   reader,
		logger:   logger.With("component", "watch"),
		convSubs: make(map[string]*ConversationSub),
		msgSubs:  make(map[string]*MessageSub),
	}
}

// subscribeConversations registers a subscriber and queues the current state
// as its first snapshot.
func (h *hub) subscribeConversations(userID string) (*ConversationSub, error) {
	if userID == "" {
		return nil, ErrInvalidParticipant
	}

	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	sub := newConversationSub(h, userID)
	h.convSubs[sub.id] = sub
	rev := h.revision
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotQueryTimeout)
	defer cancel()

	convs, err := h.reader.ListConversationsByParticipant(ctx, userID)
	if err != nil {
		h.removeConversationSub(sub.id)
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}
	sub.enqueue(Snapshot{Revision: rev, Conversations: convs})

	h.logger.Debug("conversation subscriber added", "user_id", userID, "sub_id", sub.id)
	return sub, nil
}

// subscribeMessages registers a message-feed subscriber for one
// conversation, delivering the current ordered set first.
func (h *hub) subscribeMessages(conversationID string) (*MessageSub, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	sub := newMessageSub(h, conversationID)
	h.msgSubs[sub.id] = sub
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotQueryTimeout)
	defer cancel()

	msgs, err := h.reader.ListMessages(ctx, conversationID)
	if err != nil {
		h.removeMessageSub(sub.id)
		return nil, fmt.Errorf("initial message set: %w", err)
	}
	sub.enqueue(msgs)

	h.logger.Debug("message subscriber added", "conversation_id", conversationID, "sub_id", sub.id)
	return sub, nil
}

// notify re-materializes and delivers snapshots for every open subscriber.
// Called by the backing store after each committed mutation, outside its own
// locks.
func (h *hub) notify() {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.revision++
	rev := h.revision
	convSubs := make([]*ConversationSub, 0, len(h.convSubs))
	for _, s := range h.convSubs {
		convSubs = append(convSubs, s)
	}
	msgSubs := make([]*MessageSub, 0, len(h.msgSubs))
	for _, s := range h.msgSubs {
		msgSubs = append(msgSubs, s)
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotQueryTimeout)
	defer cancel()

	for _, sub := range convSubs {
		convs, err := h.reader.ListConversationsByParticipant(ctx, sub.userID)
		if err != nil {
			h.logger.Error("conversation snapshot query failed, terminating stream",
				"user_id", sub.userID,
				"sub_id", sub.id,
				"error", err)
			h.removeConversationSub(sub.id)
			sub.fail(fmt.Errorf("snapshot query: %w", err))
			continue
		}
		sub.enqueue(Snapshot{Revision: rev, Conversations: convs})
	}

	for _, sub := range msgSubs {
		msgs, err := h.reader.ListMessages(ctx, sub.conversationID)
		if err != nil {
			h.logger.Error("message snapshot query failed, terminating stream",
				"conversation_id", sub.conversationID,
				"sub_id", sub.id,
				"error", err)
			h.removeMessageSub(sub.id)
			sub.fail(fmt.Errorf("message query: %w", err))
			continue
		}
		sub.enqueue(msgs)
	}
}

func (h *hub) removeConversationSub(id string) {
	h.mu.Lock()
	delete(h.convSubs, id)
	h.mu.Unlock()
}

func (h *hub) removeMessageSub(id string) {
	h.mu.Lock()
	delete(h.msgSubs, id)
	h.mu.Unlock()
}

// close terminates every open subscription with ErrClosed.
func (h *hub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	convSubs := h.convSubs
	msgSubs := h.msgSubs
	h.convSubs = make(map[string]*ConversationSub)
	h.msgSubs = make(map[string]*MessageSub)
	h.mu.Unlock()

	for _, sub := range convSubs {
		sub.fail(ErrClosed)
	}
	for _, sub := range msgSubs {
		sub.fail(ErrClosed)
	}
	h.logger.Debug("watch hub closed")
}
