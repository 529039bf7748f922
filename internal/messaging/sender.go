// ABOUTME: Message sender appending a message then updating the conversation summary cache
// ABOUTME: Rejects blank text with zero writes; summary failure leaves the message delivered

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tandemlearn/messaging/internal/store"
)

// ErrEmptyMessage is returned when the text is empty or only whitespace.
// Nothing is written.
var ErrEmptyMessage = errors.New("message text is empty")

// ErrSummaryUpdate wraps a failure of the summary-cache update that happened
// after the message itself was created. The message is delivered; only the
// conversation's lastMessage/lastMessageAt cache is stale.
var ErrSummaryUpdate = errors.New("summary update failed")

// Sender appends messages to a conversation.
type Sender struct {
	store  store.Store
	logger *slog.Logger
}

// NewSender creates a sender. Pass nil logger for default.
func NewSender(st store.Store, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		store:  st,
		logger: logger.With("component", "sender"),
	}
}

// Send creates a message with the trimmed text and a store-assigned
// timestamp, then — strictly after the message exists — refreshes the
// conversation's summary fields with a fresh store timestamp.
//
// The two writes are deliberately not transactional: if the summary update
// fails the message is not rolled back, and the returned error wraps
// ErrSummaryUpdate so callers can distinguish a stale cache from a failed
// send. The created message is returned whenever it was persisted.
func (s *Sender) Send(ctx context.Context, conversationID, senderID, senderName, text string) (*store.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Text:           trimmed,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	s.logger.Debug("message sent",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"sender_id", senderID)

	if err := s.store.UpdateConversationSummary(ctx, conversationID, trimmed); err != nil {
		s.logger.Warn("summary update failed after send, cache is stale",
			"conversation_id", conversationID,
			"message_id", msg.ID,
			"error", err)
		return msg, fmt.Errorf("%w: %v", ErrSummaryUpdate, err)
	}

	return msg, nil
}
