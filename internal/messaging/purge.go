// ABOUTME: Duplicate purger cascading message deletes before the parent conversation delete
// ABOUTME: Idempotent, tolerant of racing passes, failures logged and left for a later retry

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tandemlearn/messaging/internal/store"
)

const (
	// purgeSuppressTTL is how long a scheduled purge suppresses re-runs
	// for the same id. A failed purge forgets its entry immediately, and
	// expiry covers the case where the failure path itself died.
	purgeSuppressTTL = 30 * time.Second
	purgeCacheSize   = 1024
)

// Purger deletes a losing duplicate conversation and everything under it.
// Every child message is deleted before the conversation record itself; the
// parent is never deleted first. Purging an id that no longer exists
// succeeds as a no-op, so concurrent passes racing on the same loser are
// harmless.
type Purger struct {
	store  store.Store
	logger *slog.Logger
	seen   *suppressCache
}

// NewPurger creates a purger. Pass nil logger for default.
func NewPurger(st store.Store, logger *slog.Logger) *Purger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{
		store:  st,
		logger: logger.With("component", "purger"),
		seen:   newSuppressCache(purgeSuppressTTL, purgeCacheSize),
	}
}

// Purge removes conversationID and all its messages. Errors are logged and
// returned for observability, but the record stays a purge candidate: the
// next reconciliation pass still sees it as a loser and retries.
func (p *Purger) Purge(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return nil
	}
	if p.seen.checkAndMark(conversationID) {
		p.logger.Debug("purge recently scheduled, skipping", "conversation_id", conversationID)
		return nil
	}

	if err := p.purge(ctx, conversationID); err != nil {
		p.seen.forget(conversationID)
		p.logger.Error("purge failed, leaving record for a later pass",
			"conversation_id", conversationID,
			"error", err)
		return err
	}
	return nil
}

func (p *Purger) purge(ctx context.Context, conversationID string) error {
	ids, err := p.store.ListMessageIDs(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("listing messages: %w", err)
	}

	var firstErr error
	deleted := 0
	for _, msgID := range ids {
		if err := p.store.DeleteMessage(ctx, conversationID, msgID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted++
	}
	if firstErr != nil {
		// Parent stays so the next pass can finish the cascade.
		return fmt.Errorf("deleting messages (%d of %d deleted): %w", deleted, len(ids), firstErr)
	}

	// Re-check existence before the parent delete so a racing pass that
	// already finished keeps this one a no-op.
	if _, err := p.store.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("checking conversation: %w", err)
	}

	if err := p.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	p.logger.Info("purged duplicate conversation",
		"conversation_id", conversationID,
		"messages_deleted", deleted)
	return nil
}

// Close stops the suppression cache's background sweeper.
func (p *Purger) Close() {
	p.seen.close()
}
