// ABOUTME: Service facade wiring subscription, reconciler, purger, sender, and stream controller
// ABOUTME: Publishes the canonical conversation list and drives purges without blocking it

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tandemlearn/messaging/internal/profile"
	"github.com/tandemlearn/messaging/internal/store"
)

// ErrNoUser is returned when the engine is used without a current user.
// Absence of an identity disables the whole subsystem: Start opens nothing.
var ErrNoUser = errors.New("no current user")

// ErrNoSelection is returned by SendMessage when no conversation is selected.
var ErrNoSelection = errors.New("no conversation selected")

// ErrAlreadyStarted is returned when Start is called on a running service.
var ErrAlreadyStarted = errors.New("service already started")

// reconcilePassTimeout bounds the profile lookups of a single pass.
const reconcilePassTimeout = 10 * time.Second

// Identity is the current user as supplied by the surrounding application.
type Identity struct {
	ID   string
	Name string // optional display name; messages fall back to "You"
}

// Service is the embeddable messaging engine. It owns the live conversation
// subscription, reconciles every snapshot into the canonical duplicate-free
// list, schedules loser purges, and exposes the message feed and send action
// for the selected conversation.
type Service struct {
	store     store.Store
	logger    *slog.Logger
	reconcile *Reconciler
	purger    *Purger
	sender    *Sender
	streams   *StreamController

	mu       sync.Mutex
	identity Identity
	sub      *store.ConversationSub
	runDone  chan struct{}

	convOut  chan []ConversationView
	loading  atomic.Bool
	degraded atomic.Bool
}

// NewService wires the engine over a document store and a profile store.
// Pass nil logger for default.
func NewService(st store.Store, profiles profile.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "messaging")
	return &Service{
		store:     st,
		logger:    logger,
		reconcile: NewReconciler(profiles, logger),
		purger:    NewPurger(st, logger),
		sender:    NewSender(st, logger),
		streams:   NewStreamController(st, logger),
		convOut:   make(chan []ConversationView, 1),
	}
}

// Start opens the live conversation subscription for the given identity.
// An empty identity disables the engine: nothing is opened and ErrNoUser is
// returned. Loading() reports true until the first reconciled list has been
// published.
func (s *Service) Start(identity Identity) error {
	if identity.ID == "" {
		return ErrNoUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return ErrAlreadyStarted
	}

	sub, err := s.store.WatchConversations(identity.ID)
	if err != nil {
		return fmt.Errorf("opening conversation subscription: %w", err)
	}

	s.identity = identity
	s.sub = sub
	s.runDone = make(chan struct{})
	s.loading.Store(true)
	s.degraded.Store(false)

	go s.run(sub, identity.ID, s.runDone)

	s.logger.Info("messaging engine started", "user_id", identity.ID)
	return nil
}

// run consumes snapshots until the subscription terminates. Publishing the
// winners never waits on purge completion; losers are purged on their own
// goroutines.
func (s *Service) run(sub *store.ConversationSub, userID string, done chan struct{}) {
	defer close(done)

	for snap := range sub.Updates() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcilePassTimeout)
		result := s.reconcile.Reconcile(ctx, snap, userID)
		cancel()

		s.publish(result.Conversations)
		s.loading.Store(false)

		for _, loser := range result.Losers {
			go func(id string) {
				_ = s.purger.Purge(context.Background(), id)
			}(loser)
		}
	}

	if err := sub.Err(); err != nil {
		// Terminal subscription failure: flag the degraded state rather
		// than staying silently stale.
		s.degraded.Store(true)
		s.loading.Store(false)
		s.logger.Error("conversation subscription terminated", "error", err)
	}
}

// publish replaces the queued list with the newest one.
func (s *Service) publish(views []ConversationView) {
	for {
		select {
		case s.convOut <- views:
			return
		default:
		}
		select {
		case <-s.convOut:
		default:
		}
	}
}

// Conversations returns the live canonical conversation list. Each delivery
// is the full current list, never containing two entries for the same
// participant pair.
func (s *Service) Conversations() <-chan []ConversationView {
	return s.convOut
}

// Messages returns the live ordered message feed of the selected
// conversation.
func (s *Service) Messages() <-chan []*store.Message {
	return s.streams.Updates()
}

// Loading reports whether the first conversation snapshot is still pending
// reconciliation.
func (s *Service) Loading() bool {
	return s.loading.Load()
}

// Degraded reports that the live subscription terminated unexpectedly and
// the published list may be stale.
func (s *Service) Degraded() bool {
	return s.degraded.Load()
}

// SelectConversation switches the message feed to conversationID, cancelling
// any previous feed first. An empty id clears the feed.
func (s *Service) SelectConversation(conversationID string) error {
	return s.streams.Select(conversationID)
}

// SendMessage appends text to the selected conversation as the current
// user. The caller keeps the original text, so a failed send can be
// retried verbatim. An error wrapping ErrSummaryUpdate means the message
// was delivered and only the conversation's summary cache is stale.
func (s *Service) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()

	if identity.ID == "" {
		return ErrNoUser
	}
	selected := s.streams.Selected()
	if selected == "" {
		return ErrNoSelection
	}

	name := identity.Name
	if name == "" {
		name = "You"
	}

	_, err := s.sender.Send(ctx, selected, identity.ID, name, text)
	return err
}

// Stop cancels the subscription and the active message feed. The service
// can be started again afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	sub := s.sub
	done := s.runDone
	s.sub = nil
	s.identity = Identity{}
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
		<-done
	}
	s.streams.Close()
	s.logger.Info("messaging engine stopped")
}

// Close stops the service and releases background resources.
func (s *Service) Close() {
	s.Stop()
	s.purger.Close()
}
