// ABOUTME: Message stream controller holding at most one active message feed
// ABOUTME: Selecting a new conversation cancels the old feed before opening the new one

package messaging

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tandemlearn/messaging/internal/store"
)

// StreamController manages the single live message feed for whichever
// conversation is currently selected. Updates() always reflects the most
// recent selection: switching selections first cancels the old feed and
// discards anything it had queued, so no stale message set is observed after
// Select returns.
type StreamController struct {
	store  store.Store
	logger *slog.Logger
	out    chan []*store.Message

	mu          sync.Mutex
	current     *store.MessageSub
	currentID   string
	forwardDone chan struct{}
}

// NewStreamController creates a controller with no active feed.
// Pass nil logger for default.
func NewStreamController(st store.Store, logger *slog.Logger) *StreamController {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamController{
		store:  st,
		logger: logger.With("component", "stream"),
		out:    make(chan []*store.Message, 1),
	}
}

// Updates returns the ordered message sets of the selected conversation.
// The channel carries the latest full set; clearing the selection delivers
// an empty set.
func (c *StreamController) Updates() <-chan []*store.Message {
	return c.out
}

// Selected returns the currently selected conversation id, or "".
func (c *StreamController) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

// Select switches the live feed to conversationID. The previous
// subscription is cancelled first; an empty id clears to the empty state
// with no active subscription.
func (c *StreamController) Select(conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.currentID = conversationID

	if conversationID == "" {
		c.deliver(nil)
		return nil
	}

	sub, err := c.store.WatchMessages(conversationID)
	if err != nil {
		c.currentID = ""
		return fmt.Errorf("opening message feed: %w", err)
	}
	c.current = sub
	done := make(chan struct{})
	c.forwardDone = done
	go c.forward(sub, done)

	c.logger.Debug("message feed selected", "conversation_id", conversationID)
	return nil
}

// Close cancels any active feed.
func (c *StreamController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.currentID = ""
}

// stopLocked cancels the current subscription, waits for its forwarder to
// exit, and drops any set it already queued for delivery.
func (c *StreamController) stopLocked() {
	if c.current == nil {
		return
	}
	c.current.Cancel()
	<-c.forwardDone
	c.current = nil
	c.forwardDone = nil

	select {
	case <-c.out:
	default:
	}
}

func (c *StreamController) forward(sub *store.MessageSub, done chan struct{}) {
	defer close(done)
	for msgs := range sub.Updates() {
		c.deliver(msgs)
	}
	if err := sub.Err(); err != nil {
		c.logger.Error("message feed terminated", "error", err)
	}
}

// deliver replaces whatever set is queued with the newest one, so a slow
// consumer only ever sees the latest state.
func (c *StreamController) deliver(msgs []*store.Message) {
	if msgs == nil {
		msgs = []*store.Message{}
	}
	for {
		select {
		case c.out <- msgs:
			return
		default:
		}
		select {
		case <-c.out:
		default:
		}
	}
}
