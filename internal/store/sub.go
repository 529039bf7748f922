// ABOUTME: Subscription handles returned by the watch hub
// ABOUTME: Queue snapshots in revision order and honor cancellation for all later events

package store

import (
	"sync"

	"github.com/google/uuid"
)

// ConversationSub is a live subscription over the conversations of one
// participant. Snapshots arrive on Updates() in revision order. The channel
// is closed when the subscription is cancelled or fails; Err reports the
// terminal error, nil after a plain Cancel.
type ConversationSub struct {
	id     string
	userID string
	hub    *hub

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []Snapshot
	cancelled bool
	err       error

	out  chan Snapshot
	done chan struct{}
}

func newConversationSub(h *hub, userID string) *ConversationSub {
	s := &ConversationSub{
		id:     uuid.New().String(),
		userID: userID,
		hub:    h,
		out:    make(chan Snapshot),
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.drain()
	return s
}

// Updates returns the snapshot stream. Closed on cancellation or failure.
func (s *ConversationSub) Updates() <-chan Snapshot {
	return s.out
}

// Err returns the terminal stream error, if any. Valid once Updates() is
// closed.
func (s *ConversationSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops the subscription. No snapshot is delivered after Cancel
// returns; undelivered queued snapshots are discarded. Safe to call more
// than once.
func (s *ConversationSub) Cancel() {
	s.hub.removeConversationSub(s.id)
	s.stop(nil)
}

func (s *ConversationSub) fail(err error) {
	s.stop(err)
}

func (s *ConversationSub) stop(err error) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.err = err
	close(s.done)
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *ConversationSub) enqueue(snap Snapshot) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, snap)
	s.cond.Signal()
	s.mu.Unlock()
}

// drain delivers queued snapshots one at a time on an unbuffered channel so
// that cancellation can cut off delivery immediately.
func (s *ConversationSub) drain() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.cancelled {
			s.cond.Wait()
		}
		if s.cancelled {
			s.mu.Unlock()
			return
		}
		snap := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- snap:
		case <-s.done:
			return
		}
	}
}

// MessageSub is a live subscription over one conversation's ordered message
// set. Every change re-delivers the full set, ascending by store timestamp.
type MessageSub struct {
	id             string
	conversationID string
	hub            *hub

	mu        sync.Mutex
	cond      *sync.Cond
	pending   [][]*Message
	cancelled bool
	err       error

	out  chan []*Message
	done chan struct{}
}

func newMessageSub(h *hub, conversationID string) *MessageSub {
	s := &MessageSub{
		id:             uuid.New().String(),
		conversationID: conversationID,
		hub:            h,
		out:            make(chan []*Message),
		done:           make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.drain()
	return s
}

// Updates returns the message-set stream. Closed on cancellation or failure.
func (s *MessageSub) Updates() <-chan []*Message {
	return s.out
}

// Err returns the terminal stream error, if any.
func (s *MessageSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops the subscription; no delivery happens after it returns.
func (s *MessageSub) Cancel() {
	s.hub.removeMessageSub(s.id)
	s.stop(nil)
}

func (s *MessageSub) fail(err error) {
	s.stop(err)
}

func (s *MessageSub) stop(err error) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.err = err
	close(s.done)
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *MessageSub) enqueue(msgs []*Message) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, msgs)
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *MessageSub) drain() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.cancelled {
			s.cond.Wait()
		}
		if s.cancelled {
			s.mu.Unlock()
			return
		}
		msgs := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- msgs:
		case <-s.done:
			return
		}
	}
}
