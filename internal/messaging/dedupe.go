// ABOUTME: TTL-based suppression cache for purge scheduling
// ABOUTME: Stops racing reconciliation passes from re-queuing the same loser within a short window

package messaging

import (
	"container/list"
	"sync"
	"time"
)

// suppressEntry stores the timestamp and list element for a cached id.
type suppressEntry struct {
	timestamp time.Time
	element   *list.Element
}

// suppressCache is a thread-safe, TTL-based, size-limited set of
// conversation ids whose purge was recently scheduled. Entries expire, so a
// purge that failed is attempted again by a later reconciliation pass.
// Insertion order is kept in a doubly-linked list for O(1) eviction.
type suppressCache struct {
	mu      sync.Mutex
	seen    map[string]*suppressEntry
	order   *list.List // ids in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// newSuppressCache creates a cache with the given TTL and maximum size.
// A background goroutine periodically sweeps expired entries.
func newSuppressCache(ttl time.Duration, maxSize int) *suppressCache {
	c := &suppressCache{
		seen:    make(map[string]*suppressEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// checkAndMark atomically reports whether id was scheduled within the TTL
// and marks it if not. Returns true when the purge should be suppressed.
func (c *suppressCache) checkAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[id]; ok && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	c.markLocked(id)
	return false
}

// forget drops id so the next pass may retry immediately. Called after a
// failed purge.
func (c *suppressCache) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[id]; ok {
		c.order.Remove(entry.element)
		delete(c.seen, id)
	}
}

func (c *suppressCache) markLocked(id string) {
	if entry, ok := c.seen[id]; ok {
		entry.timestamp = time.Now()
		c.order.MoveToBack(entry.element)
		return
	}

	for len(c.seen) >= c.maxSize {
		front := c.order.Front()
		if front == nil {
			break
		}
		oldest := front.Value.(string)
		c.order.Remove(front)
		delete(c.seen, oldest)
	}

	c.seen[id] = &suppressEntry{
		timestamp: time.Now(),
		element:   c.order.PushBack(id),
	}
}

// sweep removes expired entries every TTL interval.
func (c *suppressCache) sweep() {
	interval := c.ttl
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			for e := c.order.Front(); e != nil; {
				next := e.Next()
				id := e.Value.(string)
				if entry, ok := c.seen[id]; ok && time.Since(entry.timestamp) >= c.ttl {
					c.order.Remove(e)
					delete(c.seen, id)
				}
				e = next
			}
			c.mu.Unlock()
		}
	}
}

// close stops the sweeper goroutine.
func (c *suppressCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}
