// ABOUTME: Thread-safe TTL cache of recently seen storage event IDs.
// ABOUTME: Used by the NATS relay to stop events bouncing between processes.

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// cleanupInterval is how often expired IDs are swept in the background.
const cleanupInterval = time.Minute

// seenEntry stores when an ID was marked and its position in the insertion list.
type seenEntry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache remembers event IDs for a bounded time and a bounded count.
// The oldest ID is evicted first once maxSize is reached.
type Cache struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	seen    map[string]*seenEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache using the wall clock.
func New(ttl time.Duration, maxSize int) *Cache {
	return NewWithClock(clockwork.NewRealClock(), ttl, maxSize)
}

// NewWithClock creates a cache driven by clock. Tests pass a fake clock
// to expire entries without sleeping.
func NewWithClock(clock clockwork.Clock, ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		clock:   clock,
		seen:    make(map[string]*seenEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Check reports whether id was marked and has not expired.
func (c *Cache) Check(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.seen[id]
	if !ok {
		return false
	}
	return c.clock.Since(entry.markedAt) < c.ttl
}

// CheckAndMark atomically checks id and marks it when unseen.
// Returns true when id was already seen (a duplicate).
func (c *Cache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[id]
	if ok && c.clock.Since(entry.markedAt) < c.ttl {
		return true
	}

	c.markLocked(id)
	return false
}

// Mark records id as seen, refreshing it if already present.
func (c *Cache) Mark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(id)
}

// Len returns the number of IDs currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(id string) {
	now := c.clock.Now()

	if entry, exists := c.seen[id]; exists {
		entry.markedAt = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(id)
	c.seen[id] = &seenEntry{
		markedAt: now,
		element:  elem,
	}
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}

func (c *Cache) cleanup() {
	ticker := c.clock.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops every expired ID.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for id, entry := range c.seen {
		if now.Sub(entry.markedAt) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, id)
		}
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
