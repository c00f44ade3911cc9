// ABOUTME: In-memory fan-out broadcaster for storage change notifications
// ABOUTME: Delivers each StorageEvent to every other execution context watching the key

package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

type subscriber struct {
	contextID string
	ch        chan StorageEvent
}

// Broadcaster provides in-memory pub/sub for StorageEvents.
// Subscribers register for a key (or AllKeys) together with the id of the
// execution context they belong to. Events published by a context are never
// delivered back to subscribers of that same context.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscriber // key -> subID -> subscriber
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]*subscriber),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on key. contextID identifies
// the subscriber's execution context; an empty contextID receives every event.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, key, contextID string) (<-chan StorageEvent, string) {
	subID := uuid.New().String()
	sub := &subscriber{
		contextID: contextID,
		ch:        make(chan StorageEvent, subscriberBufferSize),
	}

	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]*subscriber)
	}
	b.subscribers[key][subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"key", key,
		"context_id", contextID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(key, subID)
	}()

	return sub.ch, subID
}

// Publish sends an event to all subscribers of event.Key and of AllKeys,
// skipping subscribers that belong to event.Source.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(event StorageEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliverLocked(b.subscribers[event.Key], event)
	if event.Key != AllKeys {
		b.deliverLocked(b.subscribers[AllKeys], event)
	}
}

// deliverLocked must be called with mu held for reading. Holding the lock
// keeps Unsubscribe and Close from closing a channel mid-send.
func (b *Broadcaster) deliverLocked(subs map[string]*subscriber, event StorageEvent) {
	for id, sub := range subs {
		if sub.contextID != "" && sub.contextID == event.Source {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"key", event.Key,
				"sub_id", id,
				"event_id", event.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(key, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[key]
	if !ok {
		return
	}

	sub, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(sub.ch)

	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed",
		"key", key,
		"sub_id", subID)
}

// SubscriberCount returns the number of active subscriptions for key.
func (b *Broadcaster) SubscriberCount(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[key])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for subID, sub := range subs {
			close(sub.ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}

	b.logger.Debug("broadcaster closed")
}
