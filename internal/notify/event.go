// ABOUTME: StorageEvent describes one change to a key in a shared storage area
// ABOUTME: Carries the writer's context id so other contexts can tell foreign writes apart

package notify

import (
	"time"

	"github.com/google/uuid"
)

// AllKeys subscribes to events for every key.
const AllKeys = "*"

// StorageEvent is emitted after a key in a storage area changes.
// NewValue is nil when the key was removed.
type StorageEvent struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	Key       string    `json:"key"`
	OldValue  *string   `json:"oldValue,omitempty"`
	NewValue  *string   `json:"newValue,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStorageEvent builds an event with a fresh ID for a write made by source.
func NewStorageEvent(origin, key, source string, oldValue, newValue *string) StorageEvent {
	return StorageEvent{
		ID:        uuid.New().String(),
		Origin:    origin,
		Key:       key,
		OldValue:  oldValue,
		NewValue:  newValue,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// IsRemoval reports whether the event records a deleted key.
func (e StorageEvent) IsRemoval() bool {
	return e.NewValue == nil
}
