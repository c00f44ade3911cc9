// ABOUTME: Storage interface and errors for spinwheel persistence
// ABOUTME: Defines the per-origin key/value storage area shared by every shell

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no stored value
var ErrNotFound = errors.New("not found")

// ErrQuotaExceeded is returned when a write would exceed the storage area's capacity
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// ErrUnavailable is returned when the storage area cannot be accessed at all
var ErrUnavailable = errors.New("storage unavailable")

// Storage is a durable key/value area scoped to a single origin.
// Values are opaque strings; callers serialize their own documents.
type Storage interface {
	// GetItem returns the stored value or ErrNotFound.
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem creates or replaces the value stored under key.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes the value stored under key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Keys lists the stored keys in ascending order.
	Keys(ctx context.Context) ([]string, error)

	// Origin returns the origin this area is scoped to.
	Origin() string

	// Close releases any resources held by the store
	Close() error
}
