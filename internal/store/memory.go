// ABOUTME: In-memory Storage implementation for tests and ephemeral shells
// ABOUTME: Supports a byte quota and fault injection to exercise degraded paths

package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Storage implementation.
type MemoryStore struct {
	mu     sync.RWMutex
	origin string
	items  map[string]string
	quota  int // max total bytes of keys+values, 0 means unlimited
	fault  error
}

// NewMemoryStore creates a new MemoryStore scoped to origin.
func NewMemoryStore(origin string) *MemoryStore {
	if origin == "" {
		origin = DefaultOrigin
	}
	return &MemoryStore{
		origin: origin,
		items:  make(map[string]string),
	}
}

// SetQuota limits the total number of bytes the store accepts.
// Writes that would exceed it fail with ErrQuotaExceeded.
func (m *MemoryStore) SetQuota(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quota = bytes
}

// SetFault makes every subsequent operation fail with err. Pass nil to clear.
func (m *MemoryStore) SetFault(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = err
}

// GetItem retrieves a value by key.
func (m *MemoryStore) GetItem(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.fault != nil {
		return "", m.fault
	}
	v, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// SetItem stores a value, enforcing the quota if one is set.
func (m *MemoryStore) SetItem(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fault != nil {
		return m.fault
	}
	if m.quota > 0 {
		used := 0
		for k, v := range m.items {
			if k == key {
				continue
			}
			used += len(k) + len(v)
		}
		if used+len(key)+len(value) > m.quota {
			return ErrQuotaExceeded
		}
	}
	m.items[key] = value
	return nil
}

// RemoveItem deletes a value by key.
func (m *MemoryStore) RemoveItem(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fault != nil {
		return m.fault
	}
	delete(m.items, key)
	return nil
}

// Keys lists stored keys in ascending order.
func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.fault != nil {
		return nil, m.fault
	}
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Origin returns the origin this store is scoped to.
func (m *MemoryStore) Origin() string {
	return m.origin
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

// Compile-time interface checks
var (
	_ Storage = (*MemoryStore)(nil)
	_ Storage = (*SQLiteStore)(nil)
)
