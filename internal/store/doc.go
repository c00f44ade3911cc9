// Package store provides the durable per-origin key/value storage area.
//
// # Architecture
//
// Storage is the single interface every persisted cell writes through:
//
//   - GetItem / SetItem / RemoveItem: string values under string keys
//   - Keys: list stored keys in ascending order
//   - Origin: the origin the area is scoped to
//
// Two implementations are provided:
//
//   - SQLiteStore: one row per (origin, key) in a SQLite file
//   - MemoryStore: map-backed, with quota and fault injection for tests
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode so several processes can share one
// origin file:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Default: ~/.local/share/spinwheel/spinwheel.db
//   - Testing: a file under t.TempDir() or :memory:
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: key has no stored value
//   - ErrQuotaExceeded: the write would exceed the area's capacity
//   - ErrUnavailable: the area cannot be reached at all (for example after Close)
//
// All methods accept context.Context for cancellation support.
package store
