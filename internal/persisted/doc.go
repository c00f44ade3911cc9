// Package persisted mirrors typed values into a store.Storage slot.
//
// A Cell reads its slot once at construction, writes every change back as
// JSON, and while activated replaces its value with writes other execution
// contexts make to the same key. Storage problems never surface as errors;
// they are logged and the in-memory value stays authoritative.
package persisted
