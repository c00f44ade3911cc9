// Package notify carries storage change events between execution contexts.
//
// A Broadcaster fans each StorageEvent out to every subscriber of the key
// except those belonging to the context that made the write. A NATSRelay
// extends the same bus across processes that share a storage origin.
package notify
