// Package dedupe remembers recently seen event IDs within a time window
// so relayed storage events are applied and forwarded at most once.
package dedupe
