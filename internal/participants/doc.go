// Package participants keeps the list of names the wheel selects from.
//
// The registry lives in memory only and resets when the shell restarts.
package participants
