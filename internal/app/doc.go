// Package app wires the stores of one execution context together.
//
// Each App is the Go counterpart of a browser tab: it owns an in-memory
// participant registry, and shares settings and history with every other
// App on the same storage origin.
package app
