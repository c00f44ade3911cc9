// Package settings stores the wheel's configuration.
//
// Settings persist under a single storage key and sync across contexts.
// Toggling dark mode also flips the shell's theme marker.
package settings
