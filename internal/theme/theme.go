// ABOUTME: Root holds the process-wide dark theme marker for a shell
// ABOUTME: Settings flips it; the HTTP layer reports it as a class name

package theme

import "sync"

// DarkClass is the class name applied to the document root in dark mode.
const DarkClass = "dark"

// Root is the top-level theme marker. The zero value is light.
type Root struct {
	mu   sync.RWMutex
	dark bool
}

// ApplyTheme sets the marker to dark or light.
func (r *Root) ApplyTheme(dark bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dark = dark
}

// Dark reports whether the dark marker is set.
func (r *Root) Dark() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dark
}

// ClassName returns DarkClass when dark, or an empty string.
func (r *Root) ClassName() string {
	if r.Dark() {
		return DarkClass
	}
	return ""
}
