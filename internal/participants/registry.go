// ABOUTME: In-memory participant list for one shell, reset on restart
// ABOUTME: Assigns display colors round-robin from a fixed ten-color palette

package participants

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Participant is one entrant on the wheel.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Palette is the round-robin color sequence for new participants.
var Palette = [...]string{
	"#FF6384",
	"#36A2EB",
	"#FFCE56",
	"#4BC0C0",
	"#9966FF",
	"#FF9F40",
	"#8AC73E",
	"#F37FB8",
	"#00B3B3",
	"#E67E22",
}

// Registry holds the ordered participant list. It is not persisted.
type Registry struct {
	mu     sync.RWMutex
	list   []Participant
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		list:   []Participant{},
		logger: logger.With("component", "participants"),
	}
}

// Add appends a participant named strings.TrimSpace(name).
// Blank names are ignored and the zero Participant is returned with ok false.
func (r *Registry) Add(name string) (p Participant, ok bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Participant{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p = Participant{
		ID:    uuid.New().String(),
		Name:  name,
		Color: colorAt(len(r.list)),
	}
	r.list = append(r.list, p)
	r.logger.Debug("participant added", "id", p.ID, "count", len(r.list))
	return p, true
}

// AddMany appends one participant per non-blank name, in order.
// Every participant added by one call gets the color for the registry length
// at the start of the call.
func (r *Registry) AddMany(names []string) []Participant {
	valid := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			valid = append(valid, n)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	color := colorAt(len(r.list))
	added := make([]Participant, 0, len(valid))
	for _, n := range valid {
		added = append(added, Participant{
			ID:    uuid.New().String(),
			Name:  n,
			Color: color,
		})
	}
	r.list = append(r.list, added...)
	r.logger.Debug("participants added", "added", len(added), "count", len(r.list))
	return slices.Clone(added)
}

// Remove deletes the participant with id. Unknown ids are ignored.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.list, func(p Participant) bool { return p.ID == id })
	if i < 0 {
		return false
	}
	r.list = slices.Delete(r.list, i, i+1)
	return true
}

// Clear removes every participant.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = []Participant{}
}

// ReplaceAll swaps the list for a copy of list, without validation.
func (r *Registry) ReplaceAll(list []Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = Clone(list)
	if r.list == nil {
		r.list = []Participant{}
	}
}

// List returns a copy of the participants in order.
func (r *Registry) List() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.list)
}

// Len returns the number of participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

// AssignColor returns the palette color the next single Add would use.
func (r *Registry) AssignColor() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return colorAt(len(r.list))
}

func colorAt(n int) string {
	return Palette[n%len(Palette)]
}

// Clone copies a participant slice. Participant holds only strings, so a
// shallow slice copy is a deep copy.
func Clone(list []Participant) []Participant {
	return slices.Clone(list)
}
