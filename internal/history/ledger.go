// ABOUTME: Persisted newest-first log of past spins
// ABOUTME: Each entry snapshots the winner and every participant at spin time

package history

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/2389/spinwheel/internal/participants"
	"github.com/2389/spinwheel/internal/persisted"
)

// StorageKey is the storage slot holding the history list.
const StorageKey = "wheelOfFortune_history"

// Entry is one recorded selection.
type Entry struct {
	ID           string                     `json:"id"`
	Winner       participants.Participant   `json:"winner"`
	Participants []participants.Participant `json:"participants"`
	Timestamp    int64                      `json:"timestamp"` // ms since epoch
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return []Entry{}
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.Participants = participants.Clone(e.Participants)
		out[i] = e
	}
	return out
}

// Ledger owns the selection history for one shell.
type Ledger struct {
	cell   *persisted.Cell[[]Entry]
	clock  clockwork.Clock
	logger *slog.Logger
}

// New loads the history from storage. A nil clock uses the wall clock.
func New(ctx context.Context, deps persisted.Deps, clock clockwork.Clock) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		cell:   persisted.New(ctx, deps, StorageKey, []Entry{}, persisted.WithClone(cloneEntries)),
		clock:  clock,
		logger: logger.With("component", "history"),
	}
}

// AddToHistory records winner chosen from ps and returns the new entry.
// ps is copied so later changes to the caller's slice do not leak in.
func (l *Ledger) AddToHistory(ctx context.Context, winner participants.Participant, ps []participants.Participant) Entry {
	entry := Entry{
		ID:           uuid.New().String(),
		Winner:       winner,
		Participants: participants.Clone(ps),
		Timestamp:    l.clock.Now().UnixMilli(),
	}
	if entry.Participants == nil {
		entry.Participants = []participants.Participant{}
	}

	l.cell.Update(ctx, func(prev []Entry) []Entry {
		return append([]Entry{entry}, prev...)
	})
	l.logger.Debug("selection recorded", "id", entry.ID, "winner", entry.Winner.Name)

	entry.Participants = participants.Clone(entry.Participants)
	return entry
}

// RemoveFromHistory deletes the entry with id, reporting whether one existed.
func (l *Ledger) RemoveFromHistory(ctx context.Context, id string) bool {
	removed := false
	l.cell.Update(ctx, func(prev []Entry) []Entry {
		before := len(prev)
		next := slices.DeleteFunc(prev, func(e Entry) bool { return e.ID == id })
		removed = len(next) != before
		return next
	})
	return removed
}

// ClearHistory empties the history and persists an empty list.
func (l *Ledger) ClearHistory(ctx context.Context) {
	l.cell.Set(ctx, []Entry{})
}

// History returns a copy of all entries, newest first.
func (l *Ledger) History() []Entry {
	return l.cell.Value()
}

// PreviousWinners returns the winner of every entry, newest first.
func (l *Ledger) PreviousWinners() []participants.Participant {
	entries := l.cell.Value()
	winners := make([]participants.Participant, len(entries))
	for i, e := range entries {
		winners[i] = e.Winner
	}
	return winners
}

// Activate starts applying history written by other contexts.
func (l *Ledger) Activate(ctx context.Context) (release func()) {
	return l.cell.Activate(ctx)
}

// OnSync registers fn to run after another context replaces the history.
func (l *Ledger) OnSync(fn func([]Entry)) {
	l.cell.OnSync(fn)
}
