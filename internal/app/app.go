// ABOUTME: App composes the participant, settings and history stores for one execution context
// ABOUTME: All collaborators are passed in explicitly so several shells can share one origin

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/2389/spinwheel/internal/history"
	"github.com/2389/spinwheel/internal/notify"
	"github.com/2389/spinwheel/internal/participants"
	"github.com/2389/spinwheel/internal/persisted"
	"github.com/2389/spinwheel/internal/selector"
	"github.com/2389/spinwheel/internal/settings"
	"github.com/2389/spinwheel/internal/store"
	"github.com/2389/spinwheel/internal/theme"
)

// Deps are the collaborators of one shell. Storage is required; the rest
// default to fresh values.
type Deps struct {
	Storage   store.Storage
	Bus       *notify.Broadcaster
	ContextID string
	Clock     clockwork.Clock
	Theme     *theme.Root
	RNG       selector.RNG
	Metrics   *persisted.Metrics
	Logger    *slog.Logger
}

// App is one execution context: a tab in the browser sense.
type App struct {
	contextID    string
	participants *participants.Registry
	settings     *settings.Store
	history      *history.Ledger
	theme        *theme.Root
	selector     *selector.Selector
	logger       *slog.Logger

	mu      sync.Mutex
	release []func()
}

// New builds a shell over deps, loading persisted settings and history.
func New(ctx context.Context, deps Deps) (*App, error) {
	if deps.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if deps.ContextID == "" {
		deps.ContextID = uuid.New().String()
	}
	if deps.Theme == nil {
		deps.Theme = &theme.Root{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("context_id", deps.ContextID)

	cellDeps := persisted.Deps{
		Storage:   deps.Storage,
		Bus:       deps.Bus,
		ContextID: deps.ContextID,
		Logger:    logger,
		Metrics:   deps.Metrics,
	}

	a := &App{
		contextID:    deps.ContextID,
		participants: participants.NewRegistry(logger),
		settings:     settings.New(ctx, cellDeps, deps.Theme),
		history:      history.New(ctx, cellDeps, deps.Clock),
		theme:        deps.Theme,
		selector:     selector.New(deps.RNG),
		logger:       logger.With("component", "app"),
	}
	a.logger.Debug("shell created", "origin", deps.Storage.Origin())
	return a, nil
}

// ContextID returns the id this shell tags its writes with.
func (a *App) ContextID() string { return a.contextID }

// Participants returns the shell's participant registry.
func (a *App) Participants() *participants.Registry { return a.participants }

// Settings returns the shell's settings store.
func (a *App) Settings() *settings.Store { return a.settings }

// History returns the shell's history ledger.
func (a *App) History() *history.Ledger { return a.history }

// Theme returns the shell's theme marker.
func (a *App) Theme() *theme.Root { return a.theme }

// Spin picks a winner from the current participants and records it.
// With excludePreviousWinners set, past winners are not eligible.
func (a *App) Spin(ctx context.Context) (history.Entry, error) {
	candidates := a.participants.List()
	exclude := a.settings.Settings().ExcludePreviousWinners

	winner, err := a.selector.Pick(candidates, a.history.PreviousWinners(), exclude)
	if err != nil {
		return history.Entry{}, fmt.Errorf("picking winner: %w", err)
	}

	entry := a.history.AddToHistory(ctx, winner, candidates)
	a.logger.Info("spin complete",
		"winner", winner.Name,
		"participants", len(candidates),
		"exclude_previous", exclude)
	return entry, nil
}

// Start activates cross-context sync for the persisted stores. The returned
// stop func releases both subscriptions and is safe to call more than once.
func (a *App) Start(ctx context.Context) (stop func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.release = append(a.release,
		a.settings.Activate(ctx),
		a.history.Activate(ctx),
	)
	return sync.OnceFunc(a.stop)
}

func (a *App) stop() {
	a.mu.Lock()
	release := a.release
	a.release = nil
	a.mu.Unlock()

	for _, r := range release {
		r()
	}
}

// Close stops sync. The App does not own Storage or Bus.
func (a *App) Close() error {
	a.stop()
	return nil
}
