// ABOUTME: Cell[T] keeps one JSON value mirrored in a storage slot
// ABOUTME: Falls back to a default on bad reads and applies overwrites made by other contexts

package persisted

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/spinwheel/internal/notify"
	"github.com/2389/spinwheel/internal/store"
)

// Deps are the collaborators a Cell needs. Bus may be nil, in which case the
// cell neither publishes nor observes storage events.
type Deps struct {
	Storage   store.Storage
	Bus       *notify.Broadcaster
	ContextID string
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Option configures a Cell.
type Option[T any] func(*Cell[T])

// WithClone sets the copy function used whenever a value leaves or enters the
// cell. Types holding slices or maps need one so callers cannot alias state.
func WithClone[T any](clone func(T) T) Option[T] {
	return func(c *Cell[T]) {
		c.clone = clone
	}
}

// Cell is a typed value persisted under a single storage key.
type Cell[T any] struct {
	key       string
	storage   store.Storage
	bus       *notify.Broadcaster
	contextID string
	clone     func(T) T
	logger    *slog.Logger
	metrics   *Metrics

	mu        sync.RWMutex
	value     T
	raw       *string // last serialized form written or read
	observers []func(T)

	lifeMu sync.Mutex
	active *activation
}

type activation struct {
	release func()
}

// New reads key from storage and returns a cell holding its decoded value.
// A missing, unreadable or malformed slot yields def and a logged warning.
func New[T any](ctx context.Context, deps Deps, key string, def T, opts ...Option[T]) *Cell[T] {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cell[T]{
		key:       key,
		storage:   deps.Storage,
		bus:       deps.Bus,
		contextID: deps.ContextID,
		clone:     func(v T) T { return v },
		logger:    logger.With("component", "persisted", "key", key),
		metrics:   deps.Metrics,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.value = c.clone(def)
	c.load(ctx)
	return c
}

func (c *Cell[T]) load(ctx context.Context) {
	raw, err := c.storage.GetItem(ctx, c.key)
	if errors.Is(err, store.ErrNotFound) {
		c.metrics.record(c.key, opRead, resultFallback)
		return
	}
	if err != nil {
		c.logger.Warn("reading storage slot, using default", "error", err)
		c.metrics.record(c.key, opRead, resultFallback)
		return
	}

	v, err := decode[T](raw)
	if err != nil {
		c.logger.Warn("decoding storage slot, using default", "error", err)
		c.metrics.record(c.key, opRead, resultFallback)
		return
	}
	c.value = v
	c.raw = &raw
	c.metrics.record(c.key, opRead, resultOK)
}

var errNullValue = errors.New("stored value is null")

func decode[T any](raw string) (T, error) {
	var v T
	if strings.TrimSpace(raw) == "null" {
		return v, errNullValue
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, err
	}
	return v, nil
}


// Value returns a copy of the current value.
func (c *Cell[T]) Value() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clone(c.value)
}

// Set replaces the value and writes it back to storage.
func (c *Cell[T]) Set(ctx context.Context, v T) {
	c.Update(ctx, func(T) T { return v })
}

// Update replaces the value with fn(current) and writes it back to storage.
// fn receives a copy it may modify. The in-memory value changes even when the
// write fails.
func (c *Cell[T]) Update(ctx context.Context, fn func(prev T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = c.clone(fn(c.clone(c.value)))
	c.writeLocked(ctx)
}

// writeLocked must be called with mu held.
func (c *Cell[T]) writeLocked(ctx context.Context) {
	data, err := json.Marshal(c.value)
	if err != nil {
		c.logger.Warn("encoding value, storage not updated", "error", err)
		c.metrics.record(c.key, opWrite, resultError)
		return
	}
	raw := string(data)

	if err := c.storage.SetItem(ctx, c.key, raw); err != nil {
		c.logger.Warn("writing storage slot, keeping in-memory value", "error", err)
		c.metrics.record(c.key, opWrite, resultError)
		return
	}
	c.metrics.record(c.key, opWrite, resultOK)

	old := c.raw
	c.raw = &raw
	if c.bus != nil {
		c.bus.Publish(notify.NewStorageEvent(c.storage.Origin(), c.key, c.contextID, old, &raw))
	}
}

// OnSync registers fn to run after an external write replaces the value.
// fn runs on the sync goroutine and must not call the release func.
func (c *Cell[T]) OnSync(fn func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Activate starts applying writes made to the key by other contexts.
// It subscribes once; calling it again while active returns the same
// release func. release, or cancelling ctx, unsubscribes exactly once.
func (c *Cell[T]) Activate(ctx context.Context) (release func()) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.active != nil {
		return c.active.release
	}
	if c.bus == nil {
		return func() {}
	}

	subCtx, cancel := context.WithCancel(ctx)
	events, _ := c.bus.Subscribe(subCtx, c.key, c.contextID)
	done := make(chan struct{})
	act := &activation{}
	act.release = sync.OnceFunc(func() {
		cancel()
		<-done
	})
	c.active = act

	go func() {
		defer close(done)
		for ev := range events {
			c.apply(ev)
		}
		c.lifeMu.Lock()
		if c.active == act {
			c.active = nil
		}
		c.lifeMu.Unlock()
		c.logger.Debug("storage sync stopped")
	}()

	c.logger.Debug("storage sync started", "context_id", c.contextID)
	return act.release
}

// Active reports whether the cell is currently observing external writes.
func (c *Cell[T]) Active() bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.active != nil
}

func (c *Cell[T]) apply(ev notify.StorageEvent) {
	if ev.Key != c.key || ev.Source == c.contextID {
		return
	}
	if ev.IsRemoval() || *ev.NewValue == "" {
		c.metrics.record(c.key, opSync, resultIgnored)
		return
	}

	v, err := decode[T](*ev.NewValue)
	if err != nil {
		c.logger.Warn("ignoring undecodable external write", "error", err, "source", ev.Source)
		c.metrics.record(c.key, opSync, resultError)
		return
	}

	c.mu.Lock()
	c.value = v
	raw := *ev.NewValue
	c.raw = &raw
	observers := make([]func(T), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	c.metrics.record(c.key, opSync, resultOK)
	c.logger.Debug("applied external write", "source", ev.Source, "event_id", ev.ID)

	for _, fn := range observers {
		fn(c.clone(v))
	}
}
