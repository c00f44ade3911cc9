// ABOUTME: Persisted application settings for the wheel
// ABOUTME: Each mutation replaces the whole settings value in storage

package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/spinwheel/internal/persisted"
)

// StorageKey is the storage slot holding AppSettings.
const StorageKey = "wheelOfFortune_settings"

// DefaultAnimationDuration is the spin animation length in milliseconds.
const DefaultAnimationDuration = 5000

// SelectionType is how the winner is visualized.
type SelectionType string

const (
	Wheel     SelectionType = "wheel"
	Dartboard SelectionType = "dartboard"
)

// ErrInvalidSelectionType is returned by ParseSelectionType.
var ErrInvalidSelectionType = errors.New("invalid selection type")

// ParseSelectionType validates s as a SelectionType.
func ParseSelectionType(s string) (SelectionType, error) {
	switch t := SelectionType(s); t {
	case Wheel, Dartboard:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSelectionType, s)
}

// AppSettings is the persisted settings value.
type AppSettings struct {
	SelectionType          SelectionType `json:"selectionType"`
	ExcludePreviousWinners bool          `json:"excludePreviousWinners"`
	AnimationDuration      int           `json:"animationDuration"`
	IsDarkMode             bool          `json:"isDarkMode"`
}

// Defaults returns the settings used when nothing valid is stored.
func Defaults() AppSettings {
	return AppSettings{
		SelectionType:          Wheel,
		ExcludePreviousWinners: false,
		AnimationDuration:      DefaultAnimationDuration,
		IsDarkMode:             false,
	}
}

// ThemeApplier flips the global dark theme marker.
type ThemeApplier interface {
	ApplyTheme(dark bool)
}

// Store owns AppSettings for one shell.
type Store struct {
	cell  *persisted.Cell[AppSettings]
	theme ThemeApplier
}

// New loads settings from storage and applies the stored theme to th.
// th may be nil.
func New(ctx context.Context, deps persisted.Deps, th ThemeApplier) *Store {
	s := &Store{
		cell:  persisted.New(ctx, deps, StorageKey, Defaults()),
		theme: th,
	}
	s.applyTheme(s.cell.Value().IsDarkMode)
	return s
}

func (s *Store) applyTheme(dark bool) {
	if s.theme != nil {
		s.theme.ApplyTheme(dark)
	}
}

// Settings returns the current settings.
func (s *Store) Settings() AppSettings {
	return s.cell.Value()
}

// ChangeSelectionType stores t. t is not validated here.
func (s *Store) ChangeSelectionType(ctx context.Context, t SelectionType) {
	s.cell.Update(ctx, func(prev AppSettings) AppSettings {
		prev.SelectionType = t
		return prev
	})
}

// ToggleExcludePreviousWinners flips ExcludePreviousWinners.
func (s *Store) ToggleExcludePreviousWinners(ctx context.Context) {
	s.cell.Update(ctx, func(prev AppSettings) AppSettings {
		prev.ExcludePreviousWinners = !prev.ExcludePreviousWinners
		return prev
	})
}

// SetAnimationDuration stores ms. Callers must pass a positive value.
func (s *Store) SetAnimationDuration(ctx context.Context, ms int) {
	s.cell.Update(ctx, func(prev AppSettings) AppSettings {
		prev.AnimationDuration = ms
		return prev
	})
}

// ToggleDarkMode flips IsDarkMode, applying the new theme before the
// value is persisted.
func (s *Store) ToggleDarkMode(ctx context.Context) {
	s.cell.Update(ctx, func(prev AppSettings) AppSettings {
		prev.IsDarkMode = !prev.IsDarkMode
		s.applyTheme(prev.IsDarkMode)
		return prev
	})
}

// Activate starts applying settings written by other contexts.
func (s *Store) Activate(ctx context.Context) (release func()) {
	return s.cell.Activate(ctx)
}

// OnSync registers fn to run after another context replaces the settings.
func (s *Store) OnSync(fn func(AppSettings)) {
	s.cell.OnSync(fn)
}
