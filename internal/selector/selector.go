// ABOUTME: Picks a random winner from the current participants
// ABOUTME: Optionally skips anyone who has already won

package selector

import (
	"errors"
	"math/rand/v2"

	"github.com/2389/spinwheel/internal/participants"
)

// ErrNoCandidates is returned when no participant is eligible to win.
var ErrNoCandidates = errors.New("no eligible participants")

// RNG abstracts random number generation for deterministic testing.
type RNG interface {
	// IntN returns a non-negative random int in [0, n).
	IntN(n int) int
}

type globalRNG struct{}

func (globalRNG) IntN(n int) int { return rand.IntN(n) }

// Selector chooses winners.
type Selector struct {
	rng RNG
}

// New returns a Selector drawing from rng, or from math/rand/v2 when rng is nil.
func New(rng RNG) *Selector {
	if rng == nil {
		rng = globalRNG{}
	}
	return &Selector{rng: rng}
}

// Eligible returns the candidates still able to win. With exclude set,
// anyone whose id appears in previousWinners is dropped.
func Eligible(candidates, previousWinners []participants.Participant, exclude bool) []participants.Participant {
	if !exclude || len(previousWinners) == 0 {
		return participants.Clone(candidates)
	}
	won := make(map[string]struct{}, len(previousWinners))
	for _, w := range previousWinners {
		won[w.ID] = struct{}{}
	}
	out := make([]participants.Participant, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := won[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Pick returns one eligible participant chosen uniformly at random.
func (s *Selector) Pick(candidates, previousWinners []participants.Participant, exclude bool) (participants.Participant, error) {
	pool := Eligible(candidates, previousWinners, exclude)
	if len(pool) == 0 {
		return participants.Participant{}, ErrNoCandidates
	}
	return pool[s.rng.IntN(len(pool))], nil
}
