// Package draw computes gift-exchange assignments.
//
// An assignment is a derangement of the givers: every giver receives exactly
// one other participant and nobody is assigned to themselves.
package draw

import (
	"errors"
	"math/rand/v2"
	"sync"
)

const DefaultMaxAttempts = 100

var (
	ErrTooFewParticipants = errors.New("at least two participants are required")
	ErrDrawImpossible     = errors.New("no valid assignment found within the attempt limit")
)

type Engine struct {
	maxAttempts int

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Engine)

// WithMaxAttempts caps the number of shuffles tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRand sets the random source, mainly for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		e.rnd = r
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) shuffle(n int, swap func(i, j int)) {
	if e.rnd != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.rnd.Shuffle(n, swap)
		return
	}
	rand.Shuffle(n, swap)
}

// Derange returns receivers such that receivers[i] is assigned to givers[i]
// and receivers[i] != givers[i] for every i. The input is not modified.
// Givers must be distinct.
func Derange[T comparable](e *Engine, givers []T) ([]T, error) {
	if len(givers) < 2 {
		return nil, ErrTooFewParticipants
	}

	receivers := make([]T, len(givers))
	copy(receivers, givers)

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		e.shuffle(len(receivers), func(i, j int) {
			receivers[i], receivers[j] = receivers[j], receivers[i]
		})

		if !hasFixedPoint(givers, receivers) {
			return receivers, nil
		}
	}

	return nil, ErrDrawImpossible
}

func hasFixedPoint[T comparable](a, b []T) bool {
	for i := range a {
		if a[i] == b[i] {
			return true
		}
	}
	return false
}
