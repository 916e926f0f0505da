// Package dice provides the six-sided dice the combat engine rolls.
//
// Everything that needs randomness takes a Source, so a battle can be
// replayed from a seed or driven by a fixed Sequence in tests.
package dice

import (
	"math/rand/v2"
	"sync"
)

// Source produces one uniform roll in [1,6] per call.
type Source interface {
	D6() int
}

// Rand is a seeded PCG-backed Source. It is safe for concurrent use.
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRand returns a Source seeded with the two PCG words. The same pair
// always yields the same rolls.
func NewRand(seed, stream uint64) *Rand {
	return &Rand{rng: rand.New(rand.NewPCG(seed, stream))}
}

// D6 rolls one die.
func (r *Rand) D6() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(6) + 1
}

// Roll2D6 sums two dice from src.
func Roll2D6(src Source) int {
	return src.D6() + src.D6()
}

// D3 folds a six-sided roll onto 1-3.
func D3(src Source) int {
	return (src.D6() + 1) / 2
}
