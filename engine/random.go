package engine

import "math/rand/v2"

// NewRandomSource returns a seeded generator for scenario exploration.
// The same seed always yields the same sequence.
func NewRandomSource(seed uint64) RandomSource {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
