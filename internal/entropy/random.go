// Package entropy provides deterministic, tick-indexed randomness.
// Every random draw in the simulation comes from a stream keyed by the
// world seed, a subsystem name, and the tick, so replays are exact.
package entropy

import (
	"hash/fnv"
	"math/rand/v2"
)

// Source is the world-level seed from which all streams derive.
type Source struct {
	Seed uint64
}

// NewSource creates a source for the given world seed.
func NewSource(seed uint64) Source {
	return Source{Seed: seed}
}

// Stream returns a generator for one subsystem at one tick. Two calls
// with the same arguments produce identical sequences.
func (s Source) Stream(subsystem string, tick uint64) *rand.Rand {
	return rand.New(rand.NewPCG(s.Seed^HashString(subsystem), tick))
}

// Uniform hashes (seed, tick, salt) to a float in [0, 1).
func Uniform(seed, tick, salt uint64) float64 {
	h := splitmix64(seed ^ splitmix64(tick^splitmix64(salt)))
	return float64(h>>11) / (1 << 53)
}

// ShouldFail reports whether an event with probability p fires for this
// (seed, tick). Identical inputs always give the same answer.
func ShouldFail(p float64, seed, tick uint64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return Uniform(seed, tick, 0) < p
}

// HashString returns the 64-bit FNV-1a hash of s.
func HashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
