package proba

import (
	"time"

	"golang.org/x/exp/rand"
)

// MaxDraws bounds how many times Sample redraws before giving up.
const MaxDraws = 10

// Selection is the outcome of one draw over a cumulative distribution.
type Selection struct {
	Rank      int     // 1-based rank of the chosen candidate
	Draw      float64 // last value drawn, rounded to 4 places
	Attempts  int
	Exhausted bool // no interval matched; Rank fell back to 1
}

// Sampler draws candidate ranks by inverting a cumulative distribution.
// It is not safe for concurrent use.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler returns a sampler reading from src. A nil src is seeded from
// the clock.
func NewSampler(src rand.Source) *Sampler {
	if src == nil {
		src = rand.NewSource(uint64(time.Now().UnixNano()))
	}
	return &Sampler{rng: rand.New(src)}
}

// Sample draws a value uniformly between the smallest and largest of the
// interval bounds 0, F(1), ..., F(N) and returns the rank whose interval holds
// it. A draw is retried up to MaxDraws times; after that the top candidate is
// returned with Exhausted set.
func (s *Sampler) Sample(f []float64) Selection {
	if len(f) == 0 {
		return Selection{}
	}
	if len(f) == 1 {
		return Selection{Rank: 1, Draw: f[0], Attempts: 1}
	}

	lo, hi := Bounds(f)
	var sel Selection
	for sel.Attempts < MaxDraws {
		sel.Attempts++
		sel.Draw = Round4(lo + s.rng.Float64()*(hi-lo))
		if rank, ok := Locate(f, sel.Draw); ok {
			sel.Rank = rank
			return sel
		}
	}
	sel.Rank = 1
	sel.Exhausted = true
	return sel
}

// Bounds returns the smallest and largest of 0 and the values of f.
func Bounds(f []float64) (lo, hi float64) {
	for _, v := range f {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// Locate scans the adjacent bound pairs (0, F(1)), (F(1), F(2)), ... and
// returns the 1-based rank of the first pair containing draw, inclusive in
// either direction.
func Locate(f []float64, draw float64) (int, bool) {
	prev := 0.0
	for i, next := range f {
		if (prev <= draw && draw <= next) || (next <= draw && draw <= prev) {
			return i + 1, true
		}
		prev = next
	}
	return 0, false
}
