package rng

import "sync"

// Fixed always returns the same float draw. IntN and Range derive from it, so
// Fixed(0) always picks the low end and Fixed(0.999) the high end.
type Fixed float64

func (f Fixed) Float64() float64 { return float64(f) }

func (f Fixed) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return min(int(float64(f)*float64(n)), n-1)
}

func (f Fixed) Range(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	span := hi - lo + 1
	return lo + min(int64(float64(f)*float64(span)), span-1)
}

// Sequence replays float draws in order and repeats the last one when exhausted.
type Sequence struct {
	mu    sync.Mutex
	draws []float64
	pos   int
}

// NewSequence creates a scripted source.
func NewSequence(draws ...float64) *Sequence {
	return &Sequence{draws: draws}
}

func (s *Sequence) next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.draws) == 0 {
		return 0
	}
	if s.pos >= len(s.draws) {
		return s.draws[len(s.draws)-1]
	}
	v := s.draws[s.pos]
	s.pos++
	return v
}

// Consumed reports how many scripted draws have been used.
func (s *Sequence) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Sequence) Float64() float64 { return s.next() }

func (s *Sequence) IntN(n int) int { return Fixed(s.next()).IntN(n) }

func (s *Sequence) Range(lo, hi int64) int64 { return Fixed(s.next()).Range(lo, hi) }
