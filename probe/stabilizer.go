package probe

import (
	"math"
)

type stabAction int

const (
	stabKeep stabAction = iota
	stabRestart
	stabDisarm
)

// stabilizer watches work Z samples for the position to settle.
//
// p0 is the position right before the probe stage; samples that still read
// p0 are stale and never arm the debounce.
type stabilizer struct {
	eps   float64
	p0    *float64
	last  *float64
	armed bool
}

func newStabilizer(eps float64) *stabilizer {
	return &stabilizer{eps: eps}
}

func (s *stabilizer) setP0(z float64) {
	s.p0 = &z
}

// sample records z and returns what to do with the debounce timer.
func (s *stabilizer) sample(z float64) stabAction {
	prev := s.last
	s.last = &z

	if s.p0 != nil && math.Abs(z-*s.p0) < s.eps {
		s.armed = false
		return stabDisarm
	}
	if prev == nil || math.Abs(z-*prev) >= s.eps || !s.armed {
		s.armed = true
		return stabRestart
	}
	return stabKeep
}

// value returns the settled Z once the debounce window has passed while armed.
func (s *stabilizer) value() (float64, bool) {
	if !s.armed || s.last == nil {
		return 0, false
	}
	return *s.last, true
}
