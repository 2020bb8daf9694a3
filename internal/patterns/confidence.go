package patterns

import "candle-scanner/internal/market"

// score accumulates the additive base-plus-boosts confidence model shared by
// the non-harmonic detectors. Boosts only apply on a known-true condition;
// unknown never adds or subtracts. The total is clamped to the pattern
// family's cap. The ABCD detector uses its own formula instead of this model.
type score struct {
	value float64
	cap   float64
}

func newScore(base, cap float64) *score {
	return &score{value: base, cap: cap}
}

// boost adds pts when the condition is known true.
func (s *score) boost(cond market.Tristate, pts float64) {
	if cond.IsTrue() {
		s.value += pts
	}
}

// boostIf adds pts when the plain condition holds.
func (s *score) boostIf(cond bool, pts float64) {
	if cond {
		s.value += pts
	}
}

// total returns the clamped confidence in [0, cap].
func (s *score) total() float64 {
	if s.value > s.cap {
		return s.cap
	}
	if s.value < 0 {
		return 0
	}
	return s.value
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
