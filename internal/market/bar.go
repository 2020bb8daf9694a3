// Package market defines the bar series types shared by the indicator layer
// and the pattern detectors. A Series is supplied by the caller, oldest bar
// first, and is never mutated by the engine.
package market

import (
	"fmt"
	"time"
)

// Bar represents one OHLCV sample for a fixed time interval.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range returns the full high-low span of the bar.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body returns the absolute open-close distance.
func (b Bar) Body() float64 {
	if b.Close > b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Validate checks the bar invariant: low <= open,close <= high and
// volume >= 0. Prices must be positive.
func (b Bar) Validate() error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("bar has non-positive price: O=%.4f H=%.4f L=%.4f C=%.4f", b.Open, b.High, b.Low, b.Close)
	}
	if b.Low > b.High {
		return fmt.Errorf("bar low %.4f above high %.4f", b.Low, b.High)
	}
	if b.Open < b.Low || b.Open > b.High {
		return fmt.Errorf("bar open %.4f outside range [%.4f, %.4f]", b.Open, b.Low, b.High)
	}
	if b.Close < b.Low || b.Close > b.High {
		return fmt.Errorf("bar close %.4f outside range [%.4f, %.4f]", b.Close, b.Low, b.High)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar has negative volume: %.0f", b.Volume)
	}
	return nil
}

// Series is an ordered bar sequence, oldest first. The last element is the
// current bar.
type Series []Bar

// Validate fails fast on the first malformed bar. Detectors call this before
// doing any work; a malformed series is a caller bug, not a non-detection.
func (s Series) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty bar series")
	}
	for i, b := range s {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("bar %d: %w", i, err)
		}
	}
	return nil
}

// Last returns the current (most recent) bar.
func (s Series) Last() Bar {
	return s[len(s)-1]
}

// Closes returns the close prices as a slice.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// HighestHigh returns the maximum high over s[from:to] (to exclusive).
func (s Series) HighestHigh(from, to int) float64 {
	h := s[from].High
	for _, b := range s[from+1 : to] {
		if b.High > h {
			h = b.High
		}
	}
	return h
}

// LowestLow returns the minimum low over s[from:to] (to exclusive).
func (s Series) LowestLow(from, to int) float64 {
	l := s[from].Low
	for _, b := range s[from+1 : to] {
		if b.Low < l {
			l = b.Low
		}
	}
	return l
}

// AverageVolume returns the mean volume over s[from:to] (to exclusive).
func (s Series) AverageVolume(from, to int) float64 {
	if to <= from {
		return 0
	}
	sum := 0.0
	for _, b := range s[from:to] {
		sum += b.Volume
	}
	return sum / float64(to-from)
}

// MovePct returns the percentage move from start to end price.
func MovePct(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return (end - start) / start * 100
}
