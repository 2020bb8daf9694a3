// Package candles provides single-candle classification and swing point
// detection over bar series.
package candles

import "candle-scanner/internal/market"

// DefaultDojiThreshold is the max body/range ratio for a doji candle.
const DefaultDojiThreshold = 0.2

// IsGreen reports whether the candle closed above its open.
func IsGreen(b market.Bar) bool {
	return b.Close > b.Open
}

// IsRed reports whether the candle closed below its open.
func IsRed(b market.Bar) bool {
	return b.Close < b.Open
}

// UpperWick returns the distance from the body top to the high.
func UpperWick(b market.Bar) float64 {
	top := b.Open
	if b.Close > top {
		top = b.Close
	}
	return b.High - top
}

// LowerWick returns the distance from the body bottom to the low.
func LowerWick(b market.Bar) float64 {
	bottom := b.Open
	if b.Close < bottom {
		bottom = b.Close
	}
	return bottom - b.Low
}

// BodyPct returns the body size as a fraction of the full range.
// A zero-range bar counts as all body.
func BodyPct(b market.Bar) float64 {
	r := b.Range()
	if r <= 0 {
		return 1.0
	}
	return b.Body() / r
}

// BodyPosition returns where the body midpoint sits within the range,
// 0 at the low and 1 at the high. A zero-range bar returns 0.5.
func BodyPosition(b market.Bar) float64 {
	r := b.Range()
	if r <= 0 {
		return 0.5
	}
	mid := (b.Open + b.Close) / 2
	return (mid - b.Low) / r
}

// IsDoji reports whether the candle body is small relative to its range.
// Bars with near-zero range count as dojis.
func IsDoji(b market.Bar, threshold float64) bool {
	r := b.Range()
	if r < 0.001 {
		return true
	}
	return b.Body()/r < threshold
}

// CountConsecutiveDojis counts dojis at the end of the series, scanning at
// most the last five bars.
func CountConsecutiveDojis(bars market.Series, threshold float64) int {
	start := len(bars) - 5
	if start < 0 {
		start = 0
	}
	count := 0
	for i := len(bars) - 1; i >= start; i-- {
		if !IsDoji(bars[i], threshold) {
			break
		}
		count++
	}
	return count
}

// CheckQuality rejects a series whose final bars show too much indecision.
func CheckQuality(bars market.Series, maxConsecutiveDojis int, dojiThreshold float64) (bool, string) {
	n := CountConsecutiveDojis(bars, dojiThreshold)
	if n > maxConsecutiveDojis {
		return false, "weak momentum: too many consecutive dojis"
	}
	return true, "candle quality ok"
}

// SwingHighs returns indices of bars whose high strictly exceeds the highs of
// lookback bars on each side. Zero-volume bars are skipped since trading
// halts produce phantom swings.
func SwingHighs(bars market.Series, lookback int) []int {
	var out []int
	for i := lookback; i < len(bars)-lookback; i++ {
		if bars[i].Volume <= 0 {
			continue
		}
		h := bars[i].High
		swing := true
		for j := 1; j <= lookback; j++ {
			if bars[i-j].High >= h || bars[i+j].High >= h {
				swing = false
				break
			}
		}
		if swing {
			out = append(out, i)
		}
	}
	return out
}

// SwingLows returns indices of bars whose low is strictly below the lows of
// lookback bars on each side. Zero-volume bars are skipped.
func SwingLows(bars market.Series, lookback int) []int {
	var out []int
	for i := lookback; i < len(bars)-lookback; i++ {
		if bars[i].Volume <= 0 {
			continue
		}
		l := bars[i].Low
		swing := true
		for j := 1; j <= lookback; j++ {
			if bars[i-j].Low <= l || bars[i+j].Low <= l {
				swing = false
				break
			}
		}
		if swing {
			out = append(out, i)
		}
	}
	return out
}
