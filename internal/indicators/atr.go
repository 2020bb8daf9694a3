package indicators

import (
	"math"

	"candle-scanner/internal/market"
)

// DefaultATRPeriod is the standard ATR lookback.
const DefaultATRPeriod = 14

// TrueRange calculates the true range for bar i of the series:
// max(high-low, |high-prevClose|, |low-prevClose|). For the first bar the
// previous close is unavailable and the high-low span is used.
func TrueRange(bars market.Series, i int) float64 {
	b := bars[i]
	if i == 0 {
		return b.High - b.Low
	}
	prevClose := bars[i-1].Close
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}

// ATRSeries computes the Wilder-smoothed ATR series. The first defined value,
// at index period, is the simple mean of the first period true ranges
// (computed against a previous close, so starting at bar 1); subsequent values
// use (prev*(period-1)+tr)/period. Indexes below period hold zero.
func ATRSeries(bars market.Series, period int) []float64 {
	out := make([]float64, len(bars))
	if len(bars) < period+1 || period <= 0 {
		return out
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += TrueRange(bars, i)
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + TrueRange(bars, i)) / float64(period)
		out[i] = atr
	}
	return out
}

// CurrentATR returns the latest ATR value. The second return is false when
// fewer than period+1 bars exist and the value is undefined.
func CurrentATR(bars market.Series, period int) (float64, bool) {
	if len(bars) < period+1 || period <= 0 {
		return 0, false
	}
	series := ATRSeries(bars, period)
	return series[len(series)-1], true
}
