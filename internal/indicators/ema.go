// Package indicators implements the shared technical indicator layer: moving
// averages, ATR, VWAP, MACD and relative volume. All functions are stateless
// and recompute from the supplied bar window on each call.
package indicators

import (
	"candle-scanner/internal/market"
)

// CalculateSMA calculates the simple moving average of the last period closes.
// Returns 0 if there are fewer bars than the period.
func CalculateSMA(bars market.Series, period int) float64 {
	if len(bars) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars[len(bars)-period:] {
		sum += b.Close
	}
	return sum / float64(period)
}

// EMASeries computes the exponential moving average series over values.
// The seed is the simple mean of the first period values; the multiplier is
// 2/(period+1). Entries before index period-1 are left as the running seed
// mean so the returned slice always matches len(values).
func EMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	if len(values) < period {
		// Not enough data to seed; fall back to a running mean.
		sum := 0.0
		for i, v := range values {
			sum += v
			out[i] = sum / float64(i+1)
		}
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}
	ema := sum / float64(period)
	out[period-1] = ema

	mult := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = values[i]*mult + ema*(1-mult)
		out[i] = ema
	}
	return out
}

// CalculateEMA calculates the current EMA of closes for the given period.
// Returns 0 if there are fewer bars than the period.
func CalculateEMA(bars market.Series, period int) float64 {
	if len(bars) < period || period <= 0 {
		return 0
	}
	series := EMASeries(bars.Closes(), period)
	return series[len(series)-1]
}

// EMASlope measures the change of the period-EMA over the last lookback bars.
// Positive means the average is rising. Returns 0 when there is not enough
// data to measure.
func EMASlope(bars market.Series, period, lookback int) float64 {
	if len(bars) < period+lookback || lookback <= 0 {
		return 0
	}
	series := EMASeries(bars.Closes(), period)
	return series[len(series)-1] - series[len(series)-1-lookback]
}
