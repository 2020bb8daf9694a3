package indicators

import (
	"candle-scanner/internal/market"
)

// CalculateAverageVolume calculates average volume over the last period bars,
// or over the whole series when shorter.
func CalculateAverageVolume(bars market.Series, period int) float64 {
	if len(bars) < period {
		period = len(bars)
	}
	return bars.AverageVolume(len(bars)-period, len(bars))
}

// IsVolumeSpike checks if the current bar's volume is at least multiplier
// times the average of the preceding period bars.
func IsVolumeSpike(bars market.Series, period int, multiplier float64) bool {
	if len(bars) < period+1 {
		return false
	}
	avg := CalculateAverageVolume(bars[:len(bars)-1], period)
	return bars.Last().Volume >= avg*multiplier
}
