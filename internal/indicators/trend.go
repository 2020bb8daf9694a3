package indicators

import (
	"fmt"
	"math"

	"candle-scanner/internal/candles"
	"candle-scanner/internal/market"
)

// TrendConfig controls the higher-timeframe trend confirmation check.
type TrendConfig struct {
	MinTrendCandles int     `json:"min_trend_candles"` // candles in trend direction required
	LookbackCandles int     `json:"lookback_candles"`  // window of candles inspected
	MaxWickRatio    float64 `json:"max_wick_ratio"`    // rejection wick as multiple of body
}

// DefaultTrendConfig returns the standard 3-of-4 trend window.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{MinTrendCandles: 3, LookbackCandles: 4, MaxWickRatio: 2.0}
}

// ConfirmTrend checks whether a higher-timeframe bar series supports entry in
// the given direction: enough candles in the trend direction, the latest
// close making actual progress past the high/low from 2-3 bars ago, and no
// large rejection wick on the latest candle. With fewer bars than the
// lookback window a simplified two-bar check applies.
func ConfirmTrend(bars market.Series, direction string, cfg TrendConfig) (bool, string) {
	if len(bars) == 0 {
		return true, "no bars available - skipping trend check"
	}
	if len(bars) < cfg.LookbackCandles {
		return confirmEarlyTrend(bars, direction)
	}

	lastN := bars[len(bars)-cfg.LookbackCandles:]
	latest := bars.Last()
	body := latest.Body()

	if direction == "short" {
		red := 0
		for _, b := range lastN {
			if candles.IsRed(b) {
				red++
			}
		}
		if red < cfg.MinTrendCandles {
			return false, fmt.Sprintf("weak trend: only %d/%d red candles", red, cfg.LookbackCandles)
		}

		refLow := bars[len(bars)-3].Low
		if len(bars) >= 4 {
			refLow = math.Min(refLow, bars[len(bars)-4].Low)
		}
		if latest.Close >= refLow {
			return false, fmt.Sprintf("no breakdown: close %.2f >= prior low %.2f", latest.Close, refLow)
		}

		if body > 0.001 && candles.LowerWick(latest) > cfg.MaxWickRatio*body {
			return false, fmt.Sprintf("rejection wick: lower wick %.2f > %.1fx body", candles.LowerWick(latest), cfg.MaxWickRatio)
		}
		return true, "short trend confirmed"
	}

	green := 0
	for _, b := range lastN {
		if candles.IsGreen(b) {
			green++
		}
	}
	if green < cfg.MinTrendCandles {
		return false, fmt.Sprintf("weak trend: only %d/%d green candles", green, cfg.LookbackCandles)
	}

	refHigh := bars[len(bars)-3].High
	if len(bars) >= 4 {
		refHigh = math.Max(refHigh, bars[len(bars)-4].High)
	}
	if latest.Close <= refHigh {
		return false, fmt.Sprintf("no breakout: close %.2f <= prior high %.2f", latest.Close, refHigh)
	}

	if body > 0.001 && candles.UpperWick(latest) > cfg.MaxWickRatio*body {
		return false, fmt.Sprintf("rejection wick: upper wick %.2f > %.1fx body", candles.UpperWick(latest), cfg.MaxWickRatio)
	}
	return true, "long trend confirmed"
}

// confirmEarlyTrend is a simplified two-bar check for the first minutes of a
// session when the full lookback window does not exist yet.
func confirmEarlyTrend(bars market.Series, direction string) (bool, string) {
	if len(bars) < 2 {
		return true, "only one bar - skipping trend check"
	}
	last := bars.Last()
	prior := bars[len(bars)-2]

	if direction == "short" {
		if !candles.IsRed(last) {
			return false, "early session: last bar is not red"
		}
		if last.Close >= prior.Low {
			return false, fmt.Sprintf("early session: close %.2f >= prior low %.2f", last.Close, prior.Low)
		}
		return true, "early session short trend confirmed"
	}

	if !candles.IsGreen(last) {
		return false, "early session: last bar is not green"
	}
	if last.Close <= prior.High {
		return false, fmt.Sprintf("early session: close %.2f <= prior high %.2f", last.Close, prior.High)
	}
	return true, "early session long trend confirmed"
}
