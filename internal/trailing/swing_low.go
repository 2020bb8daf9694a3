package trailing

import (
	"fmt"
	"math"

	"candle-scanner/internal/indicators"
	"candle-scanner/internal/market"
)

// calculateSwingLow trails under the low of the last TrailingBars completed
// bars (above the high for shorts), padded by a spread/ATR buffer so normal
// noise does not tag the stop.
func calculateSwingLow(bars market.Series, state State, cfg Config) Result {
	n := len(bars)
	if state.RiskPerShare == 0 {
		return inactive(state, StrategySwingLow, "Position has zero risk per share", state.EntryPrice, 0)
	}
	barsAfterEntry := n - state.EntryIdx - 1
	if barsAfterEntry < cfg.MinBarsAfterEntry {
		return inactive(state, StrategySwingLow,
			fmt.Sprintf("Only %d bars since entry, need %d", barsAfterEntry, cfg.MinBarsAfterEntry),
			state.EntryPrice, 0)
	}

	p := advance(bars, state, cfg)
	if !p.activated {
		return inactive(state, StrategySwingLow,
			fmt.Sprintf("Not activated: %.2fR below %.2fR threshold", p.currentR, cfg.ActivationR),
			p.hwm, p.currentR)
	}

	buffer := cfg.CurrentSpread * cfg.SpreadMultiplier
	if atr, ok := indicators.CurrentATR(bars, cfg.ATRPeriod); ok {
		buffer = math.Max(buffer, atr*cfg.ATRBufferMultiplier)
	}

	// Trail off the last completed bars only; a still-forming swing is not
	// a swing yet.
	start := n - cfg.TrailingBars
	if start < state.EntryIdx+1 {
		start = state.EntryIdx + 1
	}

	var trailingStop float64
	if state.short() {
		trailingStop = bars.HighestHigh(start, n) + buffer
	} else {
		trailingStop = bars.LowestLow(start, n) - buffer
	}
	newStop := ratchet(state, cfg, trailingStop)

	return Result{
		Active:           true,
		NewStop:          newStop,
		OriginalStop:     state.OriginalStop,
		HighWaterMark:    p.hwm,
		CurrentRMultiple: p.currentR,
		Reason:           fmt.Sprintf("Swing stop %.4f (%d-bar extreme, buffer %.4f)", newStop, cfg.TrailingBars, buffer),
		StrategyName:     StrategySwingLow,
		JustActivated:    p.justActivated,
		StopMoved:        stopMoved(newStop, state.CurrentStop),
	}
}
