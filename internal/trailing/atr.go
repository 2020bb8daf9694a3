package trailing

import (
	"fmt"

	"candle-scanner/internal/indicators"
	"candle-scanner/internal/market"
)

// calculateATR trails a fixed ATR multiple behind the water mark.
func calculateATR(bars market.Series, state State, cfg Config) Result {
	n := len(bars)
	if state.RiskPerShare == 0 {
		return inactive(state, StrategyATR, "Position has zero risk per share", state.EntryPrice, 0)
	}
	barsAfterEntry := n - state.EntryIdx - 1
	if barsAfterEntry < cfg.MinBarsAfterEntry {
		return inactive(state, StrategyATR,
			fmt.Sprintf("Only %d bars since entry, need %d", barsAfterEntry, cfg.MinBarsAfterEntry),
			state.EntryPrice, 0)
	}

	atr, ok := indicators.CurrentATR(bars, cfg.ATRPeriod)
	if !ok {
		return inactive(state, StrategyATR, "Insufficient data for ATR", state.EntryPrice, 0)
	}

	p := advance(bars, state, cfg)
	if !p.activated {
		return inactive(state, StrategyATR,
			fmt.Sprintf("Not activated: %.2fR below %.2fR threshold", p.currentR, cfg.ActivationR),
			p.hwm, p.currentR)
	}

	var trailingStop float64
	if state.short() {
		trailingStop = p.hwm + atr*cfg.ATRMultiplier
	} else {
		trailingStop = p.hwm - atr*cfg.ATRMultiplier
	}
	newStop := ratchet(state, cfg, trailingStop)

	return Result{
		Active:           true,
		NewStop:          newStop,
		OriginalStop:     state.OriginalStop,
		HighWaterMark:    p.hwm,
		CurrentRMultiple: p.currentR,
		Reason:           fmt.Sprintf("ATR stop %.4f (%.1fx ATR %.4f off %.4f)", newStop, cfg.ATRMultiplier, atr, p.hwm),
		StrategyName:     StrategyATR,
		JustActivated:    p.justActivated,
		StopMoved:        stopMoved(newStop, state.CurrentStop),
	}
}
