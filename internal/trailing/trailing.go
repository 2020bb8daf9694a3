// Package trailing implements multi-strategy trailing stop calculation. The
// caller owns the State and advances it one bar at a time; Calculate never
// mutates its inputs, it returns the updated values in the Result.
package trailing

import (
	"fmt"
	"math"

	"candle-scanner/internal/market"
)

// State is the caller-managed position snapshot passed on each bar update.
type State struct {
	EntryPrice    float64
	OriginalStop  float64
	CurrentStop   float64
	Direction     string // "long" or "short"
	HighWaterMark float64
	Activated     bool
	RiskPerShare  float64
	PartialTaken  bool
	EntryIdx      int
}

// NewState initializes tracking state from entry parameters.
func NewState(entryPrice, stopPrice float64, direction string, entryIdx int) State {
	return State{
		EntryPrice:    entryPrice,
		OriginalStop:  stopPrice,
		CurrentStop:   stopPrice,
		Direction:     direction,
		HighWaterMark: entryPrice,
		RiskPerShare:  math.Abs(entryPrice - stopPrice),
		EntryIdx:      entryIdx,
	}
}

func (s State) short() bool { return s.Direction == "short" }

// Config tunes activation and the per-strategy parameters. Zero numeric
// fields take defaults; use DefaultConfig as the base so the boolean
// defaults survive.
type Config struct {
	Strategy          string  `json:"strategy"`             // "swing_low" or "atr"
	ActivationR       float64 `json:"activation_r"`         // default 1.0
	ActivateOnPartial bool    `json:"activate_on_partial"`  // default true
	MinBarsAfterEntry int     `json:"min_bars_after_entry"` // default 2
	NeverLoosenStop   bool    `json:"never_loosen_stop"`    // default true
	CurrentSpread     float64 `json:"current_spread"`       // default 0.01

	// swing_low parameters.
	TrailingBars        int     `json:"trailing_bars"`         // default 2
	SpreadMultiplier    float64 `json:"spread_multiplier"`     // default 2.0
	ATRBufferMultiplier float64 `json:"atr_buffer_multiplier"` // default 0.1

	// shared / atr parameters.
	ATRPeriod     int     `json:"atr_period"`     // default 14
	ATRMultiplier float64 `json:"atr_multiplier"` // default 2.0
}

func DefaultConfig() Config {
	return Config{
		Strategy:            StrategySwingLow,
		ActivationR:         1.0,
		ActivateOnPartial:   true,
		MinBarsAfterEntry:   2,
		NeverLoosenStop:     true,
		CurrentSpread:       0.01,
		TrailingBars:        2,
		SpreadMultiplier:    2.0,
		ATRBufferMultiplier: 0.1,
		ATRPeriod:           14,
		ATRMultiplier:       2.0,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.ActivationR == 0 {
		c.ActivationR = def.ActivationR
	}
	if c.MinBarsAfterEntry == 0 {
		c.MinBarsAfterEntry = def.MinBarsAfterEntry
	}
	if c.CurrentSpread == 0 {
		c.CurrentSpread = def.CurrentSpread
	}
	if c.TrailingBars == 0 {
		c.TrailingBars = def.TrailingBars
	}
	if c.SpreadMultiplier == 0 {
		c.SpreadMultiplier = def.SpreadMultiplier
	}
	if c.ATRBufferMultiplier == 0 {
		c.ATRBufferMultiplier = def.ATRBufferMultiplier
	}
	if c.ATRPeriod == 0 {
		c.ATRPeriod = def.ATRPeriod
	}
	if c.ATRMultiplier == 0 {
		c.ATRMultiplier = def.ATRMultiplier
	}
}

// Result is one Calculate outcome. When Active, the caller carries NewStop
// and HighWaterMark forward into the next State.
type Result struct {
	Active           bool
	NewStop          float64
	OriginalStop     float64
	HighWaterMark    float64
	CurrentRMultiple float64
	Reason           string
	StrategyName     string
	JustActivated    bool
	StopMoved        bool
}

// IsTrailing reports whether the stop has moved off the original.
func (r Result) IsTrailing() bool { return r.NewStop != r.OriginalStop }

// Strategy names registered with Calculate.
const (
	StrategySwingLow = "swing_low"
	StrategyATR      = "atr"
)

type strategyFunc func(bars market.Series, state State, cfg Config) Result

var strategies = map[string]strategyFunc{
	StrategySwingLow: calculateSwingLow,
	StrategyATR:      calculateATR,
}

// Calculate runs the configured strategy over the bars. Errors only on an
// unknown strategy name; everything else is reported through the Result.
func Calculate(bars market.Series, state State, cfg Config) (Result, error) {
	cfg.normalize()
	fn, ok := strategies[cfg.Strategy]
	if !ok {
		return Result{}, fmt.Errorf("unknown trailing stop strategy %q", cfg.Strategy)
	}
	return fn(bars, state, cfg), nil
}

func inactive(state State, strategy, reason string, hwm, currentR float64) Result {
	return Result{
		NewStop:          state.OriginalStop,
		OriginalStop:     state.OriginalStop,
		HighWaterMark:    hwm,
		CurrentRMultiple: currentR,
		Reason:           reason,
		StrategyName:     strategy,
	}
}

// progress is the shared activation prelude: high water mark, R-multiple
// and the irreversible activation decision.
type progress struct {
	hwm           float64
	currentR      float64
	activated     bool
	justActivated bool
}

// advance computes the water mark from the post-entry bars: the highest
// high for longs, the lowest low for shorts.
func advance(bars market.Series, state State, cfg Config) progress {
	n := len(bars)
	var p progress
	if state.short() {
		p.hwm = bars.LowestLow(state.EntryIdx+1, n)
		p.currentR = (state.EntryPrice - p.hwm) / state.RiskPerShare
	} else {
		p.hwm = bars.HighestHigh(state.EntryIdx+1, n)
		p.currentR = (p.hwm - state.EntryPrice) / state.RiskPerShare
	}

	p.activated = state.Activated || p.currentR >= cfg.ActivationR
	if cfg.ActivateOnPartial && state.PartialTaken {
		p.activated = true
	}
	p.justActivated = p.activated && !state.Activated
	return p
}

// ratchet applies the never-loosen rule: for longs the stop only rises, for
// shorts it only falls.
func ratchet(state State, cfg Config, trailingStop float64) float64 {
	if state.short() {
		ceiling := state.OriginalStop
		if cfg.NeverLoosenStop && state.CurrentStop < ceiling {
			ceiling = state.CurrentStop
		}
		return math.Min(ceiling, trailingStop)
	}
	floor := state.OriginalStop
	if cfg.NeverLoosenStop && state.CurrentStop > floor {
		floor = state.CurrentStop
	}
	return math.Max(floor, trailingStop)
}

func stopMoved(newStop, currentStop float64) bool {
	return math.Abs(newStop-currentStop) > 0.0001
}
