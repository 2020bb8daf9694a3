package patterns

import (
	"math"

	"candle-scanner/internal/candles"
	"candle-scanner/internal/market"
)

// MicroPullbackConfig holds the thresholds for micro pullback detection.
// Zero numeric fields are replaced with the documented defaults.
type MicroPullbackConfig struct {
	MinPriorMovePct      float64 `json:"min_prior_move_pct"`      // default 5.0
	MaxPriorMovePct      float64 `json:"max_prior_move_pct"`      // default 50.0
	MinGreenCandlesPrior int     `json:"min_green_candles_prior"` // default 2
	ShallowPullbackPct   float64 `json:"shallow_pullback_pct"`    // default 8.0, depth as % of prior move
	MaxPullbackPct       float64 `json:"max_pullback_pct"`        // default 20.0
	ShallowPullbackBars  int     `json:"shallow_pullback_bars"`   // default 5
	DeepPullbackBars     int     `json:"deep_pullback_bars"`      // default 2
	StopBufferPct        float64 `json:"stop_buffer_pct"`         // default 1.0, % of pullback low
	StopBufferMinCents   float64 `json:"stop_buffer_min_cents"`   // default 3
	MaxEntryDeviationPct float64 `json:"max_entry_deviation_pct"` // default 5.0
	MinRRForSetup        float64 `json:"min_rr_for_setup"`        // default 2.0
	MinBarsRequired      int     `json:"min_bars_required"`       // default 6
	RequireAboveVWAP     *bool   `json:"require_above_vwap"`      // hard gate, nil means true
	RequireMACDPositive  *bool   `json:"require_macd_positive"`   // hard gate, nil means true
}

// DefaultMicroPullbackConfig returns the standard thresholds with both hard
// gates enabled.
func DefaultMicroPullbackConfig() MicroPullbackConfig {
	return MicroPullbackConfig{
		MinPriorMovePct:      5.0,
		MaxPriorMovePct:      50.0,
		MinGreenCandlesPrior: 2,
		ShallowPullbackPct:   8.0,
		MaxPullbackPct:       20.0,
		ShallowPullbackBars:  5,
		DeepPullbackBars:     2,
		StopBufferPct:        1.0,
		StopBufferMinCents:   3,
		MaxEntryDeviationPct: 5.0,
		MinRRForSetup:        2.0,
		MinBarsRequired:      6,
		RequireAboveVWAP:     ptrBool(true),
		RequireMACDPositive:  ptrBool(true),
	}
}

func (c *MicroPullbackConfig) normalize() {
	def := DefaultMicroPullbackConfig()
	if c.MinPriorMovePct == 0 {
		c.MinPriorMovePct = def.MinPriorMovePct
	}
	if c.MaxPriorMovePct == 0 {
		c.MaxPriorMovePct = def.MaxPriorMovePct
	}
	if c.MinGreenCandlesPrior == 0 {
		c.MinGreenCandlesPrior = def.MinGreenCandlesPrior
	}
	if c.ShallowPullbackPct == 0 {
		c.ShallowPullbackPct = def.ShallowPullbackPct
	}
	if c.MaxPullbackPct == 0 {
		c.MaxPullbackPct = def.MaxPullbackPct
	}
	if c.ShallowPullbackBars == 0 {
		c.ShallowPullbackBars = def.ShallowPullbackBars
	}
	if c.DeepPullbackBars == 0 {
		c.DeepPullbackBars = def.DeepPullbackBars
	}
	if c.StopBufferPct == 0 {
		c.StopBufferPct = def.StopBufferPct
	}
	if c.StopBufferMinCents == 0 {
		c.StopBufferMinCents = def.StopBufferMinCents
	}
	if c.MaxEntryDeviationPct == 0 {
		c.MaxEntryDeviationPct = def.MaxEntryDeviationPct
	}
	if c.MinRRForSetup == 0 {
		c.MinRRForSetup = def.MinRRForSetup
	}
	if c.MinBarsRequired == 0 {
		c.MinBarsRequired = def.MinBarsRequired
	}
	if c.RequireAboveVWAP == nil {
		c.RequireAboveVWAP = def.RequireAboveVWAP
	}
	if c.RequireMACDPositive == nil {
		c.RequireMACDPositive = def.RequireMACDPositive
	}
}

// MicroPullback detects a shallow continuation pullback after a contiguous
// green surge: the green run makes the prior move, a short pullback follows,
// and the latest bar breaks the pullback's high. Shallow pullbacks get a
// larger bar budget to resolve than deep ones.
type MicroPullback struct {
	cfg MicroPullbackConfig
}

func NewMicroPullback(cfg MicroPullbackConfig) *MicroPullback {
	cfg.normalize()
	return &MicroPullback{cfg: cfg}
}

func (d *MicroPullback) Name() string { return "MicroPullback" }

func (d *MicroPullback) Detect(bars market.Series, ctx *Context) (Result, error) {
	if err := validate(bars); err != nil {
		return Result{}, err
	}
	cfg := d.cfg
	n := len(bars)
	if n < cfg.MinBarsRequired {
		return notDetected(d.Name(), "insufficient bars: %d < %d", n, cfg.MinBarsRequired), nil
	}

	entryBar := bars.Last()
	if !candles.IsGreen(entryBar) {
		return notDetected(d.Name(), "last candle is red, waiting for green breakout candle"), nil
	}

	maxBudget := cfg.ShallowPullbackBars
	if cfg.DeepPullbackBars > maxBudget {
		maxBudget = cfg.DeepPullbackBars
	}

	reason := "no valid surge and pullback structure found"
	for k := 1; k <= maxBudget; k++ {
		runEnd := n - 2 - k
		if runEnd < 0 {
			break
		}
		if !candles.IsGreen(bars[runEnd]) {
			continue
		}

		// Extend the contiguous green run backward.
		runStart := runEnd
		for runStart-1 >= 0 && candles.IsGreen(bars[runStart-1]) {
			runStart--
		}
		runLen := runEnd - runStart + 1
		if runLen < cfg.MinGreenCandlesPrior {
			reason = "green run too short"
			continue
		}

		runLow := bars.LowestLow(runStart, runEnd+1)
		runHigh := bars.HighestHigh(runStart, runEnd+1)
		movePct := market.MovePct(runLow, runHigh)
		if movePct < cfg.MinPriorMovePct {
			reason = "prior move too small"
			continue
		}
		if movePct > cfg.MaxPriorMovePct {
			reason = "prior move too large"
			continue
		}

		pullStart, pullEnd := runEnd+1, n-2
		pullLow := bars.LowestLow(pullStart, pullEnd+1)
		pullHigh := bars.HighestHigh(pullStart, pullEnd+1)

		moveSize := runHigh - runLow
		if moveSize <= 0 {
			continue
		}
		depthPct := (runHigh - pullLow) / moveSize * 100
		if depthPct > cfg.MaxPullbackPct {
			reason = "pullback too deep"
			continue
		}

		// Two-tier time budget: shallow pullbacks may consolidate longer,
		// deep pullbacks must resolve fast.
		budget := cfg.DeepPullbackBars
		if depthPct <= cfg.ShallowPullbackPct {
			budget = cfg.ShallowPullbackBars
		}
		if k > budget {
			reason = "pullback too long for its depth"
			continue
		}

		if entryBar.Close <= pullHigh {
			reason = "no breakout above pullback high yet"
			continue
		}

		return d.buildResult(bars, ctx, runStart, runEnd, pullStart, pullEnd,
			movePct, depthPct, runHigh, pullHigh, pullLow)
	}

	return notDetected(d.Name(), "%s", reason), nil
}

func (d *MicroPullback) buildResult(
	bars market.Series, ctx *Context,
	runStart, runEnd, pullStart, pullEnd int,
	movePct, depthPct, runHigh, pullHigh, pullLow float64,
) (Result, error) {
	cfg := d.cfg
	name := d.Name()
	n := len(bars)
	entryBar := bars.Last()

	// Entry is the break of the pullback high, not wherever the breakout
	// bar happens to close.
	entry := pullHigh + 0.01
	buffer := math.Max(pullLow*cfg.StopBufferPct/100, cfg.StopBufferMinCents/100)
	stop := pullLow - buffer

	if entry <= stop {
		return notDetected(name, "invalid setup: entry %.2f <= stop %.2f", entry, stop), nil
	}

	// Staleness guard against acting on outdated geometry.
	deviation := math.Abs(entry-entryBar.Close) / entryBar.Close * 100
	if deviation > cfg.MaxEntryDeviationPct {
		return notDetected(name, "entry %.2f deviates %.1f%% from last close %.2f", entry, deviation, entryBar.Close), nil
	}

	aboveVWAP := ctx.aboveVWAP(bars)
	macd := ctx.macdSeries(bars)
	macdPositive := macd.HistogramPositive()
	macdSlopeUp := macd.LineSlopeUp(3)

	// Hard gates: unknown is not a known positive, so it fails.
	if *cfg.RequireAboveVWAP && !aboveVWAP.IsTrue() {
		return notDetected(name, "hard gate failed: price not above VWAP (%s)", aboveVWAP), nil
	}
	if *cfg.RequireMACDPositive && !macdPositive.IsTrue() {
		return notDetected(name, "hard gate failed: MACD histogram not positive (%s)", macdPositive), nil
	}

	target := entry * (1 + movePct/100)
	if ratio := rewardRisk(entry, stop, target, 1); ratio < cfg.MinRRForSetup {
		return notDetected(name, "reward:risk %.1f below %.1f", ratio, cfg.MinRRForSetup), nil
	}

	runVolume := bars.AverageVolume(runStart, runEnd+1)
	pullVolume := bars.AverageVolume(pullStart, pullEnd+1)
	volumeDeclining := market.TristateOf(pullVolume < runVolume)

	sc := newScore(0.70, 0.95)
	sc.boost(volumeDeclining, 0.10)
	sc.boost(aboveVWAP, 0.10)
	sc.boost(macdPositive, 0.10)
	sc.boostIf(depthPct < 5.0, 0.05)

	return Result{
		Detected:           true,
		PatternName:        name,
		Direction:          "long",
		Confidence:         sc.total(),
		EntryPrice:         entry,
		StopPrice:          stop,
		StopDistance:       entry - stop,
		PatternStartIdx:    runStart,
		PatternEndIdx:      n - 1,
		AboveVWAP:          aboveVWAP,
		MACDPositive:       macdPositive,
		MACDSlopeUp:        macdSlopeUp,
		VolumeConfirmation: volumeDeclining,
		Reason:             "micro pullback breakout",
		Details: map[string]float64{
			"prior_move_pct":   movePct,
			"pullback_pct":     depthPct,
			"pullback_candles": float64(pullEnd - pullStart + 1),
			"swing_high":       runHigh,
			"pullback_low":     pullLow,
		},
	}, nil
}
