package patterns

import (
	"math"

	"candle-scanner/internal/candles"
	"candle-scanner/internal/market"
)

// VWAPBreakConfig holds the thresholds for VWAP break/hold detection.
type VWAPBreakConfig struct {
	MinBarsBelow       int     `json:"min_bars_below"`        // default 5, bars trading below VWAP
	VolumeSpikeOnBreak float64 `json:"volume_spike_on_break"` // default 2.0, multiple of average volume
	StopBufferCents    float64 `json:"stop_buffer_cents"`     // default 10
	MinRRForSetup      float64 `json:"min_rr_for_setup"`      // default 2.0
	MinBarsRequired    int     `json:"min_bars_required"`     // default 6

	// Hold variant: a dip to VWAP that holds as support instead of a break
	// from below.
	HoldVariantEnabled *bool   `json:"hold_variant_enabled"` // nil means true
	HoldTouchPct       float64 `json:"hold_touch_pct"`       // default 0.5, % distance counting as a touch
	HoldStopCents      float64 `json:"hold_stop_cents"`      // default 5, below the touch low
}

func DefaultVWAPBreakConfig() VWAPBreakConfig {
	return VWAPBreakConfig{
		MinBarsBelow:       5,
		VolumeSpikeOnBreak: 2.0,
		StopBufferCents:    10,
		MinRRForSetup:      2.0,
		MinBarsRequired:    6,
		HoldVariantEnabled: ptrBool(true),
		HoldTouchPct:       0.5,
		HoldStopCents:      5,
	}
}

func (c *VWAPBreakConfig) normalize() {
	def := DefaultVWAPBreakConfig()
	if c.MinBarsBelow == 0 {
		c.MinBarsBelow = def.MinBarsBelow
	}
	if c.VolumeSpikeOnBreak == 0 {
		c.VolumeSpikeOnBreak = def.VolumeSpikeOnBreak
	}
	if c.StopBufferCents == 0 {
		c.StopBufferCents = def.StopBufferCents
	}
	if c.MinRRForSetup == 0 {
		c.MinRRForSetup = def.MinRRForSetup
	}
	if c.MinBarsRequired == 0 {
		c.MinBarsRequired = def.MinBarsRequired
	}
	if c.HoldTouchPct == 0 {
		c.HoldTouchPct = def.HoldTouchPct
	}
	if c.HoldStopCents == 0 {
		c.HoldStopCents = def.HoldStopCents
	}
	if c.HoldVariantEnabled == nil {
		c.HoldVariantEnabled = def.HoldVariantEnabled
	}
}

// VWAPBreak detects a recapture of VWAP after a sustained period below it,
// confirmed by a volume spike on the break. When no break is found and the
// hold variant is enabled, it looks for a dip that held VWAP as support.
type VWAPBreak struct {
	cfg VWAPBreakConfig
}

func NewVWAPBreak(cfg VWAPBreakConfig) *VWAPBreak {
	cfg.normalize()
	return &VWAPBreak{cfg: cfg}
}

func (d *VWAPBreak) Name() string { return "VWAPBreak" }

func (d *VWAPBreak) Detect(bars market.Series, ctx *Context) (Result, error) {
	if err := validate(bars); err != nil {
		return Result{}, err
	}
	cfg := d.cfg
	name := d.Name()
	n := len(bars)
	if n < cfg.MinBarsRequired {
		return notDetected(name, "insufficient bars: %d < %d", n, cfg.MinBarsRequired), nil
	}

	vwap := ctx.vwapSeries(bars)
	if math.IsNaN(vwap[n-1]) {
		return notDetected(name, "VWAP undefined: no volume traded yet"), nil
	}

	belowStart, belowEnd, ok := d.findBelowPeriod(bars, vwap)
	if !ok {
		// Price held above VWAP: no break possible, but a dip that bounced
		// off VWAP qualifies for the hold variant.
		if *cfg.HoldVariantEnabled {
			if res, found := d.detectHold(bars, ctx, vwap, 0); found {
				return res, nil
			}
		}
		return notDetected(name, "no sustained period below VWAP found"), nil
	}

	breakIdx, volumeSpike, ok := d.findBreak(bars, vwap, belowEnd)
	if !ok {
		return notDetected(name, "no VWAP break found after below period"), nil
	}

	currentVWAP := vwap[n-1]
	entry := currentVWAP + 0.02
	stop := currentVWAP - cfg.StopBufferCents/100

	// Target the recapture magnitude continuing above VWAP.
	belowLow := bars.LowestLow(belowStart, belowEnd+1)
	target := entry + (currentVWAP - belowLow)
	if ratio := rewardRisk(entry, stop, target, 1); ratio < cfg.MinRRForSetup {
		return notDetected(name, "reward:risk %.1f below %.1f", ratio, cfg.MinRRForSetup), nil
	}

	macd := ctx.macdSeries(bars)
	macdPositive := macd.HistogramPositive()

	sc := newScore(0.65, 0.95)
	sc.boost(volumeSpike, 0.20)
	sc.boost(macdPositive, 0.15)

	return Result{
		Detected:           true,
		PatternName:        name,
		Direction:          "long",
		Confidence:         sc.total(),
		EntryPrice:         entry,
		StopPrice:          stop,
		StopDistance:       entry - stop,
		PatternStartIdx:    belowStart,
		PatternEndIdx:      n - 1,
		AboveVWAP:          market.True,
		MACDPositive:       macdPositive,
		MACDSlopeUp:        macd.LineSlopeUp(3),
		VolumeConfirmation: volumeSpike,
		Reason:             "VWAP break with sustained prior weakness",
		Details: map[string]float64{
			"bars_below_vwap": float64(belowEnd - belowStart + 1),
			"break_bar_idx":   float64(breakIdx),
			"current_vwap":    currentVWAP,
		},
	}, nil
}

// findBelowPeriod returns the most recent run of closes below VWAP lasting
// at least MinBarsBelow bars, excluding the last bar.
func (d *VWAPBreak) findBelowPeriod(bars market.Series, vwap []float64) (start, end int, ok bool) {
	n := len(bars)
	count := 0
	runStart := -1
	for i := 0; i < n-1; i++ {
		if !math.IsNaN(vwap[i]) && bars[i].Close < vwap[i] {
			if runStart < 0 {
				runStart = i
			}
			count++
			continue
		}
		if count >= d.cfg.MinBarsBelow {
			start, end, ok = runStart, i-1, true
		}
		runStart, count = -1, 0
	}
	if count >= d.cfg.MinBarsBelow {
		start, end, ok = runStart, n-2, true
	}
	return start, end, ok
}

// findBreak looks for the first close back above VWAP after the below
// period and reports whether it carried a volume spike.
func (d *VWAPBreak) findBreak(bars market.Series, vwap []float64, afterIdx int) (int, market.Tristate, bool) {
	n := len(bars)
	avgVolume := bars.AverageVolume(0, n)
	for i := afterIdx + 1; i < n; i++ {
		if math.IsNaN(vwap[i]) || bars[i].Close <= vwap[i] {
			continue
		}
		spike := market.Unknown
		if avgVolume > 0 {
			spike = market.TristateOf(bars[i].Volume >= avgVolume*d.cfg.VolumeSpikeOnBreak)
		}
		return i, spike, true
	}
	return 0, market.Unknown, false
}

// detectHold looks for a low touching VWAP followed by a green bar closing
// back above it, confirming VWAP as support.
func (d *VWAPBreak) detectHold(bars market.Series, ctx *Context, vwap []float64, afterIdx int) (Result, bool) {
	cfg := d.cfg
	n := len(bars)
	for i := afterIdx + 1; i < n-1; i++ {
		if math.IsNaN(vwap[i]) {
			continue
		}
		touchThreshold := vwap[i] * cfg.HoldTouchPct / 100
		if math.Abs(bars[i].Low-vwap[i]) > touchThreshold {
			continue
		}
		// Holding means never closing below the level.
		if bars[i].Close < vwap[i] {
			continue
		}
		next := bars[i+1]
		if !candles.IsGreen(next) || math.IsNaN(vwap[i+1]) || next.Close <= vwap[i+1] {
			continue
		}

		currentVWAP := vwap[n-1]
		entry := currentVWAP + 0.02
		stop := bars[i].Low - cfg.HoldStopCents/100
		// A held VWAP targets a retest of the pre-dip high.
		target := bars.HighestHigh(0, i+1)
		if ratio := rewardRisk(entry, stop, target, 1); ratio < cfg.MinRRForSetup {
			continue
		}

		macd := ctx.macdSeries(bars)
		return Result{
			Detected:        true,
			PatternName:     "VWAPHold",
			Direction:       "long",
			Confidence:      0.70,
			EntryPrice:      entry,
			StopPrice:       stop,
			StopDistance:    entry - stop,
			PatternStartIdx: i,
			PatternEndIdx:   n - 1,
			AboveVWAP:       market.True,
			MACDPositive:    macd.HistogramPositive(),
			MACDSlopeUp:     macd.LineSlopeUp(3),
			Reason:          "VWAP held as support after dip",
			Details: map[string]float64{
				"touch_idx":     float64(i),
				"touch_low":     bars[i].Low,
				"vwap_at_touch": vwap[i],
			},
		}, true
	}
	return Result{}, false
}
