package patterns

import (
	"math"

	"candle-scanner/internal/candles"
	"candle-scanner/internal/market"
)

// ABCDConfig holds the thresholds for harmonic ABCD detection.
type ABCDConfig struct {
	MinBarsRequired  int     `json:"min_bars_required"`  // default 10
	SwingLookback    int     `json:"swing_lookback"`     // default 3, bars each side of a swing
	MinBCRetracement float64 `json:"min_bc_retracement"` // default 0.382
	MaxBCRetracement float64 `json:"max_bc_retracement"` // default 0.786
	CDABRatioMin     float64 `json:"cd_ab_ratio_min"`    // default 0.75
	CDABRatioMax     float64 `json:"cd_ab_ratio_max"`    // default 1.25
	CDMinCompletion  float64 `json:"cd_min_completion"`  // default 0.80, CD developed fraction
	MinLegPct        float64 `json:"min_leg_pct"`        // default 1.0, AB leg as % of price
	StopBufferPct    float64 `json:"stop_buffer_pct"`    // default 0.5, beyond C
	DirectionFilter  string  `json:"direction_filter"`   // "", "long" or "short"
}

func DefaultABCDConfig() ABCDConfig {
	return ABCDConfig{
		MinBarsRequired:  10,
		SwingLookback:    3,
		MinBCRetracement: 0.382,
		MaxBCRetracement: 0.786,
		CDABRatioMin:     0.75,
		CDABRatioMax:     1.25,
		CDMinCompletion:  0.80,
		MinLegPct:        1.0,
		StopBufferPct:    0.5,
	}
}

func (c *ABCDConfig) normalize() {
	def := DefaultABCDConfig()
	if c.MinBarsRequired == 0 {
		c.MinBarsRequired = def.MinBarsRequired
	}
	if c.SwingLookback == 0 {
		c.SwingLookback = def.SwingLookback
	}
	if c.MinBCRetracement == 0 {
		c.MinBCRetracement = def.MinBCRetracement
	}
	if c.MaxBCRetracement == 0 {
		c.MaxBCRetracement = def.MaxBCRetracement
	}
	if c.CDABRatioMin == 0 {
		c.CDABRatioMin = def.CDABRatioMin
	}
	if c.CDABRatioMax == 0 {
		c.CDABRatioMax = def.CDABRatioMax
	}
	if c.CDMinCompletion == 0 {
		c.CDMinCompletion = def.CDMinCompletion
	}
	if c.MinLegPct == 0 {
		c.MinLegPct = def.MinLegPct
	}
	if c.StopBufferPct == 0 {
		c.StopBufferPct = def.StopBufferPct
	}
}

// ABCD detects the AB=CD measured-move harmonic: impulse leg AB, Fibonacci
// retracement to C, and a CD leg mirroring AB toward the projected D.
// Confidence is formula driven, keyed to how close CD/AB sits to 1.0 and the
// BC retracement to the ideal 61.8%, clamped to [0.50, 0.95].
type ABCD struct {
	cfg ABCDConfig
}

func NewABCD(cfg ABCDConfig) *ABCD {
	cfg.normalize()
	return &ABCD{cfg: cfg}
}

func (d *ABCD) Name() string { return "ABCD" }

func (d *ABCD) Detect(bars market.Series, ctx *Context) (Result, error) {
	if err := validate(bars); err != nil {
		return Result{}, err
	}
	cfg := d.cfg
	name := d.Name()
	n := len(bars)
	if n < cfg.MinBarsRequired {
		return notDetected(name, "insufficient bars: %d < %d", n, cfg.MinBarsRequired), nil
	}

	swingHighs := candles.SwingHighs(bars, cfg.SwingLookback)
	swingLows := candles.SwingLows(bars, cfg.SwingLookback)
	if len(swingHighs) == 0 || len(swingLows) == 0 {
		return notDetected(name, "insufficient swing points"), nil
	}

	if cfg.DirectionFilter == "" || cfg.DirectionFilter == "long" {
		if res, ok := d.findBullish(bars, swingHighs, swingLows); ok {
			return res, nil
		}
	}
	if cfg.DirectionFilter == "" || cfg.DirectionFilter == "short" {
		if res, ok := d.findBearish(bars, swingHighs, swingLows); ok {
			return res, nil
		}
	}

	return notDetected(name, "no valid ABCD structure found"), nil
}

// findBullish searches A=swing low, B=swing high, C=higher swing low,
// preferring the most recent C.
func (d *ABCD) findBullish(bars market.Series, swingHighs, swingLows []int) (Result, bool) {
	for ci := len(swingLows) - 1; ci >= 0; ci-- {
		c := swingLows[ci]
		for bi := len(swingHighs) - 1; bi >= 0; bi-- {
			b := swingHighs[bi]
			if b >= c {
				continue
			}
			for _, a := range swingLows {
				if a >= b {
					continue
				}
				if res, ok := d.validateLegs(bars, a, b, c, "long"); ok {
					return res, true
				}
			}
		}
	}
	return Result{}, false
}

// findBearish searches A=swing high, B=swing low, C=lower swing high.
func (d *ABCD) findBearish(bars market.Series, swingHighs, swingLows []int) (Result, bool) {
	for ci := len(swingHighs) - 1; ci >= 0; ci-- {
		c := swingHighs[ci]
		for bi := len(swingLows) - 1; bi >= 0; bi-- {
			b := swingLows[bi]
			if b >= c {
				continue
			}
			for _, a := range swingHighs {
				if a >= b {
					continue
				}
				if res, ok := d.validateLegs(bars, a, b, c, "short"); ok {
					return res, true
				}
			}
		}
	}
	return Result{}, false
}

// validateLegs checks one A/B/C candidate against the leg-size, retracement
// and CD-development bounds, returning the completed Result on success.
func (d *ABCD) validateLegs(bars market.Series, a, b, c int, direction string) (Result, bool) {
	cfg := d.cfg
	n := len(bars)
	current := bars.Last().Close

	// dir is +1 for bullish patterns and -1 for bearish, letting one set of
	// leg equations cover both orientations.
	dir := 1.0
	aPrice := bars[a].Low
	bPrice := bars[b].High
	cPrice := bars[c].Low
	if direction == "short" {
		dir = -1.0
		aPrice = bars[a].High
		bPrice = bars[b].Low
		cPrice = bars[c].High
	}

	abMove := (bPrice - aPrice) * dir
	if abMove <= 0 || abMove/aPrice*100 < cfg.MinLegPct {
		return Result{}, false
	}

	// C must stay inside the AB leg (higher low / lower high).
	if (cPrice-aPrice)*dir <= 0 {
		return Result{}, false
	}

	retracement := (bPrice - cPrice) * dir / abMove
	if retracement < cfg.MinBCRetracement || retracement > cfg.MaxBCRetracement {
		return Result{}, false
	}

	// CD development toward the projected D.
	cdMove := (current - cPrice) * dir
	if cdMove < 0 {
		return Result{}, false
	}
	cdRatio := cdMove / abMove
	if cdRatio < cfg.CDMinCompletion || cdRatio < cfg.CDABRatioMin {
		return Result{}, false
	}
	if cdRatio > cfg.CDABRatioMax {
		// Overshot D: the measured move already completed and ran past it.
		return Result{}, false
	}

	projectedD := cPrice + abMove*dir
	entry := current
	if (current-projectedD)*dir > 0 {
		entry = projectedD
	}
	stop := cPrice - cPrice*cfg.StopBufferPct/100*dir

	confidence := 0.85 - math.Abs(1.0-cdRatio)*0.5 - math.Abs(retracement-0.618)*0.1

	return Result{
		Detected:        true,
		PatternName:     d.Name(),
		Direction:       direction,
		Confidence:      clamp(confidence, 0.50, 0.95),
		EntryPrice:      entry,
		StopPrice:       stop,
		StopDistance:    (entry - stop) * dir,
		PatternStartIdx: a,
		PatternEndIdx:   n - 1,
		Reason:          "ABCD measured move completing at D",
		Details: map[string]float64{
			"a_idx":          float64(a),
			"b_idx":          float64(b),
			"c_idx":          float64(c),
			"a_price":        aPrice,
			"b_price":        bPrice,
			"c_price":        cPrice,
			"projected_d":    projectedD,
			"ab_move":        abMove,
			"bc_retracement": retracement,
			"cd_ab_ratio":    cdRatio,
		},
	}, true
}
