package patterns

import (
	"math"

	"candle-scanner/internal/candles"
	"candle-scanner/internal/market"
)

// ReversalConfig holds the thresholds for short-side reversal detection on
// extended stocks.
type ReversalConfig struct {
	MinExtensionFromOpenPct float64 `json:"min_extension_from_open_pct"` // default 20.0
	MinExtensionFromLowPct  float64 `json:"min_extension_from_low_pct"`  // default 25.0

	VolumeClimaxMultiplier float64 `json:"volume_climax_multiplier"` // default 3.0
	VolumeAvgPeriod        int     `json:"volume_avg_period"`        // default 20

	MinUpperWickRatio  float64 `json:"min_upper_wick_ratio"`  // default 2.0, wick vs body
	MaxBodyPositionPct float64 `json:"max_body_position_pct"` // default 33.0, body in lower third
	MinEngulfRatio     float64 `json:"min_engulf_ratio"`      // default 1.0
	MaxMiddleBodyPct   float64 `json:"max_middle_body_pct"`   // default 30.0, evening star doji bar

	StopBufferPct      float64 `json:"stop_buffer_pct"`       // default 2.0, above recent high
	StopBufferMinCents float64 `json:"stop_buffer_min_cents"` // default 5
	MinRRForSetup      float64 `json:"min_rr_for_setup"`      // default 2.0
	MinBarsRequired    int     `json:"min_bars_required"`     // default 10

	EveningStarWeight      float64 `json:"evening_star_weight"`      // default 0.90
	VolumeClimaxWeight     float64 `json:"volume_climax_weight"`     // default 0.88
	ShootingStarWeight     float64 `json:"shooting_star_weight"`     // default 0.85
	BearishEngulfingWeight float64 `json:"bearish_engulfing_weight"` // default 0.80
}

func DefaultReversalConfig() ReversalConfig {
	return ReversalConfig{
		MinExtensionFromOpenPct: 20.0,
		MinExtensionFromLowPct:  25.0,
		VolumeClimaxMultiplier:  3.0,
		VolumeAvgPeriod:         20,
		MinUpperWickRatio:       2.0,
		MaxBodyPositionPct:      33.0,
		MinEngulfRatio:          1.0,
		MaxMiddleBodyPct:        30.0,
		StopBufferPct:           2.0,
		StopBufferMinCents:      5,
		MinRRForSetup:           2.0,
		MinBarsRequired:         10,
		EveningStarWeight:       0.90,
		VolumeClimaxWeight:      0.88,
		ShootingStarWeight:      0.85,
		BearishEngulfingWeight:  0.80,
	}
}

func (c *ReversalConfig) normalize() {
	def := DefaultReversalConfig()
	if c.MinExtensionFromOpenPct == 0 {
		c.MinExtensionFromOpenPct = def.MinExtensionFromOpenPct
	}
	if c.MinExtensionFromLowPct == 0 {
		c.MinExtensionFromLowPct = def.MinExtensionFromLowPct
	}
	if c.VolumeClimaxMultiplier == 0 {
		c.VolumeClimaxMultiplier = def.VolumeClimaxMultiplier
	}
	if c.VolumeAvgPeriod == 0 {
		c.VolumeAvgPeriod = def.VolumeAvgPeriod
	}
	if c.MinUpperWickRatio == 0 {
		c.MinUpperWickRatio = def.MinUpperWickRatio
	}
	if c.MaxBodyPositionPct == 0 {
		c.MaxBodyPositionPct = def.MaxBodyPositionPct
	}
	if c.MinEngulfRatio == 0 {
		c.MinEngulfRatio = def.MinEngulfRatio
	}
	if c.MaxMiddleBodyPct == 0 {
		c.MaxMiddleBodyPct = def.MaxMiddleBodyPct
	}
	if c.StopBufferPct == 0 {
		c.StopBufferPct = def.StopBufferPct
	}
	if c.StopBufferMinCents == 0 {
		c.StopBufferMinCents = def.StopBufferMinCents
	}
	if c.MinRRForSetup == 0 {
		c.MinRRForSetup = def.MinRRForSetup
	}
	if c.MinBarsRequired == 0 {
		c.MinBarsRequired = def.MinBarsRequired
	}
	if c.EveningStarWeight == 0 {
		c.EveningStarWeight = def.EveningStarWeight
	}
	if c.VolumeClimaxWeight == 0 {
		c.VolumeClimaxWeight = def.VolumeClimaxWeight
	}
	if c.ShootingStarWeight == 0 {
		c.ShootingStarWeight = def.ShootingStarWeight
	}
	if c.BearishEngulfingWeight == 0 {
		c.BearishEngulfingWeight = def.BearishEngulfingWeight
	}
}

// Reversal detects bearish reversal structures at the top of an extended
// intraday run, for short entry. Sub-patterns are evaluated in fixed
// priority order and the first match wins: evening star, volume climax,
// shooting star, bearish engulfing.
type Reversal struct {
	cfg ReversalConfig
}

func NewReversal(cfg ReversalConfig) *Reversal {
	cfg.normalize()
	return &Reversal{cfg: cfg}
}

func (d *Reversal) Name() string { return "Reversal" }

func (d *Reversal) Detect(bars market.Series, ctx *Context) (Result, error) {
	if err := validate(bars); err != nil {
		return Result{}, err
	}
	cfg := d.cfg
	name := d.Name()
	n := len(bars)
	if n < cfg.MinBarsRequired {
		return notDetected(name, "insufficient bars: %d < %d", n, cfg.MinBarsRequired), nil
	}

	sessionOpen := bars[0].Open
	current := bars.Last().Close
	intradayLow := bars.LowestLow(0, n)
	intradayHigh := bars.HighestHigh(0, n)

	fromOpen := market.MovePct(sessionOpen, current)
	if fromOpen < cfg.MinExtensionFromOpenPct {
		return notDetected(name, "not extended: %.1f%% from open < %.1f%%", fromOpen, cfg.MinExtensionFromOpenPct), nil
	}
	fromLow := market.MovePct(intradayLow, intradayHigh)
	if fromLow < cfg.MinExtensionFromLowPct {
		return notDetected(name, "not extended: %.1f%% off the low < %.1f%%", fromLow, cfg.MinExtensionFromLowPct), nil
	}

	checks := []func(market.Series, *Context) (Result, bool){
		d.checkEveningStar,
		d.checkVolumeClimax,
		d.checkShootingStar,
		d.checkBearishEngulfing,
	}
	for _, check := range checks {
		if res, ok := check(bars, ctx); ok {
			return res, nil
		}
	}

	return notDetected(name, "extended but no reversal structure at the high"), nil
}

// stopAboveRecentHigh places the short stop above the high of the last ten
// bars with a percentage buffer floored in cents.
func (d *Reversal) stopAboveRecentHigh(bars market.Series) float64 {
	n := len(bars)
	from := n - 10
	if from < 0 {
		from = 0
	}
	high := bars.HighestHigh(from, n)
	buffer := math.Max(high*d.cfg.StopBufferPct/100, d.cfg.StopBufferMinCents/100)
	return high + buffer
}

// finish applies the shared short-side gates and scoring to a matched
// sub-pattern.
func (d *Reversal) finish(
	bars market.Series, ctx *Context,
	subName string, weight float64, startIdx int,
	volumeConfirmed market.Tristate, volumeBonus float64,
	details map[string]float64,
) (Result, bool) {
	cfg := d.cfg
	n := len(bars)
	entry := bars.Last().Close
	stop := d.stopAboveRecentHigh(bars)
	if stop <= entry {
		return Result{}, false
	}

	// Implied cover target is the session open the extension started from.
	target := bars[0].Open
	if ratio := rewardRisk(entry, stop, target, -1); ratio < cfg.MinRRForSetup {
		return Result{}, false
	}

	aboveVWAP := ctx.aboveVWAP(bars)
	macd := ctx.macdSeries(bars)
	macdPositive := macd.HistogramPositive()

	// Histogram rolling over adds conviction for shorts.
	macdWeakening := market.Unknown
	if macd.Len() >= 2 {
		macdWeakening = market.TristateOf(macd.Histogram[macd.Len()-1] < macd.Histogram[macd.Len()-2])
	}

	sc := newScore(weight*0.65/0.85, 0.90)
	sc.boost(aboveVWAP, 0.06) // room to fall back to VWAP
	sc.boost(macdWeakening, 0.06)
	sc.boostIf(volumeBonus > 0, volumeBonus)

	return Result{
		Detected:           true,
		PatternName:        subName,
		Direction:          "short",
		Confidence:         sc.total(),
		EntryPrice:         entry,
		StopPrice:          stop,
		StopDistance:       stop - entry,
		PatternStartIdx:    startIdx,
		PatternEndIdx:      n - 1,
		AboveVWAP:          aboveVWAP,
		MACDPositive:       macdPositive,
		MACDSlopeUp:        macd.LineSlopeUp(3),
		VolumeConfirmation: volumeConfirmed,
		Reason:             subName + " reversal at extended high",
		Details:            details,
	}, true
}

func (d *Reversal) checkEveningStar(bars market.Series, ctx *Context) (Result, bool) {
	cfg := d.cfg
	n := len(bars)
	if n < 3 {
		return Result{}, false
	}
	bar1, bar2, bar3 := bars[n-3], bars[n-2], bars[n-1]

	if !candles.IsGreen(bar1) || candles.BodyPct(bar1)*100 < 50 {
		return Result{}, false
	}
	if candles.BodyPct(bar2)*100 > cfg.MaxMiddleBodyPct {
		return Result{}, false
	}
	if !candles.IsRed(bar3) {
		return Result{}, false
	}
	midpoint := (bar1.Open + bar1.Close) / 2
	if bar3.Close > midpoint {
		return Result{}, false
	}

	hod := bars.HighestHigh(0, n)
	patternHigh := math.Max(bar1.High, math.Max(bar2.High, bar3.High))
	if hod <= 0 || (hod-patternHigh)/hod*100 > 3.0 {
		return Result{}, false
	}

	return d.finish(bars, ctx, "EveningStar", cfg.EveningStarWeight, n-3,
		market.Unknown, 0, map[string]float64{
			"bar1_body_pct": candles.BodyPct(bar1) * 100,
			"bar2_body_pct": candles.BodyPct(bar2) * 100,
		})
}

func (d *Reversal) checkVolumeClimax(bars market.Series, ctx *Context) (Result, bool) {
	cfg := d.cfg
	n := len(bars)
	if n < 6 {
		return Result{}, false
	}

	// Baseline excludes the candidate bars and zero-volume halt bars.
	sum, count := 0.0, 0
	for _, b := range bars[:n-3] {
		if b.Volume > 0 {
			sum += b.Volume
			count++
		}
	}
	if count == 0 {
		return Result{}, false
	}
	avgVolume := sum / float64(count)

	hod := bars.HighestHigh(0, n)
	for i := n - 3; i < n; i++ {
		bar := bars[i]
		ratio := bar.Volume / avgVolume
		if ratio < cfg.VolumeClimaxMultiplier {
			continue
		}

		// Exhaustion needs a reversal print: red bar, topping tail, or a
		// red bar right after.
		nextRed := i+1 < n && candles.IsRed(bars[i+1])
		if !candles.IsRed(bar) && !hasToppingTail(bar) && !nextRed {
			continue
		}
		if hod <= 0 || (hod-bar.High)/hod*100 > 5.0 {
			continue
		}

		return d.finish(bars, ctx, "VolumeClimax", cfg.VolumeClimaxWeight, i,
			market.True, 0.05, map[string]float64{
				"volume_ratio":  ratio,
				"avg_volume":    avgVolume,
				"climax_volume": bar.Volume,
			})
	}
	return Result{}, false
}

func (d *Reversal) checkShootingStar(bars market.Series, ctx *Context) (Result, bool) {
	cfg := d.cfg
	n := len(bars)
	if n < 4 {
		return Result{}, false
	}
	bar := bars.Last()

	green := 0
	for _, b := range bars[n-4 : n-1] {
		if candles.IsGreen(b) {
			green++
		}
	}
	if green < 2 {
		return Result{}, false
	}

	if bar.Range() < 0.01 {
		return Result{}, false
	}
	body := math.Max(bar.Body(), 0.005)
	if candles.UpperWick(bar)/body < cfg.MinUpperWickRatio {
		return Result{}, false
	}

	bodyBottom := math.Min(bar.Open, bar.Close)
	if (bodyBottom-bar.Low)/bar.Range()*100 > cfg.MaxBodyPositionPct {
		return Result{}, false
	}

	hod := bars.HighestHigh(0, n)
	if hod <= 0 || (hod-bar.High)/hod*100 > 3.0 {
		return Result{}, false
	}

	return d.finish(bars, ctx, "ShootingStar", cfg.ShootingStarWeight, n-4,
		market.Unknown, 0, map[string]float64{
			"upper_wick_ratio": candles.UpperWick(bar) / body,
			"green_bars_prior": float64(green),
		})
}

func (d *Reversal) checkBearishEngulfing(bars market.Series, ctx *Context) (Result, bool) {
	cfg := d.cfg
	n := len(bars)
	if n < 2 {
		return Result{}, false
	}
	prev, curr := bars[n-2], bars[n-1]

	if !candles.IsGreen(prev) || !candles.IsRed(curr) {
		return Result{}, false
	}
	if curr.Open < prev.Close || curr.Close > prev.Open {
		return Result{}, false
	}
	engulfRatio := 1.0
	if prev.Body() > 0 {
		engulfRatio = curr.Body() / prev.Body()
	}
	if engulfRatio < cfg.MinEngulfRatio {
		return Result{}, false
	}

	hod := bars.HighestHigh(0, n)
	if hod <= 0 || (hod-prev.High)/hod*100 > 5.0 {
		return Result{}, false
	}

	return d.finish(bars, ctx, "BearishEngulfing", cfg.BearishEngulfingWeight, n-2,
		market.Unknown, 0, map[string]float64{
			"engulf_ratio": engulfRatio,
		})
}

// hasToppingTail reports a long upper wick with the body in the lower part
// of the range.
func hasToppingTail(b market.Bar) bool {
	if b.Range() < 0.01 {
		return false
	}
	body := math.Max(b.Body(), 0.005)
	return candles.UpperWick(b)/body >= 1.5 && candles.BodyPosition(b) <= 0.4
}
