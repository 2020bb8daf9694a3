package patterns

import (
	"time"

	"candle-scanner/internal/candles"
	"candle-scanner/internal/exits"
	"candle-scanner/internal/market"
)

// ORB-specific exit signal types, layered on top of the shared set.
const (
	SignalWindowExit       = "window_exit"
	SignalORBReentry       = "orb_reentry"
	SignalORBOppositeBreak = "orb_opposite_break"
)

// OpeningRangeConfig tunes the opening range retest detector. Built for
// liquid index ETFs during the first 90 minutes of the session.
type OpeningRangeConfig struct {
	OpeningRangeMinutes int `json:"opening_range_minutes"` // default 5
	SetupWindowMinutes  int `json:"setup_window_minutes"`  // default 90

	DisplacementORPct    float64 `json:"displacement_or_pct"`    // default 0.20 of OR range
	DisplacementMinCents float64 `json:"displacement_min_cents"` // default 5 cents
	MinBodyPct           float64 `json:"min_body_pct"`           // default 50

	// "close" requires the bar to close beyond the displacement level;
	// "high" triggers on a wick touch.
	BreakoutTrigger string `json:"breakout_trigger"` // default "close"

	RetestZoneORPct float64 `json:"retest_zone_or_pct"` // default 0.20 of OR range

	// "strict" rejects breakouts without a fair value gap, "preferred"
	// accepts them when the breakout closes beyond the prior bar, "off"
	// skips the check entirely.
	FVGRequirement string `json:"fvg_requirement"` // default "preferred"

	// Only the first valid retest of the session should trade. Detect is
	// stateless over one series, so suppressing repeats after a fill is the
	// position-holding caller's job; the knob travels with the config the
	// way the other session rules do. Nil means true.
	OneShot *bool `json:"one_shot"`

	StopBufferORPct float64 `json:"stop_buffer_or_pct"` // default 0.15 of OR range

	// Trend alignment on a resampled EMA slope.
	TrendAlignment       *bool `json:"trend_alignment"`       // nil means true
	TrendTimeframeMin    int  `json:"trend_timeframe_min"`    // default 5
	TrendEMAPeriod       int  `json:"trend_ema_period"`       // default 9
	TrendLookbackBars    int  `json:"trend_lookback_bars"`    // default 3
	MinOpeningVolume     float64 `json:"min_opening_volume"`  // 0 disables
	OpeningVolumeMinutes int  `json:"opening_volume_minutes"` // default 15

	// Optional filters, off by default. The fakeout filter invalidates a
	// setup when any post-breakout bar closes back inside the range; the
	// clean-handle filter wants one bar entirely beyond the OR level
	// before the retest.
	FakeoutFilter             bool `json:"fakeout_filter"`
	InvalidateOnOppositeBreak bool `json:"invalidate_on_opposite_break"`
	RequireCleanBreakoutBar   bool `json:"require_clean_breakout_bar"`

	// "basic" accepts the reclaim itself; "strict" additionally wants an
	// engulfing or pinbar shape on the confirmation bar.
	ConfirmationMode string  `json:"confirmation_mode"`  // default "basic"
	ConfirmBodyRatio float64 `json:"confirm_body_ratio"` // default 0.8
	ConfirmWickRatio float64 `json:"confirm_wick_ratio"` // default 2.0

	// Minimum MACD histogram magnitude at entry. 0 disables.
	MinHistogramThreshold float64 `json:"min_histogram_threshold"`

	MACDExitConfirmationBars int  `json:"macd_exit_confirmation_bars"` // default 2
	DisableMACDExit          bool `json:"disable_macd_exit"`

	// Average red-bar volume during the pullback must stay under the
	// bounce bar's volume.
	RequireHealthyPullbackVolume *bool `json:"require_healthy_pullback_volume"` // nil means true
}

func DefaultOpeningRangeConfig() OpeningRangeConfig {
	return OpeningRangeConfig{
		OpeningRangeMinutes:          5,
		SetupWindowMinutes:           90,
		DisplacementORPct:            0.20,
		DisplacementMinCents:         5,
		MinBodyPct:                   50,
		BreakoutTrigger:              "close",
		RetestZoneORPct:              0.20,
		FVGRequirement:               "preferred",
		OneShot:                      ptrBool(true),
		StopBufferORPct:              0.15,
		TrendAlignment:               ptrBool(true),
		TrendTimeframeMin:            5,
		TrendEMAPeriod:               9,
		TrendLookbackBars:            3,
		OpeningVolumeMinutes:         15,
		ConfirmationMode:             "basic",
		ConfirmBodyRatio:             0.8,
		ConfirmWickRatio:             2.0,
		MACDExitConfirmationBars:     2,
		RequireHealthyPullbackVolume: ptrBool(true),
	}
}

func (c *OpeningRangeConfig) normalize() {
	def := DefaultOpeningRangeConfig()
	if c.OpeningRangeMinutes == 0 {
		c.OpeningRangeMinutes = def.OpeningRangeMinutes
	}
	if c.SetupWindowMinutes == 0 {
		c.SetupWindowMinutes = def.SetupWindowMinutes
	}
	if c.DisplacementORPct == 0 {
		c.DisplacementORPct = def.DisplacementORPct
	}
	if c.DisplacementMinCents == 0 {
		c.DisplacementMinCents = def.DisplacementMinCents
	}
	if c.MinBodyPct == 0 {
		c.MinBodyPct = def.MinBodyPct
	}
	if c.BreakoutTrigger == "" {
		c.BreakoutTrigger = def.BreakoutTrigger
	}
	if c.RetestZoneORPct == 0 {
		c.RetestZoneORPct = def.RetestZoneORPct
	}
	if c.FVGRequirement == "" {
		c.FVGRequirement = def.FVGRequirement
	}
	if c.StopBufferORPct == 0 {
		c.StopBufferORPct = def.StopBufferORPct
	}
	if c.TrendTimeframeMin == 0 {
		c.TrendTimeframeMin = def.TrendTimeframeMin
	}
	if c.TrendEMAPeriod == 0 {
		c.TrendEMAPeriod = def.TrendEMAPeriod
	}
	if c.TrendLookbackBars == 0 {
		c.TrendLookbackBars = def.TrendLookbackBars
	}
	if c.OpeningVolumeMinutes == 0 {
		c.OpeningVolumeMinutes = def.OpeningVolumeMinutes
	}
	if c.ConfirmationMode == "" {
		c.ConfirmationMode = def.ConfirmationMode
	}
	if c.ConfirmBodyRatio == 0 {
		c.ConfirmBodyRatio = def.ConfirmBodyRatio
	}
	if c.ConfirmWickRatio == 0 {
		c.ConfirmWickRatio = def.ConfirmWickRatio
	}
	if c.MACDExitConfirmationBars == 0 {
		c.MACDExitConfirmationBars = def.MACDExitConfirmationBars
	}
	if c.OneShot == nil {
		c.OneShot = def.OneShot
	}
	if c.TrendAlignment == nil {
		c.TrendAlignment = def.TrendAlignment
	}
	if c.RequireHealthyPullbackVolume == nil {
		c.RequireHealthyPullbackVolume = def.RequireHealthyPullbackVolume
	}
}

// OpeningRangeRetest detects a displacement breakout of the opening range
// followed by a pullback into the retest zone and a reclaim of the level.
type OpeningRangeRetest struct {
	cfg OpeningRangeConfig
}

func NewOpeningRangeRetest(cfg OpeningRangeConfig) *OpeningRangeRetest {
	cfg.normalize()
	return &OpeningRangeRetest{cfg: cfg}
}

func (d *OpeningRangeRetest) Name() string { return "OpeningRangeRetest" }

// openingRange is the resolved 9:30 range for one session.
type openingRange struct {
	high     float64
	low      float64
	size     float64
	startIdx int // first session bar
	endIdx   int // first bar after the range, exclusive
}

func (d *OpeningRangeRetest) resolveRange(bars market.Series, firstIdx int, orEnd time.Time, loc *time.Location) (openingRange, bool) {
	or := openingRange{startIdx: firstIdx, endIdx: firstIdx}
	count := 0
	for i := firstIdx; i < len(bars); i++ {
		ts := bars[i].Time.In(loc)
		if !ts.Before(orEnd) {
			break
		}
		b := bars[i]
		if count == 0 {
			or.high, or.low = b.High, b.Low
		} else {
			if b.High > or.high {
				or.high = b.High
			}
			if b.Low < or.low {
				or.low = b.Low
			}
		}
		count++
		or.endIdx = i + 1
	}
	if count < d.cfg.OpeningRangeMinutes {
		return or, false
	}
	or.size = or.high - or.low
	return or, or.size > 0
}

func (d *OpeningRangeRetest) Detect(bars market.Series, ctx *Context) (Result, error) {
	if err := validate(bars); err != nil {
		return Result{}, err
	}
	name := d.Name()
	loc := ctx.location()
	now := ctx.now(bars).In(loc)

	orStart := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, loc)
	orEnd := orStart.Add(time.Duration(d.cfg.OpeningRangeMinutes) * time.Minute)
	windowEnd := orStart.Add(time.Duration(d.cfg.SetupWindowMinutes) * time.Minute)

	if now.Before(orEnd) {
		return notDetected(name, "waiting for opening range to form"), nil
	}
	if now.After(windowEnd) {
		return notDetected(name, "outside %d-minute setup window", d.cfg.SetupWindowMinutes), nil
	}

	// Session bars only: everything from the open through the current bar.
	firstIdx := -1
	for i, b := range bars {
		ts := b.Time.In(loc)
		if !ts.Before(orStart) && !ts.After(windowEnd) {
			firstIdx = i
			break
		}
	}
	if firstIdx < 0 {
		return notDetected(name, "no session bars in setup window"), nil
	}

	or, ok := d.resolveRange(bars, firstIdx, orEnd, loc)
	if !ok {
		return notDetected(name, "insufficient opening range bars"), nil
	}

	if d.cfg.MinOpeningVolume > 0 {
		volEnd := orStart.Add(time.Duration(d.cfg.OpeningVolumeMinutes) * time.Minute)
		sum := 0.0
		for i := firstIdx; i < len(bars) && bars[i].Time.In(loc).Before(volEnd); i++ {
			sum += bars[i].Volume
		}
		if sum < d.cfg.MinOpeningVolume {
			return notDetected(name, "insufficient opening volume %.0f < %.0f", sum, d.cfg.MinOpeningVolume), nil
		}
	}

	displacement := or.size * d.cfg.DisplacementORPct
	if min := d.cfg.DisplacementMinCents / 100; displacement < min {
		displacement = min
	}

	breakoutIdx, direction, fvgFound, confirmed := d.findBreakout(bars, or, displacement, orEnd, loc)
	if breakoutIdx < 0 {
		return notDetected(name, "no displacement breakout"), nil
	}
	dir := 1.0
	if direction == "short" {
		dir = -1.0
	}
	level := or.high
	if direction == "short" {
		level = or.low
	}

	if d.cfg.FakeoutFilter {
		for i := breakoutIdx + 1; i < len(bars); i++ {
			if (bars[i].Close-level)*dir < 0 {
				return notDetected(name, "same-side fakeout: bar %d closed back inside range", i-breakoutIdx), nil
			}
		}
	}

	if d.cfg.InvalidateOnOppositeBreak {
		opposite := or.low
		if direction == "short" {
			opposite = or.high
		}
		for i := or.endIdx; i < len(bars); i++ {
			if (bars[i].Close-opposite)*dir <= 0 {
				return notDetected(name, "breakout invalidated: price crossed the opposite side of the range"), nil
			}
		}
	}

	if d.cfg.RequireCleanBreakoutBar {
		clean := false
		for i := breakoutIdx + 1; i < len(bars); i++ {
			if direction == "long" && bars[i].Low > or.high {
				clean = true
				break
			}
			if direction == "short" && bars[i].High < or.low {
				clean = true
				break
			}
		}
		if !clean {
			return notDetected(name, "no clean handle: no bar fully beyond the range before retest"), nil
		}
	}

	if *d.cfg.TrendAlignment && !d.trendAligned(bars[firstIdx:], direction, loc) {
		return notDetected(name, "trend alignment failed"), nil
	}

	zone := or.size * d.cfg.RetestZoneORPct
	stopBuffer := or.size * d.cfg.StopBufferORPct
	entry := level
	stop := level - stopBuffer*dir

	// The retest must be happening now: prev bar is the completed bounce,
	// the current bar contributes only its open.
	n := len(bars)
	if n-firstIdx < 2 {
		return notDetected(name, "insufficient bars for retest"), nil
	}
	prevBar := bars[n-2]
	entryBar := bars[n-1]
	if breakoutIdx >= n-2 {
		return notDetected(name, "no retest: breakout too recent for a pullback"), nil
	}

	// Pullback must actually touch the retest zone between the breakout
	// and the bounce bar.
	pullbackStart := -1
	for i := breakoutIdx + 1; i < n-2; i++ {
		if direction == "long" && bars[i].Low <= level+zone {
			pullbackStart = i
			break
		}
		if direction == "short" && bars[i].High >= level-zone {
			pullbackStart = i
			break
		}
	}
	if pullbackStart < 0 {
		return notDetected(name, "no retest: price never pulled back to zone [%.2f, %.2f]", level-zone, level+zone), nil
	}

	// Reclaim: bounce bar closed back beyond the level, or the current bar
	// gapped open beyond it. The bounce bar must also point the right way.
	reclaimed := (prevBar.Close-level)*dir > 0 || (entryBar.Open-level)*dir > 0
	if !reclaimed {
		return notDetected(name, "no retest: prev close %.2f, curr open %.2f did not reclaim %.2f", prevBar.Close, entryBar.Open, level), nil
	}
	if direction == "long" && !candles.IsGreen(prevBar) {
		return notDetected(name, "no retest: confirmation bar not bullish"), nil
	}
	if direction == "short" && !candles.IsRed(prevBar) {
		return notDetected(name, "no retest: confirmation bar not bearish"), nil
	}

	if d.cfg.ConfirmationMode == "strict" && !d.strictConfirmation(prevBar, entryBar, level, direction) {
		return notDetected(name, "no confirmation: need engulfing or pinbar at %.2f", level), nil
	}

	macd := ctx.macdSeries(bars)
	if d.cfg.MinHistogramThreshold > 0 {
		if macd == nil {
			return notDetected(name, "histogram gate: MACD undefined"), nil
		}
		hist := macd.Histogram[macd.Len()-1]
		if hist*dir < d.cfg.MinHistogramThreshold {
			return notDetected(name, "histogram gate: %.4f below threshold %.4f", hist*dir, d.cfg.MinHistogramThreshold), nil
		}
	}

	volumeHealthy := market.Unknown
	if *d.cfg.RequireHealthyPullbackVolume {
		volumeHealthy = pullbackVolumeHealthy(bars, pullbackStart, n-2, prevBar.Volume)
		if volumeHealthy.IsFalse() {
			return notDetected(name, "pullback volume filter: selling volume outweighs the bounce"), nil
		}
	}

	sc := newScore(0.75, 0.95)
	sc.boostIf(fvgFound, 0.10)
	sc.boostIf(confirmed, 0.05)
	sc.boostIf(*d.cfg.TrendAlignment, 0.05)

	res := Result{
		Detected:           true,
		PatternName:        name,
		Direction:          direction,
		Confidence:         sc.total(),
		EntryPrice:         entry,
		StopPrice:          stop,
		StopDistance:       (entry - stop) * dir,
		PatternStartIdx:    firstIdx,
		PatternEndIdx:      n - 1,
		AboveVWAP:          ctx.aboveVWAP(bars),
		VolumeConfirmation: volumeHealthy,
		Reason:             "opening range retest",
		Details: map[string]float64{
			"or_high":      or.high,
			"or_low":       or.low,
			"or_range":     or.size,
			"breakout_idx": float64(breakoutIdx),
			"displacement": displacement,
			"zone_low":     level - zone,
			"zone_high":    level + zone,
		},
	}
	if fvgFound {
		res.Details["fvg"] = 1
	}
	if macd != nil {
		res.MACDPositive = macd.HistogramPositive()
		res.MACDSlopeUp = macd.LineSlopeUp(3)
	}
	return res, nil
}

// findBreakout returns the first displacement bar after the range forms.
// confirmed reports a close beyond the prior bar when no FVG was present.
func (d *OpeningRangeRetest) findBreakout(bars market.Series, or openingRange, displacement float64, orEnd time.Time, loc *time.Location) (idx int, direction string, fvg, confirmed bool) {
	useHigh := d.cfg.BreakoutTrigger == "high"
	for i := or.endIdx; i < len(bars); i++ {
		if bars[i].Time.In(loc).Before(orEnd) {
			continue
		}
		if i == 0 {
			continue
		}
		b, prev := bars[i], bars[i-1]
		if candles.BodyPct(b)*100 < d.cfg.MinBodyPct {
			continue
		}

		longTrigger := b.Close
		shortTrigger := b.Close
		if useHigh {
			longTrigger, shortTrigger = b.High, b.Low
		}

		if longTrigger > or.high+displacement {
			gap := prev.High < b.Low
			if !gap {
				if d.cfg.FVGRequirement == "strict" {
					continue
				}
				if b.Close <= prev.High {
					continue
				}
				return i, "long", false, true
			}
			return i, "long", true, false
		}
		if shortTrigger < or.low-displacement {
			gap := prev.Low > b.High
			if !gap {
				if d.cfg.FVGRequirement == "strict" {
					continue
				}
				if b.Close >= prev.Low {
					continue
				}
				return i, "short", false, true
			}
			return i, "short", true, false
		}
	}
	return -1, "", false, false
}

// strictConfirmation wants the entry bar shaped like an engulfing or a
// pinbar rejection at the retested level.
func (d *OpeningRangeRetest) strictConfirmation(prevBar, currBar market.Bar, level float64, direction string) bool {
	body := currBar.Body()
	prevBody := prevBar.Body()
	lowerWick := candles.LowerWick(currBar)
	upperWick := candles.UpperWick(currBar)

	if direction == "long" {
		engulfing := candles.IsGreen(currBar) &&
			body >= prevBody*d.cfg.ConfirmBodyRatio &&
			currBar.Close >= prevBar.High
		pinbar := body > 0 &&
			lowerWick >= d.cfg.ConfirmWickRatio*body &&
			upperWick <= d.cfg.ConfirmWickRatio*body &&
			currBar.Low <= level &&
			candles.IsGreen(currBar)
		return engulfing || pinbar
	}
	engulfing := candles.IsRed(currBar) &&
		body >= prevBody*d.cfg.ConfirmBodyRatio &&
		currBar.Close <= prevBar.Low
	pinbar := body > 0 &&
		upperWick >= d.cfg.ConfirmWickRatio*body &&
		lowerWick <= d.cfg.ConfirmWickRatio*body &&
		currBar.High >= level &&
		candles.IsRed(currBar)
	return engulfing || pinbar
}

// pullbackVolumeHealthy compares average red-bar volume over [from, to)
// against the bounce bar volume. Weak selling into a strong bounce passes.
func pullbackVolumeHealthy(bars market.Series, from, to int, bounceVolume float64) market.Tristate {
	if bounceVolume <= 0 || to <= from {
		return market.Unknown
	}
	sum, count := 0.0, 0
	for i := from; i < to; i++ {
		if candles.IsRed(bars[i]) {
			sum += bars[i].Volume
			count++
		}
	}
	if count == 0 {
		return market.True
	}
	return market.TristateOf(sum/float64(count) < bounceVolume)
}

// trendAligned resamples session closes to the trend timeframe and checks
// the EMA slope over the lookback.
func (d *OpeningRangeRetest) trendAligned(session market.Series, direction string, loc *time.Location) bool {
	tf := time.Duration(d.cfg.TrendTimeframeMin) * time.Minute

	// Last close per timeframe bucket. Bars are ordered, so a simple
	// overwrite per bucket keeps the final close.
	var closes []float64
	var lastBucket time.Time
	for _, b := range session {
		bucket := b.Time.In(loc).Truncate(tf)
		if len(closes) == 0 || !bucket.Equal(lastBucket) {
			closes = append(closes, b.Close)
			lastBucket = bucket
		} else {
			closes[len(closes)-1] = b.Close
		}
	}

	period, lookback := d.cfg.TrendEMAPeriod, d.cfg.TrendLookbackBars
	if len(closes) < period+lookback {
		return false
	}

	// Recursive EMA seeded with the first close.
	alpha := 2.0 / (float64(period) + 1)
	ema := make([]float64, len(closes))
	ema[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		ema[i] = closes[i]*alpha + ema[i-1]*(1-alpha)
	}
	slope := ema[len(ema)-1] - ema[len(ema)-1-lookback]

	if direction == "short" {
		return slope < 0
	}
	return slope > 0
}

// ExitSignals layers the ORB invalidation exits on the shared evaluator:
// setup window expiry, re-entry into the range, and an opposite-side break.
func (d *OpeningRangeRetest) ExitSignals(bars market.Series, pos exits.Position, ctx *Context) []exits.Signal {
	cfg := exits.DefaultConfig()
	cfg.MACDConfirmationBars = d.cfg.MACDExitConfirmationBars

	var signals []exits.Signal
	if d.cfg.DisableMACDExit {
		for _, s := range exits.Evaluate(bars, pos, ctx.vwapSeries(bars), ctx.macdSeries(bars), cfg) {
			if s.Type != exits.SignalMACDCross {
				signals = append(signals, s)
			}
		}
	} else {
		signals = exits.Evaluate(bars, pos, ctx.vwapSeries(bars), ctx.macdSeries(bars), cfg)
	}

	loc := ctx.location()
	now := ctx.now(bars).In(loc)
	marketOpen := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, loc)

	// Fire one minute early so the exit order can fill on the next bar.
	sinceOpen := now.Sub(marketOpen).Minutes()
	if sinceOpen >= float64(d.cfg.SetupWindowMinutes-1) {
		signals = append(signals, exits.Signal{
			Type:      SignalWindowExit,
			Triggered: true,
			Reason:    "ORB window expired at " + now.Format("15:04"),
			BarIdx:    len(bars) - 1,
			Price:     bars.Last().Close,
		})
		return signals
	}

	if pos.EntryIdx >= len(bars)-1 {
		return signals
	}

	entryTime := bars[pos.EntryIdx].Time.In(loc)
	orStart := time.Date(entryTime.Year(), entryTime.Month(), entryTime.Day(), 9, 30, 0, 0, loc)
	orEnd := orStart.Add(time.Duration(d.cfg.OpeningRangeMinutes) * time.Minute)

	firstIdx := -1
	for i, b := range bars {
		if !b.Time.In(loc).Before(orStart) {
			firstIdx = i
			break
		}
	}
	if firstIdx < 0 {
		return signals
	}
	or, ok := d.resolveRange(bars, firstIdx, orEnd, loc)
	if !ok {
		return signals
	}

	displacement := or.size * d.cfg.DisplacementORPct
	if min := d.cfg.DisplacementMinCents / 100; displacement < min {
		displacement = min
	}
	invalidLevel := or.size * d.cfg.RetestZoneORPct

	long := pos.EntryPrice >= or.high
	for i := pos.EntryIdx + 1; i < len(bars); i++ {
		close := bars[i].Close
		if long {
			if close <= or.high-invalidLevel {
				signals = append(signals, exits.Signal{
					Type:      SignalORBReentry,
					Triggered: true,
					Reason:    "ORB invalidation: re-entered opening range",
					BarIdx:    i,
					Price:     close,
				})
				break
			}
			if close < or.low-displacement {
				signals = append(signals, exits.Signal{
					Type:      SignalORBOppositeBreak,
					Triggered: true,
					Reason:    "ORB invalidation: broke below range",
					BarIdx:    i,
					Price:     close,
				})
				break
			}
			continue
		}
		if close >= or.low+invalidLevel {
			signals = append(signals, exits.Signal{
				Type:      SignalORBReentry,
				Triggered: true,
				Reason:    "ORB invalidation: re-entered opening range",
				BarIdx:    i,
				Price:     close,
			})
			break
		}
		if close > or.high+displacement {
			signals = append(signals, exits.Signal{
				Type:      SignalORBOppositeBreak,
				Triggered: true,
				Reason:    "ORB invalidation: broke above range",
				BarIdx:    i,
				Price:     close,
			})
			break
		}
	}
	return signals
}
