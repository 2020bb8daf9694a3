package patterns

import (
	"math"

	"candle-scanner/internal/indicators"
	"candle-scanner/internal/market"
)

// BullFlagConfig holds the thresholds for bull flag detection. Prior moves
// under the pole minimum with shallow pullbacks belong to MicroPullback.
type BullFlagConfig struct {
	MinPoleMovePct  float64 `json:"min_pole_move_pct"` // default 15.0
	MinPoleCandles  int     `json:"min_pole_candles"`  // default 3
	MaxPoleCandles  int     `json:"max_pole_candles"`  // default 10
	MinFlagCandles  int     `json:"min_flag_candles"`  // default 1
	MaxFlagCandles  int     `json:"max_flag_candles"`  // default 3
	MinPullbackPct  float64 `json:"min_pullback_pct"`  // default 10.0, % of pole
	MaxPullbackPct  float64 `json:"max_pullback_pct"`  // default 25.0
	MaxFlagRangePct float64 `json:"max_flag_range_pct"` // default 15.0

	VolumeTickLeeway float64 `json:"volume_tick_leeway"` // default 1.10, max bar-over-bar volume ratio

	StopBufferPct        float64 `json:"stop_buffer_pct"`         // default 0.5, % of flag low
	StopBufferMinCents   float64 `json:"stop_buffer_min_cents"`   // default 5
	MaxEntryDeviationPct float64 `json:"max_entry_deviation_pct"` // default 5.0
	MinRRForSetup        float64 `json:"min_rr_for_setup"`        // default 2.0
	MinBarsRequired      int     `json:"min_bars_required"`       // default 8
}

func DefaultBullFlagConfig() BullFlagConfig {
	return BullFlagConfig{
		MinPoleMovePct:       15.0,
		MinPoleCandles:       3,
		MaxPoleCandles:       10,
		MinFlagCandles:       1,
		MaxFlagCandles:       3,
		MinPullbackPct:       10.0,
		MaxPullbackPct:       25.0,
		MaxFlagRangePct:      15.0,
		VolumeTickLeeway:     1.10,
		StopBufferPct:        0.5,
		StopBufferMinCents:   5,
		MaxEntryDeviationPct: 5.0,
		MinRRForSetup:        2.0,
		MinBarsRequired:      8,
	}
}

func (c *BullFlagConfig) normalize() {
	def := DefaultBullFlagConfig()
	if c.MinPoleMovePct == 0 {
		c.MinPoleMovePct = def.MinPoleMovePct
	}
	if c.MinPoleCandles == 0 {
		c.MinPoleCandles = def.MinPoleCandles
	}
	if c.MaxPoleCandles == 0 {
		c.MaxPoleCandles = def.MaxPoleCandles
	}
	if c.MinFlagCandles == 0 {
		c.MinFlagCandles = def.MinFlagCandles
	}
	if c.MaxFlagCandles == 0 {
		c.MaxFlagCandles = def.MaxFlagCandles
	}
	if c.MinPullbackPct == 0 {
		c.MinPullbackPct = def.MinPullbackPct
	}
	if c.MaxPullbackPct == 0 {
		c.MaxPullbackPct = def.MaxPullbackPct
	}
	if c.MaxFlagRangePct == 0 {
		c.MaxFlagRangePct = def.MaxFlagRangePct
	}
	if c.VolumeTickLeeway == 0 {
		c.VolumeTickLeeway = def.VolumeTickLeeway
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
}

// BullFlag detects a strong vertical pole followed by a tight 1-3 bar flag
// with fading volume, entered on a confirmed break above the flag high.
type BullFlag struct {
	cfg BullFlagConfig
}

func NewBullFlag(cfg BullFlagConfig) *BullFlag {
	cfg.normalize()
	return &BullFlag{cfg: cfg}
}

func (d *BullFlag) Name() string { return "BullFlag" }

func (d *BullFlag) Detect(bars market.Series, ctx *Context) (Result, error) {
	if err := validate(bars); err != nil {
		return Result{}, err
	}
	cfg := d.cfg
	name := d.Name()
	n := len(bars)
	if n < cfg.MinBarsRequired {
		return notDetected(name, "insufficient bars: %d < %d", n, cfg.MinBarsRequired), nil
	}

	flagStart, flagEnd, flagHigh, flagLow, ok := d.findFlag(bars)
	if !ok {
		return notDetected(name, "no valid flag consolidation found"), nil
	}

	poleStart, poleEnd, poleMovePct, ok := d.findPole(bars, flagStart)
	if !ok {
		return notDetected(name, "no valid pole found before flag"), nil
	}

	poleHigh := bars.HighestHigh(poleStart, poleEnd+1)
	pullbackPct := math.Abs(market.MovePct(poleHigh, flagLow))
	if pullbackPct < cfg.MinPullbackPct {
		return notDetected(name, "pullback too shallow: %.1f%% < %.1f%%", pullbackPct, cfg.MinPullbackPct), nil
	}
	if pullbackPct > cfg.MaxPullbackPct {
		return notDetected(name, "pullback too deep: %.1f%% > %.1f%%", pullbackPct, cfg.MaxPullbackPct), nil
	}

	// Breakout confirmed without lookahead: the completed previous bar
	// closed above the flag high, or the current bar gapped open above it.
	prevBar := bars[n-2]
	entryBar := bars.Last()
	if prevBar.Close <= flagHigh && entryBar.Open <= flagHigh {
		return notDetected(name, "no confirmed breakout above flag high %.2f", flagHigh), nil
	}

	entry := flagHigh + 0.01
	current := entryBar.Close
	if entry > current*(1+cfg.MaxEntryDeviationPct/100) {
		return notDetected(name, "entry %.2f too far from current %.2f", entry, current), nil
	}

	buffer := math.Max(flagLow*cfg.StopBufferPct/100, cfg.StopBufferMinCents/100)
	stop := flagLow - buffer

	target := entry * (1 + poleMovePct/100)
	if ratio := rewardRisk(entry, stop, target, 1); ratio < cfg.MinRRForSetup {
		return notDetected(name, "reward:risk %.1f below %.1f", ratio, cfg.MinRRForSetup), nil
	}

	volumeDeclining := d.flagVolumeDeclining(bars, poleEnd, flagStart, flagEnd)

	aboveVWAP := ctx.aboveVWAP(bars)
	above9EMA := market.Unknown
	if n >= 9 {
		above9EMA = market.TristateOf(current > indicators.CalculateEMA(bars, 9))
	}
	macd := ctx.macdSeries(bars)
	macdPositive := macd.HistogramPositive()
	macdSlopeUp := macd.LineSlopeUp(3)

	sc := newScore(0.65, 0.90)
	sc.boost(volumeDeclining, 0.10)
	sc.boost(aboveVWAP, 0.08)
	sc.boost(above9EMA, 0.06)
	sc.boost(macdPositive, 0.08)
	sc.boost(macdSlopeUp, 0.04)

	return Result{
		Detected:           true,
		PatternName:        name,
		Direction:          "long",
		Confidence:         sc.total(),
		EntryPrice:         entry,
		StopPrice:          stop,
		StopDistance:       entry - stop,
		PatternStartIdx:    poleStart,
		PatternEndIdx:      n - 1,
		AboveVWAP:          aboveVWAP,
		MACDPositive:       macdPositive,
		MACDSlopeUp:        macdSlopeUp,
		VolumeConfirmation: volumeDeclining,
		Reason:             "bull flag breakout",
		Details: map[string]float64{
			"pole_move_pct": poleMovePct,
			"pullback_pct":  pullbackPct,
			"pole_candles":  float64(poleEnd - poleStart + 1),
			"flag_candles":  float64(flagEnd - flagStart + 1),
			"flag_high":     flagHigh,
			"flag_low":      flagLow,
		},
	}, nil
}

// findFlag looks for a tight consolidation ending just before the breakout
// candle.
func (d *BullFlag) findFlag(bars market.Series) (start, end int, high, low float64, ok bool) {
	cfg := d.cfg
	n := len(bars)
	for flagLen := cfg.MinFlagCandles; flagLen <= cfg.MaxFlagCandles && flagLen < n-3; flagLen++ {
		start = n - flagLen - 1
		end = n - 2
		if start < 3 {
			continue
		}
		high = bars.HighestHigh(start, end+1)
		low = bars.LowestLow(start, end+1)
		if market.MovePct(low, high) < cfg.MaxFlagRangePct {
			return start, end, high, low, true
		}
	}
	return 0, 0, 0, 0, false
}

// findPole looks for a strong vertical move ending where the flag starts.
func (d *BullFlag) findPole(bars market.Series, flagStart int) (start, end int, movePct float64, ok bool) {
	cfg := d.cfg
	end = flagStart - 1
	if end < cfg.MinPoleCandles {
		return 0, 0, 0, false
	}
	for poleLen := cfg.MinPoleCandles; poleLen <= cfg.MaxPoleCandles && poleLen <= end+1; poleLen++ {
		start = end - poleLen + 1
		low := bars.LowestLow(start, end+1)
		high := bars.HighestHigh(start, end+1)
		movePct = market.MovePct(low, high)
		if movePct >= cfg.MinPoleMovePct {
			return start, end, movePct, true
		}
	}
	return 0, 0, 0, false
}

// flagVolumeDeclining checks volume fading through the flag, starting from
// the pole's final bar. A single tick up within the leeway is tolerated, but
// the sequence must still decline net, so consecutive leeway-sized increases
// compound past the start and fail.
func (d *BullFlag) flagVolumeDeclining(bars market.Series, poleEnd, flagStart, flagEnd int) market.Tristate {
	vols := []float64{bars[poleEnd].Volume}
	for i := flagStart; i <= flagEnd; i++ {
		vols = append(vols, bars[i].Volume)
	}
	if len(vols) < 2 {
		return market.Unknown
	}
	for i := 1; i < len(vols); i++ {
		if vols[i] > vols[i-1]*d.cfg.VolumeTickLeeway {
			return market.False
		}
	}
	return market.TristateOf(vols[len(vols)-1] < vols[0])
}
