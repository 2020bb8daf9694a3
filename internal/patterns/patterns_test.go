package patterns

import (
	"math"
	"strings"
	"testing"
	"time"

	"candle-scanner/internal/exits"
	"candle-scanner/internal/indicators"
	"candle-scanner/internal/market"
)

func tbar(o, h, l, c, v float64) market.Bar {
	return market.Bar{Open: o, High: h, Low: l, Close: c, Volume: v}
}

func withTimes(bars []market.Bar, start time.Time, step time.Duration) market.Series {
	out := make(market.Series, len(bars))
	for i, b := range bars {
		b.Time = start.Add(time.Duration(i) * step)
		out[i] = b
	}
	return out
}

func constVWAP(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// fakeMACD builds a positive-histogram, rising-line MACD of the right length
// so tests control the gate inputs instead of needing 35-bar warmups.
func fakeMACD(n int) *indicators.MACDSeries {
	m := &indicators.MACDSeries{
		Line:      make([]float64, n),
		Signal:    make([]float64, n),
		Histogram: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		m.Line[i] = float64(i) * 0.01
		m.Signal[i] = m.Line[i] - 0.5
		m.Histogram[i] = 0.5
	}
	return m
}

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func microPullbackBars() market.Series {
	return market.Series{
		tbar(10.20, 10.25, 10.05, 10.08, 900),
		tbar(10.08, 10.12, 9.98, 10.02, 900),
		tbar(10.02, 10.06, 9.96, 10.00, 900),
		tbar(10.00, 10.15, 10.00, 10.15, 1000),
		tbar(10.15, 10.30, 10.15, 10.30, 1000),
		tbar(10.30, 10.43, 10.30, 10.43, 1000),
		tbar(10.43, 10.55, 10.41, 10.55, 1000),
		tbar(10.55, 10.55, 10.45, 10.45, 400),
		tbar(10.46, 10.60, 10.46, 10.60, 1200),
	}
}

func TestMicroPullbackDetectsDeepTierBreakout(t *testing.T) {
	bars := microPullbackBars()
	ctx := &Context{VWAP: constVWAP(9.0, len(bars)), MACD: fakeMACD(len(bars))}

	res, err := NewMicroPullback(MicroPullbackConfig{}).Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Detected {
		t.Fatalf("expected detection, got reason %q", res.Reason)
	}
	if res.Direction != "long" {
		t.Errorf("direction = %q, want long", res.Direction)
	}
	// Entry = pullback high 10.55 + 0.01.
	approx(t, "entry", res.EntryPrice, 10.56, 1e-9)
	// Stop = pullback low 10.45 minus max(1% of 10.45, 3 cents).
	approx(t, "stop", res.StopPrice, 10.3455, 1e-9)
	approx(t, "stop distance", res.StopDistance, 0.2145, 1e-9)
	approx(t, "confidence", res.Confidence, 0.95, 1e-9)
	if res.PatternStartIdx != 3 {
		t.Errorf("pattern start = %d, want 3", res.PatternStartIdx)
	}
	approx(t, "prior_move_pct", res.Details["prior_move_pct"], 5.5, 0.01)
	approx(t, "pullback_pct", res.Details["pullback_pct"], 18.18, 0.1)
}

func TestMicroPullbackHardGateFailsOnUnknownMACD(t *testing.T) {
	bars := microPullbackBars()
	// Nine bars cannot produce a MACD, so the gate input is unknown.
	ctx := &Context{VWAP: constVWAP(9.0, len(bars))}

	res, err := NewMicroPullback(MicroPullbackConfig{}).Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatal("unknown MACD must fail the hard gate, not pass it")
	}
	if !strings.Contains(res.Reason, "MACD") {
		t.Errorf("reason = %q, want MACD gate failure", res.Reason)
	}
}

func TestMicroPullbackRejectsLowRewardRisk(t *testing.T) {
	bars := market.Series{
		tbar(10.20, 10.25, 10.05, 10.08, 900),
		tbar(10.08, 10.12, 9.98, 10.02, 900),
		tbar(10.02, 10.06, 9.96, 10.00, 900),
		tbar(10.00, 10.13, 10.00, 10.13, 1000),
		tbar(10.13, 10.26, 10.13, 10.26, 1000),
		tbar(10.26, 10.38, 10.26, 10.38, 1000),
		tbar(10.38, 10.50, 10.36, 10.50, 1000),
		tbar(10.50, 10.50, 10.41, 10.41, 400),
		tbar(10.42, 10.60, 10.42, 10.60, 1200),
	}
	ctx := &Context{VWAP: constVWAP(9.0, len(bars)), MACD: fakeMACD(len(bars))}

	res, err := NewMicroPullback(MicroPullbackConfig{MinRRForSetup: 3.0}).Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatal("5%% move with an 18%% pullback leaves under 3R, must reject")
	}
	if !strings.Contains(res.Reason, "reward:risk") {
		t.Errorf("reason = %q, want reward:risk rejection", res.Reason)
	}
}

func TestMicroPullbackWaitsForGreenEntryBar(t *testing.T) {
	bars := microPullbackBars()
	bars[len(bars)-1] = tbar(10.50, 10.52, 10.40, 10.42, 800) // red

	res, err := NewMicroPullback(MicroPullbackConfig{}).Detect(bars, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatal("red entry bar must not detect")
	}
}

func TestMicroPullbackRejectsStaleEntry(t *testing.T) {
	bars := microPullbackBars()
	// Price ran away before the scan: entry sits at 10.56 (pullback high
	// + 0.01) while the last close is 11.25, over 6% adrift.
	bars[len(bars)-1] = tbar(10.46, 11.30, 10.46, 11.25, 1200)
	ctx := &Context{VWAP: constVWAP(9.0, len(bars)), MACD: fakeMACD(len(bars))}

	res, err := NewMicroPullback(MicroPullbackConfig{}).Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatal("entry more than 5%% from last close must not detect")
	}
	if !strings.Contains(res.Reason, "deviates") {
		t.Errorf("reason = %q, want entry deviation rejection", res.Reason)
	}
}

func TestZeroValueConfigsKeepDefaultTrueGates(t *testing.T) {
	mp := NewMicroPullback(MicroPullbackConfig{})
	if !*mp.cfg.RequireAboveVWAP || !*mp.cfg.RequireMACDPositive {
		t.Error("micro pullback zero-value config must keep VWAP and MACD gates on")
	}
	vb := NewVWAPBreak(VWAPBreakConfig{})
	if !*vb.cfg.HoldVariantEnabled {
		t.Error("vwap break zero-value config must keep the hold variant enabled")
	}
	or := NewOpeningRangeRetest(OpeningRangeConfig{})
	if !*or.cfg.OneShot || !*or.cfg.TrendAlignment || !*or.cfg.RequireHealthyPullbackVolume {
		t.Error("opening range zero-value config must keep its session rules on")
	}

	// An explicit false is not the same as an omitted option.
	off := NewMicroPullback(MicroPullbackConfig{RequireAboveVWAP: ptrBool(false)})
	if *off.cfg.RequireAboveVWAP {
		t.Error("explicit false must survive normalization")
	}
}

func TestBullFlagDetectsBreakout(t *testing.T) {
	bars := market.Series{
		tbar(10.30, 10.35, 10.10, 10.15, 900),
		tbar(10.15, 10.20, 10.00, 10.05, 900),
		tbar(10.05, 10.10, 9.95, 10.00, 900),
		tbar(10.00, 11.00, 10.00, 11.00, 3000),
		tbar(11.00, 12.00, 11.00, 12.00, 2800),
		tbar(12.00, 13.00, 12.00, 13.00, 2000),
		tbar(13.00, 13.00, 11.50, 11.60, 1500),
		tbar(13.05, 13.20, 13.02, 13.20, 1800),
	}
	ctx := &Context{VWAP: constVWAP(9.0, len(bars)), MACD: fakeMACD(len(bars))}

	res, err := NewBullFlag(BullFlagConfig{}).Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Detected {
		t.Fatalf("expected detection, got reason %q", res.Reason)
	}
	approx(t, "entry", res.EntryPrice, 13.01, 1e-9)
	approx(t, "stop", res.StopPrice, 11.4425, 1e-9)
	approx(t, "confidence", res.Confidence, 0.90, 1e-9)
	approx(t, "pole_move_pct", res.Details["pole_move_pct"], 30.0, 0.01)
	if !res.VolumeConfirmation.IsTrue() {
		t.Errorf("volume confirmation = %s, want true", res.VolumeConfirmation)
	}
}

func TestBullFlagVolumeLeeway(t *testing.T) {
	d := NewBullFlag(BullFlagConfig{})

	// One modest tick up inside the 10% leeway with a net decline passes.
	bars := market.Series{
		tbar(10, 10.5, 10, 10.4, 1000),
		tbar(10.4, 10.6, 10.3, 10.5, 1050),
		tbar(10.5, 10.6, 10.3, 10.4, 900),
	}
	if got := d.flagVolumeDeclining(bars, 0, 1, 2); !got.IsTrue() {
		t.Errorf("single in-leeway tick with net decline = %s, want true", got)
	}

	// Consecutive leeway-sized ticks compound past the start and fail the
	// net-decline requirement even though no single tick breaches it.
	bars = market.Series{
		tbar(10, 10.5, 10, 10.4, 1000),
		tbar(10.4, 10.6, 10.3, 10.5, 1100),
		tbar(10.5, 10.6, 10.3, 10.4, 1210),
		tbar(10.4, 10.6, 10.3, 10.5, 1331),
	}
	if got := d.flagVolumeDeclining(bars, 0, 1, 3); !got.IsFalse() {
		t.Errorf("compounding ticks = %s, want false", got)
	}

	// A single tick beyond the leeway fails outright.
	bars = market.Series{
		tbar(10, 10.5, 10, 10.4, 1000),
		tbar(10.4, 10.6, 10.3, 10.5, 1200),
		tbar(10.5, 10.6, 10.3, 10.4, 800),
	}
	if got := d.flagVolumeDeclining(bars, 0, 1, 2); !got.IsFalse() {
		t.Errorf("out-of-leeway tick = %s, want false", got)
	}
}

func abcdBullishBars(lastClose float64) market.Series {
	return market.Series{
		tbar(10.50, 10.55, 10.45, 10.47, 1000),
		tbar(10.47, 10.50, 10.35, 10.37, 1000),
		tbar(10.37, 10.40, 10.20, 10.22, 1000),
		tbar(10.22, 10.25, 10.00, 10.10, 1000), // A low 10.00
		tbar(10.10, 10.40, 10.08, 10.38, 1000),
		tbar(10.38, 10.60, 10.36, 10.58, 1000),
		tbar(10.58, 10.85, 10.56, 10.83, 1000),
		tbar(10.83, 11.00, 10.80, 10.92, 1000), // B high 11.00
		tbar(10.92, 10.95, 10.75, 10.78, 1000),
		tbar(10.78, 10.82, 10.62, 10.65, 1000),
		tbar(10.65, 10.70, 10.55, 10.58, 1000),
		tbar(10.58, 10.63, 10.50, 10.55, 1000), // C low 10.50
		tbar(10.55, 10.80, 10.54, 10.78, 1000),
		tbar(10.78, 11.00, 10.77, 10.98, 1000),
		tbar(10.98, 11.20, 10.96, 11.18, 1000),
		tbar(11.18, 11.35, 11.16, 11.33, 1000),
		tbar(11.33, math.Max(lastClose, 11.33) + 0.02, 11.31, lastClose, 1000),
	}
}

func TestABCDBullishCompletion(t *testing.T) {
	bars := abcdBullishBars(11.50)

	res, err := NewABCD(ABCDConfig{}).Detect(bars, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Detected {
		t.Fatalf("expected detection, got reason %q", res.Reason)
	}
	if res.Direction != "long" {
		t.Errorf("direction = %q, want long", res.Direction)
	}
	// AB = 1.00, CD = 11.50-10.50 = 1.00, retracement 0.50:
	// 0.85 - |1-1|*0.5 - |0.50-0.618|*0.1 = 0.8382.
	approx(t, "confidence", res.Confidence, 0.8382, 1e-4)
	approx(t, "cd_ab_ratio", res.Details["cd_ab_ratio"], 1.0, 1e-9)
	approx(t, "bc_retracement", res.Details["bc_retracement"], 0.50, 1e-9)
	approx(t, "projected_d", res.Details["projected_d"], 11.50, 1e-9)
	approx(t, "entry", res.EntryPrice, 11.50, 1e-9)
	approx(t, "stop", res.StopPrice, 10.4475, 1e-9)
}

func TestABCDRejectsOvershotD(t *testing.T) {
	// CD already ran to 1.30x AB; the measured move completed without us.
	bars := abcdBullishBars(11.80)

	res, err := NewABCD(ABCDConfig{}).Detect(bars, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatalf("overshot D must not detect, got %q", res.PatternName)
	}
}

func TestABCDEnforcesMinimumCDABRatio(t *testing.T) {
	// CD = 0.85x AB: developed enough to clear the completion floor,
	// still short of the ratio minimum.
	bars := abcdBullishBars(11.35)

	res, err := NewABCD(ABCDConfig{CDMinCompletion: 0.5, CDABRatioMin: 0.9}).Detect(bars, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatalf("CD below the minimum CD:AB ratio must not detect, got %q", res.PatternName)
	}
}

func TestABCDDirectionFilter(t *testing.T) {
	bars := abcdBullishBars(11.50)

	res, err := NewABCD(ABCDConfig{DirectionFilter: "short"}).Detect(bars, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatal("short-only filter must skip the bullish structure")
	}
}

func TestVWAPBreakAfterSustainedWeakness(t *testing.T) {
	bars := market.Series{
		tbar(10.00, 10.10, 9.95, 10.05, 1000),
		tbar(9.85, 9.90, 9.70, 9.80, 1000),
		tbar(9.85, 9.90, 9.70, 9.80, 1000),
		tbar(9.85, 9.90, 9.70, 9.80, 1000),
		tbar(9.85, 9.90, 9.70, 9.80, 1000),
		tbar(9.85, 9.90, 9.70, 9.80, 1000),
		tbar(9.85, 9.90, 9.70, 9.80, 1000),
		tbar(9.80, 10.15, 9.78, 10.10, 5000), // break with spike
		tbar(10.10, 10.20, 10.05, 10.15, 1000),
		tbar(10.15, 10.25, 10.12, 10.20, 1000),
	}
	ctx := &Context{VWAP: constVWAP(10.0, len(bars)), MACD: fakeMACD(len(bars))}

	res, err := NewVWAPBreak(VWAPBreakConfig{}).Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Detected {
		t.Fatalf("expected detection, got reason %q", res.Reason)
	}
	if res.PatternName != "VWAPBreak" {
		t.Errorf("pattern = %q, want VWAPBreak", res.PatternName)
	}
	approx(t, "entry", res.EntryPrice, 10.02, 1e-9)
	approx(t, "stop", res.StopPrice, 9.90, 1e-9)
	approx(t, "confidence", res.Confidence, 0.95, 1e-9)
	if !res.VolumeConfirmation.IsTrue() {
		t.Errorf("volume spike = %s, want true", res.VolumeConfirmation)
	}
	approx(t, "bars_below_vwap", res.Details["bars_below_vwap"], 6, 1e-9)
}

func TestVWAPHoldWhenDipBounces(t *testing.T) {
	bars := market.Series{
		tbar(10.30, 10.60, 10.25, 10.35, 1000),
		tbar(10.35, 10.60, 10.28, 10.40, 1000),
		tbar(10.40, 10.58, 10.30, 10.38, 1000),
		tbar(10.38, 10.55, 10.25, 10.30, 1000),
		tbar(10.30, 10.32, 10.00, 10.15, 1500), // touch of VWAP, holds
		tbar(10.15, 10.38, 10.14, 10.35, 1800), // green bounce
		tbar(10.35, 10.42, 10.33, 10.40, 1000),
		tbar(10.40, 10.48, 10.38, 10.45, 1000),
	}
	ctx := &Context{VWAP: constVWAP(10.0, len(bars)), MACD: fakeMACD(len(bars))}

	res, err := NewVWAPBreak(VWAPBreakConfig{}).Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Detected {
		t.Fatalf("expected hold detection, got reason %q", res.Reason)
	}
	if res.PatternName != "VWAPHold" {
		t.Errorf("pattern = %q, want VWAPHold", res.PatternName)
	}
	approx(t, "confidence", res.Confidence, 0.70, 1e-9)
	approx(t, "touch_low", res.Details["touch_low"], 10.00, 1e-9)
	approx(t, "stop", res.StopPrice, 9.95, 1e-9)
}

func TestReversalShootingStarAtExtendedHigh(t *testing.T) {
	bars := market.Series{
		tbar(10.00, 10.30, 10.00, 10.25, 1000),
		tbar(10.25, 10.57, 10.24, 10.55, 1000),
		tbar(10.55, 10.87, 10.54, 10.85, 1000),
		tbar(10.85, 11.17, 10.84, 11.15, 1000),
		tbar(11.15, 11.47, 11.14, 11.45, 1000),
		tbar(11.45, 11.77, 11.44, 11.75, 1000),
		tbar(11.75, 12.07, 11.74, 12.05, 1000),
		tbar(12.05, 12.32, 12.04, 12.30, 1000),
		tbar(12.30, 12.47, 12.29, 12.45, 1000),
		tbar(12.40, 12.80, 12.28, 12.30, 1000), // long upper wick at HOD
	}
	n := len(bars)
	macd := fakeMACD(n)
	macd.Histogram[n-2], macd.Histogram[n-1] = 0.3, 0.2 // rolling over
	ctx := &Context{VWAP: constVWAP(9.0, n), MACD: macd}

	res, err := NewReversal(ReversalConfig{}).Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Detected {
		t.Fatalf("expected detection, got reason %q", res.Reason)
	}
	if res.PatternName != "ShootingStar" {
		t.Errorf("pattern = %q, want ShootingStar", res.PatternName)
	}
	if res.Direction != "short" {
		t.Errorf("direction = %q, want short", res.Direction)
	}
	// Weight 0.85 maps to base 0.65; above VWAP and a weakening histogram
	// each add 0.06.
	approx(t, "confidence", res.Confidence, 0.77, 1e-9)
	// Stop above the 12.80 recent high plus 2%.
	approx(t, "stop", res.StopPrice, 13.056, 1e-9)
	if res.StopPrice <= res.EntryPrice {
		t.Error("short stop must sit above entry")
	}
}

func TestReversalRequiresExtension(t *testing.T) {
	bars := make(market.Series, 10)
	for i := range bars {
		bars[i] = tbar(10.00, 10.10, 9.95, 10.05, 1000)
	}
	res, err := NewReversal(ReversalConfig{}).Detect(bars, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatal("flat session is not extended, must not detect")
	}
	if !strings.Contains(res.Reason, "not extended") {
		t.Errorf("reason = %q, want extension rejection", res.Reason)
	}
}

func orbSession(t *testing.T) (market.Series, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	open := time.Date(2026, 3, 10, 9, 30, 0, 0, loc)
	bars := withTimes([]market.Bar{
		tbar(10.05, 10.20, 10.00, 10.10, 1000),
		tbar(10.10, 10.18, 10.02, 10.08, 1000),
		tbar(10.08, 10.16, 10.01, 10.12, 1000),
		tbar(10.12, 10.19, 10.03, 10.07, 1000),
		tbar(10.07, 10.17, 10.02, 10.14, 1000), // OR 10.00-10.20
		tbar(10.14, 10.18, 10.08, 10.12, 900),
		tbar(10.12, 10.30, 10.12, 10.30, 2500), // displacement breakout
		tbar(10.30, 10.31, 10.22, 10.24, 800),  // pullback into zone
		tbar(10.24, 10.26, 10.21, 10.23, 800),
		tbar(10.23, 10.28, 10.22, 10.26, 2000), // bounce reclaims ORH
		tbar(10.26, 10.29, 10.25, 10.28, 1200),
	}, open, time.Minute)
	return bars, loc
}

func TestOpeningRangeRetestLong(t *testing.T) {
	bars, loc := orbSession(t)
	ctx := &Context{VWAP: constVWAP(10.0, len(bars)), Location: loc}

	d := NewOpeningRangeRetest(OpeningRangeConfig{TrendAlignment: ptrBool(false)})
	res, err := d.Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Detected {
		t.Fatalf("expected detection, got reason %q", res.Reason)
	}
	if res.Direction != "long" {
		t.Errorf("direction = %q, want long", res.Direction)
	}
	// Entry at the OR high, stop 15% of range below it.
	approx(t, "entry", res.EntryPrice, 10.20, 1e-9)
	approx(t, "stop", res.StopPrice, 10.17, 1e-9)
	// Base 0.75 plus 0.05 for the confirmed close beyond the prior bar.
	approx(t, "confidence", res.Confidence, 0.80, 1e-9)
	approx(t, "or_high", res.Details["or_high"], 10.20, 1e-9)
	approx(t, "or_low", res.Details["or_low"], 10.00, 1e-9)
	approx(t, "breakout_idx", res.Details["breakout_idx"], 6, 1e-9)
	if !res.VolumeConfirmation.IsTrue() {
		t.Errorf("pullback volume health = %s, want true", res.VolumeConfirmation)
	}
}

func TestOpeningRangeRetestNeedsPullbackIntoZone(t *testing.T) {
	bars, loc := orbSession(t)
	// Lift the pullback bars clear of the retest zone (above 10.24).
	bars[7] = market.Bar{Time: bars[7].Time, Open: 10.30, High: 10.34, Low: 10.27, Close: 10.29, Volume: 800}
	bars[8] = market.Bar{Time: bars[8].Time, Open: 10.29, High: 10.33, Low: 10.26, Close: 10.28, Volume: 800}
	ctx := &Context{VWAP: constVWAP(10.0, len(bars)), Location: loc}

	d := NewOpeningRangeRetest(OpeningRangeConfig{TrendAlignment: ptrBool(false)})
	res, err := d.Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatal("no pullback into the retest zone, must not detect")
	}
	if !strings.Contains(res.Reason, "pulled back") {
		t.Errorf("reason = %q, want missing-pullback rejection", res.Reason)
	}
}

func TestOpeningRangeRetestOutsideWindow(t *testing.T) {
	bars, loc := orbSession(t)
	ctx := &Context{
		VWAP:     constVWAP(10.0, len(bars)),
		Location: loc,
		Now:      time.Date(2026, 3, 10, 11, 30, 0, 0, loc),
	}

	d := NewOpeningRangeRetest(OpeningRangeConfig{TrendAlignment: ptrBool(false)})
	res, err := d.Detect(bars, ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detected {
		t.Fatal("past the setup window, must not detect")
	}
	if !strings.Contains(res.Reason, "window") {
		t.Errorf("reason = %q, want window rejection", res.Reason)
	}
}

func TestOpeningRangeExitOnReentry(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	open := time.Date(2026, 3, 10, 9, 30, 0, 0, loc)
	bars := withTimes([]market.Bar{
		tbar(10.05, 10.20, 10.00, 10.10, 1000),
		tbar(10.10, 10.18, 10.02, 10.08, 1000),
		tbar(10.08, 10.16, 10.01, 10.12, 1000),
		tbar(10.12, 10.19, 10.03, 10.07, 1000),
		tbar(10.07, 10.17, 10.02, 10.14, 1000), // OR 10.00-10.20
		tbar(10.20, 10.28, 10.19, 10.26, 1500), // entry bar
		tbar(10.26, 10.32, 10.24, 10.30, 1000),
		tbar(10.28, 10.29, 10.12, 10.15, 1800), // closes back inside the range
	}, open, time.Minute)

	d := NewOpeningRangeRetest(OpeningRangeConfig{})
	ctx := &Context{VWAP: constVWAP(10.0, len(bars)), Location: loc}
	pos := exits.Position{EntryIdx: 5, EntryPrice: 10.20, StopPrice: 9.90, Direction: "long"}

	signals := d.ExitSignals(bars, pos, ctx)
	found := false
	for _, s := range signals {
		if s.Type == SignalORBReentry {
			found = true
			if s.BarIdx != 7 {
				t.Errorf("reentry bar = %d, want 7", s.BarIdx)
			}
		}
	}
	if !found {
		t.Fatalf("expected %s signal, got %v", SignalORBReentry, signals)
	}
}

func TestOpeningRangeWindowExit(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	start := time.Date(2026, 3, 10, 10, 55, 0, 0, loc)
	bars := withTimes([]market.Bar{
		tbar(10.20, 10.30, 10.18, 10.28, 1000),
		tbar(10.28, 10.32, 10.25, 10.30, 1000),
		tbar(10.30, 10.34, 10.28, 10.32, 1000),
		tbar(10.32, 10.36, 10.30, 10.34, 1000),
		tbar(10.34, 10.38, 10.32, 10.36, 1000), // 10:59, window nearly over
	}, start, time.Minute)

	d := NewOpeningRangeRetest(OpeningRangeConfig{})
	pos := exits.Position{EntryIdx: 0, EntryPrice: 10.28, StopPrice: 10.00, Direction: "long"}

	signals := d.ExitSignals(bars, pos, &Context{VWAP: constVWAP(10.0, len(bars)), Location: loc})
	found := false
	for _, s := range signals {
		if s.Type == SignalWindowExit {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s at 10:59, got %v", SignalWindowExit, signals)
	}
}

func TestConfidenceScoreClamping(t *testing.T) {
	sc := newScore(0.70, 0.95)
	sc.boost(market.True, 0.10)
	sc.boost(market.Unknown, 0.10) // unknown never adds
	sc.boost(market.False, 0.10)
	sc.boostIf(true, 0.30)
	if got := sc.total(); got != 0.95 {
		t.Errorf("total = %v, want cap 0.95", got)
	}

	sc = newScore(0.65, 0.90)
	sc.boost(market.Unknown, 0.25)
	if got := sc.total(); got != 0.65 {
		t.Errorf("total = %v, want unboosted base 0.65", got)
	}
}

func TestDetectorsRejectMalformedSeries(t *testing.T) {
	bad := market.Series{tbar(10, 9.5, 10.2, 10.1, 100)} // high below low
	detectors := []Detector{
		NewMicroPullback(MicroPullbackConfig{}),
		NewBullFlag(BullFlagConfig{}),
		NewVWAPBreak(VWAPBreakConfig{}),
		NewABCD(ABCDConfig{}),
		NewReversal(ReversalConfig{}),
		NewOpeningRangeRetest(OpeningRangeConfig{}),
	}
	for _, d := range detectors {
		if _, err := d.Detect(bad, nil); err == nil {
			t.Errorf("%s: malformed series must error", d.Name())
		}
	}
}

func BenchmarkMicroPullbackDetect(b *testing.B) {
	bars := microPullbackBars()
	ctx := &Context{VWAP: constVWAP(9.0, len(bars)), MACD: fakeMACD(len(bars))}
	det := NewMicroPullback(MicroPullbackConfig{})

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := det.Detect(bars, ctx); err != nil {
			b.Fatal(err)
		}
	}
}
