// Package patterns implements the chart pattern detectors. Each detector is
// stateless: it reads an ordered bar series plus an optional precomputed
// indicator context and returns a Result describing the setup, if any.
package patterns

import (
	"fmt"
	"math"
	"time"

	"candle-scanner/internal/indicators"
	"candle-scanner/internal/market"
)

// Detector is the common detection contract. Implementations never mutate
// the input series. A non-detection is a normal outcome carried in the
// Result; an error means the input itself was unusable.
type Detector interface {
	Name() string
	Detect(bars market.Series, ctx *Context) (Result, error)
}

// Result is the outcome of one detection call.
type Result struct {
	Detected        bool
	PatternName     string
	Direction       string // "long" or "short"
	Confidence      float64
	EntryPrice      float64
	StopPrice       float64
	StopDistance    float64
	PatternStartIdx int
	PatternEndIdx   int

	AboveVWAP          market.Tristate
	MACDPositive       market.Tristate
	MACDSlopeUp        market.Tristate
	VolumeConfirmation market.Tristate

	Reason  string
	Details map[string]float64
}

var defaultLocation = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Context carries optional precomputed indicator series so callers running
// several detectors over the same snapshot do not pay for recomputation.
// A nil Context or nil field means "compute it here".
type Context struct {
	VWAP     []float64              // aligned with the bar series
	MACD     *indicators.MACDSeries // nil when not precomputed
	Location *time.Location         // session clock, default America/New_York
	Now      time.Time              // zero means use the last bar's time
}

func (c *Context) location() *time.Location {
	if c == nil || c.Location == nil {
		return defaultLocation
	}
	return c.Location
}

func (c *Context) now(bars market.Series) time.Time {
	if c != nil && !c.Now.IsZero() {
		return c.Now
	}
	if len(bars) > 0 {
		return bars.Last().Time
	}
	return time.Time{}
}

// vwapSeries returns the VWAP series for the bars, preferring a precomputed
// one of matching length.
func (c *Context) vwapSeries(bars market.Series) []float64 {
	if c != nil && len(bars) > 0 && len(c.VWAP) == len(bars) {
		return c.VWAP
	}
	return indicators.SessionVWAP(bars, c.location())
}

// macdSeries returns the MACD series for the bars, preferring a precomputed
// one. Nil when fewer than 35 bars exist.
func (c *Context) macdSeries(bars market.Series) *indicators.MACDSeries {
	if c != nil && c.MACD != nil && c.MACD.Len() == len(bars) {
		return c.MACD
	}
	return indicators.MACDStandard(bars)
}

// aboveVWAP reports whether the latest close is above VWAP. Unknown when
// VWAP is undefined (no volume traded yet).
func (c *Context) aboveVWAP(bars market.Series) market.Tristate {
	if len(bars) == 0 {
		return market.Unknown
	}
	series := c.vwapSeries(bars)
	v := series[len(series)-1]
	if math.IsNaN(v) {
		return market.Unknown
	}
	return market.TristateOf(bars.Last().Close > v)
}

// ptrBool returns a pointer to b. Boolean config options that default to
// true are declared *bool so an omitted option keeps its default instead of
// collapsing to false; normalize fills the nil.
func ptrBool(b bool) *bool { return &b }

// notDetected builds the standard non-detection Result.
func notDetected(name, format string, args ...interface{}) Result {
	return Result{
		PatternName: name,
		Reason:      fmt.Sprintf(format, args...),
	}
}

// validate fails fast on malformed bars before any detection logic runs.
func validate(bars market.Series) error {
	if err := bars.Validate(); err != nil {
		return fmt.Errorf("invalid bar series: %w", err)
	}
	return nil
}

// rewardRisk computes the reward:risk ratio of an entry/stop/target triple.
// dir is +1 for longs and -1 for shorts. Returns 0 when risk is not positive.
func rewardRisk(entry, stop, target, dir float64) float64 {
	risk := (entry - stop) * dir
	reward := (target - entry) * dir
	if risk <= 0 {
		return 0
	}
	return reward / risk
}
