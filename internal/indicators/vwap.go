package indicators

import (
	"math"
	"time"

	"candle-scanner/internal/market"
)

// Session clock boundaries for the two VWAP anchor policies.
var (
	PremarketStart = clockTime{4, 0}
	RegularStart   = clockTime{9, 30}
	RegularEnd     = clockTime{16, 0}
)

type clockTime struct {
	hour, minute int
}

func (c clockTime) minutes() int { return c.hour*60 + c.minute }

func minutesOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*60 + lt.Minute()
}

// TypicalPrice returns (high+low+close)/3 for the bar.
func TypicalPrice(b market.Bar) float64 {
	return (b.High + b.Low + b.Close) / 3
}

// CumulativeVWAP computes cumulative(typical*volume)/cumulative(volume) from
// the first bar, with no session reset. Bars before any volume has traded
// yield NaN.
func CumulativeVWAP(bars market.Series) []float64 {
	out := make([]float64, len(bars))
	cumPV, cumV := 0.0, 0.0
	for i, b := range bars {
		cumPV += TypicalPrice(b) * b.Volume
		cumV += b.Volume
		if cumV == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = cumPV / cumV
		}
	}
	return out
}

// SessionVWAP computes VWAP that resets its cumulation at the regular-session
// open (9:30 local time in loc) of each day. Before the first reset the
// cumulation runs from the start of the series.
func SessionVWAP(bars market.Series, loc *time.Location) []float64 {
	out := make([]float64, len(bars))
	cumPV, cumV := 0.0, 0.0
	prevInSession := false
	for i, b := range bars {
		inSession := minutesOfDay(b.Time, loc) >= RegularStart.minutes()
		if inSession && !prevInSession {
			cumPV, cumV = 0, 0
		}
		prevInSession = inSession

		cumPV += TypicalPrice(b) * b.Volume
		cumV += b.Volume
		if cumV == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = cumPV / cumV
		}
	}
	return out
}

// PremarketVWAP computes VWAP anchored at the premarket open (4:00 local
// time), accumulating only premarket bars (4:00-9:30). Bars outside the
// premarket window carry the last premarket value forward, NaN before any
// premarket volume exists.
func PremarketVWAP(bars market.Series, loc *time.Location) []float64 {
	out := make([]float64, len(bars))
	cumPV, cumV := 0.0, 0.0
	for i, b := range bars {
		m := minutesOfDay(b.Time, loc)
		if m >= PremarketStart.minutes() && m < RegularStart.minutes() {
			cumPV += TypicalPrice(b) * b.Volume
			cumV += b.Volume
		}
		if cumV == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = cumPV / cumV
		}
	}
	return out
}

// CurrentVWAP picks the anchor policy from the current bar's clock time:
// premarket bars use the premarket anchor, regular-hours bars use the session
// anchor. Returns the latest value, the policy name, and false when VWAP is
// undefined (no volume yet).
func CurrentVWAP(bars market.Series, loc *time.Location) (float64, string, bool) {
	if len(bars) == 0 {
		return 0, "", false
	}
	var series []float64
	var kind string
	if minutesOfDay(bars.Last().Time, loc) < RegularStart.minutes() {
		series = PremarketVWAP(bars, loc)
		kind = "premarket"
	} else {
		series = SessionVWAP(bars, loc)
		kind = "regular"
	}
	v := series[len(series)-1]
	if math.IsNaN(v) {
		return 0, kind, false
	}
	return v, kind, true
}
