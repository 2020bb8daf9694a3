package indicators

import (
	"candle-scanner/internal/market"
)

// Standard MACD parameters.
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDSeries holds the full MACD line, signal line and histogram series,
// aligned with the bars they were computed from.
type MACDSeries struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// Len returns the number of aligned MACD samples.
func (m *MACDSeries) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Line)
}

// CalculateMACD computes the MACD line (fast EMA - slow EMA), signal line
// (EMA of the line) and histogram (line - signal) over the closes.
//
// MACD needs slow+signal bars (35 with standard parameters) for stable
// output; below that the result is undefined and nil is returned. Callers
// must treat nil as "unknown", never as a negative confirmation.
func CalculateMACD(bars market.Series, fast, slow, signal int) *MACDSeries {
	minBars := slow + signal
	if len(bars) < minBars {
		return nil
	}

	closes := bars.Closes()
	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := EMASeries(line, signal)
	histogram := make([]float64, len(closes))
	for i := range closes {
		histogram[i] = line[i] - signalLine[i]
	}

	return &MACDSeries{Line: line, Signal: signalLine, Histogram: histogram}
}

// MACDStandard computes MACD with the standard (12, 26, 9) parameters.
func MACDStandard(bars market.Series) *MACDSeries {
	return CalculateMACD(bars, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
}

// HistogramPositive reports whether the latest histogram value is positive.
// Unknown when the series is undefined.
func (m *MACDSeries) HistogramPositive() market.Tristate {
	if m.Len() == 0 {
		return market.Unknown
	}
	return market.TristateOf(m.Histogram[m.Len()-1] > 0)
}

// LineSlopeUp reports whether the MACD line is higher than it was lookback
// bars ago. Unknown when there is not enough history.
func (m *MACDSeries) LineSlopeUp(lookback int) market.Tristate {
	if m.Len() <= lookback {
		return market.Unknown
	}
	return market.TristateOf(m.Line[m.Len()-1] > m.Line[m.Len()-1-lookback])
}

// Crossover reports the most recent bar-over-bar crossover of the MACD line
// and the signal line: "bullish", "bearish", or "" when neither occurred or
// the series is too short.
func (m *MACDSeries) Crossover() string {
	if m.Len() < 2 {
		return ""
	}
	currDiff := m.Line[m.Len()-1] - m.Signal[m.Len()-1]
	prevDiff := m.Line[m.Len()-2] - m.Signal[m.Len()-2]
	switch {
	case prevDiff <= 0 && currDiff > 0:
		return "bullish"
	case prevDiff >= 0 && currDiff < 0:
		return "bearish"
	}
	return ""
}
