// Package exits evaluates trade-invalidation signals after entry. Every
// call is stateless: the caller passes the full bar series and the entry
// context, and receives every triggered signal rather than the first match.
package exits

import (
	"fmt"
	"math"

	"candle-scanner/internal/candles"
	"candle-scanner/internal/indicators"
	"candle-scanner/internal/market"
)

// Signal types produced by the shared evaluator.
const (
	SignalStopHit            = "stop_hit"
	SignalMACDCross          = "macd_cross"
	SignalVWAPCross          = "vwap_cross"
	SignalVolumeDecline      = "volume_decline"
	SignalJackknife          = "jackknife"
	SignalBottomingRejection = "bottoming_rejection"
	SignalToppingTail        = "topping_tail"
	SignalBottomingTail      = "bottoming_tail"
)

// Signal is one triggered exit condition.
type Signal struct {
	Type      string
	Triggered bool
	Reason    string
	BarIdx    int
	Price     float64
}

// Position is the entry context the evaluator works against.
type Position struct {
	EntryIdx   int
	EntryPrice float64
	StopPrice  float64
	Direction  string // "long" or "short"
}

func (p Position) short() bool { return p.Direction == "short" }

// Config tunes the confirmation windows. Zero fields take defaults.
type Config struct {
	MACDConfirmationBars int     `json:"macd_confirmation_bars"` // default 1
	VWAPConfirmationBars int     `json:"vwap_confirmation_bars"` // default 1
	VolumeDeclineRatio   float64 `json:"volume_decline_ratio"`   // default 0.5 of entry bar volume
}

func DefaultConfig() Config {
	return Config{
		MACDConfirmationBars: 1,
		VWAPConfirmationBars: 1,
		VolumeDeclineRatio:   0.5,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.MACDConfirmationBars == 0 {
		c.MACDConfirmationBars = def.MACDConfirmationBars
	}
	if c.VWAPConfirmationBars == 0 {
		c.VWAPConfirmationBars = def.VWAPConfirmationBars
	}
	if c.VolumeDeclineRatio == 0 {
		c.VolumeDeclineRatio = def.VolumeDeclineRatio
	}
}

// Evaluate runs the shared exit checks and returns every triggered signal.
// vwap may be nil to skip the VWAP cross check; macd is computed from the
// bars when nil and silently skipped when undefined.
func Evaluate(bars market.Series, pos Position, vwap []float64, macd *indicators.MACDSeries, cfg Config) []Signal {
	cfg.normalize()
	var signals []Signal

	n := len(bars)
	if pos.EntryIdx >= n-1 {
		return signals
	}

	if s := checkStopHit(bars, pos); s != nil {
		signals = append(signals, *s)
	}
	if s := checkMACDCross(bars, pos, macd, cfg.MACDConfirmationBars); s != nil {
		signals = append(signals, *s)
	}
	if vwap != nil && len(vwap) == n {
		if s := checkVWAPCross(bars, pos, vwap, cfg.VWAPConfirmationBars); s != nil {
			signals = append(signals, *s)
		}
	}
	if s := checkVolumeDecline(bars, pos, cfg.VolumeDeclineRatio); s != nil {
		signals = append(signals, *s)
	}
	if s := checkRejection(bars, pos); s != nil {
		signals = append(signals, *s)
	}
	if s := checkReversalTail(bars, pos); s != nil {
		signals = append(signals, *s)
	}

	return signals
}

// checkStopHit scans from the entry bar onward since the entry bar itself
// can gap or wick through the stop.
func checkStopHit(bars market.Series, pos Position) *Signal {
	for i := pos.EntryIdx; i < len(bars); i++ {
		b := bars[i]
		if pos.short() {
			if b.High >= pos.StopPrice {
				return &Signal{
					Type:      SignalStopHit,
					Triggered: true,
					Reason:    fmt.Sprintf("stop hit: high %.2f >= stop %.2f", b.High, pos.StopPrice),
					BarIdx:    i,
					Price:     pos.StopPrice,
				}
			}
			continue
		}
		if b.Low <= pos.StopPrice {
			return &Signal{
				Type:      SignalStopHit,
				Triggered: true,
				Reason:    fmt.Sprintf("stop hit: low %.2f <= stop %.2f", b.Low, pos.StopPrice),
				BarIdx:    i,
				Price:     pos.StopPrice,
			}
		}
	}
	return nil
}

// checkMACDCross waits for the line to stay on the adverse side of the
// signal for confirmationBars consecutive bars after a fresh cross.
func checkMACDCross(bars market.Series, pos Position, macd *indicators.MACDSeries, confirmationBars int) *Signal {
	if macd == nil || macd.Len() != len(bars) {
		macd = indicators.MACDStandard(bars)
	}
	if macd == nil {
		return nil
	}
	n := len(bars)
	if pos.EntryIdx >= n-(confirmationBars+1) {
		return nil
	}

	adverse := func(i int) bool {
		diff := macd.Line[i] - macd.Signal[i]
		if pos.short() {
			return diff > 0
		}
		return diff < 0
	}

	consecutive := 0
	crossed := false
	for i := pos.EntryIdx + 1; i < n; i++ {
		if !adverse(i) {
			consecutive, crossed = 0, false
			continue
		}
		if !crossed {
			if i > 0 && !adverse(i-1) {
				crossed = true
				consecutive = 1
			}
		} else {
			consecutive++
		}
		if crossed && consecutive >= confirmationBars {
			side := "below"
			if pos.short() {
				side = "above"
			}
			return &Signal{
				Type:      SignalMACDCross,
				Triggered: true,
				Reason:    fmt.Sprintf("MACD crossed %s signal line, %d bars confirmed", side, consecutive),
				BarIdx:    i,
				Price:     bars[i].Close,
			}
		}
	}
	return nil
}

// checkVWAPCross mirrors the MACD check against the VWAP series, counting
// bars already adverse at the cross as confirmation.
func checkVWAPCross(bars market.Series, pos Position, vwap []float64, confirmationBars int) *Signal {
	n := len(bars)
	if pos.EntryIdx >= n-(confirmationBars+1) {
		return nil
	}

	adverse := func(i int) bool {
		if math.IsNaN(vwap[i]) {
			return false
		}
		if pos.short() {
			return bars[i].Close > vwap[i]
		}
		return bars[i].Close < vwap[i]
	}

	consecutive := 0
	for i := pos.EntryIdx + 1; i < n; i++ {
		if !adverse(i) {
			consecutive = 0
			continue
		}
		consecutive++
		if consecutive >= confirmationBars {
			side := "below"
			if pos.short() {
				side = "above"
			}
			return &Signal{
				Type:      SignalVWAPCross,
				Triggered: true,
				Reason:    fmt.Sprintf("price %.2f closed %s VWAP %.2f, %d bars", bars[i].Close, side, vwap[i], consecutive),
				BarIdx:    i,
				Price:     bars[i].Close,
			}
		}
	}
	return nil
}

// checkVolumeDecline flags fading participation, but only when price has
// also stopped advancing. Light volume on a runner is not an exit.
func checkVolumeDecline(bars market.Series, pos Position, ratio float64) *Signal {
	n := len(bars)
	if pos.EntryIdx >= n-3 {
		return nil
	}
	entryVolume := bars[pos.EntryIdx].Volume
	recent := bars[n-3:]

	avg := (recent[0].Volume + recent[1].Volume + recent[2].Volume) / 3
	if avg >= entryVolume*ratio {
		return nil
	}
	stalling := recent[2].Close <= recent[0].Open
	if !stalling {
		return nil
	}
	return &Signal{
		Type:      SignalVolumeDecline,
		Triggered: true,
		Reason:    fmt.Sprintf("volume %.0f under %.0f%% of entry volume %.0f with price stalling", avg, ratio*100, entryVolume),
		BarIdx:    n - 1,
		Price:     bars.Last().Close,
	}
}

// checkRejection looks for a sharp failure of a new extreme: for longs a
// jackknife (new high, red close below the prior low), for shorts a
// bottoming rejection (new low, green close above the prior high).
func checkRejection(bars market.Series, pos Position) *Signal {
	for i := pos.EntryIdx + 2; i < len(bars); i++ {
		curr, prev := bars[i], bars[i-1]

		if pos.short() {
			if curr.Low < prev.Low && curr.Close > prev.High && candles.IsGreen(curr) {
				return &Signal{
					Type:      SignalBottomingRejection,
					Triggered: true,
					Reason:    fmt.Sprintf("new low %.2f then closed above prior high %.2f", curr.Low, prev.High),
					BarIdx:    i,
					Price:     curr.Close,
				}
			}
			continue
		}
		if curr.High > prev.High && curr.Close < prev.Low && candles.IsRed(curr) {
			return &Signal{
				Type:      SignalJackknife,
				Triggered: true,
				Reason:    fmt.Sprintf("new high %.2f then closed below prior low %.2f", curr.High, prev.Low),
				BarIdx:    i,
				Price:     curr.Close,
			}
		}
	}
	return nil
}

// checkReversalTail flags a topping tail against longs or a bottoming tail
// against shorts, only while the position is in profit.
func checkReversalTail(bars market.Series, pos Position) *Signal {
	for i := pos.EntryIdx + 1; i < len(bars); i++ {
		b := bars[i]
		if b.Range() < 0.01 {
			continue
		}
		body := math.Max(b.Body(), 0.005)

		if pos.short() {
			lowerWickRatio := candles.LowerWick(b) / body
			inProfit := b.Close < pos.EntryPrice
			if lowerWickRatio >= 2.0 && candles.BodyPosition(b) >= 0.67 && inProfit {
				return &Signal{
					Type:      SignalBottomingTail,
					Triggered: true,
					Reason:    fmt.Sprintf("bottoming tail at %.2f, buyers rejecting the low", b.Low),
					BarIdx:    i,
					Price:     b.Close,
				}
			}
			continue
		}
		upperWickRatio := candles.UpperWick(b) / body
		inProfit := b.Close > pos.EntryPrice
		if upperWickRatio >= 2.0 && candles.BodyPosition(b) <= 0.33 && inProfit {
			return &Signal{
				Type:      SignalToppingTail,
				Triggered: true,
				Reason:    fmt.Sprintf("topping tail at %.2f, sellers rejecting the high", b.High),
				BarIdx:    i,
				Price:     b.Close,
			}
		}
	}
	return nil
}
