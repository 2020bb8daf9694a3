package candles

import (
	"testing"

	"candle-scanner/internal/market"
)

func bar(open, high, low, close, volume float64) market.Bar {
	return market.Bar{Open: open, High: high, Low: low, Close: close, Volume: volume}
}

func TestClassification(t *testing.T) {
	green := bar(10.0, 10.6, 9.9, 10.5, 1000)
	red := bar(10.5, 10.6, 9.9, 10.0, 1000)
	flat := bar(10.0, 10.1, 9.9, 10.0, 1000)

	if !IsGreen(green) || IsRed(green) {
		t.Error("green candle misclassified")
	}
	if !IsRed(red) || IsGreen(red) {
		t.Error("red candle misclassified")
	}
	if IsGreen(flat) || IsRed(flat) {
		t.Error("flat candle should be neither green nor red")
	}
}

func TestWicks(t *testing.T) {
	b := bar(10.0, 11.0, 9.5, 10.6, 1000)

	if got := UpperWick(b); got < 0.399 || got > 0.401 {
		t.Errorf("upper wick = %.3f, want 0.40", got)
	}
	if got := LowerWick(b); got < 0.499 || got > 0.501 {
		t.Errorf("lower wick = %.3f, want 0.50", got)
	}
}

func TestBodyPosition(t *testing.T) {
	// Body sits in the lower third: shooting star shape
	star := bar(10.0, 11.0, 9.95, 10.05, 1000)
	if pos := BodyPosition(star); pos > 0.34 {
		t.Errorf("shooting star body position = %.2f, want lower third", pos)
	}

	// Zero-range bar
	if pos := BodyPosition(bar(10, 10, 10, 10, 1000)); pos != 0.5 {
		t.Errorf("zero-range body position = %.2f, want 0.5", pos)
	}
}

func TestIsDoji(t *testing.T) {
	// Small body relative to range
	doji := bar(10.0, 10.5, 9.5, 10.05, 1000)
	if !IsDoji(doji, DefaultDojiThreshold) {
		t.Error("small-body candle should be doji")
	}

	// Large body
	trend := bar(10.0, 10.55, 9.95, 10.5, 1000)
	if IsDoji(trend, DefaultDojiThreshold) {
		t.Error("full-body candle should not be doji")
	}

	// Near-zero range counts as doji
	if !IsDoji(bar(10.0, 10.0005, 10.0, 10.0004, 1000), DefaultDojiThreshold) {
		t.Error("zero-range candle should be doji")
	}
}

func TestCountConsecutiveDojis(t *testing.T) {
	trend := bar(10.0, 10.55, 9.95, 10.5, 1000)
	doji := bar(10.5, 10.75, 10.25, 10.52, 1000)

	bars := market.Series{trend, trend, trend, doji, doji}
	if got := CountConsecutiveDojis(bars, DefaultDojiThreshold); got != 2 {
		t.Errorf("consecutive dojis = %d, want 2", got)
	}

	// Trend candle at the end resets the count
	bars = append(bars, trend)
	if got := CountConsecutiveDojis(bars, DefaultDojiThreshold); got != 0 {
		t.Errorf("consecutive dojis = %d, want 0", got)
	}
}

func TestCheckQuality(t *testing.T) {
	trend := bar(10.0, 10.55, 9.95, 10.5, 1000)
	doji := bar(10.5, 10.75, 10.25, 10.52, 1000)

	ok, _ := CheckQuality(market.Series{trend, trend, doji}, 1, DefaultDojiThreshold)
	if !ok {
		t.Error("single doji should pass quality check")
	}

	ok, reason := CheckQuality(market.Series{trend, doji, doji}, 1, DefaultDojiThreshold)
	if ok {
		t.Error("two consecutive dojis should fail quality check")
	}
	if reason == "" {
		t.Error("failed quality check should carry a reason")
	}
}

func TestSwingHighs(t *testing.T) {
	// Peak at index 3
	bars := market.Series{
		bar(10.0, 10.2, 9.9, 10.1, 1000),
		bar(10.1, 10.4, 10.0, 10.3, 1000),
		bar(10.3, 10.7, 10.2, 10.6, 1000),
		bar(10.6, 11.0, 10.5, 10.8, 1000),
		bar(10.8, 10.9, 10.4, 10.5, 1000),
		bar(10.5, 10.6, 10.2, 10.3, 1000),
		bar(10.3, 10.4, 10.0, 10.1, 1000),
	}

	highs := SwingHighs(bars, 2)
	if len(highs) != 1 || highs[0] != 3 {
		t.Errorf("swing highs = %v, want [3]", highs)
	}
}

func TestSwingLows(t *testing.T) {
	// Trough at index 3
	bars := market.Series{
		bar(10.8, 10.9, 10.6, 10.7, 1000),
		bar(10.7, 10.8, 10.4, 10.5, 1000),
		bar(10.5, 10.6, 10.1, 10.2, 1000),
		bar(10.2, 10.3, 9.8, 10.0, 1000),
		bar(10.0, 10.4, 10.0, 10.3, 1000),
		bar(10.3, 10.7, 10.2, 10.6, 1000),
		bar(10.6, 10.9, 10.5, 10.8, 1000),
	}

	lows := SwingLows(bars, 2)
	if len(lows) != 1 || lows[0] != 3 {
		t.Errorf("swing lows = %v, want [3]", lows)
	}
}

func TestSwingSkipsZeroVolumeBars(t *testing.T) {
	bars := market.Series{
		bar(10.0, 10.2, 9.9, 10.1, 1000),
		bar(10.1, 10.4, 10.0, 10.3, 1000),
		// Halt bar prints a phantom peak with no volume
		bar(10.3, 11.5, 10.2, 10.6, 0),
		bar(10.6, 10.9, 10.4, 10.5, 1000),
		bar(10.5, 10.6, 10.2, 10.3, 1000),
	}

	if highs := SwingHighs(bars, 2); len(highs) != 0 {
		t.Errorf("swing highs = %v, want none for zero-volume peak", highs)
	}
}
