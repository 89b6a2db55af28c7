package indicators_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	sma := indicators.SMA(values, 3)

	if len(sma) != len(values) {
		t.Fatalf("expected %d values, got %d", len(values), len(sma))
	}
	if !math.IsNaN(sma[0]) || !math.IsNaN(sma[1]) {
		t.Error("values before the first full window should be NaN")
	}
	if !almostEqual(sma[2], 2.0, 1e-9) {
		t.Errorf("expected SMA(3) at index 2 to be 2.0, got %f", sma[2])
	}
	if !almostEqual(sma[4], 4.0, 1e-9) {
		t.Errorf("expected SMA(3) at index 4 to be 4.0, got %f", sma[4])
	}
}

func TestEMASeededFromSMA(t *testing.T) {
	values := []float64{10, 10, 10, 10, 10, 10}
	ema := indicators.EMA(values, 3)

	// Constant input stays constant once the EMA is defined.
	for i := 2; i < len(ema); i++ {
		if !almostEqual(ema[i], 10.0, 1e-9) {
			t.Errorf("index %d: expected 10.0, got %f", i, ema[i])
		}
	}
}

func TestEMATracksTrend(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = float64(100 + i)
	}
	ema := indicators.EMA(values, 10)

	last := ema[len(ema)-1]
	if math.IsNaN(last) {
		t.Fatal("EMA undefined at the last index")
	}
	// EMA lags a rising series but stays below the last close.
	if last >= values[len(values)-1] || last <= values[len(values)-20] {
		t.Errorf("EMA %f outside expected band for rising input", last)
	}
}

func TestRSIBounds(t *testing.T) {
	up := make([]float64, 40)
	for i := range up {
		up[i] = float64(100 + i)
	}
	rsi := indicators.RSI(up, 14)
	last := rsi[len(rsi)-1]
	if math.IsNaN(last) {
		t.Fatal("RSI undefined on sufficient input")
	}
	if last < 95 {
		t.Errorf("monotonic gains should push RSI toward 100, got %f", last)
	}

	down := make([]float64, 40)
	for i := range down {
		down[i] = float64(200 - i)
	}
	rsi = indicators.RSI(down, 14)
	last = rsi[len(rsi)-1]
	if last > 5 {
		t.Errorf("monotonic losses should push RSI toward 0, got %f", last)
	}
}

func TestATRPositive(t *testing.T) {
	n := 40
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100.0 + float64(i%5)
		highs[i] = base + 2
		lows[i] = base - 2
		closes[i] = base
	}

	atr := indicators.ATR(highs, lows, closes, 14)
	last := atr[len(atr)-1]
	if math.IsNaN(last) || last <= 0 {
		t.Fatalf("expected positive ATR, got %f", last)
	}
	if last > 10 {
		t.Errorf("ATR %f far above the bar ranges", last)
	}
}

func TestADXRangeOnTrendingSeries(t *testing.T) {
	n := 80
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100.0 + float64(i)*2
		highs[i] = base + 1
		lows[i] = base - 1
		closes[i] = base
	}

	adx := indicators.ADX(highs, lows, closes, 14)
	last := adx[len(adx)-1]
	if math.IsNaN(last) {
		t.Fatal("ADX undefined on sufficient input")
	}
	if last < 25 || last > 100 {
		t.Errorf("steady trend should produce strong ADX, got %f", last)
	}
}

func TestBollingerOrdering(t *testing.T) {
	values := []float64{10, 11, 9, 12, 10, 11, 13, 9, 10, 12, 11, 10, 9, 12, 11, 10, 12, 11, 10, 13, 12, 11}
	middle, upper, lower := indicators.Bollinger(values, 20, 2.0)

	i := len(values) - 1
	if math.IsNaN(middle[i]) {
		t.Fatal("bands undefined at last index")
	}
	if !(lower[i] < middle[i] && middle[i] < upper[i]) {
		t.Errorf("expected lower < middle < upper, got %f %f %f", lower[i], middle[i], upper[i])
	}

	width := indicators.BollingerWidth(values, 20, 2.0)
	expected := (upper[i] - lower[i]) / middle[i]
	if !almostEqual(width, expected, 1e-9) {
		t.Errorf("width %f does not match bands %f", width, expected)
	}
}

func TestMACDCrossoversSign(t *testing.T) {
	n := 100
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		values[i] = 100 + float64(i)
	}

	macd, signal := indicators.MACD(values, 12, 26, 9)
	i := n - 1
	if math.IsNaN(macd[i]) || math.IsNaN(signal[i]) {
		t.Fatal("MACD undefined on sufficient input")
	}
	if macd[i] <= 0 {
		t.Errorf("rising series should give positive MACD, got %f", macd[i])
	}
}

func TestZScore(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 10
	}
	if z := indicators.ZScore(flat, 20); !math.IsNaN(z) {
		t.Errorf("flat series should have undefined z-score, got %f", z)
	}

	spiked := make([]float64, 30)
	for i := range spiked {
		spiked[i] = 10
	}
	spiked[len(spiked)-1] = 20
	if z := indicators.ZScore(spiked, 20); z <= 1.0 {
		t.Errorf("spike above a flat window should have a high z-score, got %f", z)
	}
}

func TestSlope(t *testing.T) {
	values := []float64{100, 101, 102, 103, 104}
	slope := indicators.Slope(values, 4)
	if !almostEqual(slope, 0.04, 1e-9) {
		t.Errorf("expected slope 0.04, got %f", slope)
	}
}

func TestPercentileRank(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	rank := indicators.PercentileRank(values, 9.5)
	if !almostEqual(rank, 90, 1e-9) {
		t.Errorf("expected rank 90, got %f", rank)
	}
}
