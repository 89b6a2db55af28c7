package strategy

import (
	"math"

	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// Grid buys band and support touches in ranging markets.
type Grid struct {
	bbPeriod    int
	rangePeriod int
}

// NewGrid creates the grid strategy with default periods.
func NewGrid() *Grid {
	return &Grid{
		bbPeriod:    20,
		rangePeriod: 20,
	}
}

func (s *Grid) Metadata() Metadata {
	return Metadata{
		Name:        "grid",
		Description: "Band/support touch trading for ranging markets",
		IdealTrends: []regime.TrendState{
			regime.TrendSideways, regime.TrendWeakUptrend, regime.TrendWeakDowntrend,
		},
		IdealVolatility: []regime.VolatilityState{regime.VolatilityLow, regime.VolatilityNormal},
		IdealVolume:     []regime.VolumeState{regime.VolumeLow, regime.VolumeNormal},
		MinFitness:      0.25,
		MaxPositions:    5,
		MaxCapitalPct:   0.4,
		SizeMultiplier:  0.8,
	}
}

// Fitness rewards quiet sideways regimes and penalizes strong trends and
// extreme volatility.
func (s *Grid) Fitness(snap regime.Snapshot) float64 {
	score := 0.0

	switch snap.Trend {
	case regime.TrendSideways:
		score += 0.45
	case regime.TrendWeakUptrend, regime.TrendWeakDowntrend:
		score += 0.25
	}

	switch {
	case snap.ADX < 15:
		score += 0.25
	case snap.ADX < 20:
		score += 0.2
	case snap.ADX < 25:
		score += 0.1
	}

	switch snap.Volatility {
	case regime.VolatilityLow:
		score += 0.2
	case regime.VolatilityNormal:
		score += 0.15
	}

	if snap.Trend == regime.TrendStrongUptrend || snap.Trend == regime.TrendStrongDowntrend {
		score *= 0.3
	}
	if snap.Volatility == regime.VolatilityExtreme {
		score *= 0.4
	}

	return math.Min(score, 1.0)
}

func (s *Grid) Indicators(bars []types.OHLCV) IndicatorSet {
	closes := types.Closes(bars)
	highs := types.Highs(bars)
	lows := types.Lows(bars)
	n := len(closes)
	var set IndicatorSet
	if n < 2 {
		return set
	}

	middle, upper, lower := indicators.Bollinger(closes, s.bbPeriod, 2)
	rsi := indicators.RSI(closes, 14)
	atr := indicators.ATR(highs, lows, closes, 14)

	set.Close = closes[n-1]
	set.PrevClose = closes[n-2]
	set.BBMiddle = middle[n-1]
	set.BBUpper = upper[n-1]
	set.BBLower = lower[n-1]
	set.RSI = rsi[n-1]
	set.ATR = atr[n-1]

	// Recent range for support/resistance.
	start := n - s.rangePeriod
	if start < 0 {
		start = 0
	}
	set.RecentHigh = highs[start]
	set.RecentLow = lows[start]
	for i := start + 1; i < n; i++ {
		set.RecentHigh = math.Max(set.RecentHigh, highs[i])
		set.RecentLow = math.Min(set.RecentLow, lows[i])
	}
	return set
}

func (s *Grid) EntrySignal(bars []types.OHLCV, snap regime.Snapshot) (bool, string) {
	if len(bars) < 2 {
		return false, ""
	}
	if !containsTrend(s.Metadata().IdealTrends, snap.Trend) {
		return false, ""
	}
	ind := s.Indicators(bars)
	if math.IsNaN(ind.BBLower) {
		return false, ""
	}

	nearLower := ind.Close < ind.BBLower*1.03
	nearSupport := ind.Close < ind.RecentLow*1.05
	bbMid := (ind.BBUpper + ind.BBLower) / 2
	belowMid := ind.Close < bbMid

	if nearLower || nearSupport || (belowMid && ind.RSI < 50) {
		return true, "grid_buy_support"
	}
	return false, ""
}

func (s *Grid) ExitSignal(bars []types.OHLCV, snap regime.Snapshot) (bool, string) {
	if len(bars) < 2 {
		return false, ""
	}
	ind := s.Indicators(bars)
	if math.IsNaN(ind.BBUpper) {
		return false, ""
	}

	if ind.Close > ind.BBUpper*0.99 || ind.Close > ind.RecentHigh*0.98 {
		return true, "grid_sell_resistance"
	}
	return false, ""
}
