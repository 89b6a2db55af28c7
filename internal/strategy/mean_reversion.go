package strategy

import (
	"fmt"
	"math"

	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// MeanReversion buys oversold confluence and exits back at the mean.
type MeanReversion struct {
	rsiPeriod   int
	bbPeriod    int
	stochPeriod int
}

// NewMeanReversion creates the mean-reversion strategy with default periods.
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{
		rsiPeriod:   14,
		bbPeriod:    20,
		stochPeriod: 14,
	}
}

func (s *MeanReversion) Metadata() Metadata {
	return Metadata{
		Name:        "mean_reversion",
		Description: "RSI + z-score + stochastic oversold reversion",
		IdealTrends: []regime.TrendState{
			regime.TrendSideways, regime.TrendWeakUptrend, regime.TrendWeakDowntrend,
		},
		IdealVolatility: []regime.VolatilityState{regime.VolatilityNormal, regime.VolatilityLow},
		IdealVolume:     []regime.VolumeState{regime.VolumeNormal, regime.VolumeLow},
		MinFitness:      0.25,
		MaxPositions:    3,
		MaxCapitalPct:   0.25,
		SizeMultiplier:  0.9,
	}
}

// Fitness rewards sideways regimes with RSI at extremes and penalizes strong
// trends.
func (s *MeanReversion) Fitness(snap regime.Snapshot) float64 {
	score := 0.0

	switch snap.Trend {
	case regime.TrendSideways:
		score += 0.35
	case regime.TrendWeakUptrend, regime.TrendWeakDowntrend:
		score += 0.2
	}

	switch {
	case snap.RSI < 25 || snap.RSI > 75:
		score += 0.35
	case snap.RSI < 30 || snap.RSI > 70:
		score += 0.25
	case snap.RSI < 35 || snap.RSI > 65:
		score += 0.1
	}

	if snap.Volatility == regime.VolatilityNormal || snap.Volatility == regime.VolatilityLow {
		score += 0.2
	}

	if snap.Trend == regime.TrendStrongUptrend || snap.Trend == regime.TrendStrongDowntrend {
		score *= 0.3
	}

	return math.Min(score, 1.0)
}

func (s *MeanReversion) Indicators(bars []types.OHLCV) IndicatorSet {
	closes := types.Closes(bars)
	highs := types.Highs(bars)
	lows := types.Lows(bars)
	n := len(closes)
	var set IndicatorSet
	if n < 2 {
		return set
	}

	middle, upper, lower := indicators.Bollinger(closes, s.bbPeriod, 2)
	rsi := indicators.RSI(closes, s.rsiPeriod)
	k, d := indicators.Stochastic(highs, lows, closes, s.stochPeriod, 3)

	set.Close = closes[n-1]
	set.PrevClose = closes[n-2]
	set.BBMiddle = middle[n-1]
	set.BBUpper = upper[n-1]
	set.BBLower = lower[n-1]
	set.RSI = rsi[n-1]
	set.StochK = k[n-1]
	set.StochD = d[n-1]
	set.ZScore = indicators.ZScore(closes, s.bbPeriod)
	return set
}

func (s *MeanReversion) EntrySignal(bars []types.OHLCV, snap regime.Snapshot) (bool, string) {
	if len(bars) < 2 {
		return false, ""
	}
	ind := s.Indicators(bars)

	rsiOversold := ind.RSI < 40
	belowLowerBB := !math.IsNaN(ind.BBLower) && ind.Close < ind.BBLower*1.02
	zscoreExtreme := !math.IsNaN(ind.ZScore) && ind.ZScore < -1.0
	stochOversold := !math.IsNaN(ind.StochK) && ind.StochK < 30

	count := 0
	for _, c := range []bool{rsiOversold, belowLowerBB, zscoreExtreme, stochOversold} {
		if c {
			count++
		}
	}
	if count >= 1 {
		return true, fmt.Sprintf("meanrev_oversold_%d", count)
	}
	return false, ""
}

func (s *MeanReversion) ExitSignal(bars []types.OHLCV, snap regime.Snapshot) (bool, string) {
	if len(bars) < 2 {
		return false, ""
	}
	ind := s.Indicators(bars)
	if math.IsNaN(ind.BBMiddle) || ind.BBMiddle == 0 {
		return false, ""
	}

	if math.Abs(ind.Close-ind.BBMiddle)/ind.BBMiddle < 0.005 {
		return true, "meanrev_exit_mean"
	}
	if ind.RSI > 70 {
		return true, "meanrev_exit_rsi"
	}
	if !math.IsNaN(ind.BBUpper) && ind.Close > ind.BBUpper*0.99 {
		return true, "meanrev_exit_upper_band"
	}
	return false, ""
}
