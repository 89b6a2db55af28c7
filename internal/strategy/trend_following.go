package strategy

import (
	"math"

	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// TrendFollowing trades with the trend using EMA cross, ADX and MACD
// confluence.
type TrendFollowing struct {
	fastPeriod   int
	slowPeriod   int
	basePeriod   int
	minCondCount int
}

// NewTrendFollowing creates the trend-following strategy with default
// periods.
func NewTrendFollowing() *TrendFollowing {
	return &TrendFollowing{
		fastPeriod:   20,
		slowPeriod:   50,
		basePeriod:   200,
		minCondCount: 2,
	}
}

func (s *TrendFollowing) Metadata() Metadata {
	return Metadata{
		Name:        "trend_following",
		Description: "EMA crossover + ADX trend following",
		IdealTrends: []regime.TrendState{
			regime.TrendStrongUptrend, regime.TrendUptrend,
			regime.TrendStrongDowntrend, regime.TrendDowntrend,
		},
		IdealVolatility: []regime.VolatilityState{regime.VolatilityNormal, regime.VolatilityHigh},
		IdealVolume:     []regime.VolumeState{regime.VolumeNormal, regime.VolumeHigh, regime.VolumeSpike},
		MinFitness:      0.25,
		MaxPositions:    2,
		MaxCapitalPct:   0.35,
		SizeMultiplier:  1.0,
	}
}

// Fitness rewards strong directional regimes with active volume.
func (s *TrendFollowing) Fitness(snap regime.Snapshot) float64 {
	score := 0.0

	switch snap.Trend {
	case regime.TrendStrongUptrend, regime.TrendStrongDowntrend:
		score += 0.5
	case regime.TrendUptrend, regime.TrendDowntrend:
		score += 0.35
	case regime.TrendWeakUptrend, regime.TrendWeakDowntrend:
		score += 0.15
	}

	switch {
	case snap.ADX > 35:
		score += 0.25
	case snap.ADX > 25:
		score += 0.2
	case snap.ADX > 20:
		score += 0.1
	}

	switch snap.Volume {
	case regime.VolumeHigh, regime.VolumeSpike:
		score += 0.15
	case regime.VolumeNormal:
		score += 0.1
	}

	if snap.Volatility == regime.VolatilityNormal || snap.Volatility == regime.VolatilityHigh {
		score += 0.1
	}

	return math.Min(score, 1.0)
}

func (s *TrendFollowing) Indicators(bars []types.OHLCV) IndicatorSet {
	closes := types.Closes(bars)
	n := len(closes)
	var set IndicatorSet
	if n < 2 {
		return set
	}

	ema20 := indicators.EMA(closes, s.fastPeriod)
	ema50 := indicators.EMA(closes, s.slowPeriod)
	ema200 := indicators.EMA(closes, s.basePeriod)
	macd, signal := indicators.MACD(closes, 12, 26, 9)
	rsi := indicators.RSI(closes, 14)

	set.Close = closes[n-1]
	set.PrevClose = closes[n-2]
	set.EMA20 = ema20[n-1]
	set.EMA50 = ema50[n-1]
	set.EMA200 = ema200[n-1]
	set.PrevEMA20 = ema20[n-2]
	set.PrevEMA50 = ema50[n-2]
	set.MACD = macd[n-1]
	set.MACDSignal = signal[n-1]
	set.PrevMACD = macd[n-2]
	set.PrevMACDSignal = signal[n-2]
	set.RSI = rsi[n-1]
	return set
}

// EntrySignal requires at least minCondCount of the confluence conditions in
// an up-leaning regime, or oversold dips in a quiet sideways market.
func (s *TrendFollowing) EntrySignal(bars []types.OHLCV, snap regime.Snapshot) (bool, string) {
	if len(bars) < 2 {
		return false, ""
	}
	ind := s.Indicators(bars)

	upLeaning := snap.Trend == regime.TrendUptrend ||
		snap.Trend == regime.TrendStrongUptrend ||
		snap.Trend == regime.TrendWeakUptrend

	if upLeaning {
		emaCrossUp := ind.PrevEMA20 <= ind.PrevEMA50 && ind.EMA20 > ind.EMA50
		aboveEMA200 := !math.IsNaN(ind.EMA200) && ind.Close > ind.EMA200
		macdPositive := ind.MACD > ind.MACDSignal
		rsiOK := ind.RSI < 75

		met := 0
		for _, c := range []bool{emaCrossUp, aboveEMA200, macdPositive, rsiOK} {
			if c {
				met++
			}
		}
		if met >= s.minCondCount && snap.ADX > 15 {
			return true, "trend_long"
		}
		if ind.Close > ind.EMA20 && ind.EMA20 > ind.EMA50 && macdPositive && rsiOK && snap.ADX > 20 {
			return true, "trend_long_continuation"
		}
		return false, ""
	}

	if snap.Trend == regime.TrendSideways && snap.ADX < 25 {
		if ind.RSI < 35 && ind.Close < ind.EMA50 {
			return true, "trend_sideways_buy"
		}
	}

	return false, ""
}

func (s *TrendFollowing) ExitSignal(bars []types.OHLCV, snap regime.Snapshot) (bool, string) {
	if len(bars) < 2 {
		return false, ""
	}
	ind := s.Indicators(bars)

	if ind.PrevEMA20 >= ind.PrevEMA50 && ind.EMA20 < ind.EMA50 {
		return true, "trend_exit_ema_cross"
	}
	if ind.RSI > 75 {
		return true, "trend_exit_rsi_overbought"
	}
	if ind.PrevMACD >= ind.PrevMACDSignal && ind.MACD < ind.MACDSignal && ind.RSI > 60 {
		return true, "trend_exit_macd_reversal"
	}

	return false, ""
}
