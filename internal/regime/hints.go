package regime

// Adjustments contains recommended stake/stop scaling for the current regime.
type Adjustments struct {
	StakeMultiplier      float64  `json:"stake_multiplier"`
	StopLossMultiplier   float64  `json:"stop_loss_multiplier"`
	TakeProfitMultiplier float64  `json:"take_profit_multiplier"`
	PreferredStrategies  []string `json:"preferred_strategies"`
	AvoidStrategies      []string `json:"avoid_strategies"`
}

// Recommendations returns per-strategy weight hints for a snapshot. These are
// coarse priors for reporting; actual selection runs through the selector.
func Recommendations(snap Snapshot) map[string]float64 {
	rec := map[string]float64{
		"grid":            0.0,
		"trend_following": 0.0,
		"mean_reversion":  0.0,
	}

	if snap.Trend == TrendSideways && (snap.Volatility == VolatilityLow || snap.Volatility == VolatilityNormal) {
		rec["grid"] = 0.9
	} else if (snap.Trend == TrendWeakUptrend || snap.Trend == TrendWeakDowntrend) && snap.Volatility == VolatilityLow {
		rec["grid"] = 0.6
	}

	if (snap.Trend == TrendStrongUptrend || snap.Trend == TrendStrongDowntrend) && snap.ADX > 25 {
		rec["trend_following"] = 0.9
	} else if snap.Trend == TrendUptrend || snap.Trend == TrendDowntrend {
		rec["trend_following"] = 0.7
	}

	if snap.Trend == TrendSideways && (snap.RSI < 30 || snap.RSI > 70) {
		rec["mean_reversion"] = 0.85
	} else if snap.Trend == TrendSideways && (snap.Volatility == VolatilityNormal || snap.Volatility == VolatilityLow) {
		rec["mean_reversion"] = 0.6
	}

	return rec
}

// Adjust returns stake/stop scaling hints for a snapshot. Low overall
// confidence pulls multipliers back toward neutral.
func Adjust(snap Snapshot) Adjustments {
	var adj Adjustments

	switch {
	case snap.Trend == TrendStrongUptrend || snap.Trend == TrendUptrend:
		adj = Adjustments{
			StakeMultiplier:      1.2,
			StopLossMultiplier:   0.8,
			TakeProfitMultiplier: 1.5,
			PreferredStrategies:  []string{"trend_following"},
			AvoidStrategies:      []string{"mean_reversion", "grid"},
		}
	case snap.Trend == TrendStrongDowntrend || snap.Trend == TrendDowntrend:
		adj = Adjustments{
			StakeMultiplier:      0.8,
			StopLossMultiplier:   0.7,
			TakeProfitMultiplier: 1.2,
			PreferredStrategies:  []string{"trend_following"},
			AvoidStrategies:      []string{"grid"},
		}
	case snap.Volatility == VolatilityExtreme || snap.Volatility == VolatilityHigh:
		adj = Adjustments{
			StakeMultiplier:      0.5,
			StopLossMultiplier:   1.5,
			TakeProfitMultiplier: 2.0,
			PreferredStrategies:  []string{},
			AvoidStrategies:      []string{"grid", "mean_reversion"},
		}
	default:
		adj = Adjustments{
			StakeMultiplier:      1.0,
			StopLossMultiplier:   1.0,
			TakeProfitMultiplier: 1.0,
			PreferredStrategies:  []string{"grid", "mean_reversion"},
			AvoidStrategies:      []string{},
		}
	}

	if snap.OverallConfidence < 0.7 {
		c := snap.OverallConfidence
		adj.StakeMultiplier = 1 + (adj.StakeMultiplier-1)*c
		adj.StopLossMultiplier = 1 + (adj.StopLossMultiplier-1)*c
		adj.TakeProfitMultiplier = 1 + (adj.TakeProfitMultiplier-1)*c
	}

	return adj
}
