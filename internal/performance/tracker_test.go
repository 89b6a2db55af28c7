package performance_test

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/performance"
	"github.com/atlas-desktop/adaptive-engine/internal/regime"
)

func recordTrades(t *testing.T, tracker *performance.Tracker, strategy string, profits []float64, cond regime.Snapshot) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i, p := range profits {
		tracker.RecordTrade(performance.TradeResult{
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Strategy:     strategy,
			Pair:         "BTC/USDT",
			ProfitRatio:  p,
			HoldDuration: 30 * time.Minute,
			Condition:    cond,
		})
	}
}

func TestStrategyStatsAggregation(t *testing.T) {
	tracker, err := performance.NewTracker(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	profits := []float64{0.02, 0.02, 0.02, 0.02, 0.02, 0.02, 0.02, -0.01, -0.01, -0.01}
	recordTrades(t, tracker, "trend_following", profits, regime.Snapshot{})

	stats := tracker.StrategyStats("trend_following", 24*time.Hour)
	if stats.TotalTrades != 10 {
		t.Fatalf("TotalTrades = %d, want 10", stats.TotalTrades)
	}
	if stats.WinningTrades != 7 || stats.LosingTrades != 3 {
		t.Errorf("wins/losses = %d/%d, want 7/3", stats.WinningTrades, stats.LosingTrades)
	}
	if wr := stats.WinRate(); math.Abs(wr-0.7) > 1e-9 {
		t.Errorf("WinRate = %f, want 0.7", wr)
	}
	if pf := stats.ProfitFactor(); math.Abs(pf-14.0/3.0) > 1e-6 {
		t.Errorf("ProfitFactor = %f, want %f", pf, 14.0/3.0)
	}
	if ap := stats.AvgProfit(); math.Abs(ap-0.02) > 1e-9 {
		t.Errorf("AvgProfit = %f, want 0.02", ap)
	}
	if al := stats.AvgLoss(); math.Abs(al-(-0.01)) > 1e-9 {
		t.Errorf("AvgLoss = %f, want -0.01", al)
	}
	if exp := stats.Expectancy(); math.Abs(exp-(0.7*0.02-0.3*0.01)) > 1e-9 {
		t.Errorf("Expectancy = %f, want %f", exp, 0.7*0.02-0.3*0.01)
	}
	if stats.MaxWin != 0.02 || stats.MaxLoss != -0.01 {
		t.Errorf("MaxWin/MaxLoss = %f/%f", stats.MaxWin, stats.MaxLoss)
	}
	if stats.AvgHold != 30*time.Minute {
		t.Errorf("AvgHold = %s, want 30m", stats.AvgHold)
	}
}

func TestStatsDefaultsWithNoTrades(t *testing.T) {
	var stats performance.Stats
	if stats.WinRate() != 0.5 {
		t.Errorf("empty WinRate = %f, want 0.5", stats.WinRate())
	}
	if stats.ProfitFactor() != 1.0 {
		t.Errorf("empty ProfitFactor = %f, want 1.0", stats.ProfitFactor())
	}
	if stats.SharpeApprox() != 0 {
		t.Errorf("SharpeApprox under 5 trades = %f, want 0", stats.SharpeApprox())
	}
}

func TestTrackerPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tracker, err := performance.NewTracker(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	recordTrades(t, tracker, "grid", []float64{0.01, -0.005, 0.02}, regime.Snapshot{})

	reloaded, err := performance.NewTracker(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	stats := reloaded.StrategyStats("grid", 24*time.Hour)
	if stats.TotalTrades != 3 {
		t.Errorf("reloaded TotalTrades = %d, want 3", stats.TotalTrades)
	}
	if stats.WinningTrades != 2 {
		t.Errorf("reloaded WinningTrades = %d, want 2", stats.WinningTrades)
	}
}

func TestRecentTradesLimit(t *testing.T) {
	tracker, err := performance.NewTracker(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	recordTrades(t, tracker, "grid", []float64{0.01, 0.02, 0.03, 0.04, 0.05}, regime.Snapshot{})

	recent := tracker.RecentTrades("grid", 2, 24*time.Hour)
	if len(recent) != 2 {
		t.Fatalf("got %d trades, want 2", len(recent))
	}
	if recent[1].ProfitRatio != 0.05 {
		t.Errorf("newest trade should come last, got %f", recent[1].ProfitRatio)
	}
}

func TestBestStrategyForCondition(t *testing.T) {
	tracker, err := performance.NewTracker(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	uptrend := regime.Snapshot{Trend: regime.TrendUptrend, Volatility: regime.VolatilityNormal}
	sideways := regime.Snapshot{Trend: regime.TrendSideways, Volatility: regime.VolatilityLow}

	recordTrades(t, tracker, "trend_following", []float64{0.03, 0.02, 0.04}, uptrend)
	recordTrades(t, tracker, "grid", []float64{0.01, -0.01, 0.005}, uptrend)
	recordTrades(t, tracker, "mean_reversion", []float64{0.08, 0.09, 0.07}, sideways)

	query := regime.Snapshot{Trend: regime.TrendUptrend, Volatility: regime.VolatilityNormal}
	best, avg, ok := tracker.BestStrategyForCondition(query, 24*time.Hour)
	if !ok {
		t.Fatal("expected a qualifying strategy")
	}
	if best != "trend_following" {
		t.Errorf("best = %s, want trend_following", best)
	}
	if math.Abs(avg-0.03) > 1e-9 {
		t.Errorf("avg = %f, want 0.03", avg)
	}

	// Sideways trades are two trend buckets away from uptrend and must not
	// leak into the query.
	if best == "mean_reversion" {
		t.Error("mean_reversion traded a non-matching regime")
	}
}

func TestBestStrategyRequiresThreeTrades(t *testing.T) {
	tracker, err := performance.NewTracker(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	cond := regime.Snapshot{Trend: regime.TrendSideways, Volatility: regime.VolatilityNormal}
	recordTrades(t, tracker, "grid", []float64{0.05, 0.05}, cond)

	if _, _, ok := tracker.BestStrategyForCondition(cond, 24*time.Hour); ok {
		t.Error("two trades should not qualify")
	}
}

func TestAdjustWeightsRewardsWinners(t *testing.T) {
	tracker, err := performance.NewTracker(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	names := []string{"trend_following", "grid"}
	manager := performance.NewWeightManager(zap.NewNop(), tracker, names, nil)

	recordTrades(t, tracker, "trend_following", []float64{0.03, 0.02, 0.04, 0.03, 0.02, 0.03}, regime.Snapshot{})
	recordTrades(t, tracker, "grid", []float64{-0.02, -0.03, -0.01, 0.005, -0.02, -0.015}, regime.Snapshot{})

	weights := manager.AdjustWeights(24 * time.Hour)
	if weights["trend_following"] <= weights["grid"] {
		t.Errorf("winner weight %f should exceed loser weight %f",
			weights["trend_following"], weights["grid"])
	}
	for name, w := range weights {
		if w < 0.1 || w > 2.0 {
			t.Errorf("weight for %s = %f, outside [0.1, 2.0]", name, w)
		}
	}
}

func TestWeightsNeutralUnderFiveTrades(t *testing.T) {
	tracker, err := performance.NewTracker(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	manager := performance.NewWeightManager(zap.NewNop(), tracker, []string{"a", "b"}, nil)

	recordTrades(t, tracker, "a", []float64{0.05, 0.05}, regime.Snapshot{})

	weights := manager.AdjustWeights(24 * time.Hour)
	if weights["a"] != 1.0 || weights["b"] != 1.0 {
		t.Errorf("thin histories should keep neutral weights, got %v", weights)
	}
	if manager.Weight("unknown") != 1.0 {
		t.Error("unknown strategy weight should default to 1.0")
	}
}

func TestShouldAdjustInterval(t *testing.T) {
	tracker, err := performance.NewTracker(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	manager := performance.NewWeightManager(zap.NewNop(), tracker, []string{"a"}, nil)

	if !manager.ShouldAdjust() {
		t.Error("fresh manager should want an adjustment")
	}
	manager.AdjustWeights(24 * time.Hour)
	if manager.ShouldAdjust() {
		t.Error("should not re-adjust inside the interval")
	}
}

func TestShouldPauseOnBadRecord(t *testing.T) {
	tracker, err := performance.NewTracker(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	manager := performance.NewWeightManager(zap.NewNop(), tracker, []string{"grid"}, nil)

	losses := []float64{-0.02, -0.02, -0.02, -0.02, -0.02, -0.02, -0.02, 0.01, 0.01, -0.02}
	recordTrades(t, tracker, "grid", losses, regime.Snapshot{})

	pause, reason := manager.ShouldPause("grid")
	if !pause {
		t.Fatalf("losing record should pause, reason %q", reason)
	}
	if reason == "OK" {
		t.Error("pause should carry a reason")
	}

	if pause, _ := manager.ShouldPause("unknown"); pause {
		t.Error("strategy with no trades should not pause")
	}
}
