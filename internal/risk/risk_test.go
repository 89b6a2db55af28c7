package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/regime"
)

// fakeClock lets tests drive cooldowns, daily rollovers and the breaker
// auto-reset window.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(capital int64) (*Manager, *fakeClock) {
	config := DefaultConfig()
	config.TotalCapital = decimal.NewFromInt(capital)
	m := NewManager(zap.NewNop(), config, nil)
	clk := newFakeClock()
	m.now = clk.now
	m.lastDailyReset = clk.t
	return m, clk
}

func TestCheckPositionAllowedFresh(t *testing.T) {
	m, _ := newTestManager(10000)

	verdict := m.CheckPositionAllowed("trend_following", 0)
	if !verdict.Allowed {
		t.Fatalf("fresh ledger should allow entries, got %q", verdict.Reason)
	}
}

func TestPortfolioPositionCap(t *testing.T) {
	m, _ := newTestManager(10000)

	verdict := m.CheckPositionAllowed("trend_following", 5)
	if verdict.Allowed {
		t.Fatal("portfolio cap should refuse")
	}
	if !strings.Contains(verdict.Reason, "max portfolio positions") {
		t.Errorf("reason = %q", verdict.Reason)
	}
}

func TestDailyLossLimitBlocks(t *testing.T) {
	m, _ := newTestManager(10000)

	m.RecordTrade("grid", "BTC/USDT", -0.03)
	m.RecordTrade("grid", "BTC/USDT", -0.03)

	verdict := m.CheckPositionAllowed("trend_following", 0)
	if verdict.Allowed {
		t.Fatal("daily loss past the limit should refuse")
	}
	if !strings.Contains(verdict.Reason, "daily loss limit") {
		t.Errorf("reason = %q", verdict.Reason)
	}
}

func TestDailyRolloverClearsCounters(t *testing.T) {
	m, clk := newTestManager(10000)

	m.RecordTrade("grid", "BTC/USDT", -0.06)
	if m.CheckPositionAllowed("trend_following", 0).Allowed {
		t.Fatal("should be blocked on the loss day")
	}

	clk.advance(24 * time.Hour)
	verdict := m.CheckPositionAllowed("trend_following", 0)
	if !verdict.Allowed {
		t.Fatalf("next day should reset daily counters, got %q", verdict.Reason)
	}
	if got := m.Status().DailyPnLPct; got != 0 {
		t.Errorf("daily pnl after rollover = %f, want 0", got)
	}
}

func TestDrawdownBlocks(t *testing.T) {
	m, _ := newTestManager(1000)

	m.SetCapital(decimal.NewFromInt(840))
	verdict := m.CheckPositionAllowed("trend_following", 0)
	if verdict.Allowed {
		t.Fatal("16% drawdown should refuse")
	}
	if !strings.Contains(verdict.Reason, "max drawdown") {
		t.Errorf("reason = %q", verdict.Reason)
	}

	m.SetCapital(decimal.NewFromInt(860))
	if verdict := m.CheckPositionAllowed("trend_following", 0); !verdict.Allowed {
		t.Errorf("14%% drawdown should pass, got %q", verdict.Reason)
	}
}

func TestStrategyPositionCap(t *testing.T) {
	m, _ := newTestManager(10000)

	m.UpdatePositionCount("trend_following", 2)
	verdict := m.CheckPositionAllowed("trend_following", 0)
	if verdict.Allowed {
		t.Fatal("strategy position cap should refuse")
	}
	if !strings.Contains(verdict.Reason, "max positions") {
		t.Errorf("reason = %q", verdict.Reason)
	}

	// Other strategies keep their own headroom.
	if verdict := m.CheckPositionAllowed("grid", 0); !verdict.Allowed {
		t.Errorf("grid should still be allowed, got %q", verdict.Reason)
	}
}

func TestStrategyDailyTradeLimit(t *testing.T) {
	m, _ := newTestManager(10000)

	for i := 0; i < 8; i++ {
		m.RecordTrade("trend_following", "BTC/USDT", 0.005)
	}

	verdict := m.CheckPositionAllowed("trend_following", 0)
	if verdict.Allowed {
		t.Fatal("8 trades should exhaust trend_following's daily budget")
	}
	if !strings.Contains(verdict.Reason, "daily trade limit") {
		t.Errorf("reason = %q", verdict.Reason)
	}
}

func TestCooldownAfterLoss(t *testing.T) {
	m, clk := newTestManager(10000)

	m.RecordTrade("trend_following", "BTC/USDT", -0.01)

	verdict := m.CheckPositionAllowed("trend_following", 0)
	if verdict.Allowed {
		t.Fatal("loss should start a cooldown")
	}
	if !strings.Contains(verdict.Reason, "cooldown") {
		t.Errorf("reason = %q", verdict.Reason)
	}

	clk.advance(21 * time.Minute)
	if verdict := m.CheckPositionAllowed("trend_following", 0); !verdict.Allowed {
		t.Errorf("cooldown should expire after 20 minutes, got %q", verdict.Reason)
	}
}

func TestPositionSizeWithinBounds(t *testing.T) {
	m, _ := newTestManager(10000)
	proposed := decimal.NewFromInt(100)

	// Ample capital: the risk budget dwarfs the stake, so the cap binds.
	size := m.CalculatePositionSize("trend_following", 1.0, proposed, decimal.NewFromInt(40000), 0.05)
	if !size.Equal(proposed) {
		t.Errorf("size = %s, want capped at %s", size, proposed)
	}

	// No capital headroom left for the strategy: the floor binds.
	m.UpdatePositionCount("trend_following", 3)
	big := decimal.NewFromInt(1200)
	size = m.CalculatePositionSize("trend_following", 0.5, big, decimal.NewFromInt(40000), 0.05)
	floor := big.Mul(decimal.NewFromFloat(0.3))
	if !size.Equal(floor) {
		t.Errorf("size = %s, want floored at %s", size, floor)
	}
}

func TestPositionSizeScalesWithConfidence(t *testing.T) {
	m, _ := newTestManager(1000)
	proposed := decimal.NewFromInt(500)

	low := m.CalculatePositionSize("grid", 0.0, proposed, decimal.NewFromInt(2000), 0.05)
	high := m.CalculatePositionSize("grid", 1.0, proposed, decimal.NewFromInt(2000), 0.05)
	if !high.GreaterThan(low) {
		t.Errorf("confidence should scale size: low %s, high %s", low, high)
	}
}

func TestRecordTradeCompoundsCapital(t *testing.T) {
	m, _ := newTestManager(1000)

	m.RecordTrade("grid", "BTC/USDT", 0.10)
	m.RecordTrade("grid", "BTC/USDT", -0.05)

	status := m.Status()
	if !status.CurrentCapital.Equal(decimal.NewFromInt(1045)) {
		t.Errorf("capital = %s, want 1045", status.CurrentCapital)
	}
	if !status.PeakCapital.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("peak = %s, want 1100 (monotonic)", status.PeakCapital)
	}
	if dd := status.DrawdownPct; dd < 4.9 || dd > 5.1 {
		t.Errorf("drawdown = %f%%, want ~5%%", dd)
	}
	if status.DailyTrades["grid"] != 2 {
		t.Errorf("daily trades = %d, want 2", status.DailyTrades["grid"])
	}
}

func TestRiskLevels(t *testing.T) {
	m, _ := newTestManager(1000)

	if level := m.Status().RiskLevel; level != "LOW" {
		t.Errorf("fresh level = %s, want LOW", level)
	}

	m.SetCapital(decimal.NewFromInt(930))
	if level := m.Status().RiskLevel; level != "MEDIUM" {
		t.Errorf("7%% drawdown level = %s, want MEDIUM", level)
	}

	m.SetCapital(decimal.NewFromInt(880))
	if level := m.Status().RiskLevel; level != "HIGH" {
		t.Errorf("12%% drawdown level = %s, want HIGH", level)
	}
}

func TestUpdatePositionCountFloorsAtZero(t *testing.T) {
	m, _ := newTestManager(1000)

	m.UpdatePositionCount("grid", 1)
	m.UpdatePositionCount("grid", -3)
	if got := m.Status().StrategyPositions["grid"]; got != 0 {
		t.Errorf("positions = %d, want 0", got)
	}
}

func newTestBreaker() (*CircuitBreaker, *fakeClock) {
	cb := NewCircuitBreaker(zap.NewNop())
	clk := newFakeClock()
	cb.now = clk.now
	return cb, clk
}

func TestBreakerTripsOnExtremeVolatility(t *testing.T) {
	cb, _ := newTestBreaker()

	if cb.CheckAndTrip(regime.VolatilityNormal, 0.01, 1.0) {
		t.Fatal("benign conditions should not trip")
	}
	if !cb.CheckAndTrip(regime.VolatilityExtreme, 0.01, 1.0) {
		t.Fatal("extreme volatility should trip")
	}
	if cb.Status().Reason != "extreme_volatility" {
		t.Errorf("reason = %q", cb.Status().Reason)
	}

	// Sticky: benign input while tripped stays halted.
	if !cb.CheckAndTrip(regime.VolatilityNormal, 0.0, 1.0) {
		t.Error("tripped breaker should stay halted")
	}
}

func TestBreakerTripsOnFlashMove(t *testing.T) {
	cb, _ := newTestBreaker()

	if !cb.CheckAndTrip(regime.VolatilityNormal, -0.12, 1.0) {
		t.Fatal("12% hourly drop should trip")
	}
	if got := cb.Status().Reason; got != "flash_crash_or_pump_-12.0%" {
		t.Errorf("reason = %q", got)
	}
}

func TestBreakerTripsOnVolumeAnomaly(t *testing.T) {
	cb, _ := newTestBreaker()

	if !cb.CheckAndTrip(regime.VolatilityNormal, 0.0, 6.5) {
		t.Fatal("6.5x volume spike should trip")
	}
	if got := cb.Status().Reason; got != "volume_anomaly_6.50x" {
		t.Errorf("reason = %q", got)
	}
}

func TestBreakerManualReset(t *testing.T) {
	cb, _ := newTestBreaker()

	cb.Trip("operator halt")
	if !cb.Tripped() {
		t.Fatal("Trip should halt")
	}
	cb.Reset()
	if cb.Tripped() {
		t.Error("Reset should clear the breaker")
	}
	if cb.Status().Tripped {
		t.Error("status should report clear")
	}
}

func TestBreakerAutoReset(t *testing.T) {
	cb, clk := newTestBreaker()

	cb.CheckAndTrip(regime.VolatilityExtreme, 0, 1.0)

	clk.advance(30 * time.Minute)
	if !cb.Tripped() {
		t.Fatal("should still be tripped inside the window")
	}
	status := cb.Status()
	if status.MinutesToReset < 29 || status.MinutesToReset > 31 {
		t.Errorf("minutes to reset = %f, want ~30", status.MinutesToReset)
	}

	clk.advance(31 * time.Minute)
	if cb.Tripped() {
		t.Error("auto-reset window elapsed, breaker should clear")
	}
}
