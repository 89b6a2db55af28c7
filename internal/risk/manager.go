// Package risk enforces capital, position and loss limits, sizes positions
// and provides the portfolio circuit breaker.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/atlas-desktop/adaptive-engine/pkg/utils"
)

// StrategyConfig is the per-strategy risk profile.
type StrategyConfig struct {
	Name              string        `json:"name"`
	MaxCapitalPct     float64       `json:"max_capital_pct"`
	MaxPositions      int           `json:"max_positions"`
	MaxDailyTrades    int           `json:"max_daily_trades"`
	CooldownAfterLoss time.Duration `json:"cooldown_after_loss"`
	SizeMultiplier    float64       `json:"position_size_multiplier"`
}

// Config is the portfolio-level risk configuration.
type Config struct {
	TotalCapital      decimal.Decimal `json:"total_capital"`
	MaxOpenTrades     int             `json:"max_open_trades"`
	MaxDrawdownPct    float64         `json:"max_drawdown_pct"`
	DailyLossLimitPct float64         `json:"daily_loss_limit_pct"`
	RiskPerTradePct   float64         `json:"risk_per_trade_pct"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TotalCapital:      decimal.NewFromInt(10000),
		MaxOpenTrades:     5,
		MaxDrawdownPct:    0.15,
		DailyLossLimitPct: 0.05,
		RiskPerTradePct:   0.02,
	}
}

// DefaultStrategyConfigs returns the risk profiles of the built-in
// strategies.
func DefaultStrategyConfigs() map[string]StrategyConfig {
	return map[string]StrategyConfig{
		"trend_following": {
			Name:              "trend_following",
			MaxCapitalPct:     0.35,
			MaxPositions:      2,
			MaxDailyTrades:    8,
			CooldownAfterLoss: 20 * time.Minute,
			SizeMultiplier:    1.0,
		},
		"grid": {
			Name:              "grid",
			MaxCapitalPct:     0.40,
			MaxPositions:      5,
			MaxDailyTrades:    15,
			CooldownAfterLoss: 15 * time.Minute,
			SizeMultiplier:    0.8,
		},
		"mean_reversion": {
			Name:              "mean_reversion",
			MaxCapitalPct:     0.25,
			MaxPositions:      3,
			MaxDailyTrades:    10,
			CooldownAfterLoss: 25 * time.Minute,
			SizeMultiplier:    0.9,
		},
	}
}

// Status is a reporting snapshot of the risk ledger.
type Status struct {
	CurrentCapital    decimal.Decimal `json:"current_capital"`
	PeakCapital       decimal.Decimal `json:"peak_capital"`
	DrawdownPct       float64         `json:"drawdown_pct"`
	DailyPnLPct       float64         `json:"daily_pnl_pct"`
	StrategyPositions map[string]int  `json:"strategy_positions"`
	DailyTrades       map[string]int  `json:"daily_trades"`
	TradingAllowed    bool            `json:"is_trading_allowed"`
	RiskLevel         string          `json:"risk_level"`
}

// Manager owns the portfolio risk ledger: capital, daily P&L and per-strategy
// counters. All mutation goes through its methods behind one mutex.
type Manager struct {
	logger          *zap.Logger
	config          *Config
	strategyConfigs map[string]StrategyConfig

	mu             sync.Mutex
	currentCapital decimal.Decimal
	peakCapital    decimal.Decimal
	dailyPnL       float64
	lastDailyReset time.Time
	positions      map[string]int
	dailyTrades    map[string]int
	lastLoss       map[string]time.Time

	now func() time.Time
}

// NewManager creates a risk manager. Nil strategyConfigs falls back to the
// built-in profiles.
func NewManager(logger *zap.Logger, config *Config, strategyConfigs map[string]StrategyConfig) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if strategyConfigs == nil {
		strategyConfigs = DefaultStrategyConfigs()
	}
	now := time.Now
	return &Manager{
		logger:          logger.Named("risk"),
		config:          config,
		strategyConfigs: strategyConfigs,
		currentCapital:  config.TotalCapital,
		peakCapital:     config.TotalCapital,
		lastDailyReset:  now(),
		positions:       make(map[string]int),
		dailyTrades:     make(map[string]int),
		lastLoss:        make(map[string]time.Time),
		now:             now,
	}
}

// resetDailyCounters clears daily counters when the local date rolled over.
// Caller holds the mutex.
func (m *Manager) resetDailyCounters() {
	now := m.now()
	y1, m1, d1 := m.lastDailyReset.Date()
	y2, m2, d2 := now.Date()
	if y2 > y1 || (y2 == y1 && (m2 > m1 || (m2 == m1 && d2 > d1))) {
		m.dailyPnL = 0
		for k := range m.dailyTrades {
			m.dailyTrades[k] = 0
		}
		m.lastDailyReset = now
		m.logger.Info("daily risk counters reset")
	}
}

// CheckPositionAllowed runs the guarded checks in order: portfolio position
// cap, daily loss limit, drawdown, strategy position cap, strategy daily
// trades, post-loss cooldown. A refusal is a routine verdict, not an error.
func (m *Manager) CheckPositionAllowed(strategy string, currentOpenPositions int) types.RiskVerdict {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetDailyCounters()

	if currentOpenPositions >= m.config.MaxOpenTrades {
		return refused(fmt.Sprintf("max portfolio positions reached (%d)", m.config.MaxOpenTrades))
	}
	if m.dailyPnL <= -m.config.DailyLossLimitPct {
		return refused(fmt.Sprintf("daily loss limit reached (%.1f%%)", m.config.DailyLossLimitPct*100))
	}
	if dd := m.drawdownLocked(); dd >= m.config.MaxDrawdownPct {
		return refused(fmt.Sprintf("max drawdown reached (%.1f%%)", dd*100))
	}

	config, ok := m.strategyConfigs[strategy]
	if ok {
		if m.positions[strategy] >= config.MaxPositions {
			return refused(fmt.Sprintf("strategy %s max positions reached (%d)", strategy, config.MaxPositions))
		}
		if m.dailyTrades[strategy] >= config.MaxDailyTrades {
			return refused(fmt.Sprintf("strategy %s daily trade limit reached", strategy))
		}
		if lastLoss, hit := m.lastLoss[strategy]; hit {
			cooldownEnd := lastLoss.Add(config.CooldownAfterLoss)
			if now := m.now(); now.Before(cooldownEnd) {
				remaining := cooldownEnd.Sub(now).Round(time.Minute)
				return refused(fmt.Sprintf("strategy %s in cooldown (%s remaining)", strategy, remaining))
			}
		}
	}

	return types.RiskVerdict{Allowed: true, Reason: "OK"}
}

// CalculatePositionSize sizes a trade from the risk-per-trade budget, a
// capped Kelly fraction and the strategy's capital headroom. The result is
// always within [0.3*proposed, proposed].
func (m *Manager) CalculatePositionSize(strategy string, confidence float64, proposedStake decimal.Decimal, entryPrice decimal.Decimal, stopLossPct float64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	config, hasConfig := m.strategyConfigs[strategy]
	capital := m.currentCapital.InexactFloat64()
	proposed := proposedStake.InexactFloat64()

	riskAmount := capital * m.config.RiskPerTradePct

	winProb := 0.45 + confidence*0.2
	avgWin := 0.02
	avgLoss := stopLossPct
	if avgLoss < 0 {
		avgLoss = -avgLoss
	}

	kelly := 0.1
	if avgLoss > 0 {
		kelly = (winProb*avgWin - (1-winProb)*avgLoss) / avgLoss
		if kelly < 0 {
			kelly = 0
		}
		if kelly > 0.25 {
			kelly = 0.25
		}
	}

	position := proposed
	if avgLoss != 0 {
		position = riskAmount / avgLoss
	}
	if hasConfig {
		position *= config.SizeMultiplier
	}
	position *= 0.5 + confidence*0.5

	if hasConfig {
		maxStrategyCapital := capital * config.MaxCapitalPct
		exposure := float64(m.positions[strategy]) * proposed
		if available := maxStrategyCapital - exposure; position > available {
			position = available
		}
	}

	floor := proposedStake.Mul(decimal.NewFromFloat(0.3))
	size := utils.ClampDecimal(decimal.NewFromFloat(position), floor, proposedStake)

	m.logger.Debug("position sized",
		zap.String("strategy", strategy),
		zap.Float64("confidence", confidence),
		zap.Float64("kelly", kelly),
		zap.String("final", size.String()),
	)

	return size
}

// RecordTrade updates daily P&L, compounds capital, keeps the monotonic
// peak, bumps daily counters and stamps the cooldown clock on losses.
func (m *Manager) RecordTrade(strategy, pair string, profitPct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetDailyCounters()

	m.dailyPnL += profitPct
	m.currentCapital = m.currentCapital.Mul(decimal.NewFromFloat(1 + profitPct))
	if m.currentCapital.GreaterThan(m.peakCapital) {
		m.peakCapital = m.currentCapital
	}
	m.dailyTrades[strategy]++
	if profitPct < 0 {
		m.lastLoss[strategy] = m.now()
	}

	m.logger.Info("trade recorded",
		zap.String("strategy", strategy),
		zap.String("pair", pair),
		zap.Float64("profit_pct", profitPct*100),
		zap.Float64("daily_pnl_pct", m.dailyPnL*100),
	)
}

// UpdatePositionCount adjusts a strategy's open-position count, never below
// zero.
func (m *Manager) UpdatePositionCount(strategy string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.positions[strategy] += delta
	if m.positions[strategy] < 0 {
		m.positions[strategy] = 0
	}
}

// Status returns a snapshot of the ledger.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	dd := m.drawdownLocked()
	positions := make(map[string]int, len(m.positions))
	for k, v := range m.positions {
		positions[k] = v
	}
	trades := make(map[string]int, len(m.dailyTrades))
	for k, v := range m.dailyTrades {
		trades[k] = v
	}

	return Status{
		CurrentCapital:    m.currentCapital,
		PeakCapital:       m.peakCapital,
		DrawdownPct:       dd * 100,
		DailyPnLPct:       m.dailyPnL * 100,
		StrategyPositions: positions,
		DailyTrades:       trades,
		TradingAllowed:    dd < m.config.MaxDrawdownPct && m.dailyPnL > -m.config.DailyLossLimitPct,
		RiskLevel:         m.riskLevelLocked(dd),
	}
}

// SetCapital overrides the capital ledger. Used when reconciling with the
// hosting framework's account state.
func (m *Manager) SetCapital(current decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentCapital = current
	if current.GreaterThan(m.peakCapital) {
		m.peakCapital = current
	}
}

func (m *Manager) drawdownLocked() float64 {
	if m.peakCapital.IsZero() {
		return 0
	}
	return m.peakCapital.Sub(m.currentCapital).Div(m.peakCapital).InexactFloat64()
}

func (m *Manager) riskLevelLocked(drawdown float64) string {
	switch {
	case drawdown > 0.10 || m.dailyPnL < -0.03:
		return "HIGH"
	case drawdown > 0.05 || m.dailyPnL < -0.02:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func refused(reason string) types.RiskVerdict {
	return types.RiskVerdict{Allowed: false, Reason: reason}
}
