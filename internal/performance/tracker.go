// Package performance records trade outcomes and derives per-strategy
// statistics for adaptive selection.
package performance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// TradeResult is one closed trade. Records are append-only: once written
// they are only ever aggregated over.
type TradeResult struct {
	Timestamp    time.Time       `json:"timestamp"`
	Strategy     string          `json:"strategy"`
	Pair         string          `json:"pair"`
	Side         types.OrderSide `json:"side"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	ExitPrice    decimal.Decimal `json:"exit_price"`
	ProfitRatio  float64         `json:"profit_ratio"`
	ProfitAbs    decimal.Decimal `json:"profit_abs"`
	HoldDuration time.Duration   `json:"hold_duration"`
	Condition    regime.Snapshot `json:"market_condition"`
	EntryReason  string          `json:"entry_reason,omitempty"`
	ExitReason   string          `json:"exit_reason,omitempty"`
}

// Stats aggregates one strategy's trades over a trailing window. Derived
// values are methods so they can never go stale.
type Stats struct {
	Strategy      string        `json:"strategy"`
	PeriodStart   time.Time     `json:"period_start"`
	PeriodEnd     time.Time     `json:"period_end"`
	TotalTrades   int           `json:"total_trades"`
	WinningTrades int           `json:"winning_trades"`
	LosingTrades  int           `json:"losing_trades"`
	TotalProfit   float64       `json:"total_profit"`
	TotalLoss     float64       `json:"total_loss"`
	MaxWin        float64       `json:"max_win"`
	MaxLoss       float64       `json:"max_loss"`
	AvgHold       time.Duration `json:"avg_hold_duration"`
}

// WinRate returns the share of winning trades, 0.5 when there are none.
func (s Stats) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0.5
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades)
}

// ProfitFactor returns gross profit over gross loss, capped at 10 when
// there are no losses.
func (s Stats) ProfitFactor() float64 {
	if s.TotalLoss == 0 {
		if s.TotalProfit > 0 {
			return 10.0
		}
		return 1.0
	}
	pf := s.TotalProfit / s.TotalLoss
	if pf < 0 {
		pf = -pf
	}
	return pf
}

// AvgProfit returns mean profit per winning trade.
func (s Stats) AvgProfit() float64 {
	if s.WinningTrades == 0 {
		return 0
	}
	return s.TotalProfit / float64(s.WinningTrades)
}

// AvgLoss returns mean loss per losing trade (negative).
func (s Stats) AvgLoss() float64 {
	if s.LosingTrades == 0 {
		return 0
	}
	return s.TotalLoss / float64(s.LosingTrades)
}

// Expectancy returns the expected profit ratio per trade.
func (s Stats) Expectancy() float64 {
	avgLoss := s.AvgLoss()
	if avgLoss < 0 {
		avgLoss = -avgLoss
	}
	return s.WinRate()*s.AvgProfit() - (1-s.WinRate())*avgLoss
}

// SharpeApprox returns a rough return-over-risk ratio, 0 under 5 trades.
func (s Stats) SharpeApprox() float64 {
	if s.TotalTrades < 5 {
		return 0
	}
	avgReturn := (s.TotalProfit + s.TotalLoss) / float64(s.TotalTrades)
	risk := s.AvgLoss()
	if risk < 0 {
		risk = -risk
	}
	if risk < 0.01 {
		risk = 0.01
	}
	return avgReturn / risk
}

// Tracker owns the trade log. Trades are kept in memory in timestamp order
// and persisted to one JSON file per day.
type Tracker struct {
	logger  *zap.Logger
	dataDir string

	mu     sync.RWMutex
	trades []TradeResult

	now func() time.Time
}

// NewTracker creates a tracker and loads all historical day files from
// dataDir. Corrupt files are skipped, not fatal.
func NewTracker(logger *zap.Logger, dataDir string) (*Tracker, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create performance dir: %w", err)
	}

	t := &Tracker{
		logger:  logger.Named("performance"),
		dataDir: dataDir,
		now:     time.Now,
	}
	t.loadTrades()

	t.logger.Info("performance tracker initialized", zap.Int("historical_trades", len(t.trades)))
	return t, nil
}

// RecordTrade appends a trade and persists it to the day file.
func (t *Tracker) RecordTrade(trade TradeResult) {
	if trade.Timestamp.IsZero() {
		trade.Timestamp = t.now()
	}

	t.mu.Lock()
	t.trades = append(t.trades, trade)
	t.mu.Unlock()

	if err := t.saveTrade(trade); err != nil {
		// State stays in memory; the next successful write for this day
		// captures the full day again.
		t.logger.Error("trade not persisted", zap.Error(err))
	}

	t.logger.Info("trade recorded",
		zap.String("strategy", trade.Strategy),
		zap.String("pair", trade.Pair),
		zap.Float64("profit_ratio", trade.ProfitRatio),
	)
}

// StrategyStats folds the strategy's trades within the lookback window into
// a Stats aggregate. Recomputed on every call.
func (t *Tracker) StrategyStats(strategy string, lookback time.Duration) Stats {
	now := t.now()
	cutoff := now.Add(-lookback)

	stats := Stats{
		Strategy:    strategy,
		PeriodStart: cutoff,
		PeriodEnd:   now,
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var holdSum time.Duration
	for _, trade := range t.trades {
		if trade.Strategy != strategy || !trade.Timestamp.After(cutoff) {
			continue
		}
		stats.TotalTrades++
		holdSum += trade.HoldDuration
		if trade.ProfitRatio > 0 {
			stats.WinningTrades++
			stats.TotalProfit += trade.ProfitRatio
			if trade.ProfitRatio > stats.MaxWin {
				stats.MaxWin = trade.ProfitRatio
			}
		} else {
			stats.LosingTrades++
			stats.TotalLoss += trade.ProfitRatio
			if trade.ProfitRatio < stats.MaxLoss {
				stats.MaxLoss = trade.ProfitRatio
			}
		}
	}
	if stats.TotalTrades > 0 {
		stats.AvgHold = holdSum / time.Duration(stats.TotalTrades)
	}
	return stats
}

// AllStrategyStats returns window stats for every strategy seen in the log.
func (t *Tracker) AllStrategyStats(lookback time.Duration) map[string]Stats {
	t.mu.RLock()
	names := make(map[string]struct{})
	for _, trade := range t.trades {
		names[trade.Strategy] = struct{}{}
	}
	t.mu.RUnlock()

	out := make(map[string]Stats, len(names))
	for name := range names {
		out[name] = t.StrategyStats(name, lookback)
	}
	return out
}

// RecentTrades returns the last n trades for a strategy within the lookback
// window, newest last.
func (t *Tracker) RecentTrades(strategy string, n int, lookback time.Duration) []TradeResult {
	cutoff := t.now().Add(-lookback)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []TradeResult
	for _, trade := range t.trades {
		if trade.Strategy == strategy && trade.Timestamp.After(cutoff) {
			out = append(out, trade)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// BestStrategyForCondition returns the strategy with the highest mean profit
// ratio over trades whose stored regime matches the query, requiring at
// least 3 matching trades per strategy. Second return is false when no
// strategy qualifies.
func (t *Tracker) BestStrategyForCondition(query regime.Snapshot, lookback time.Duration) (string, float64, bool) {
	cutoff := t.now().Add(-lookback)

	t.mu.RLock()
	profits := make(map[string][]float64)
	for _, trade := range t.trades {
		if trade.Timestamp.Before(cutoff) {
			continue
		}
		if conditionsMatch(trade.Condition, query) {
			profits[trade.Strategy] = append(profits[trade.Strategy], trade.ProfitRatio)
		}
	}
	t.mu.RUnlock()

	best := ""
	bestAvg := 0.0
	found := false
	// Deterministic tie-breaking by name.
	names := make([]string, 0, len(profits))
	for name := range profits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := profits[name]
		if len(p) < 3 {
			continue
		}
		sum := 0.0
		for _, v := range p {
			sum += v
		}
		avg := sum / float64(len(p))
		if !found || avg > bestAvg {
			best = name
			bestAvg = avg
			found = true
		}
	}
	return best, bestAvg, found
}

// conditionsMatch accepts equal or adjacent trend buckets on the 7-point
// scale and equal or adjacent volatility buckets on the 4-point scale.
func conditionsMatch(stored, query regime.Snapshot) bool {
	st, qt := regime.TrendRank(stored.Trend), regime.TrendRank(query.Trend)
	if st < 0 || qt < 0 || abs(st-qt) > 1 {
		return false
	}
	sv, qv := regime.VolatilityRank(stored.Volatility), regime.VolatilityRank(query.Volatility)
	if sv < 0 || qv < 0 || abs(sv-qv) > 1 {
		return false
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (t *Tracker) dayFile(ts time.Time) string {
	return filepath.Join(t.dataDir, "trades_"+ts.Format("2006-01-02")+".json")
}

// saveTrade rewrites the trade's day file with all trades of that day via a
// temp file and rename.
func (t *Tracker) saveTrade(trade TradeResult) error {
	day := trade.Timestamp.Format("2006-01-02")

	t.mu.RLock()
	var dayTrades []TradeResult
	for _, tr := range t.trades {
		if tr.Timestamp.Format("2006-01-02") == day {
			dayTrades = append(dayTrades, tr)
		}
	}
	t.mu.RUnlock()

	data, err := json.MarshalIndent(dayTrades, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trades: %w", err)
	}

	path := t.dayFile(trade.Timestamp)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write trades: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace trades: %w", err)
	}
	return nil
}

// loadTrades reads every day file and merges records in timestamp order.
func (t *Tracker) loadTrades() {
	entries, err := os.ReadDir(t.dataDir)
	if err != nil {
		t.logger.Warn("performance dir not readable", zap.Error(err))
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "trades_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(t.dataDir, name))
		if err != nil {
			t.logger.Error("trade file not readable", zap.String("file", name), zap.Error(err))
			continue
		}
		var trades []TradeResult
		if err := json.Unmarshal(data, &trades); err != nil {
			t.logger.Error("trade file corrupt, skipping", zap.String("file", name), zap.Error(err))
			continue
		}
		t.trades = append(t.trades, trades...)
	}

	sort.Slice(t.trades, func(i, j int) bool {
		return t.trades[i].Timestamp.Before(t.trades[j].Timestamp)
	})
}
