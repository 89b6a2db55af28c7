// Package engine runs the decision cycle: regime detection, strategy
// selection, risk checks and position sizing for each configured pair.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/bandit"
	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/internal/events"
	"github.com/atlas-desktop/adaptive-engine/internal/metrics"
	"github.com/atlas-desktop/adaptive-engine/internal/performance"
	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/internal/risk"
	"github.com/atlas-desktop/adaptive-engine/internal/selector"
	"github.com/atlas-desktop/adaptive-engine/internal/strategy"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// Selection modes.
const (
	ModeDeterministic = "deterministic"
	ModeThompson      = "thompson"
	ModeContextual    = "contextual"
	ModeEpsilonGreedy = "epsilon_greedy"
)

// Config configures the decision engine.
type Config struct {
	Pairs         []string        `json:"pairs"`
	Timeframe     types.Timeframe `json:"timeframe"`
	CycleInterval time.Duration   `json:"cycleInterval"`
	WindowSize    int             `json:"windowSize"`
	SelectionMode string          `json:"selectionMode"`
	EnsembleTopN  int             `json:"ensembleTopN"`
	ProposedStake decimal.Decimal `json:"proposedStake"`
	StopLossPct   float64         `json:"stopLossPct"`
	HistoryLimit  int             `json:"historyLimit"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Pairs:         []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
		Timeframe:     types.Timeframe1h,
		CycleInterval: 5 * time.Minute,
		WindowSize:    300,
		SelectionMode: ModeDeterministic,
		EnsembleTopN:  2,
		ProposedStake: decimal.NewFromInt(100),
		StopLossPct:   0.05,
		HistoryLimit:  500,
	}
}

// Engine wires the detector, selectors, trackers and risk layer into one
// decision pipeline.
type Engine struct {
	logger     *zap.Logger
	config     *Config
	store      *data.Store
	detector   *regime.Detector
	registry   *strategy.Registry
	selector   *selector.Selector
	thompson   *bandit.ThompsonSelector
	contextual *bandit.ContextualSelector
	epsilon    *bandit.EpsilonGreedySelector
	tracker    *performance.Tracker
	weights    *performance.WeightManager
	risk       *risk.Manager
	breaker    *risk.CircuitBreaker
	bus        *events.EventBus
	recorder   *metrics.Recorder

	mu        sync.RWMutex
	decisions []types.Decision
	snapshots map[string]regime.Snapshot
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Store      *data.Store
	Detector   *regime.Detector
	Registry   *strategy.Registry
	Selector   *selector.Selector
	Thompson   *bandit.ThompsonSelector
	Contextual *bandit.ContextualSelector
	Epsilon    *bandit.EpsilonGreedySelector
	Tracker    *performance.Tracker
	Weights    *performance.WeightManager
	Risk       *risk.Manager
	Breaker    *risk.CircuitBreaker
	Bus        *events.EventBus
	Recorder   *metrics.Recorder
}

// New creates the engine.
func New(logger *zap.Logger, config *Config, deps Deps) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		logger:     logger.Named("engine"),
		config:     config,
		store:      deps.Store,
		detector:   deps.Detector,
		registry:   deps.Registry,
		selector:   deps.Selector,
		thompson:   deps.Thompson,
		contextual: deps.Contextual,
		epsilon:    deps.Epsilon,
		tracker:    deps.Tracker,
		weights:    deps.Weights,
		risk:       deps.Risk,
		breaker:    deps.Breaker,
		bus:        deps.Bus,
		recorder:   deps.Recorder,
		snapshots:  make(map[string]regime.Snapshot),
	}
}

// Run executes decision cycles at the configured interval until the context
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.config.CycleInterval)
	defer ticker.Stop()

	e.logger.Info("engine started",
		zap.Strings("pairs", e.config.Pairs),
		zap.String("mode", e.config.SelectionMode),
		zap.Duration("interval", e.config.CycleInterval),
	)

	e.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	for _, pair := range e.config.Pairs {
		if ctx.Err() != nil {
			return
		}
		decision := e.Decide(ctx, pair)
		e.logger.Debug("cycle decision",
			zap.String("pair", pair),
			zap.String("strategy", decision.Strategy),
			zap.Bool("entry", decision.EntrySignal),
		)
	}
}

// Decide runs one full decision cycle for a pair. A panic anywhere in the
// cycle degrades to a no-trade decision instead of taking the engine down.
func (e *Engine) Decide(ctx context.Context, pair string) (decision types.Decision) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("decision cycle panic",
				zap.String("pair", pair),
				zap.Any("panic", r),
			)
			decision = e.noTrade(pair, "internal_error")
		}
		if e.recorder != nil {
			e.recorder.RecordCycleDuration(pair, time.Since(started).Seconds())
		}
		e.remember(decision)
	}()

	bars, err := e.store.LatestWindow(ctx, pair, e.config.Timeframe, e.config.WindowSize)
	if err != nil {
		e.logger.Error("failed to load candles", zap.String("pair", pair), zap.Error(err))
		return e.noTrade(pair, "no_data")
	}

	snap := e.detector.Analyze(pair, bars)
	e.trackRegimeChange(pair, snap)
	if e.recorder != nil {
		e.recorder.RecordRegime(pair, regime.TrendRank(snap.Trend))
	}

	if halted := e.breaker.CheckAndTrip(snap.Volatility, priceChange1h(bars, e.config.Timeframe), snap.VolumeRatio); halted {
		status := e.breaker.Status()
		if e.recorder != nil {
			e.recorder.RecordBreaker(true)
			e.recorder.RecordRefusal("circuit_breaker")
		}
		if e.bus != nil {
			e.bus.Publish(events.NewBreakerEvent(true, status.Reason))
		}
		d := e.noTrade(pair, fmt.Sprintf("circuit_breaker: %s", status.Reason))
		return d
	}
	if e.recorder != nil {
		e.recorder.RecordBreaker(false)
	}

	name, score, scores := e.selectStrategy(snap)
	decision = types.Decision{
		ID:         uuid.NewString(),
		Pair:       pair,
		Timestamp:  time.Now(),
		Strategy:   name,
		Score:      score,
		Scores:     scores,
		Confidence: snap.OverallConfidence,
		Context:    contextBucket(snap),
	}
	if e.recorder != nil {
		for s, v := range scores {
			e.recorder.RecordScore(pair, s, v)
		}
	}

	openPositions := e.openPositionCount()
	verdict := e.risk.CheckPositionAllowed(name, openPositions)
	decision.Risk = verdict
	if !verdict.Allowed {
		if e.recorder != nil {
			e.recorder.RecordRefusal(refusalClass(verdict.Reason))
		}
		if e.bus != nil {
			e.bus.Publish(events.NewRiskAlertEvent("warning", pair, name, verdict.Reason))
		}
		e.publishDecision(decision)
		return decision
	}

	strat, err := e.registry.Get(name)
	if err != nil {
		e.logger.Error("selected strategy not registered", zap.String("strategy", name), zap.Error(err))
		return e.noTrade(pair, "unknown_strategy")
	}

	entry, tag := strat.EntrySignal(bars, snap)
	decision.EntrySignal = entry
	decision.EntryTag = tag

	if entry {
		entryPrice := decimal.Zero
		if len(bars) > 0 {
			entryPrice = bars[len(bars)-1].Close
		}
		decision.PositionSize = e.risk.CalculatePositionSize(
			name, snap.OverallConfidence, e.config.ProposedStake, entryPrice, e.config.StopLossPct)
	}

	if e.recorder != nil {
		e.recorder.RecordDecision(pair, name)
	}
	e.publishDecision(decision)

	return decision
}

// Ensemble returns normalized capital weights over the top strategies for a
// pair's last analyzed conditions.
func (e *Engine) Ensemble(pair string) map[string]float64 {
	snap, ok := e.detector.LastSnapshot(pair)
	if !ok {
		return map[string]float64{}
	}
	return e.selector.SelectEnsemble(snap, e.config.EnsembleTopN)
}

// RecordTradeResult feeds a closed trade back into every learning component:
// the tracker, the risk ledger, the active bandit and the weight manager.
func (e *Engine) RecordTradeResult(trade types.TradeRecord) {
	snap, _ := e.detector.LastSnapshot(trade.Pair)

	closedAt := trade.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now()
	}
	e.tracker.RecordTrade(performance.TradeResult{
		Timestamp:    closedAt,
		Strategy:     trade.Strategy,
		Pair:         trade.Pair,
		Side:         trade.Side,
		EntryPrice:   trade.EntryPrice,
		ExitPrice:    trade.ExitPrice,
		ProfitRatio:  trade.ProfitRatio,
		ProfitAbs:    trade.ProfitAbs,
		HoldDuration: closedAt.Sub(trade.OpenedAt),
		Condition:    snap,
		EntryReason:  trade.EntryReason,
		ExitReason:   trade.ExitReason,
	})

	e.risk.RecordTrade(trade.Strategy, trade.Pair, trade.ProfitRatio)

	switch e.config.SelectionMode {
	case ModeThompson:
		if e.thompson != nil {
			e.thompson.Update(trade.Strategy, trade.ProfitRatio)
			if e.recorder != nil {
				e.recorder.RecordExplorationRate(e.thompson.ExplorationRate())
			}
		}
	case ModeContextual:
		if e.contextual != nil {
			e.contextual.Update(contextBucket(snap), trade.Strategy, trade.ProfitRatio)
		}
	case ModeEpsilonGreedy:
		if e.epsilon != nil {
			e.epsilon.Update(trade.Strategy, trade.ProfitRatio)
		}
	}

	if e.weights != nil && e.weights.ShouldAdjust() {
		e.weights.AdjustWeights(7 * 24 * time.Hour)
	}

	if e.recorder != nil {
		e.recorder.RecordTrade(trade.Strategy, trade.ProfitRatio)
		status := e.risk.Status()
		e.recorder.RecordRiskGauges(status.DrawdownPct, status.DailyPnLPct)
	}
	if e.bus != nil {
		e.bus.Publish(events.NewTradeEvent(
			trade.Pair, trade.Strategy, trade.ProfitRatio, trade.ProfitAbs, trade.ExitReason))
	}
}

// Decisions returns the most recent decisions, newest last.
func (e *Engine) Decisions(limit int) []types.Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 || limit > len(e.decisions) {
		limit = len(e.decisions)
	}
	out := make([]types.Decision, limit)
	copy(out, e.decisions[len(e.decisions)-limit:])
	return out
}

// LastSnapshot returns the last analyzed conditions for a pair.
func (e *Engine) LastSnapshot(pair string) (regime.Snapshot, bool) {
	return e.detector.LastSnapshot(pair)
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.config
}

func (e *Engine) selectStrategy(snap regime.Snapshot) (string, float64, map[string]float64) {
	scores := e.registry.Scores(snap)

	switch e.config.SelectionMode {
	case ModeThompson:
		if e.thompson != nil {
			name, sample := e.thompson.Select()
			return name, sample, scores
		}
	case ModeContextual:
		if e.contextual != nil {
			name, sample := e.contextual.Select(contextBucket(snap))
			return name, sample, scores
		}
	case ModeEpsilonGreedy:
		if e.epsilon != nil {
			name, mean := e.epsilon.Select()
			return name, mean, scores
		}
	}

	return e.selector.SelectBest(snap)
}

func (e *Engine) noTrade(pair, reason string) types.Decision {
	return types.Decision{
		ID:        uuid.NewString(),
		Pair:      pair,
		Timestamp: time.Now(),
		Risk:      types.RiskVerdict{Allowed: false, Reason: reason},
	}
}

func (e *Engine) remember(decision types.Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.decisions = append(e.decisions, decision)
	if limit := e.config.HistoryLimit; limit > 0 && len(e.decisions) > limit {
		e.decisions = e.decisions[len(e.decisions)-limit:]
	}
	if decision.Pair != "" {
		if snap, ok := e.detector.LastSnapshot(decision.Pair); ok {
			e.snapshots[decision.Pair] = snap
		}
	}
}

func (e *Engine) trackRegimeChange(pair string, snap regime.Snapshot) {
	e.mu.Lock()
	previous, seen := e.snapshots[pair]
	e.mu.Unlock()

	if seen && previous.Trend != snap.Trend {
		e.logger.Info("regime change",
			zap.String("pair", pair),
			zap.String("from", string(previous.Trend)),
			zap.String("to", string(snap.Trend)),
		)
		if e.bus != nil {
			e.bus.Publish(events.NewRegimeChangeEvent(pair, previous, snap))
		}
	}
}

func (e *Engine) publishDecision(decision types.Decision) {
	if e.bus != nil {
		e.bus.Publish(events.NewDecisionEvent(decision))
	}
}

// openPositionCount sums per-strategy open positions from the risk ledger.
func (e *Engine) openPositionCount() int {
	total := 0
	for _, n := range e.risk.Status().StrategyPositions {
		total += n
	}
	return total
}

// contextBucket maps detected conditions to the coarse context key used by
// the contextual bandit.
func contextBucket(snap regime.Snapshot) string {
	switch snap.Trend {
	case regime.TrendStrongUptrend, regime.TrendUptrend, regime.TrendWeakUptrend:
		return "uptrend"
	case regime.TrendStrongDowntrend, regime.TrendDowntrend, regime.TrendWeakDowntrend:
		return "downtrend"
	default:
		return "sideways"
	}
}

// ContextBuckets lists the context keys used by the contextual bandit.
func ContextBuckets() []string {
	return []string{"uptrend", "downtrend", "sideways"}
}

// priceChange1h computes the relative close change over roughly the last
// hour of bars.
func priceChange1h(bars []types.OHLCV, timeframe types.Timeframe) float64 {
	if len(bars) < 2 {
		return 0
	}
	barsPerHour := 1
	switch timeframe {
	case types.Timeframe1m:
		barsPerHour = 60
	case types.Timeframe5m:
		barsPerHour = 12
	case types.Timeframe15m:
		barsPerHour = 4
	}
	idx := len(bars) - 1 - barsPerHour
	if idx < 0 {
		idx = 0
	}
	prev := bars[idx].Close.InexactFloat64()
	last := bars[len(bars)-1].Close.InexactFloat64()
	if prev == 0 {
		return 0
	}
	return (last - prev) / prev
}

// refusalClass buckets verbose refusal reasons into stable metric labels.
func refusalClass(reason string) string {
	switch {
	case strings.Contains(reason, "drawdown"):
		return "drawdown"
	case strings.Contains(reason, "daily loss"):
		return "daily_loss"
	case strings.Contains(reason, "cooldown"):
		return "cooldown"
	case strings.Contains(reason, "portfolio"):
		return "portfolio_cap"
	case strings.Contains(reason, "daily trade"):
		return "daily_trades"
	case strings.Contains(reason, "positions"):
		return "strategy_cap"
	default:
		return "other"
	}
}
