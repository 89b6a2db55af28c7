package performance

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/pkg/utils"
)

// WeightConfig bounds the adaptive weight multipliers.
type WeightConfig struct {
	AdjustInterval time.Duration
	MinWeight      float64
	MaxWeight      float64
}

// DefaultWeightConfig returns sensible defaults.
func DefaultWeightConfig() *WeightConfig {
	return &WeightConfig{
		AdjustInterval: 24 * time.Hour,
		MinWeight:      0.1,
		MaxWeight:      2.0,
	}
}

// WeightManager derives per-strategy weight multipliers from recent
// performance and flags strategies that should be paused.
type WeightManager struct {
	logger  *zap.Logger
	config  *WeightConfig
	tracker *Tracker
	names   []string

	mu             sync.RWMutex
	weights        map[string]float64
	lastAdjustment time.Time

	now func() time.Time
}

// NewWeightManager creates a manager with neutral weights for the given
// strategy names.
func NewWeightManager(logger *zap.Logger, tracker *Tracker, names []string, config *WeightConfig) *WeightManager {
	if config == nil {
		config = DefaultWeightConfig()
	}
	m := &WeightManager{
		logger:  logger.Named("weights"),
		config:  config,
		tracker: tracker,
		names:   append([]string(nil), names...),
		weights: make(map[string]float64, len(names)),
		now:     time.Now,
	}
	for _, name := range names {
		m.weights[name] = 1.0
	}
	return m
}

// Weight returns the current multiplier for a strategy, 1.0 when unknown.
func (m *WeightManager) Weight(strategy string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if w, ok := m.weights[strategy]; ok {
		return w
	}
	return 1.0
}

// Weights returns a copy of all current weights.
func (m *WeightManager) Weights() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.weights))
	for k, v := range m.weights {
		out[k] = v
	}
	return out
}

// ShouldAdjust reports whether the adjustment interval has elapsed.
func (m *WeightManager) ShouldAdjust() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastAdjustment.IsZero() {
		return true
	}
	return m.now().Sub(m.lastAdjustment) > m.config.AdjustInterval
}

// AdjustWeights recomputes weights from window stats: strategies with at
// least 5 trades are scored on profit factor, win rate and expectancy,
// normalized against the mean score and clamped to the configured bounds.
func (m *WeightManager) AdjustWeights(lookback time.Duration) map[string]float64 {
	stats := m.tracker.AllStrategyStats(lookback)

	scores := make(map[string]float64, len(m.names))
	for _, name := range m.names {
		s, ok := stats[name]
		if !ok || s.TotalTrades < 5 {
			scores[name] = 1.0
			continue
		}
		expectancyBonus := s.Expectancy() * 10
		if expectancyBonus > 0.2 {
			expectancyBonus = 0.2
		}
		scores[name] = s.ProfitFactor()*0.5 + s.WinRate()*0.3 + expectancyBonus
	}

	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	avg := sum / float64(len(scores))

	m.mu.Lock()
	if avg > 0 {
		for _, name := range m.names {
			m.weights[name] = utils.Clamp(scores[name]/avg, m.config.MinWeight, m.config.MaxWeight)
		}
	}
	m.lastAdjustment = m.now()
	out := make(map[string]float64, len(m.weights))
	for k, v := range m.weights {
		out[k] = v
	}
	m.mu.Unlock()

	m.logger.Info("weights adjusted", zap.Any("weights", out))
	return out
}

// ShouldPause reports whether a strategy's recent record warrants pausing.
func (m *WeightManager) ShouldPause(strategy string) (bool, string) {
	stats := m.tracker.StrategyStats(strategy, 72*time.Hour)
	if stats.TotalTrades < 10 {
		return false, "OK"
	}
	if pf := stats.ProfitFactor(); pf < 0.8 {
		return true, fmt.Sprintf("low profit factor: %.2f", pf)
	}
	if wr := stats.WinRate(); wr < 0.35 {
		return true, fmt.Sprintf("low win rate: %.1f%%", wr*100)
	}
	if stats.MaxLoss < -0.10 {
		return true, fmt.Sprintf("large single loss: %.1f%%", stats.MaxLoss*100)
	}
	return false, "OK"
}

// Underperformers lists strategies with at least 10 trades in the last 72h
// and a profit factor below the threshold.
func (m *WeightManager) Underperformers(minProfitFactor float64) []string {
	stats := m.tracker.AllStrategyStats(72 * time.Hour)
	var out []string
	for _, name := range m.names {
		if s, ok := stats[name]; ok && s.TotalTrades >= 10 && s.ProfitFactor() < minProfitFactor {
			out = append(out, name)
		}
	}
	return out
}
