// Package selector implements deterministic score-based strategy selection
// with switch hysteresis and ensemble weighting.
package selector

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/performance"
	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/internal/strategy"
)

// Config configures selection behavior. MinHoldDuration and SwitchRatio are
// carried-over heuristics, overridable rather than assumed tuned.
type Config struct {
	// MinHoldDuration suppresses switches away from the incumbent.
	MinHoldDuration time.Duration
	// SwitchRatio lets a challenger through early when its score exceeds
	// incumbent*SwitchRatio.
	SwitchRatio float64
	// PerformanceLookback bounds the trade window for the performance
	// multiplier.
	PerformanceLookback time.Duration
	// PerformanceWindow is the max number of recent trades considered.
	PerformanceWindow int
	// MinTradesForMultiplier is the sample size below which the
	// multiplier stays neutral.
	MinTradesForMultiplier int
	// DefaultStrategy is the ensemble fallback when nothing clears its
	// threshold.
	DefaultStrategy string
	// HistoryLimit caps the in-memory selection history.
	HistoryLimit int
	// UseAdaptiveWeights additionally multiplies scores by the weight
	// manager's multipliers.
	UseAdaptiveWeights bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MinHoldDuration:        30 * time.Minute,
		SwitchRatio:            1.2,
		PerformanceLookback:    7 * 24 * time.Hour,
		PerformanceWindow:      20,
		MinTradesForMultiplier: 5,
		DefaultStrategy:        "trend_following",
		HistoryLimit:           1000,
	}
}

// Selection is one audit entry of the selection history.
type Selection struct {
	Timestamp time.Time          `json:"timestamp"`
	Selected  string             `json:"selected"`
	Score     float64            `json:"score"`
	Scores    map[string]float64 `json:"all_scores"`
	Regime    regime.Snapshot    `json:"market_condition"`
}

// Selector picks the fittest strategy for a regime snapshot, damped by
// switch hysteresis.
type Selector struct {
	logger   *zap.Logger
	config   *Config
	registry *strategy.Registry
	tracker  *performance.Tracker
	weights  *performance.WeightManager

	mu         sync.Mutex
	current    string
	lastSwitch time.Time
	history    []Selection

	now func() time.Time
}

// New creates a selector. The weight manager may be nil when adaptive
// weights are disabled.
func New(logger *zap.Logger, registry *strategy.Registry, tracker *performance.Tracker, weights *performance.WeightManager, config *Config) *Selector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Selector{
		logger:   logger.Named("selector"),
		config:   config,
		registry: registry,
		tracker:  tracker,
		weights:  weights,
		now:      time.Now,
	}
}

// SelectBest returns the best strategy name, its score and the full score
// vector. Every call appends to the selection history regardless of whether
// a switch occurred.
func (s *Selector) SelectBest(snap regime.Snapshot) (string, float64, map[string]float64) {
	scores := s.scores(snap)

	best := ""
	bestScore := -1.0
	for _, name := range s.registry.SortedNames() {
		if score := scores[name]; score > bestScore {
			best = name
			bestScore = score
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.current != "" && !s.lastSwitch.IsZero() && now.Sub(s.lastSwitch) < s.config.MinHoldDuration {
		currentScore := scores[s.current]
		if bestScore < currentScore*s.config.SwitchRatio {
			best = s.current
			bestScore = currentScore
		}
	}

	if best != s.current {
		s.logger.Info("strategy switch",
			zap.String("from", s.current),
			zap.String("to", best),
			zap.Float64("score", bestScore),
		)
		s.current = best
		s.lastSwitch = now
	}

	s.history = append(s.history, Selection{
		Timestamp: now,
		Selected:  best,
		Score:     bestScore,
		Scores:    copyScores(scores),
		Regime:    snap,
	})
	if limit := s.config.HistoryLimit; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}

	return best, bestScore, scores
}

// SelectEnsemble normalizes positive scores into a weight vector, keeps the
// topN entries and renormalizes. Falls back to the default strategy at
// weight 1.0 when nothing clears its threshold.
func (s *Selector) SelectEnsemble(snap regime.Snapshot, topN int) map[string]float64 {
	_, _, scores := s.SelectBest(snap)

	type entry struct {
		name  string
		score float64
	}
	var valid []entry
	for _, name := range s.registry.SortedNames() {
		if scores[name] > 0 {
			valid = append(valid, entry{name, scores[name]})
		}
	}
	if len(valid) == 0 {
		return map[string]float64{s.config.DefaultStrategy: 1.0}
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].score > valid[j].score })
	if topN > 0 && len(valid) > topN {
		valid = valid[:topN]
	}

	total := 0.0
	for _, e := range valid {
		total += e.score
	}
	weights := make(map[string]float64, len(valid))
	for _, e := range valid {
		weights[e.name] = e.score / total
	}
	return weights
}

// Current returns the active strategy name, empty before the first call.
func (s *Selector) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// History returns the most recent limit selection entries, oldest first.
func (s *Selector) History(limit int) []Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]Selection, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// scores computes threshold-gated fitness*performance scores per strategy.
func (s *Selector) scores(snap regime.Snapshot) map[string]float64 {
	scores := make(map[string]float64)
	for _, st := range s.registry.All() {
		meta := st.Metadata()
		score := st.Fitness(snap) * s.performanceMultiplier(meta.Name)
		if s.config.UseAdaptiveWeights && s.weights != nil {
			score *= s.weights.Weight(meta.Name)
		}
		if score < meta.MinFitness {
			score = 0
		}
		scores[meta.Name] = score
	}
	return scores
}

// performanceMultiplier maps the win rate of the strategy's last trades to
// [0.7, 1.3], neutral below the minimum sample size.
func (s *Selector) performanceMultiplier(name string) float64 {
	trades := s.tracker.RecentTrades(name, s.config.PerformanceWindow, s.config.PerformanceLookback)
	if len(trades) < s.config.MinTradesForMultiplier {
		return 1.0
	}

	wins := 0
	for _, t := range trades {
		if t.ProfitRatio > 0 {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(trades))
	return 0.7 + winRate*0.6
}

func copyScores(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
