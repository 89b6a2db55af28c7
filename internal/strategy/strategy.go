// Package strategy defines the candidate strategy contract and registry.
// Each strategy scores its own fitness for a regime snapshot and generates
// stateless entry/exit signals over a bar series.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// ErrUnknownStrategy is returned when a name is not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Metadata is the static descriptor of a candidate strategy.
type Metadata struct {
	Name            string                   `json:"name"`
	Description     string                   `json:"description"`
	IdealTrends     []regime.TrendState      `json:"ideal_trends"`
	IdealVolatility []regime.VolatilityState `json:"ideal_volatility"`
	IdealVolume     []regime.VolumeState     `json:"ideal_volume"`
	MinFitness      float64                  `json:"min_fitness_threshold"`
	MaxPositions    int                      `json:"max_positions"`
	MaxCapitalPct   float64                  `json:"max_capital_pct"`
	SizeMultiplier  float64                  `json:"size_multiplier"`
}

// IndicatorSet holds the indicator values a strategy derived for the last
// two bars of a series. Fields a strategy does not compute stay zero.
type IndicatorSet struct {
	Close     float64
	PrevClose float64

	EMA20     float64
	EMA50     float64
	EMA200    float64
	PrevEMA20 float64
	PrevEMA50 float64

	MACD           float64
	MACDSignal     float64
	PrevMACD       float64
	PrevMACDSignal float64

	RSI float64

	BBUpper  float64
	BBMiddle float64
	BBLower  float64
	ZScore   float64

	StochK float64
	StochD float64

	RecentHigh float64
	RecentLow  float64
	ATR        float64
}

// Strategy is the capability set every candidate exposes. Signal calls are
// stateless: all state lives in the series and the snapshot.
type Strategy interface {
	Metadata() Metadata
	Fitness(snap regime.Snapshot) float64
	Indicators(bars []types.OHLCV) IndicatorSet
	EntrySignal(bars []types.OHLCV, snap regime.Snapshot) (bool, string)
	ExitSignal(bars []types.OHLCV, snap regime.Snapshot) (bool, string)
}

// Registry maps strategy names to implementations.
type Registry struct {
	logger *zap.Logger

	mu         sync.RWMutex
	strategies map[string]Strategy
	order      []string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:     logger.Named("strategy"),
		strategies: make(map[string]Strategy),
	}
}

// NewDefaultRegistry creates a registry with the three reference strategies.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(NewTrendFollowing())
	r.Register(NewGrid())
	r.Register(NewMeanReversion())
	return r
}

// Register adds a strategy, replacing any previous entry with the same name.
func (r *Registry) Register(s Strategy) {
	name := s.Metadata().Name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[name]; !exists {
		r.order = append(r.order, name)
	}
	r.strategies[name] = s
	r.logger.Info("strategy registered", zap.String("name", name))
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all registered strategies in registration order.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.strategies[name])
	}
	return out
}

// Scores computes the fitness of every registered strategy for a snapshot.
func (r *Registry) Scores(snap regime.Snapshot) map[string]float64 {
	out := make(map[string]float64)
	for _, s := range r.All() {
		out[s.Metadata().Name] = s.Fitness(snap)
	}
	return out
}

// SortedNames returns registered names sorted alphabetically, for callers
// that need a deterministic iteration order.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

func containsTrend(set []regime.TrendState, t regime.TrendState) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}
