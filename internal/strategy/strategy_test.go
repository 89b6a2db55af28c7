package strategy_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/internal/strategy"
)

func TestDefaultRegistryContents(t *testing.T) {
	registry := strategy.NewDefaultRegistry(zap.NewNop())

	names := registry.Names()
	if len(names) != 3 {
		t.Fatalf("expected 3 built-in strategies, got %d: %v", len(names), names)
	}

	for _, name := range []string{"trend_following", "grid", "mean_reversion"} {
		if _, err := registry.Get(name); err != nil {
			t.Errorf("missing built-in strategy %s: %v", name, err)
		}
	}
}

func TestGetUnknownStrategy(t *testing.T) {
	registry := strategy.NewDefaultRegistry(zap.NewNop())

	_, err := registry.Get("momentum")
	if err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
	if !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestTrendFollowingFitness(t *testing.T) {
	s := strategy.NewTrendFollowing()

	strong := regime.Snapshot{
		Trend:      regime.TrendStrongUptrend,
		ADX:        45,
		Volume:     regime.VolumeHigh,
		Volatility: regime.VolatilityNormal,
	}
	if got := s.Fitness(strong); got != 1.0 {
		t.Errorf("ideal conditions should score 1.0, got %f", got)
	}

	sideways := regime.Snapshot{
		Trend:      regime.TrendSideways,
		ADX:        12,
		Volume:     regime.VolumeLow,
		Volatility: regime.VolatilityLow,
	}
	if got := s.Fitness(sideways); got != 0 {
		t.Errorf("flat quiet market should score 0, got %f", got)
	}
}

func TestGridFitness(t *testing.T) {
	s := strategy.NewGrid()

	calm := regime.Snapshot{
		Trend:      regime.TrendSideways,
		ADX:        12,
		Volatility: regime.VolatilityLow,
	}
	calmScore := s.Fitness(calm)
	if calmScore < 0.7 {
		t.Errorf("calm sideways market should suit grid, got %f", calmScore)
	}

	trending := regime.Snapshot{
		Trend:      regime.TrendStrongUptrend,
		ADX:        45,
		Volatility: regime.VolatilityNormal,
	}
	if got := s.Fitness(trending); got >= calmScore {
		t.Errorf("strong trend should suppress grid fitness: %f >= %f", got, calmScore)
	}

	extreme := calm
	extreme.Volatility = regime.VolatilityExtreme
	if got := s.Fitness(extreme); got >= calmScore {
		t.Errorf("extreme volatility should suppress grid fitness: %f >= %f", got, calmScore)
	}
}

func TestMeanReversionFitness(t *testing.T) {
	s := strategy.NewMeanReversion()

	oversold := regime.Snapshot{
		Trend:      regime.TrendSideways,
		RSI:        22,
		Volatility: regime.VolatilityNormal,
	}
	overboughtFree := regime.Snapshot{
		Trend:      regime.TrendSideways,
		RSI:        50,
		Volatility: regime.VolatilityNormal,
	}

	if s.Fitness(oversold) <= s.Fitness(overboughtFree) {
		t.Error("RSI extremes should raise mean reversion fitness")
	}
}

func TestScoresCoverAllStrategies(t *testing.T) {
	registry := strategy.NewDefaultRegistry(zap.NewNop())

	snap := regime.Snapshot{
		Trend:      regime.TrendSideways,
		ADX:        15,
		RSI:        50,
		Volatility: regime.VolatilityNormal,
		Volume:     regime.VolumeNormal,
	}

	scores := registry.Scores(snap)
	if len(scores) != 3 {
		t.Fatalf("expected a score per strategy, got %v", scores)
	}
	for name, score := range scores {
		if score < 0 || score > 1 {
			t.Errorf("score for %s out of [0,1]: %f", name, score)
		}
	}
}

func TestRegisterReplacesDuplicates(t *testing.T) {
	registry := strategy.NewRegistry(zap.NewNop())

	registry.Register(strategy.NewGrid())
	registry.Register(strategy.NewGrid())

	if names := registry.Names(); len(names) != 1 {
		t.Errorf("re-registering the same name should not grow the registry: %v", names)
	}
}

func TestSortedNamesDeterministic(t *testing.T) {
	registry := strategy.NewDefaultRegistry(zap.NewNop())

	first := registry.SortedNames()
	second := registry.SortedNames()
	if len(first) != len(second) {
		t.Fatal("sorted names changed length between calls")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("sorted names differ at %d: %s vs %s", i, first[i], second[i])
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1] > first[i] {
			t.Errorf("names not sorted: %v", first)
		}
	}
}
