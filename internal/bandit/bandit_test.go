package bandit_test

import (
	"math/rand"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/bandit"
)

func TestBetaArmPriorAndUpdates(t *testing.T) {
	arm := bandit.NewBetaArm("trend_following")

	if arm.Mean() != 0.5 {
		t.Errorf("uniform prior mean = %f, want 0.5", arm.Mean())
	}
	if arm.AverageReward() != 0 {
		t.Errorf("average reward with no pulls = %f, want 0", arm.AverageReward())
	}

	before := arm.Variance()
	arm.Alpha += 5
	if arm.Mean() <= 0.5 {
		t.Errorf("mean after wins = %f, should exceed 0.5", arm.Mean())
	}
	if arm.Variance() >= before {
		t.Error("variance should shrink as evidence accumulates")
	}
}

func TestBetaArmSampleInUnitInterval(t *testing.T) {
	arm := bandit.NewBetaArm("grid")
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 1000; i++ {
		s := arm.Sample(rng)
		if s < 0 || s > 1 {
			t.Fatalf("sample %d = %f, outside [0, 1]", i, s)
		}
	}
}

func TestThompsonUpdateMovesPosterior(t *testing.T) {
	config := bandit.DefaultConfig()
	config.Seed = 42
	s := bandit.NewThompsonSelector(zap.NewNop(), []string{"a", "b"}, config)

	for i := 0; i < 20; i++ {
		s.Update("a", 0.05)
		s.Update("b", -0.05)
	}

	stats := s.Stats()
	if stats["a"].ExpectedValue <= stats["b"].ExpectedValue {
		t.Errorf("rewarded arm mean %f should exceed punished arm mean %f",
			stats["a"].ExpectedValue, stats["b"].ExpectedValue)
	}
	if stats["a"].Alpha <= 1 {
		t.Errorf("wins should grow alpha, got %f", stats["a"].Alpha)
	}
	if stats["b"].Beta <= 1 {
		t.Errorf("losses should grow beta, got %f", stats["b"].Beta)
	}
}

func TestThompsonZeroRewardStillMoves(t *testing.T) {
	config := bandit.DefaultConfig()
	config.Seed = 1
	s := bandit.NewThompsonSelector(zap.NewNop(), []string{"a"}, config)

	s.Update("a", 0)

	stats := s.Stats()
	if stats["a"].Beta <= 1 {
		t.Errorf("break-even should still grow beta by the floor, got %f", stats["a"].Beta)
	}
}

func TestThompsonConvergesToBetterArm(t *testing.T) {
	config := bandit.DefaultConfig()
	config.Seed = 99
	s := bandit.NewThompsonSelector(zap.NewNop(), []string{"good", "bad"}, config)
	rng := rand.New(rand.NewSource(123))

	picks := make(map[string]int)
	for round := 0; round < 1000; round++ {
		name, _ := s.Select()
		if round >= 900 {
			picks[name]++
		}
		var reward float64
		if name == "good" {
			reward = 0.06 + rng.Float64()*0.04
		} else {
			reward = -0.06 - rng.Float64()*0.04
		}
		s.Update(name, reward)
	}

	if picks["good"] < 80 {
		t.Errorf("good arm picked %d/100 in the last rounds, want at least 80", picks["good"])
	}
}

func TestThompsonUnknownArmIgnored(t *testing.T) {
	config := bandit.DefaultConfig()
	config.Seed = 1
	s := bandit.NewThompsonSelector(zap.NewNop(), []string{"a"}, config)

	s.Update("nope", 0.05)

	if _, ok := s.Stats()["nope"]; ok {
		t.Error("unknown arm should not be created")
	}
}

func TestThompsonExplorationRateColdStart(t *testing.T) {
	config := bandit.DefaultConfig()
	config.Seed = 1
	s := bandit.NewThompsonSelector(zap.NewNop(), []string{"a", "b"}, config)

	if rate := s.ExplorationRate(); rate != 1.0 {
		t.Errorf("cold start exploration rate = %f, want 1.0", rate)
	}

	for i := 0; i < 200; i++ {
		s.Select()
		s.Update("a", 0.05)
		s.Update("b", 0.05)
	}
	if rate := s.ExplorationRate(); rate >= 1.0 {
		t.Errorf("exploration rate after heavy evidence = %f, should drop below 1", rate)
	}
}

func TestThompsonStatePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bandit", "state.json")

	config := bandit.DefaultConfig()
	config.Seed = 5
	config.StatePath = path
	s := bandit.NewThompsonSelector(zap.NewNop(), []string{"a", "b"}, config)
	for i := 0; i < 10; i++ {
		s.Update("a", 0.08)
	}
	wantAlpha := s.Stats()["a"].Alpha

	reloaded := bandit.NewThompsonSelector(zap.NewNop(), []string{"a", "b"}, config)
	if got := reloaded.Stats()["a"].Alpha; got != wantAlpha {
		t.Errorf("reloaded alpha = %f, want %f", got, wantAlpha)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	fs := bandit.NewFileStore(zap.NewNop(), filepath.Join(t.TempDir(), "absent.json"))

	state, err := fs.Load()
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if state != nil {
		t.Error("missing file should yield nil state")
	}
}

func TestEpsilonGreedyExploitsBestArm(t *testing.T) {
	s := bandit.NewEpsilonGreedySelector(zap.NewNop(), []string{"a", "b"}, 0, 11)

	for i := 0; i < 10; i++ {
		s.Update("a", 0.02)
		s.Update("b", -0.01)
	}

	for i := 0; i < 50; i++ {
		name, mean := s.Select()
		if name != "a" {
			t.Fatalf("epsilon 0 should always exploit, picked %s", name)
		}
		if mean < 0.019 || mean > 0.021 {
			t.Fatalf("reported mean = %f, want ~0.02", mean)
		}
	}
}

func TestEpsilonGreedyExplores(t *testing.T) {
	s := bandit.NewEpsilonGreedySelector(zap.NewNop(), []string{"a", "b"}, 1.0, 13)

	for i := 0; i < 10; i++ {
		s.Update("a", 0.02)
		s.Update("b", -0.01)
	}

	picked := make(map[string]bool)
	for i := 0; i < 200; i++ {
		name, _ := s.Select()
		picked[name] = true
	}
	if !picked["b"] {
		t.Error("epsilon 1 should explore every arm")
	}

	counts := s.Counts()
	if counts["a"] != 10 || counts["b"] != 10 {
		t.Errorf("counts = %v, want 10 per arm", counts)
	}
}

func TestContextualKeepsContextsIndependent(t *testing.T) {
	config := bandit.DefaultConfig()
	config.Seed = 21
	contexts := []string{"uptrend", "downtrend", "sideways"}
	c := bandit.NewContextualSelector(zap.NewNop(), []string{"trend_following", "grid"}, contexts, config)

	for i := 0; i < 30; i++ {
		c.Update("uptrend", "trend_following", 0.05)
		c.Update("uptrend", "grid", -0.05)
		c.Update("sideways", "grid", 0.05)
		c.Update("sideways", "trend_following", -0.05)
	}

	if name, _ := c.BestForContext("uptrend"); name != "trend_following" {
		t.Errorf("best in uptrend = %s, want trend_following", name)
	}
	if name, _ := c.BestForContext("sideways"); name != "grid" {
		t.Errorf("best in sideways = %s, want grid", name)
	}
}

func TestContextualUnknownContextUsesDefault(t *testing.T) {
	config := bandit.DefaultConfig()
	config.Seed = 3
	c := bandit.NewContextualSelector(zap.NewNop(), []string{"a", "b"}, []string{"uptrend"}, config)

	c.Update("martian", "a", 0.08)

	stats := c.AllStats()
	if stats["default"]["a"].Alpha <= 1 {
		t.Error("update for an unknown context should land on the default sampler")
	}
}

func TestContextualStatePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contextual.json")
	config := bandit.DefaultConfig()
	config.Seed = 17
	config.StatePath = path
	contexts := []string{"uptrend", "sideways"}

	c := bandit.NewContextualSelector(zap.NewNop(), []string{"a", "b"}, contexts, config)
	for i := 0; i < 15; i++ {
		c.Update("uptrend", "a", 0.07)
	}
	want := c.AllStats()["uptrend"]["a"].Alpha

	reloaded := bandit.NewContextualSelector(zap.NewNop(), []string{"a", "b"}, contexts, config)
	if got := reloaded.AllStats()["uptrend"]["a"].Alpha; got != want {
		t.Errorf("reloaded uptrend alpha = %f, want %f", got, want)
	}
}
