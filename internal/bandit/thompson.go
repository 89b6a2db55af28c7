package bandit

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures reward normalization and persistence for the
// Thompson/contextual selectors. The reward map and increment floor are
// heuristics carried as named settings rather than tuned constants.
type Config struct {
	// RewardSpan bounds the affine reward map: raw rewards in
	// [-RewardSpan, +RewardSpan] map linearly onto [0, 1].
	RewardSpan float64
	// MinBetaIncrement guarantees posterior movement on a zero reward.
	MinBetaIncrement float64
	// Seed fixes the sampling RNG; 0 means time-based.
	Seed int64
	// StatePath, when set, is where state snapshots are written.
	StatePath string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RewardSpan:       0.1,
		MinBetaIncrement: 0.1,
	}
}

// ArmStats is a reporting snapshot of one arm.
type ArmStats struct {
	Pulls         int     `json:"total_pulls"`
	TotalReward   float64 `json:"total_reward"`
	AverageReward float64 `json:"average_reward"`
	ExpectedValue float64 `json:"expected_value"`
	Alpha         float64 `json:"alpha"`
	Beta          float64 `json:"beta"`
	Uncertainty   float64 `json:"uncertainty"`
}

// ThompsonSelector selects strategies by sampling each arm's Beta posterior
// and taking the argmax.
type ThompsonSelector struct {
	logger *zap.Logger
	config *Config

	mu    sync.Mutex
	rng   *rand.Rand
	arms  map[string]*BetaArm
	order []string
	store *FileStore
}

// NewThompsonSelector creates a selector with uniform priors for the given
// strategy names. When config.StatePath is set, persisted state is loaded
// and every update is written back.
func NewThompsonSelector(logger *zap.Logger, names []string, config *Config) *ThompsonSelector {
	if config == nil {
		config = DefaultConfig()
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &ThompsonSelector{
		logger: logger.Named("bandit"),
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		arms:   make(map[string]*BetaArm, len(names)),
		order:  append([]string(nil), names...),
	}
	for _, name := range names {
		s.arms[name] = NewBetaArm(name)
	}

	if config.StatePath != "" {
		s.store = NewFileStore(logger, config.StatePath)
		if state, err := s.store.Load(); err != nil {
			s.logger.Warn("bandit state not loaded", zap.Error(err))
		} else if state != nil {
			s.restore(state.Arms)
		}
	}

	s.logger.Info("thompson sampling initialized", zap.Int("arms", len(s.arms)))
	return s
}

// Select samples every arm and returns the argmax arm name with its sampled
// value.
func (s *ThompsonSelector) Select() (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := ""
	bestSample := -1.0
	now := time.Now()
	for _, name := range s.order {
		arm := s.arms[name]
		arm.Pulls++
		arm.LastPulled = now
		sample := arm.Sample(s.rng)
		if sample > bestSample {
			best = name
			bestSample = sample
		}
	}

	s.logger.Debug("thompson selection",
		zap.String("selected", best),
		zap.Float64("sample", bestSample),
	)
	return best, bestSample
}

// Update feeds an observed raw reward (profit ratio) back into an arm. The
// reward is mapped onto [0,1]; wins grow alpha, losses and break-evens grow
// beta. Unknown names are logged and ignored.
func (s *ThompsonSelector) Update(name string, reward float64) {
	s.mu.Lock()
	arm, ok := s.arms[name]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("unknown bandit arm", zap.String("name", name))
		return
	}

	mapped := s.normalize(reward)
	arm.TotalReward += reward
	if reward > 0 {
		arm.Alpha += mapped
	} else {
		inc := mapped
		if inc < s.config.MinBetaIncrement {
			inc = s.config.MinBetaIncrement
		}
		arm.Beta += inc
	}

	s.logger.Debug("bandit updated",
		zap.String("name", name),
		zap.Float64("reward", reward),
		zap.Float64("mapped", mapped),
		zap.Float64("mean", arm.Mean()),
	)
	state := s.stateLocked()
	store := s.store
	s.mu.Unlock()

	if store != nil {
		if err := store.Save(state); err != nil {
			s.logger.Warn("bandit state not saved", zap.Error(err))
		}
	}
}

func (s *ThompsonSelector) normalize(reward float64) float64 {
	span := s.config.RewardSpan
	mapped := (reward + span) / (2 * span)
	if mapped < 0 {
		return 0
	}
	if mapped > 1 {
		return 1
	}
	return mapped
}

// Stats returns a reporting snapshot for every arm.
func (s *ThompsonSelector) Stats() map[string]ArmStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ArmStats, len(s.arms))
	for name, arm := range s.arms {
		out[name] = ArmStats{
			Pulls:         arm.Pulls,
			TotalReward:   arm.TotalReward,
			AverageReward: arm.AverageReward(),
			ExpectedValue: arm.Mean(),
			Alpha:         arm.Alpha,
			Beta:          arm.Beta,
			Uncertainty:   math.Sqrt(arm.Variance()),
		}
	}
	return out
}

// Best returns the arm with the highest posterior mean.
func (s *ThompsonSelector) Best() (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := ""
	bestMean := -1.0
	for _, name := range s.order {
		if m := s.arms[name].Mean(); m > bestMean {
			best = name
			bestMean = m
		}
	}
	return best, bestMean
}

// ExplorationRate reports how uncertain the selector still is, 1.0 at cold
// start scaling down with posterior variance.
func (s *ThompsonSelector) ExplorationRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	sumVar := 0.0
	for _, arm := range s.arms {
		total += arm.Pulls
		sumVar += arm.Variance()
	}
	if total < 10 {
		return 1.0
	}
	avg := sumVar / float64(len(s.arms))
	rate := avg * 10
	if rate > 1 {
		return 1
	}
	return rate
}

// State returns a persistable snapshot of all arms.
func (s *ThompsonSelector) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *ThompsonSelector) stateLocked() *State {
	state := &State{
		Arms:      make(map[string]ArmState, len(s.arms)),
		Timestamp: time.Now(),
	}
	for name, arm := range s.arms {
		state.Arms[name] = ArmState{
			Alpha:       arm.Alpha,
			Beta:        arm.Beta,
			Pulls:       arm.Pulls,
			TotalReward: arm.TotalReward,
		}
	}
	return state
}

// restore overwrites matching arms from a persisted snapshot. Names that are
// no longer registered are dropped.
func (s *ThompsonSelector) restore(arms map[string]ArmState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, data := range arms {
		arm, ok := s.arms[name]
		if !ok {
			continue
		}
		arm.Alpha = data.Alpha
		arm.Beta = data.Beta
		arm.Pulls = data.Pulls
		arm.TotalReward = data.TotalReward
	}
}
