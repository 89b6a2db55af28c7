package bandit

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EpsilonGreedySelector is a non-Bayesian alternative: with probability
// epsilon pick a uniformly random arm, otherwise the arm with the highest
// empirical mean reward. Ties break by registration order.
type EpsilonGreedySelector struct {
	logger  *zap.Logger
	epsilon float64

	mu      sync.Mutex
	rng     *rand.Rand
	order   []string
	rewards map[string][]float64
}

// NewEpsilonGreedySelector creates a selector with the given exploration
// probability.
func NewEpsilonGreedySelector(logger *zap.Logger, names []string, epsilon float64, seed int64) *EpsilonGreedySelector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &EpsilonGreedySelector{
		logger:  logger.Named("bandit"),
		epsilon: epsilon,
		rng:     rand.New(rand.NewSource(seed)),
		order:   append([]string(nil), names...),
		rewards: make(map[string][]float64, len(names)),
	}
	for _, name := range names {
		s.rewards[name] = nil
	}
	return s
}

// Select picks an arm by the epsilon-greedy rule and returns its empirical
// mean reward.
func (s *EpsilonGreedySelector) Select() (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < s.epsilon {
		name := s.order[s.rng.Intn(len(s.order))]
		return name, meanRewards(s.rewards[name])
	}

	best := s.order[0]
	bestMean := meanRewards(s.rewards[best])
	for _, name := range s.order[1:] {
		if m := meanRewards(s.rewards[name]); m > bestMean {
			best = name
			bestMean = m
		}
	}
	return best, bestMean
}

// Update appends an observed reward for an arm. Unknown names are logged and
// ignored.
func (s *EpsilonGreedySelector) Update(name string, reward float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rewards[name]; !ok {
		s.logger.Warn("unknown bandit arm", zap.String("name", name))
		return
	}
	s.rewards[name] = append(s.rewards[name], reward)
}

// Counts returns the number of observed rewards per arm.
func (s *EpsilonGreedySelector) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.rewards))
	for name, rewards := range s.rewards {
		out[name] = len(rewards)
	}
	return out
}

func meanRewards(rewards []float64) float64 {
	if len(rewards) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range rewards {
		sum += r
	}
	return sum / float64(len(rewards))
}
