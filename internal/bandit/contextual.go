package bandit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ContextualSelector routes selection and updates through one independent
// Thompson selector per discrete context label (regime trend bucket), plus a
// default selector for unseen contexts.
type ContextualSelector struct {
	logger *zap.Logger
	config *Config
	names  []string

	mu             sync.Mutex
	samplers       map[string]*ThompsonSelector
	defaultSampler *ThompsonSelector
	store          *FileStore
}

// NewContextualSelector creates per-context Thompson selectors for the given
// contexts. When config.StatePath is set, persisted state is loaded and each
// update is written back.
func NewContextualSelector(logger *zap.Logger, names, contexts []string, config *Config) *ContextualSelector {
	if config == nil {
		config = DefaultConfig()
	}

	// Per-context samplers share the config but persist through the
	// parent, not individually.
	subConfig := *config
	subConfig.StatePath = ""

	c := &ContextualSelector{
		logger:         logger.Named("bandit"),
		config:         config,
		names:          append([]string(nil), names...),
		samplers:       make(map[string]*ThompsonSelector, len(contexts)),
		defaultSampler: NewThompsonSelector(logger, names, &subConfig),
	}
	for _, ctx := range contexts {
		c.samplers[ctx] = NewThompsonSelector(logger, names, &subConfig)
	}

	if config.StatePath != "" {
		c.store = NewFileStore(logger, config.StatePath)
		if state, err := c.store.Load(); err != nil {
			c.logger.Warn("contextual bandit state not loaded", zap.Error(err))
		} else if state != nil {
			c.restore(state)
		}
	}

	return c
}

// Select picks a strategy for the given context.
func (c *ContextualSelector) Select(context string) (string, float64) {
	return c.sampler(context).Select()
}

// Update feeds a reward back to the sampler owning the context.
func (c *ContextualSelector) Update(context, name string, reward float64) {
	c.sampler(context).Update(name, reward)
	c.persist()
}

// BestForContext returns the highest-mean arm for a context.
func (c *ContextualSelector) BestForContext(context string) (string, float64) {
	return c.sampler(context).Best()
}

// AllStats returns per-context arm statistics, with the default sampler
// keyed as "default".
func (c *ContextualSelector) AllStats() map[string]map[string]ArmStats {
	c.mu.Lock()
	samplers := make(map[string]*ThompsonSelector, len(c.samplers)+1)
	for ctx, s := range c.samplers {
		samplers[ctx] = s
	}
	samplers["default"] = c.defaultSampler
	c.mu.Unlock()

	out := make(map[string]map[string]ArmStats, len(samplers))
	for ctx, s := range samplers {
		out[ctx] = s.Stats()
	}
	return out
}

func (c *ContextualSelector) sampler(context string) *ThompsonSelector {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.samplers[context]; ok {
		return s
	}
	return c.defaultSampler
}

func (c *ContextualSelector) persist() {
	if c.store == nil {
		return
	}

	c.mu.Lock()
	state := &State{
		Arms:      c.defaultSampler.State().Arms,
		Contexts:  make(map[string]map[string]ArmState, len(c.samplers)),
		Timestamp: time.Now(),
	}
	for ctx, s := range c.samplers {
		state.Contexts[ctx] = s.State().Arms
	}
	c.mu.Unlock()

	if err := c.store.Save(state); err != nil {
		c.logger.Warn("contextual bandit state not saved", zap.Error(err))
	}
}

func (c *ContextualSelector) restore(state *State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state.Arms != nil {
		c.defaultSampler.restore(state.Arms)
	}
	for ctx, arms := range state.Contexts {
		if s, ok := c.samplers[ctx]; ok {
			s.restore(arms)
		}
	}
}
