package bandit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ArmState is the persisted form of one arm.
type ArmState struct {
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
	Pulls       int     `json:"total_pulls"`
	TotalReward float64 `json:"total_reward"`
}

// State is the persisted snapshot of a selector: flat arms for the plain
// Thompson selector, per-context maps for the contextual variant.
type State struct {
	Arms      map[string]ArmState            `json:"arms"`
	Contexts  map[string]map[string]ArmState `json:"contexts,omitempty"`
	Timestamp time.Time                      `json:"timestamp"`
}

// FileStore persists bandit state as a single JSON snapshot, overwritten
// atomically on each save.
type FileStore struct {
	logger *zap.Logger
	path   string
}

// NewFileStore creates a store writing to path.
func NewFileStore(logger *zap.Logger, path string) *FileStore {
	return &FileStore{logger: logger.Named("bandit"), path: path}
}

// Save writes the state via a temp file and rename so readers never see a
// partial snapshot.
func (fs *FileStore) Save(state *State) error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bandit state: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write bandit state: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("replace bandit state: %w", err)
	}
	return nil
}

// Load reads the persisted state. A missing file is not an error and returns
// a nil state.
func (fs *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bandit state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode bandit state: %w", err)
	}

	fs.logger.Info("bandit state loaded", zap.String("path", fs.path))
	return &state, nil
}
