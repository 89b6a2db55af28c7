// Package config loads engine configuration from config.yaml and
// ADAPTIVE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/atlas-desktop/adaptive-engine/internal/engine"
	"github.com/atlas-desktop/adaptive-engine/internal/risk"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Bandit  BanditConfig  `mapstructure:"bandit"`
	Data    DataConfig    `mapstructure:"data"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	WebSocketPath string        `mapstructure:"websocket_path"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
}

// EngineConfig configures the decision cycle.
type EngineConfig struct {
	Pairs         []string      `mapstructure:"pairs"`
	Timeframe     string        `mapstructure:"timeframe"`
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	WindowSize    int           `mapstructure:"window_size"`
	SelectionMode string        `mapstructure:"selection_mode"`
	EnsembleTopN  int           `mapstructure:"ensemble_top_n"`
	ProposedStake float64       `mapstructure:"proposed_stake"`
	StopLossPct   float64       `mapstructure:"stop_loss_pct"`
	HistoryLimit  int           `mapstructure:"history_limit"`
}

// RiskConfig configures portfolio-level limits.
type RiskConfig struct {
	TotalCapital      float64 `mapstructure:"total_capital"`
	MaxOpenTrades     int     `mapstructure:"max_open_trades"`
	MaxDrawdownPct    float64 `mapstructure:"max_drawdown_pct"`
	DailyLossLimitPct float64 `mapstructure:"daily_loss_limit_pct"`
	RiskPerTradePct   float64 `mapstructure:"risk_per_trade_pct"`
}

// BanditConfig configures the bandit selectors.
type BanditConfig struct {
	RewardSpan       float64 `mapstructure:"reward_span"`
	MinBetaIncrement float64 `mapstructure:"min_beta_increment"`
	Epsilon          float64 `mapstructure:"epsilon"`
	Seed             int64   `mapstructure:"seed"`
	StatePath        string  `mapstructure:"state_path"`
}

// DataConfig configures storage locations.
type DataConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads config.yaml from the given path (or the working directory when
// empty) and overlays ADAPTIVE_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("ADAPTIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.enable_metrics", true)

	engineDefaults := engine.DefaultConfig()
	v.SetDefault("engine.pairs", engineDefaults.Pairs)
	v.SetDefault("engine.timeframe", string(engineDefaults.Timeframe))
	v.SetDefault("engine.cycle_interval", engineDefaults.CycleInterval)
	v.SetDefault("engine.window_size", engineDefaults.WindowSize)
	v.SetDefault("engine.selection_mode", engineDefaults.SelectionMode)
	v.SetDefault("engine.ensemble_top_n", engineDefaults.EnsembleTopN)
	v.SetDefault("engine.proposed_stake", 100.0)
	v.SetDefault("engine.stop_loss_pct", engineDefaults.StopLossPct)
	v.SetDefault("engine.history_limit", engineDefaults.HistoryLimit)

	riskDefaults := risk.DefaultConfig()
	v.SetDefault("risk.total_capital", 10000.0)
	v.SetDefault("risk.max_open_trades", riskDefaults.MaxOpenTrades)
	v.SetDefault("risk.max_drawdown_pct", riskDefaults.MaxDrawdownPct)
	v.SetDefault("risk.daily_loss_limit_pct", riskDefaults.DailyLossLimitPct)
	v.SetDefault("risk.risk_per_trade_pct", riskDefaults.RiskPerTradePct)

	v.SetDefault("bandit.reward_span", 0.1)
	v.SetDefault("bandit.min_beta_increment", 0.1)
	v.SetDefault("bandit.epsilon", 0.1)
	v.SetDefault("bandit.seed", 0)
	v.SetDefault("bandit.state_path", "data/bandit_state.json")

	v.SetDefault("data.data_dir", "data")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// EngineConfig converts the loaded engine section to the engine's config
// type.
func (c *Config) EngineConfig() *engine.Config {
	return &engine.Config{
		Pairs:         c.Engine.Pairs,
		Timeframe:     types.Timeframe(c.Engine.Timeframe),
		CycleInterval: c.Engine.CycleInterval,
		WindowSize:    c.Engine.WindowSize,
		SelectionMode: c.Engine.SelectionMode,
		EnsembleTopN:  c.Engine.EnsembleTopN,
		ProposedStake: decimal.NewFromFloat(c.Engine.ProposedStake),
		StopLossPct:   c.Engine.StopLossPct,
		HistoryLimit:  c.Engine.HistoryLimit,
	}
}

// RiskConfig converts the loaded risk section to the risk manager's config
// type.
func (c *Config) RiskConfig() *risk.Config {
	return &risk.Config{
		TotalCapital:      decimal.NewFromFloat(c.Risk.TotalCapital),
		MaxOpenTrades:     c.Risk.MaxOpenTrades,
		MaxDrawdownPct:    c.Risk.MaxDrawdownPct,
		DailyLossLimitPct: c.Risk.DailyLossLimitPct,
		RiskPerTradePct:   c.Risk.RiskPerTradePct,
	}
}
