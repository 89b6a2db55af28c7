// Package main provides the entry point for the adaptive decision engine
// server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/adaptive-engine/internal/api"
	"github.com/atlas-desktop/adaptive-engine/internal/bandit"
	"github.com/atlas-desktop/adaptive-engine/internal/config"
	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/internal/engine"
	"github.com/atlas-desktop/adaptive-engine/internal/events"
	"github.com/atlas-desktop/adaptive-engine/internal/metrics"
	"github.com/atlas-desktop/adaptive-engine/internal/performance"
	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/internal/risk"
	"github.com/atlas-desktop/adaptive-engine/internal/selector"
	"github.com/atlas-desktop/adaptive-engine/internal/strategy"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Directory containing config.yaml")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger := setupLogger(level, cfg.Logging.Development)
	defer logger.Sync()

	logger.Info("starting adaptive engine",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Strings("pairs", cfg.Engine.Pairs),
		zap.String("mode", cfg.Engine.SelectionMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := data.NewStore(logger, cfg.Data.DataDir)
	if err != nil {
		logger.Fatal("failed to initialize data store", zap.Error(err))
	}

	detector := regime.NewDetector(logger, regime.DefaultDetectorConfig())
	registry := strategy.NewDefaultRegistry(logger)

	tracker, err := performance.NewTracker(logger, filepath.Join(cfg.Data.DataDir, "performance"))
	if err != nil {
		logger.Fatal("failed to initialize performance tracker", zap.Error(err))
	}
	weights := performance.NewWeightManager(logger, tracker, registry.Names(), performance.DefaultWeightConfig())

	riskMgr := risk.NewManager(logger, cfg.RiskConfig(), risk.DefaultStrategyConfigs())
	breaker := risk.NewCircuitBreaker(logger)

	banditConfig := &bandit.Config{
		RewardSpan:       cfg.Bandit.RewardSpan,
		MinBetaIncrement: cfg.Bandit.MinBetaIncrement,
		Seed:             cfg.Bandit.Seed,
		StatePath:        cfg.Bandit.StatePath,
	}
	thompson := bandit.NewThompsonSelector(logger, registry.Names(), banditConfig)
	contextual := bandit.NewContextualSelector(logger, registry.Names(), engine.ContextBuckets(), banditConfig)
	epsilon := bandit.NewEpsilonGreedySelector(logger, registry.Names(), cfg.Bandit.Epsilon, cfg.Bandit.Seed)

	sel := selector.New(logger, registry, tracker, weights, selector.DefaultConfig())

	bus := events.NewEventBus(logger, events.DefaultBusConfig())
	recorder := metrics.New()

	eng := engine.New(logger, cfg.EngineConfig(), engine.Deps{
		Store:      store,
		Detector:   detector,
		Registry:   registry,
		Selector:   sel,
		Thompson:   thompson,
		Contextual: contextual,
		Epsilon:    epsilon,
		Tracker:    tracker,
		Weights:    weights,
		Risk:       riskMgr,
		Breaker:    breaker,
		Bus:        bus,
		Recorder:   recorder,
	})

	serverConfig := &types.ServerConfig{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		WebSocketPath: cfg.Server.WebSocketPath,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		EnableMetrics: cfg.Server.EnableMetrics,
	}
	server := api.NewServer(logger, serverConfig, eng, store, tracker, riskMgr, breaker, bus)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("engine error", zap.Error(err))
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.WebSocketPath)),
	)

	<-sigChan
	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}
	bus.Stop()

	logger.Info("server stopped")
}

func setupLogger(level string, development bool) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: development,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
