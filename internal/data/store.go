// Package data provides candle storage and loading for the decision engine.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// Store provides access to historical candle data, backed by JSON files
// with an in-memory cache.
type Store struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	dataDir   string
	cache     map[string][]types.OHLCV
	metadata  map[string]*SymbolMetadata
	validator *QualityValidator
}

// SymbolMetadata describes the stored range for a symbol.
type SymbolMetadata struct {
	Symbol    string    `json:"symbol"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	BarCount  int       `json:"barCount"`
	Timeframe string    `json:"timeframe"`
}

// NewStore creates a data store rooted at dataDir.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	store := &Store{
		logger:    logger.Named("data"),
		dataDir:   dataDir,
		cache:     make(map[string][]types.OHLCV),
		metadata:  make(map[string]*SymbolMetadata),
		validator: NewQualityValidator(logger),
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := store.loadMetadata(); err != nil {
		logger.Warn("failed to load metadata", zap.Error(err))
	}

	return store, nil
}

// LoadOHLCV loads candles for a symbol within [start, end]. When no file
// exists a deterministic synthetic series is generated so the engine can
// run without an exchange feed.
func (s *Store) LoadOHLCV(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := cacheKey(symbol, timeframe)
	if cached, ok := s.cache[cacheKey]; ok {
		return filterByTimeRange(cached, start, end), nil
	}

	filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", sanitize(symbol), timeframe))
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("generating synthetic candles", zap.String("symbol", symbol))
			bars := GenerateSyntheticSeries(symbol, timeframe, start, end)
			s.cache[cacheKey] = bars
			return bars, nil
		}
		return nil, fmt.Errorf("failed to read candle file: %w", err)
	}

	var bars []types.OHLCV
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("failed to parse candle file: %w", err)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	if report := s.validator.Validate(symbol, bars); !report.Usable {
		s.logger.Warn("loaded series has quality issues",
			zap.String("symbol", symbol),
			zap.Int("score", report.Score),
			zap.Int("issues", len(report.Issues)),
		)
	}

	s.cache[cacheKey] = bars
	return filterByTimeRange(bars, start, end), nil
}

// LatestWindow returns the most recent n candles ending at now.
func (s *Store) LatestWindow(ctx context.Context, symbol string, timeframe types.Timeframe, n int) ([]types.OHLCV, error) {
	end := time.Now()
	start := end.Add(-time.Duration(n+1) * timeframeInterval(timeframe))
	bars, err := s.LoadOHLCV(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

// SaveOHLCV persists candles for a symbol and refreshes the cache and
// metadata.
func (s *Store) SaveOHLCV(symbol string, timeframe types.Timeframe, bars []types.OHLCV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", sanitize(symbol), timeframe))

	raw, err := json.MarshalIndent(bars, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal candles: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write candle file: %w", err)
	}

	s.cache[cacheKey(symbol, timeframe)] = bars

	if len(bars) > 0 {
		s.metadata[symbol] = &SymbolMetadata{
			Symbol:    symbol,
			StartDate: bars[0].Timestamp,
			EndDate:   bars[len(bars)-1].Timestamp,
			BarCount:  len(bars),
			Timeframe: string(timeframe),
		}
	}

	if err := s.saveMetadata(); err != nil {
		s.logger.Warn("failed to save metadata", zap.Error(err))
	}

	return nil
}

// Quality validates the stored series for a symbol and returns the report.
func (s *Store) Quality(ctx context.Context, symbol string, timeframe types.Timeframe, lookback time.Duration) (QualityReport, error) {
	end := time.Now()
	bars, err := s.LoadOHLCV(ctx, symbol, timeframe, end.Add(-lookback), end)
	if err != nil {
		return QualityReport{}, err
	}
	return s.validator.Validate(symbol, bars), nil
}

// AvailableSymbols returns all symbols with stored metadata.
func (s *Store) AvailableSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.metadata))
	for symbol := range s.metadata {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// DataRange returns the stored time range for a symbol.
func (s *Store) DataRange(symbol string) (start, end time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if meta, ok := s.metadata[symbol]; ok {
		return meta.StartDate, meta.EndDate, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("no data available for symbol %s", symbol)
}

// ClearCache drops the in-memory cache.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]types.OHLCV)
}

// CacheSize returns the number of cached datasets.
func (s *Store) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func (s *Store) loadMetadata() error {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var metadata map[string]*SymbolMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return err
	}
	s.metadata = metadata
	return nil
}

func (s *Store) saveMetadata() error {
	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dataDir, "metadata.json"), raw, 0644)
}

// GenerateSyntheticSeries builds a random-walk candle series seeded from the
// symbol so repeated calls with the same arguments produce identical bars.
func GenerateSyntheticSeries(symbol string, timeframe types.Timeframe, start, end time.Time) []types.OHLCV {
	interval := timeframeInterval(timeframe)
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))

	price := basePrice(symbol)
	var bars []types.OHLCV

	current := start.Truncate(interval)
	for !current.After(end) {
		change := (rng.Float64() - 0.5) * 0.02 * price
		open := decimal.NewFromFloat(price)
		price += change
		closePrice := decimal.NewFromFloat(price)

		high := decimal.Max(open, closePrice).Mul(decimal.NewFromFloat(1 + rng.Float64()*0.005))
		low := decimal.Min(open, closePrice).Mul(decimal.NewFromFloat(1 - rng.Float64()*0.005))
		volume := decimal.NewFromFloat(rng.Float64() * 1000000)

		bars = append(bars, types.OHLCV{
			Timestamp: current,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})

		current = current.Add(interval)
	}

	return bars
}

func timeframeInterval(timeframe types.Timeframe) time.Duration {
	switch timeframe {
	case types.Timeframe1m:
		return time.Minute
	case types.Timeframe5m:
		return 5 * time.Minute
	case types.Timeframe15m:
		return 15 * time.Minute
	case types.Timeframe1h:
		return time.Hour
	case types.Timeframe4h:
		return 4 * time.Hour
	case types.Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func basePrice(symbol string) float64 {
	switch symbol {
	case "BTC/USDT":
		return 40000.0
	case "ETH/USDT":
		return 2000.0
	case "SOL/USDT":
		return 100.0
	default:
		return 100.0
	}
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

func cacheKey(symbol string, timeframe types.Timeframe) string {
	return fmt.Sprintf("%s_%s", symbol, timeframe)
}

func sanitize(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			out = append(out, '_')
		} else {
			out = append(out, symbol[i])
		}
	}
	return string(out)
}

func filterByTimeRange(bars []types.OHLCV, start, end time.Time) []types.OHLCV {
	var filtered []types.OHLCV
	for _, bar := range bars {
		if !bar.Timestamp.Before(start) && !bar.Timestamp.After(end) {
			filtered = append(filtered, bar)
		}
	}
	return filtered
}
