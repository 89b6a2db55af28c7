package data_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

func newTestStore(t *testing.T) *data.Store {
	t.Helper()
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func makeBars(n int, start time.Time) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	for i := range bars {
		price := decimal.NewFromInt(int64(100 + i))
		bars[i] = types.OHLCV{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price.Add(decimal.NewFromInt(2)),
			Low:       price.Sub(decimal.NewFromInt(2)),
			Close:     price.Add(decimal.NewFromInt(1)),
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return bars
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := makeBars(10, start)

	if err := store.SaveOHLCV("BTC/USDT", types.Timeframe1h, bars); err != nil {
		t.Fatalf("SaveOHLCV failed: %v", err)
	}

	store.ClearCache()
	loaded, err := store.LoadOHLCV(context.Background(), "BTC/USDT", types.Timeframe1h, start, start.Add(20*time.Hour))
	if err != nil {
		t.Fatalf("LoadOHLCV failed: %v", err)
	}
	if len(loaded) != 10 {
		t.Fatalf("loaded %d bars, want 10", len(loaded))
	}
	if !loaded[0].Open.Equal(bars[0].Open) {
		t.Errorf("first bar open = %s, want %s", loaded[0].Open, bars[0].Open)
	}
}

func TestLoadFiltersTimeRange(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := store.SaveOHLCV("ETH/USDT", types.Timeframe1h, makeBars(24, start)); err != nil {
		t.Fatalf("SaveOHLCV failed: %v", err)
	}

	loaded, err := store.LoadOHLCV(context.Background(), "ETH/USDT", types.Timeframe1h,
		start.Add(5*time.Hour), start.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("LoadOHLCV failed: %v", err)
	}
	if len(loaded) != 5 {
		t.Errorf("filtered to %d bars, want 5", len(loaded))
	}
}

func TestSyntheticSeriesDeterministic(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	a := data.GenerateSyntheticSeries("BTC/USDT", types.Timeframe1h, start, end)
	b := data.GenerateSyntheticSeries("BTC/USDT", types.Timeframe1h, start, end)
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("series lengths %d and %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Close.Equal(b[i].Close) || !a[i].Volume.Equal(b[i].Volume) {
			t.Fatalf("bar %d differs between runs", i)
		}
	}

	other := data.GenerateSyntheticSeries("SOL/USDT", types.Timeframe1h, start, end)
	if a[0].Close.Equal(other[0].Close) {
		t.Error("different symbols should produce different series")
	}
}

func TestLoadMissingFileFallsBackToSynthetic(t *testing.T) {
	store := newTestStore(t)
	start := time.Now().Add(-72 * time.Hour)

	bars, err := store.LoadOHLCV(context.Background(), "BTC/USDT", types.Timeframe1h, start, time.Now())
	if err != nil {
		t.Fatalf("LoadOHLCV failed: %v", err)
	}
	if len(bars) == 0 {
		t.Fatal("missing file should yield synthetic candles")
	}
	for _, bar := range bars {
		if bar.High.LessThan(bar.Low) {
			t.Fatal("synthetic bar has high below low")
		}
	}
}

func TestLatestWindowLength(t *testing.T) {
	store := newTestStore(t)

	bars, err := store.LatestWindow(context.Background(), "ETH/USDT", types.Timeframe1h, 50)
	if err != nil {
		t.Fatalf("LatestWindow failed: %v", err)
	}
	if len(bars) != 50 {
		t.Errorf("window has %d bars, want 50", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Fatal("window bars not in ascending time order")
		}
	}
}

func TestMetadataAndSymbols(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if err := store.SaveOHLCV("SOL/USDT", types.Timeframe1h, makeBars(6, start)); err != nil {
		t.Fatalf("SaveOHLCV failed: %v", err)
	}
	if err := store.SaveOHLCV("BTC/USDT", types.Timeframe1h, makeBars(6, start)); err != nil {
		t.Fatalf("SaveOHLCV failed: %v", err)
	}

	symbols := store.AvailableSymbols()
	if len(symbols) != 2 || symbols[0] != "BTC/USDT" || symbols[1] != "SOL/USDT" {
		t.Errorf("symbols = %v, want sorted [BTC/USDT SOL/USDT]", symbols)
	}

	gotStart, gotEnd, err := store.DataRange("SOL/USDT")
	if err != nil {
		t.Fatalf("DataRange failed: %v", err)
	}
	if !gotStart.Equal(start) || !gotEnd.Equal(start.Add(5*time.Hour)) {
		t.Errorf("range = [%s, %s]", gotStart, gotEnd)
	}

	if _, _, err := store.DataRange("XRP/USDT"); err == nil {
		t.Error("unknown symbol should error")
	}
}

func TestCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.LoadOHLCV(ctx, "BTC/USDT", types.Timeframe1h, time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Error("cancelled context should error")
	}
}
