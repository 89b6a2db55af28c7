// Package types provides shared type definitions for the adaptive engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Timeframe represents trading timeframes
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// OHLCV represents a single candlestick
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Closes extracts the close series as float64 for indicator math.
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// Highs extracts the high series as float64.
func Highs(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High.InexactFloat64()
	}
	return out
}

// Lows extracts the low series as float64.
func Lows(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low.InexactFloat64()
	}
	return out
}

// Volumes extracts the volume series as float64.
func Volumes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume.InexactFloat64()
	}
	return out
}

// RiskVerdict is the outcome of a pre-trade risk check.
type RiskVerdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Decision is the output of one full decision cycle for a pair.
type Decision struct {
	ID           string             `json:"id"`
	Pair         string             `json:"pair"`
	Timestamp    time.Time          `json:"timestamp"`
	Strategy     string             `json:"strategy"`
	Score        float64            `json:"score"`
	Scores       map[string]float64 `json:"scores,omitempty"`
	Weights      map[string]float64 `json:"weights,omitempty"`
	Confidence   float64            `json:"confidence"`
	Context      string             `json:"context,omitempty"`
	Risk         RiskVerdict        `json:"risk"`
	PositionSize decimal.Decimal    `json:"positionSize"`
	EntrySignal  bool               `json:"entrySignal"`
	EntryTag     string             `json:"entryTag,omitempty"`
}

// TradeRecord is the wire form of one closed trade handed to the engine
// by the hosting execution framework.
type TradeRecord struct {
	Pair        string          `json:"pair"`
	Strategy    string          `json:"strategy"`
	Side        OrderSide       `json:"side"`
	EntryPrice  decimal.Decimal `json:"entryPrice"`
	ExitPrice   decimal.Decimal `json:"exitPrice"`
	ProfitRatio float64         `json:"profitRatio"`
	ProfitAbs   decimal.Decimal `json:"profitAbs"`
	OpenedAt    time.Time       `json:"openedAt"`
	ClosedAt    time.Time       `json:"closedAt"`
	EntryReason string          `json:"entryReason,omitempty"`
	ExitReason  string          `json:"exitReason,omitempty"`
}
