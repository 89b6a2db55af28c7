package data

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// QualityIssue is one detected problem in a candle series.
type QualityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	BarIndex int    `json:"bar_index"`
	Message  string `json:"message"`
}

// QualityReport summarizes the integrity of a candle series. Analysis on a
// series that is not usable risks regime misreads, so loaders surface the
// report before caching.
type QualityReport struct {
	Symbol    string         `json:"symbol"`
	TotalBars int            `json:"total_bars"`
	Issues    []QualityIssue `json:"issues"`
	Score     int            `json:"quality_score"`
	Usable    bool           `json:"is_usable"`
}

// QualityValidator checks candle series for gaps, impossible OHLC values and
// anomalous moves.
type QualityValidator struct {
	logger *zap.Logger

	// MaxBarMove is the largest close-to-close change tolerated per bar.
	MaxBarMove float64
}

// NewQualityValidator creates a validator with crypto defaults.
func NewQualityValidator(logger *zap.Logger) *QualityValidator {
	return &QualityValidator{
		logger:     logger.Named("quality"),
		MaxBarMove: 0.30,
	}
}

// Validate runs all checks over a series.
func (v *QualityValidator) Validate(symbol string, bars []types.OHLCV) QualityReport {
	report := QualityReport{Symbol: symbol, TotalBars: len(bars)}
	if len(bars) == 0 {
		report.Issues = append(report.Issues, QualityIssue{
			Type: "no_data", Severity: "critical", Message: "empty series",
		})
		return report
	}

	report.Issues = append(report.Issues, v.checkOrder(bars)...)
	report.Issues = append(report.Issues, v.checkGaps(bars)...)
	report.Issues = append(report.Issues, v.checkConsistency(bars)...)
	report.Issues = append(report.Issues, v.checkMoves(bars)...)

	report.Score = qualityScore(len(bars), report.Issues)
	report.Usable = report.Score >= 70 && !hasCritical(report.Issues)
	return report
}

// checkOrder flags duplicate and backwards timestamps.
func (v *QualityValidator) checkOrder(bars []types.OHLCV) []QualityIssue {
	var issues []QualityIssue
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Timestamp.Equal(bars[i-1].Timestamp):
			issues = append(issues, QualityIssue{
				Type: "duplicate_timestamp", Severity: "high", BarIndex: i,
				Message: fmt.Sprintf("duplicate timestamp %s", bars[i].Timestamp.Format(time.RFC3339)),
			})
		case bars[i].Timestamp.Before(bars[i-1].Timestamp):
			issues = append(issues, QualityIssue{
				Type: "out_of_order", Severity: "critical", BarIndex: i,
				Message: "timestamps not ascending",
			})
		}
	}
	return issues
}

// checkGaps compares intervals against the median of the first intervals.
func (v *QualityValidator) checkGaps(bars []types.OHLCV) []QualityIssue {
	if len(bars) < 3 {
		return nil
	}

	intervals := make([]time.Duration, 0, 10)
	for i := 1; i < len(bars) && i <= 10; i++ {
		intervals = append(intervals, bars[i].Timestamp.Sub(bars[i-1].Timestamp))
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
	expected := intervals[len(intervals)/2]
	if expected <= 0 {
		return nil
	}

	var issues []QualityIssue
	for i := 1; i < len(bars); i++ {
		actual := bars[i].Timestamp.Sub(bars[i-1].Timestamp)
		if actual > expected*3 {
			severity := "medium"
			if actual > expected*10 {
				severity = "high"
			}
			issues = append(issues, QualityIssue{
				Type: "gap", Severity: severity, BarIndex: i,
				Message: fmt.Sprintf("gap of %s, expected ~%s", actual, expected),
			})
		}
	}
	return issues
}

// checkConsistency flags impossible OHLC relations and non-positive prices.
func (v *QualityValidator) checkConsistency(bars []types.OHLCV) []QualityIssue {
	var issues []QualityIssue
	for i, bar := range bars {
		if !bar.Open.IsPositive() || !bar.Close.IsPositive() || !bar.High.IsPositive() || !bar.Low.IsPositive() {
			issues = append(issues, QualityIssue{
				Type: "non_positive_price", Severity: "critical", BarIndex: i,
				Message: "bar has a zero or negative price",
			})
			continue
		}
		if bar.High.LessThan(bar.Low) ||
			bar.High.LessThan(bar.Open) || bar.High.LessThan(bar.Close) ||
			bar.Low.GreaterThan(bar.Open) || bar.Low.GreaterThan(bar.Close) {
			issues = append(issues, QualityIssue{
				Type: "ohlc_inconsistent", Severity: "high", BarIndex: i,
				Message: "high/low do not bound open/close",
			})
		}
		if bar.Volume.IsNegative() {
			issues = append(issues, QualityIssue{
				Type: "negative_volume", Severity: "high", BarIndex: i,
				Message: "negative volume",
			})
		}
	}
	return issues
}

// checkMoves flags close-to-close changes beyond the configured bound.
func (v *QualityValidator) checkMoves(bars []types.OHLCV) []QualityIssue {
	var issues []QualityIssue
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close.InexactFloat64()
		if prev == 0 {
			continue
		}
		move := (bars[i].Close.InexactFloat64() - prev) / prev
		if move < 0 {
			move = -move
		}
		if move > v.MaxBarMove {
			issues = append(issues, QualityIssue{
				Type: "extreme_move", Severity: "high", BarIndex: i,
				Message: fmt.Sprintf("close moved %.1f%% in one bar", move*100),
			})
		}
	}
	return issues
}

// qualityScore deducts per issue, weighted by severity, floored at zero.
func qualityScore(totalBars int, issues []QualityIssue) int {
	if totalBars == 0 {
		return 0
	}
	score := 100.0
	for _, issue := range issues {
		switch issue.Severity {
		case "critical":
			score -= 25
		case "high":
			score -= 10
		case "medium":
			score -= 3
		default:
			score -= 1
		}
	}
	if score < 0 {
		score = 0
	}
	return int(score)
}

func hasCritical(issues []QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "critical" {
			return true
		}
	}
	return false
}
