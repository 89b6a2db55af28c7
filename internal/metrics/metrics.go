// Package metrics exposes Prometheus instrumentation for the decision
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects engine metrics for the /metrics endpoint.
type Recorder struct {
	decisionsTotal  *prometheus.CounterVec
	entriesRefused  *prometheus.CounterVec
	regimeState     *prometheus.GaugeVec
	strategyScore   *prometheus.GaugeVec
	breakerTripped  prometheus.Gauge
	tradesRecorded  *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	explorationRate prometheus.Gauge
	currentDrawdown prometheus.Gauge
	dailyPnL        prometheus.Gauge
}

// New creates a Recorder with all collectors registered on the default
// registry.
func New() *Recorder {
	return &Recorder{
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptive_decisions_total",
				Help: "Total decisions produced, by pair and selected strategy",
			},
			[]string{"pair", "strategy"},
		),
		entriesRefused: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptive_entries_refused_total",
				Help: "Entries refused by risk checks, by reason class",
			},
			[]string{"reason"},
		),
		regimeState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "adaptive_regime_trend_rank",
				Help: "Numeric rank of the detected trend state per pair",
			},
			[]string{"pair"},
		),
		strategyScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "adaptive_strategy_score",
				Help: "Latest combined fitness score per strategy and pair",
			},
			[]string{"pair", "strategy"},
		),
		breakerTripped: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "adaptive_breaker_tripped",
				Help: "1 when the circuit breaker is tripped, 0 otherwise",
			},
		),
		tradesRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptive_trades_recorded_total",
				Help: "Closed trades fed back into the engine, by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adaptive_decision_cycle_seconds",
				Help:    "Duration of a full decision cycle",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pair"},
		),
		explorationRate: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "adaptive_bandit_exploration_rate",
				Help: "Current exploration rate of the bandit selector",
			},
		),
		currentDrawdown: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "adaptive_drawdown_pct",
				Help: "Current drawdown from peak capital, in percent",
			},
		),
		dailyPnL: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "adaptive_daily_pnl_pct",
				Help: "Realized daily profit and loss, in percent",
			},
		),
	}
}

// RecordDecision counts a completed decision cycle.
func (r *Recorder) RecordDecision(pair, strategy string) {
	r.decisionsTotal.WithLabelValues(pair, strategy).Inc()
}

// RecordRefusal counts an entry refused by risk checks.
func (r *Recorder) RecordRefusal(reason string) {
	r.entriesRefused.WithLabelValues(reason).Inc()
}

// RecordRegime publishes the trend rank of a pair.
func (r *Recorder) RecordRegime(pair string, trendRank int) {
	r.regimeState.WithLabelValues(pair).Set(float64(trendRank))
}

// RecordScore publishes the latest combined score of a strategy.
func (r *Recorder) RecordScore(pair, strategy string, score float64) {
	r.strategyScore.WithLabelValues(pair, strategy).Set(score)
}

// RecordBreaker publishes circuit breaker state.
func (r *Recorder) RecordBreaker(tripped bool) {
	if tripped {
		r.breakerTripped.Set(1)
	} else {
		r.breakerTripped.Set(0)
	}
}

// RecordTrade counts a closed trade.
func (r *Recorder) RecordTrade(strategy string, profitRatio float64) {
	outcome := "win"
	if profitRatio < 0 {
		outcome = "loss"
	}
	r.tradesRecorded.WithLabelValues(strategy, outcome).Inc()
}

// RecordCycleDuration observes the wall time of a decision cycle.
func (r *Recorder) RecordCycleDuration(pair string, seconds float64) {
	r.cycleDuration.WithLabelValues(pair).Observe(seconds)
}

// RecordExplorationRate publishes the bandit exploration rate.
func (r *Recorder) RecordExplorationRate(rate float64) {
	r.explorationRate.Set(rate)
}

// RecordRiskGauges publishes drawdown and daily P&L.
func (r *Recorder) RecordRiskGauges(drawdownPct, dailyPnLPct float64) {
	r.currentDrawdown.Set(drawdownPct)
	r.dailyPnL.Set(dailyPnLPct)
}
