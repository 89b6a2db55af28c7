// Package regime classifies market conditions from OHLCV series.
// Detects: trend direction/strength, volatility level, volume activity and
// Wyckoff market phase.
package regime

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// TrendState represents trend direction and strength
type TrendState string

const (
	TrendStrongUptrend   TrendState = "strong_uptrend"
	TrendUptrend         TrendState = "uptrend"
	TrendWeakUptrend     TrendState = "weak_uptrend"
	TrendSideways        TrendState = "sideways"
	TrendWeakDowntrend   TrendState = "weak_downtrend"
	TrendDowntrend       TrendState = "downtrend"
	TrendStrongDowntrend TrendState = "strong_downtrend"
)

// VolatilityState represents the volatility level
type VolatilityState string

const (
	VolatilityLow     VolatilityState = "low"
	VolatilityNormal  VolatilityState = "normal"
	VolatilityHigh    VolatilityState = "high"
	VolatilityExtreme VolatilityState = "extreme"
)

// VolumeState represents volume activity relative to its average
type VolumeState string

const (
	VolumeLow    VolumeState = "low"
	VolumeNormal VolumeState = "normal"
	VolumeHigh   VolumeState = "high"
	VolumeSpike  VolumeState = "spike"
)

// MarketPhase represents the Wyckoff market phase
type MarketPhase string

const (
	PhaseAccumulation MarketPhase = "accumulation"
	PhaseMarkup       MarketPhase = "markup"
	PhaseDistribution MarketPhase = "distribution"
	PhaseMarkdown     MarketPhase = "markdown"
)

// trendRanks orders trend states on a 7-point scale for adjacency checks.
var trendRanks = map[TrendState]int{
	TrendStrongUptrend:   0,
	TrendUptrend:         1,
	TrendWeakUptrend:     2,
	TrendSideways:        3,
	TrendWeakDowntrend:   4,
	TrendDowntrend:       5,
	TrendStrongDowntrend: 6,
}

var volatilityRanks = map[VolatilityState]int{
	VolatilityLow:     0,
	VolatilityNormal:  1,
	VolatilityHigh:    2,
	VolatilityExtreme: 3,
}

// TrendRank returns the position of a trend state on the ordered 7-point
// scale, -1 for an unknown state.
func TrendRank(t TrendState) int {
	if r, ok := trendRanks[t]; ok {
		return r
	}
	return -1
}

// VolatilityRank returns the position of a volatility state on the ordered
// 4-point scale, -1 for an unknown state.
func VolatilityRank(v VolatilityState) int {
	if r, ok := volatilityRanks[v]; ok {
		return r
	}
	return -1
}

// Snapshot is the immutable result of one analysis pass.
type Snapshot struct {
	Timestamp            time.Time       `json:"timestamp"`
	Trend                TrendState      `json:"trend"`
	TrendConfidence      float64         `json:"trend_confidence"`
	Volatility           VolatilityState `json:"volatility"`
	VolatilityPercentile float64         `json:"volatility_percentile"`
	Volume               VolumeState     `json:"volume"`
	VolumeRatio          float64         `json:"volume_ratio"`
	VolumeTrend          float64         `json:"volume_trend"`
	Phase                MarketPhase     `json:"market_phase"`
	PhaseConfidence      float64         `json:"phase_confidence"`
	OverallConfidence    float64         `json:"overall_confidence"`

	// Raw metrics for fitness scoring and reporting.
	ADX       float64 `json:"adx"`
	RSI       float64 `json:"rsi"`
	ATRPct    float64 `json:"atr_pct"`
	BBWidth   float64 `json:"bb_width"`
	AvgSlope  float64 `json:"avg_slope"`
	AboveEMAs int     `json:"above_emas"`
	Reason    string  `json:"reason,omitempty"`
}

// DetectorConfig configures the regime detector
type DetectorConfig struct {
	ADXPeriod     int   // ADX lookback
	EMAPeriods    []int // EMA periods for slope detection
	SlopeSpan     int   // bars over which EMA slope is measured
	ATRPeriod     int   // ATR lookback
	BBPeriod      int   // Bollinger band period
	VolumePeriod  int   // volume moving-average period
	LookbackDays  int   // days of history for ATR percentile ranking
	SpikeRatio    float64
	MinBars       int // bars required for full trend/phase detection
}

// DefaultDetectorConfig returns sensible defaults
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		ADXPeriod:    14,
		EMAPeriods:   []int{20, 50, 200},
		SlopeSpan:    4, // last value vs 5 bars ago
		ATRPeriod:    14,
		BBPeriod:     20,
		VolumePeriod: 20,
		LookbackDays: 30,
		SpikeRatio:   2.5,
		MinBars:      200,
	}
}

// Detector combines trend, volatility, volume and phase classification.
type Detector struct {
	logger *zap.Logger
	config *DetectorConfig

	mu   sync.RWMutex
	last map[string]Snapshot
}

// NewDetector creates a regime detector.
func NewDetector(logger *zap.Logger, config *DetectorConfig) *Detector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &Detector{
		logger: logger.Named("regime"),
		config: config,
		last:   make(map[string]Snapshot),
	}
}

// Analyze classifies the regime for one pair. The computation is pure; the
// snapshot is additionally cached per pair for the status API.
func (d *Detector) Analyze(pair string, bars []types.OHLCV) Snapshot {
	snap := d.analyze(bars)

	d.mu.Lock()
	d.last[pair] = snap
	d.mu.Unlock()

	d.logger.Info("regime analyzed",
		zap.String("pair", pair),
		zap.String("trend", string(snap.Trend)),
		zap.String("volatility", string(snap.Volatility)),
		zap.String("phase", string(snap.Phase)),
		zap.Float64("confidence", snap.OverallConfidence),
	)

	return snap
}

// LastSnapshot returns the most recent snapshot for a pair.
func (d *Detector) LastSnapshot(pair string) (Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	snap, ok := d.last[pair]
	return snap, ok
}

func (d *Detector) analyze(bars []types.OHLCV) Snapshot {
	closes := types.Closes(bars)
	highs := types.Highs(bars)
	lows := types.Lows(bars)
	volumes := types.Volumes(bars)

	var ts time.Time
	if len(bars) > 0 {
		ts = bars[len(bars)-1].Timestamp
	}

	trend, trendConf, adx, avgSlope, aboveEMAs, reason := d.detectTrend(closes, highs, lows)
	volState, volPct, atrPct, bbWidth := d.detectVolatility(closes, highs, lows)
	volumeState, volumeRatio, volumeTrend := d.detectVolume(volumes)
	phase, phaseConf := detectPhase(trend, volState, volumeState)

	rsi := indicators.Last(indicators.RSI(closes, 14))
	if math.IsNaN(rsi) {
		rsi = 50
	}

	return Snapshot{
		Timestamp:            ts,
		Trend:                trend,
		TrendConfidence:      trendConf,
		Volatility:           volState,
		VolatilityPercentile: volPct,
		Volume:               volumeState,
		VolumeRatio:          volumeRatio,
		VolumeTrend:          volumeTrend,
		Phase:                phase,
		PhaseConfidence:      phaseConf,
		OverallConfidence:    (trendConf + phaseConf) / 2,
		ADX:                  adx,
		RSI:                  rsi,
		ATRPct:               atrPct,
		BBWidth:              bbWidth,
		AvgSlope:             avgSlope,
		AboveEMAs:            aboveEMAs,
		Reason:               reason,
	}
}

func (d *Detector) detectTrend(closes, highs, lows []float64) (TrendState, float64, float64, float64, int, string) {
	if len(closes) < d.config.MinBars {
		return TrendSideways, 0.5, 20, 0, 0, "insufficient_data"
	}

	adx := indicators.Last(indicators.ADX(highs, lows, closes, d.config.ADXPeriod))
	if math.IsNaN(adx) {
		adx = 20
	}

	// Average EMA slope over the trailing bars, as percent of price.
	slopeSum := 0.0
	aboveEMAs := 0
	price := closes[len(closes)-1]
	for _, period := range d.config.EMAPeriods {
		ema := indicators.EMA(closes, period)
		slope := indicators.Slope(ema, d.config.SlopeSpan)
		if !math.IsNaN(slope) {
			slopeSum += slope * 100
		}
		if last := indicators.Last(ema); !math.IsNaN(last) && price > last {
			aboveEMAs++
		}
	}
	avgSlope := slopeSum / float64(len(d.config.EMAPeriods))

	var trend TrendState
	var conf float64
	switch {
	case adx > 40 && avgSlope > 1:
		trend = TrendStrongUptrend
		conf = math.Min(0.95, 0.7+adx/100)
	case adx > 25 && avgSlope > 0.5:
		trend = TrendUptrend
		conf = 0.75
	case adx > 20 && avgSlope > 0:
		trend = TrendWeakUptrend
		conf = 0.6
	case adx > 40 && avgSlope < -1:
		trend = TrendStrongDowntrend
		conf = math.Min(0.95, 0.7+adx/100)
	case adx > 25 && avgSlope < -0.5:
		trend = TrendDowntrend
		conf = 0.75
	case adx > 20 && avgSlope < 0:
		trend = TrendWeakDowntrend
		conf = 0.6
	default:
		trend = TrendSideways
		if adx < 20 {
			conf = 0.8
		} else {
			conf = 0.6
		}
	}

	return trend, conf, adx, avgSlope, aboveEMAs, ""
}

func (d *Detector) detectVolatility(closes, highs, lows []float64) (VolatilityState, float64, float64, float64) {
	atrSeries := indicators.ATR(highs, lows, closes, d.config.ATRPeriod)
	currentATR := indicators.Last(atrSeries)

	if math.IsNaN(currentATR) || len(closes) == 0 {
		return VolatilityNormal, 50, 0, 0
	}

	// Rank current ATR within the trailing lookback window (hourly bars).
	lookback := d.config.LookbackDays * 24
	if lookback > len(atrSeries)-1 {
		lookback = len(atrSeries) - 1
	}
	percentile := 50.0
	if lookback > 0 {
		below := 0
		count := 0
		for _, v := range atrSeries[len(atrSeries)-lookback:] {
			if math.IsNaN(v) {
				continue
			}
			count++
			if v < currentATR {
				below++
			}
		}
		if count > 0 {
			percentile = 100 * float64(below) / float64(count)
		}
	}

	var state VolatilityState
	switch {
	case percentile > 95:
		state = VolatilityExtreme
	case percentile > 75:
		state = VolatilityHigh
	case percentile > 25:
		state = VolatilityNormal
	default:
		state = VolatilityLow
	}

	atrPct := currentATR / closes[len(closes)-1] * 100
	bbWidth := indicators.BollingerWidth(closes, d.config.BBPeriod, 2) * 100
	if math.IsNaN(bbWidth) {
		bbWidth = 0
	}

	return state, percentile, atrPct, bbWidth
}

func (d *Detector) detectVolume(volumes []float64) (VolumeState, float64, float64) {
	if len(volumes) == 0 {
		return VolumeNormal, 1.0, 1.0
	}

	ma := indicators.Last(indicators.SMA(volumes, d.config.VolumePeriod))
	current := volumes[len(volumes)-1]

	ratio := 1.0
	if !math.IsNaN(ma) && ma > 0 {
		ratio = current / ma
	}

	// Short/long volume activity ratio: last 5 bars vs the 15 before them.
	volumeTrend := 1.0
	if len(volumes) >= 20 {
		recent := mean(volumes[len(volumes)-5:])
		prior := mean(volumes[len(volumes)-20 : len(volumes)-5])
		if prior > 0 {
			volumeTrend = recent / prior
		}
	}

	var state VolumeState
	switch {
	case ratio > d.config.SpikeRatio:
		state = VolumeSpike
	case ratio > 1.5:
		state = VolumeHigh
	case ratio > 0.7:
		state = VolumeNormal
	default:
		state = VolumeLow
	}

	return state, ratio, volumeTrend
}

// detectPhase maps trend/volatility/volume to a Wyckoff phase.
func detectPhase(trend TrendState, volatility VolatilityState, volume VolumeState) (MarketPhase, float64) {
	switch {
	case trend == TrendSideways && volume == VolumeLow:
		return PhaseAccumulation, 0.7
	case trend == TrendUptrend || trend == TrendStrongUptrend:
		if volume == VolumeHigh || volume == VolumeSpike {
			return PhaseMarkup, 0.8
		}
		return PhaseMarkup, 0.6
	case trend == TrendSideways && volatility == VolatilityHigh:
		return PhaseDistribution, 0.65
	case trend == TrendDowntrend || trend == TrendStrongDowntrend:
		return PhaseMarkdown, 0.75
	default:
		return PhaseAccumulation, 0.5
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
