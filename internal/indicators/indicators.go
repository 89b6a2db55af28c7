// Package indicators implements technical indicator math over float64 series.
// All functions are pure: same input series, same output.
package indicators

import (
	"math"
	"sort"
)

// SMA returns the simple moving average series. The first period-1 entries
// are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA returns the exponential moving average series seeded with an SMA over
// the first period values.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	out[period-1] = seed

	mult := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*mult + out[i-1]
	}
	return out
}

// RSI returns the Wilder relative strength index series.
func RSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// TrueRange returns the true range series. Entry 0 is high-low.
func TrueRange(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		hl := highs[i] - lows[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR returns the Wilder-smoothed average true range series.
func ATR(highs, lows, closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	tr := TrueRange(highs, lows, closes)

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < len(closes); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// ADX returns the Wilder average directional index series.
func ADX(highs, lows, closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) < 2*period+1 {
		return out
	}

	tr := TrueRange(highs, lows, closes)
	n := len(closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Wilder smoothing of TR and directional movement.
	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := nanSeries(n)
	dx[period] = dxValue(smPlus, smMinus, smTR)
	for i := period + 1; i < n; i++ {
		smTR = smTR - smTR/float64(period) + tr[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	sum := 0.0
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	out[2*period-1] = sum / float64(period)
	for i := 2 * period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return out
}

func dxValue(plus, minus, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	pdi := 100 * plus / tr
	mdi := 100 * minus / tr
	if pdi+mdi == 0 {
		return 0
	}
	return 100 * math.Abs(pdi-mdi) / (pdi + mdi)
}

// Bollinger returns middle band, upper band and lower band series for the
// given period and standard-deviation multiplier.
func Bollinger(closes []float64, period int, stdDevs float64) (middle, upper, lower []float64) {
	middle = SMA(closes, period)
	upper = nanSeries(len(closes))
	lower = nanSeries(len(closes))
	if period <= 1 || len(closes) < period {
		return middle, upper, lower
	}
	for i := period - 1; i < len(closes); i++ {
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - middle[i]
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(period))
		upper[i] = middle[i] + stdDevs*sd
		lower[i] = middle[i] - stdDevs*sd
	}
	return middle, upper, lower
}

// BollingerWidth returns (upper-lower)/middle at the last bar, or NaN when
// the bands are not yet defined.
func BollingerWidth(closes []float64, period int, stdDevs float64) float64 {
	middle, upper, lower := Bollinger(closes, period, stdDevs)
	i := len(closes) - 1
	if i < 0 || math.IsNaN(middle[i]) || middle[i] == 0 {
		return math.NaN()
	}
	return (upper[i] - lower[i]) / middle[i]
}

// MACD returns the MACD line and its signal line.
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine []float64) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	macd = nanSeries(len(closes))
	for i := range closes {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			macd[i] = fastEMA[i] - slowEMA[i]
		}
	}

	// Signal is an EMA over the defined portion of the MACD line.
	signalLine = nanSeries(len(closes))
	start := -1
	for i, v := range macd {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 || len(closes)-start < signal {
		return macd, signalLine
	}
	sub := EMA(macd[start:], signal)
	for i, v := range sub {
		signalLine[start+i] = v
	}
	return macd, signalLine
}

// Stochastic returns the %K and %D series for the given lookback and
// smoothing periods.
func Stochastic(highs, lows, closes []float64, period, smooth int) (k, d []float64) {
	k = nanSeries(len(closes))
	if period <= 0 || len(closes) < period {
		return k, nanSeries(len(closes))
	}
	for i := period - 1; i < len(closes); i++ {
		hh := highs[i]
		ll := lows[i]
		for j := i - period + 1; j <= i; j++ {
			hh = math.Max(hh, highs[j])
			ll = math.Min(ll, lows[j])
		}
		if hh == ll {
			k[i] = 50
		} else {
			k[i] = 100 * (closes[i] - ll) / (hh - ll)
		}
	}

	d = nanSeries(len(closes))
	sub := SMA(k[period-1:], smooth)
	for i, v := range sub {
		d[period-1+i] = v
	}
	return k, d
}

// ZScore returns (last value - mean) / stddev over the trailing window, or
// NaN when the window is not filled or flat.
func ZScore(values []float64, period int) float64 {
	n := len(values)
	if period <= 1 || n < period {
		return math.NaN()
	}
	window := values[n-period:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)
	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(period))
	if sd == 0 {
		return math.NaN()
	}
	return (values[n-1] - mean) / sd
}

// PercentileRank returns the percentile (0-100) of value within samples.
func PercentileRank(samples []float64, value float64) float64 {
	if len(samples) == 0 {
		return 50
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	below := 0
	for _, s := range sorted {
		if s <= value {
			below++
		} else {
			break
		}
	}
	return 100 * float64(below) / float64(len(sorted))
}

// Slope returns the normalized change of a series over the trailing span:
// (last - last-span) / |last-span|. NaN when either endpoint is undefined.
func Slope(values []float64, span int) float64 {
	n := len(values)
	if span <= 0 || n <= span {
		return math.NaN()
	}
	prev := values[n-1-span]
	cur := values[n-1]
	if math.IsNaN(prev) || math.IsNaN(cur) || prev == 0 {
		return math.NaN()
	}
	return (cur - prev) / math.Abs(prev)
}

// Last returns the final value of a series, or NaN for an empty series.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
