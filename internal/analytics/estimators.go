// Package analytics implements the standard estimators the Query API's
// analytics endpoints wrap (spec.md §4.9 "/volatility, /trend, /momentum,
// /oprange, /analysis"), grounded on internal/transform/series.go's
// rolling-aggregate style: plain functions over a []float64, no state,
// no external dependency (no TA-lib equivalent appears anywhere in the
// dependency pack, so these are hand-rolled in the same idiom
// series.go's mean/median/stddev already use).
package analytics

import "math"

// SMA is the simple moving average over the trailing window of size
// period, one value per input index once enough history has
// accumulated (indices before period-1 are NaN).
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 {
		return out
	}
	var sum float64
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

// EWMA is the exponentially weighted moving average with smoothing
// factor alpha = 2/(period+1), seeded on the first value.
func EWMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RollingStdDev is the trailing population standard deviation (divided
// by n, not n-1) over window
// period, the estimator /volatility exposes directly.
func RollingStdDev(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := range values {
		if i < period-1 {
			continue
		}
		window := values[i-period+1 : i+1]
		out[i] = stddev(window)
	}
	return out
}

func stddev(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := 0.0
	for _, x := range v {
		m += x
	}
	m /= float64(len(v))
	acc := 0.0
	for _, x := range v {
		d := x - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(v)))
}

// ATR is the average true range over period, approximated from a
// single scalar series (chomp's fields are scalar, not OHLC bars) as
// the rolling mean of |Δvalue| — the closest true-range analogue
// available without high/low/open columns, used by /oprange.
func ATR(values []float64, period int) []float64 {
	trueRange := make([]float64, len(values))
	for i := range values {
		if i == 0 {
			trueRange[i] = 0
			continue
		}
		trueRange[i] = math.Abs(values[i] - values[i-1])
	}
	return SMA(trueRange, period)
}

// RSI is the 0-100 relative strength index over period.
func RSI(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(values) < 2 {
		return out
	}
	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i < len(values); i++ {
		if i <= period {
			avgGain += gains[i]
			avgLoss += losses[i]
			if i == period {
				avgGain /= float64(period)
				avgLoss /= float64(period)
				out[i] = rsiFromAvg(avgGain, avgLoss)
			}
			continue
		}
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the three series /momentum's MACD estimator
// produces: the MACD line (fast EWMA - slow EWMA), its signal line
// (EWMA of the MACD line), and their difference (the histogram).
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the moving-average-convergence-divergence triple for
// the given fast, slow and signal EWMA periods.
func MACD(values []float64, fast, slow, signal int) MACDResult {
	fastEMA := EWMA(values, fast)
	slowEMA := EWMA(values, slow)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EWMA(line, signal)
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - sig[i]
	}
	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}

// BollingerBands holds the middle/upper/lower band series /analysis
// returns alongside trend and momentum.
type BollingerBands struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// Bollinger computes SMA ± k·stddev bands over period.
func Bollinger(values []float64, period int, k float64) BollingerBands {
	mid := SMA(values, period)
	sd := RollingStdDev(values, period)
	upper := make([]float64, len(values))
	lower := make([]float64, len(values))
	for i := range values {
		upper[i] = mid[i] + k*sd[i]
		lower[i] = mid[i] - k*sd[i]
	}
	return BollingerBands{Middle: mid, Upper: upper, Lower: lower}
}

// Trend is the simple directional estimator /trend exposes: the sign
// and magnitude of the SMA's net change over the window, expressed as
// a percentage of the window's first value.
func Trend(values []float64, period int) float64 {
	sma := SMA(values, period)
	n := len(sma)
	if n == 0 {
		return 0
	}
	last := sma[n-1]
	if math.IsNaN(last) {
		return 0
	}
	var first float64
	for _, v := range sma {
		if !math.IsNaN(v) {
			first = v
			break
		}
	}
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}
