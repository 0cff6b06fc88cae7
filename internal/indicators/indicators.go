// Package indicators computes the technical indicators the signal
// layer builds strategies from. The backtest core never calls into
// this package; it only ever sees the resulting signal stream.
//
// All functions return series aligned 1:1 with their input. Warmup
// positions are filled from the data available so far rather than
// padded with NaN, which keeps strategy code free of validity checks.
package indicators

import (
	"math"

	"ashare-backtest-lab/internal/domain"
)

// Closes extracts the close series from candles.
func Closes(candles []*domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA computes a simple moving average. Positions before the first
// full window average whatever is available.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
			out[i] = sum / float64(period)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

// EMA computes an exponential moving average seeded with the first
// value, smoothing factor 2/(period+1).
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD returns the MACD line (fast EMA − slow EMA), its signal EMA and
// the histogram (line − signal).
func MACD(closes []float64, fast, slow, signal int) (line, signalLine, histogram []float64) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine = EMA(line, signal)

	histogram = make([]float64, len(closes))
	for i := range closes {
		histogram[i] = line[i] - signalLine[i]
	}
	return line, signalLine, histogram
}

// RSI computes the relative strength index with Wilder smoothing.
// Values are in [0,100]; a flat series reads 50.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = 50

	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		if i <= period {
			avgGain = (avgGain*float64(i-1) + gain) / float64(i)
			avgLoss = (avgLoss*float64(i-1) + loss) / float64(i)
		} else {
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}

		if avgLoss == 0 {
			if avgGain == 0 {
				out[i] = 50
			} else {
				out[i] = 100
			}
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// KDJ computes the stochastic K, D and J lines over the given lookback.
func KDJ(candles []*domain.Candle, period int) (k, d, j []float64) {
	n := len(candles)
	k = make([]float64, n)
	d = make([]float64, n)
	j = make([]float64, n)

	prevK, prevD := 50.0, 50.0
	for i := 0; i < n; i++ {
		lo := i - period + 1
		if lo < 0 {
			lo = 0
		}
		highest, lowest := candles[i].High, candles[i].Low
		for m := lo; m <= i; m++ {
			if candles[m].High > highest {
				highest = candles[m].High
			}
			if candles[m].Low < lowest {
				lowest = candles[m].Low
			}
		}

		rsv := 50.0
		if highest > lowest {
			rsv = (candles[i].Close - lowest) / (highest - lowest) * 100
		}

		k[i] = prevK*2/3 + rsv/3
		d[i] = prevD*2/3 + k[i]/3
		j[i] = 3*k[i] - 2*d[i]
		prevK, prevD = k[i], d[i]
	}
	return k, d, j
}

// Bollinger returns the middle band (SMA), and upper/lower bands at
// mult standard deviations.
func Bollinger(closes []float64, period int, mult float64) (middle, upper, lower []float64) {
	middle = SMA(closes, period)
	upper = make([]float64, len(closes))
	lower = make([]float64, len(closes))

	for i := range closes {
		lo := i - period + 1
		if lo < 0 {
			lo = 0
		}
		variance := 0.0
		for m := lo; m <= i; m++ {
			diff := closes[m] - middle[i]
			variance += diff * diff
		}
		std := math.Sqrt(variance / float64(i-lo+1))
		upper[i] = middle[i] + mult*std
		lower[i] = middle[i] - mult*std
	}
	return middle, upper, lower
}

// ATR computes the average true range: the rolling mean of
// max(high−low, |high−prevClose|, |low−prevClose|).
func ATR(candles []*domain.Candle, period int) []float64 {
	n := len(candles)
	tr := make([]float64, n)
	for i, c := range candles {
		r := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			if hc := math.Abs(c.High - prev); hc > r {
				r = hc
			}
			if lc := math.Abs(c.Low - prev); lc > r {
				r = lc
			}
		}
		tr[i] = r
	}
	return SMA(tr, period)
}

// TrendStrength computes the z-score of close against its rolling mean
// and deviation, clipped to [-1,1].
func TrendStrength(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	ma := SMA(closes, period)

	for i := range closes {
		lo := i - period + 1
		if lo < 0 {
			lo = 0
		}
		variance := 0.0
		for m := lo; m <= i; m++ {
			diff := closes[m] - ma[i]
			variance += diff * diff
		}
		std := math.Sqrt(variance / float64(i-lo+1))
		if std == 0 {
			continue
		}
		z := (closes[i] - ma[i]) / std
		if z > 1 {
			z = 1
		}
		if z < -1 {
			z = -1
		}
		out[i] = z
	}
	return out
}
