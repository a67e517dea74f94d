package strategy

import (
	"math"
)

// rsiEpsilon keeps the RS denominator non-zero on loss-free streaks.
const rsiEpsilon = 1e-12

// CalculateSMA returns the simple moving average series of values. Positions
// before the window is filled hold NaN.
func CalculateSMA(values []float64, period int) []float64 {
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

// CalculateRSI returns the Wilder-smoothed Relative Strength Index series
// over closes. The seed average gain/loss is the simple mean of the first
// period deltas; later values are smoothed as (avg*(period-1)+v)/period.
// Positions before index period hold NaN.
func CalculateRSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	rs := avgGain / (avgLoss + rsiEpsilon)
	return 100 - (100 / (1 + rs))
}

// CalculateATR returns the Wilder-smoothed Average True Range series.
// True range is max(high-low, |high-prevClose|, |low-prevClose|).
func CalculateATR(highs, lows, closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	tr := make([]float64, len(closes))
	for i := range closes {
		prevClose := closes[0]
		if i > 0 {
			prevClose = closes[i-1]
		}
		tr[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-prevClose), math.Abs(lows[i]-prevClose)))
	}

	seed := 0.0
	for i := 1; i <= period; i++ {
		seed += tr[i]
	}
	out[period] = seed / float64(period)

	for i := period + 1; i < len(closes); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// HighestLowest returns the maximum high and minimum low over the last n
// entries (or all of them when fewer are available).
func HighestLowest(highs, lows []float64, n int) (float64, float64) {
	if len(highs) == 0 {
		return math.NaN(), math.NaN()
	}
	start := len(highs) - n
	if start < 0 {
		start = 0
	}
	hi := highs[start]
	lo := lows[start]
	for i := start + 1; i < len(highs); i++ {
		hi = math.Max(hi, highs[i])
		lo = math.Min(lo, lows[i])
	}
	return hi, lo
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
