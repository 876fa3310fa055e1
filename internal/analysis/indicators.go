package analysis

import "math"

// emaSeries computes the exponential moving average with standard smoothing
// 2/(p+1), seeded with the SMA of the first p values. Returns nil when there
// is not enough data for a single seeded value.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	k := 2.0 / float64(period+1)

	var seed float64
	for i := 0; i < period; i++ {
		seed += values[i]
		out[i] = math.NaN()
	}
	seed /= float64(period)
	out[period-1] = seed
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// lastEMA returns the final EMA value over the series, or NaN when the
// series is too short.
func lastEMA(values []float64, period int) float64 {
	s := emaSeries(values, period)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// lastSMA returns the simple moving average of the trailing period values,
// or NaN when the series is too short.
func lastSMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
