package anomaly

// Additive seasonal-trend decomposition of a monthly series:
// value = trend + seasonal + remainder.
//
// The trend is a centered moving average over one seasonal cycle (with the
// usual half-weight endpoints when the cycle length is even), extended to the
// series edges by the nearest interior estimate so the remainder is defined
// everywhere. The seasonal component is the mean detrended value per position
// in the cycle, centered to sum to zero.

// decomposition holds the three additive components, index-aligned with the
// input series.
type decomposition struct {
	Trend     []float64
	Seasonal  []float64
	Remainder []float64
}

// decompose splits values into trend + seasonal + remainder with the given
// cycle length. The period is shortened when the series has fewer than two
// full cycles.
func decompose(values []float64, period int) *decomposition {
	n := len(values)
	if period > n/2 {
		period = n / 2
	}
	if period < 2 {
		period = 2
	}

	trend := centeredMovingAverage(values, period)

	detrended := make([]float64, n)
	for i := range values {
		detrended[i] = values[i] - trend[i]
	}

	seasonal := seasonalMeans(detrended, period)

	remainder := make([]float64, n)
	for i := range values {
		remainder[i] = detrended[i] - seasonal[i]
	}

	return &decomposition{Trend: trend, Seasonal: seasonal, Remainder: remainder}
}

// centeredMovingAverage smooths with a window of one cycle. For even window
// lengths a 2×m average is used (half weight on the two outermost points).
// Positions without a full window take the nearest interior estimate.
func centeredMovingAverage(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)

	half := window / 2
	first, last := -1, -1
	for i := half; i < n-half; i++ {
		var sum float64
		if window%2 == 0 {
			sum = (values[i-half] + values[i+half]) / 2
			for j := i - half + 1; j <= i+half-1; j++ {
				sum += values[j]
			}
			out[i] = sum / float64(window)
		} else {
			for j := i - half; j <= i+half; j++ {
				sum += values[j]
			}
			out[i] = sum / float64(window)
		}
		if first < 0 {
			first = i
		}
		last = i
	}

	if first < 0 {
		// Window longer than the series; fall back to the global mean.
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(n)
		for i := range out {
			out[i] = mean
		}
		return out
	}

	for i := 0; i < first; i++ {
		out[i] = out[first]
	}
	for i := last + 1; i < n; i++ {
		out[i] = out[last]
	}
	return out
}

// seasonalMeans computes per-cycle-position means of the detrended series,
// centered so the seasonal component sums to zero over one cycle.
func seasonalMeans(detrended []float64, period int) []float64 {
	n := len(detrended)
	sums := make([]float64, period)
	counts := make([]int, period)
	for i, v := range detrended {
		sums[i%period] += v
		counts[i%period]++
	}

	means := make([]float64, period)
	var total float64
	for p := 0; p < period; p++ {
		if counts[p] > 0 {
			means[p] = sums[p] / float64(counts[p])
		}
		total += means[p]
	}
	center := total / float64(period)

	seasonal := make([]float64, n)
	for i := range seasonal {
		seasonal[i] = means[i%period] - center
	}
	return seasonal
}
