package anomaly

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// generalizedESD runs the generalized extreme studentized deviate test
// (Rosner 1983) on data and returns the indexes of significant outliers plus
// the critical deviation at the first step, which callers use to build
// confidence bands around the series center.
func generalizedESD(data []float64, maxOutliers int, alpha float64) (outliers []int, firstLambda float64) {
	n := len(data)
	if n < 3 || maxOutliers < 1 {
		return nil, 0
	}

	working := make([]float64, n)
	copy(working, data)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	var candidates []int
	var testStats []float64

	for k := 0; k < maxOutliers && len(working) > 2; k++ {
		mean, sd := meanStddev(working)
		if sd < 1e-12 {
			break
		}

		maxIdx, maxDev := 0, 0.0
		for i, v := range working {
			if dev := math.Abs(v - mean); dev > maxDev {
				maxDev = dev
				maxIdx = i
			}
		}

		testStats = append(testStats, maxDev/sd)
		candidates = append(candidates, indices[maxIdx])

		working = append(working[:maxIdx], working[maxIdx+1:]...)
		indices = append(indices[:maxIdx], indices[maxIdx+1:]...)
	}

	numSignificant := 0
	for k := range testStats {
		lambda, ok := esdCritical(n, k, alpha)
		if !ok {
			break
		}
		if k == 0 {
			firstLambda = lambda
		}
		if testStats[k] > lambda {
			numSignificant = k + 1
		}
	}

	if numSignificant == 0 {
		return nil, firstLambda
	}
	out := make([]int, numSignificant)
	copy(out, candidates[:numSignificant])
	sort.Ints(out)
	return out, firstLambda
}

// esdCritical returns Rosner's critical value λ_k for step k (0-based) of a
// GESD test over n observations at significance level alpha.
func esdCritical(n, k int, alpha float64) (float64, bool) {
	nk := n - k
	df := float64(nk - 2)
	if df < 1 {
		return 0, false
	}

	p := 1.0 - alpha/float64(2*nk)
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	tCrit := tDist.Quantile(p)

	lambda := float64(nk-1) * tCrit / math.Sqrt((df+tCrit*tCrit)*float64(nk))
	return lambda, true
}

func meanStddev(data []float64) (mean, sd float64) {
	n := float64(len(data))
	for _, v := range data {
		mean += v
	}
	mean /= n

	var ss float64
	for _, v := range data {
		d := v - mean
		ss += d * d
	}
	if len(data) > 1 {
		sd = math.Sqrt(ss / (n - 1))
	}
	return mean, sd
}
