// Package smooth fits a nonparametric trend to a monthly fused-activity
// series and derives smoothed first and second discrete derivatives.
//
// The fit is a penalized cubic B-spline regression (a GAM with one smooth
// term): basis dimension capped so multi-year regime shifts are captured
// rather than seasonal noise, with the smoothing parameter chosen from the
// data by generalized cross-validation instead of a fixed bandwidth.
package smooth

import (
	"math"

	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/timeseries"
	"gonum.org/v1/gonum/mat"
)

// DefaultMinMonths is the minimum series length for a trend fit: two years
// of monthly data. Shorter series are "insufficient data", a distinct
// outcome from "no trend detected".
const DefaultMinMonths = 24

// DefaultMaxBasis caps the spline basis dimension. The observed historical
// range spans about nine years; more flexibility overfits seasonal noise.
const DefaultMaxBasis = 9

// lambdaGrid is the fixed log-spaced grid searched by GCV. Deterministic by
// construction: the same input always selects the same smoothing parameter.
var lambdaGrid = func() []float64 {
	grid := make([]float64, 0, 41)
	for i := 0; i <= 40; i++ {
		grid = append(grid, math.Pow(10, -4+float64(i)*0.2))
	}
	return grid
}()

// Config controls the trend fit.
type Config struct {
	MinMonths int
	MaxBasis  int
}

// DefaultConfig returns the standard smoother configuration.
func DefaultConfig() Config {
	return Config{MinMonths: DefaultMinMonths, MaxBasis: DefaultMaxBasis}
}

// Smoothed is the fitted trend and its derivative signals. Boundary indexes
// where a derivative or a full three-point smoothing window is unavailable
// hold NaN, never zero: zero would read as "flat trend".
type Smoothed struct {
	Months   []timeseries.MonthKey
	Raw      []float64 // input values, kept for the confirmation step
	Fitted   []float64
	D1       []float64 // first difference of Fitted; NaN at index 0
	D1Smooth []float64 // centered 3-point moving average of D1
	D2       []float64 // first difference of D1Smooth
	D2Smooth []float64 // centered 3-point moving average of D2
}

// Defined reports whether a derivative value is usable (not a boundary NaN).
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// Fit fits the penalized spline trend to an evenly spaced monthly series.
// Returns ErrInsufficientData when the series is shorter than MinMonths and
// ErrFitFailure when every candidate smoothing parameter yields a singular
// system.
func Fit(months []timeseries.MonthKey, values []float64, cfg Config) (*Smoothed, error) {
	n := len(values)
	if cfg.MinMonths == 0 {
		cfg.MinMonths = DefaultMinMonths
	}
	if cfg.MaxBasis == 0 {
		cfg.MaxBasis = DefaultMaxBasis
	}
	if n < cfg.MinMonths {
		return nil, errors.New(errors.ErrInsufficientData).
			Component("smooth").
			Category(errors.CategoryInsufficientData).
			Context("months", n).
			Context("required", cfg.MinMonths).
			Build()
	}

	nBasis := cfg.MaxBasis
	if n-1 < nBasis {
		nBasis = n - 1
	}

	fitted, err := fitPenalized(values, nBasis)
	if err != nil {
		return nil, err
	}

	sm := &Smoothed{
		Months: months,
		Raw:    values,
		Fitted: fitted,
	}
	sm.D1 = firstDiff(fitted)
	sm.D1Smooth = movingAverage3(sm.D1)
	sm.D2 = firstDiff(sm.D1Smooth)
	sm.D2Smooth = movingAverage3(sm.D2)
	return sm, nil
}

// fitPenalized solves (XᵀX + λDᵀD)β = Xᵀy for each λ on the grid and keeps
// the fit minimizing GCV(λ) = n·RSS / (n - edf)².
func fitPenalized(values []float64, nBasis int) ([]float64, error) {
	n := len(values)
	X := designMatrix(n, nBasis)
	P := secondDiffPenalty(nBasis)

	y := mat.NewVecDense(n, values)
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var xty mat.VecDense
	xty.MulVec(X.T(), y)

	bestGCV := math.Inf(1)
	var bestFit []float64

	for _, lambda := range lambdaGrid {
		A := mat.NewSymDense(nBasis, nil)
		for i := 0; i < nBasis; i++ {
			for j := i; j < nBasis; j++ {
				A.SetSym(i, j, xtx.At(i, j)+lambda*P.At(i, j))
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(A); !ok {
			continue
		}

		var beta mat.VecDense
		if err := chol.SolveVecTo(&beta, &xty); err != nil {
			continue
		}

		// Effective degrees of freedom: tr(A⁻¹ XᵀX).
		var M mat.Dense
		if err := chol.SolveTo(&M, &xtx); err != nil {
			continue
		}
		edf := 0.0
		for i := 0; i < nBasis; i++ {
			edf += M.At(i, i)
		}
		if float64(n)-edf <= 0 {
			continue
		}

		var fitVec mat.VecDense
		fitVec.MulVec(X, &beta)
		rss := 0.0
		for i := 0; i < n; i++ {
			r := values[i] - fitVec.AtVec(i)
			rss += r * r
		}

		gcv := float64(n) * rss / ((float64(n) - edf) * (float64(n) - edf))
		if gcv < bestGCV {
			bestGCV = gcv
			fit := make([]float64, n)
			for i := 0; i < n; i++ {
				fit[i] = fitVec.AtVec(i)
			}
			bestFit = fit
		}
	}

	if bestFit == nil {
		return nil, errors.New(errors.ErrFitFailure).
			Component("smooth").
			Category(errors.CategoryFitFailure).
			Context("basis", nBasis).
			Context("months", n).
			Build()
	}
	return bestFit, nil
}

// firstDiff returns x[t]-x[t-1] with NaN wherever either operand is
// undefined, including index 0.
func firstDiff(x []float64) []float64 {
	out := make([]float64, len(x))
	out[0] = math.NaN()
	for t := 1; t < len(x); t++ {
		if Defined(x[t]) && Defined(x[t-1]) {
			out[t] = x[t] - x[t-1]
		} else {
			out[t] = math.NaN()
		}
	}
	return out
}

// movingAverage3 applies a centered 3-point moving average with equal
// weights. Positions without a full window of defined values are NaN.
func movingAverage3(x []float64) []float64 {
	out := make([]float64, len(x))
	for t := range x {
		if t == 0 || t == len(x)-1 ||
			!Defined(x[t-1]) || !Defined(x[t]) || !Defined(x[t+1]) {
			out[t] = math.NaN()
			continue
		}
		out[t] = (x[t-1] + x[t] + x[t+1]) / 3
	}
	return out
}

// Amplitude returns max(Fitted) - min(Fitted), the scale the detector's
// relative thresholds are expressed against.
func (s *Smoothed) Amplitude() float64 {
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, v := range s.Fitted {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	return maxV - minV
}
