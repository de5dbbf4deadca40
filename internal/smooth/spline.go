package smooth

import "gonum.org/v1/gonum/mat"

// Cubic B-spline basis with evenly spaced interior knots and repeated
// boundary knots. For nBasis basis functions of degree 3 the knot vector has
// nBasis+4 entries: 4 copies of each boundary plus nBasis-4 interior knots.
const splineDegree = 3

// splineKnots builds the open uniform knot vector over [lo, hi].
func splineKnots(lo, hi float64, nBasis int) []float64 {
	interior := nBasis - splineDegree - 1
	knots := make([]float64, 0, nBasis+splineDegree+1)
	for i := 0; i < splineDegree+1; i++ {
		knots = append(knots, lo)
	}
	for i := 1; i <= interior; i++ {
		knots = append(knots, lo+(hi-lo)*float64(i)/float64(interior+1))
	}
	for i := 0; i < splineDegree+1; i++ {
		knots = append(knots, hi)
	}
	return knots
}

// basisRow evaluates all nBasis B-spline basis functions at x using the
// Cox-de Boor recursion.
func basisRow(knots []float64, nBasis int, x float64) []float64 {
	// Clamp to the closed interval so the right boundary belongs to the
	// last span.
	lo, hi := knots[0], knots[len(knots)-1]
	if x < lo {
		x = lo
	}
	if x > hi {
		x = hi
	}

	// Degree-0 basis: indicator of the knot span. The final span is closed
	// on the right.
	nKnots := len(knots)
	b := make([]float64, nKnots-1)
	for i := range b {
		if (knots[i] <= x && x < knots[i+1]) ||
			(x == hi && knots[i] < knots[i+1] && knots[i+1] == hi) {
			b[i] = 1
		}
	}

	for d := 1; d <= splineDegree; d++ {
		next := make([]float64, nKnots-d-1)
		for i := range next {
			var left, right float64
			if den := knots[i+d] - knots[i]; den > 0 {
				left = (x - knots[i]) / den * b[i]
			}
			if den := knots[i+d+1] - knots[i+1]; den > 0 {
				right = (knots[i+d+1] - x) / den * b[i+1]
			}
			next[i] = left + right
		}
		b = next
	}

	return b[:nBasis]
}

// designMatrix evaluates the basis at integer month indexes 1..n.
func designMatrix(n, nBasis int) *mat.Dense {
	knots := splineKnots(1, float64(n), nBasis)
	X := mat.NewDense(n, nBasis, nil)
	for i := 0; i < n; i++ {
		row := basisRow(knots, nBasis, float64(i+1))
		X.SetRow(i, row)
	}
	return X
}

// secondDiffPenalty returns DᵀD for the (nBasis-2)×nBasis second-difference
// matrix D, the standard P-spline wiggliness penalty.
func secondDiffPenalty(nBasis int) *mat.Dense {
	D := mat.NewDense(nBasis-2, nBasis, nil)
	for i := 0; i < nBasis-2; i++ {
		D.Set(i, i, 1)
		D.Set(i, i+1, -2)
		D.Set(i, i+2, 1)
	}
	var P mat.Dense
	P.Mul(D.T(), D)
	return &P
}
