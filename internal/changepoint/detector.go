// Package changepoint flags months where the smoothed activity trend rises
// or accelerates beyond amplitude-relative thresholds, groups them into
// contiguous blocks and confirms the selected block with a local
// variance-trend test.
package changepoint

import (
	"fmt"
	"math"

	"github.com/iaswatch/iaswatch/internal/smooth"
	"github.com/iaswatch/iaswatch/internal/timeseries"
	"gonum.org/v1/gonum/stat"
)

// BlockPolicy selects which candidate block a detection run reports when a
// series has more than one.
type BlockPolicy int

const (
	// PolicyFirst reports the chronologically first block.
	PolicyFirst BlockPolicy = iota
	// PolicyStrongest reports the block with the highest peak smoothed
	// first derivative.
	PolicyStrongest
)

// ParsePolicy maps a configuration string to a BlockPolicy.
func ParsePolicy(s string) (BlockPolicy, error) {
	switch s {
	case "first":
		return PolicyFirst, nil
	case "strongest":
		return PolicyStrongest, nil
	default:
		return 0, fmt.Errorf("unknown block selection policy %q", s)
	}
}

func (p BlockPolicy) String() string {
	switch p {
	case PolicyFirst:
		return "first"
	case PolicyStrongest:
		return "strongest"
	default:
		return fmt.Sprintf("BlockPolicy(%d)", int(p))
	}
}

// Params are the detector's tunables. The two threshold fractions are the
// axes of the optimizer's grid search.
type Params struct {
	// SlopeFrac scales the slope threshold by the fitted series' amplitude.
	SlopeFrac float64
	// AccelFrac scales the acceleration threshold by the fitted series'
	// amplitude. Raw activity magnitude varies by orders of magnitude across
	// groups; an absolute cutoff would be meaningless.
	AccelFrac float64
	Policy    BlockPolicy
}

// Block is a maximal run of contiguous flagged months.
type Block struct {
	// StartMonth is the estimated change month: the flagged position with
	// the steepest smoothed rise. A heavily penalized fit spreads a sharp
	// step over several months, so the first flagged index can precede the
	// underlying shift; the steepest month tracks the shift itself.
	StartMonth timeseries.MonthKey
	EndMonth   timeseries.MonthKey
	// PeakStrength is the maximum smoothed first derivative inside the block.
	PeakStrength float64
	// Indices are the flagged positions in the smoothed series, ascending.
	Indices []int
}

// Months returns the block's flagged months in order.
func (b *Block) Months(sm *smooth.Smoothed) []timeseries.MonthKey {
	out := make([]timeseries.MonthKey, len(b.Indices))
	for i, idx := range b.Indices {
		out[i] = sm.Months[idx]
	}
	return out
}

// CandidateIndices returns the positions whose smoothed first derivative
// exceeds the slope threshold or whose smoothed second derivative exceeds the
// acceleration threshold. The OR is deliberate sensitivity bias: rising slope
// or rising acceleration alone qualifies.
func CandidateIndices(sm *smooth.Smoothed, p Params) []int {
	amplitude := sm.Amplitude()
	slopeThr := p.SlopeFrac * amplitude
	accelThr := p.AccelFrac * amplitude

	var flagged []int
	for i := range sm.Fitted {
		d1 := sm.D1Smooth[i]
		d2 := sm.D2Smooth[i]
		rising := smooth.Defined(d1) && d1 > slopeThr
		accelerating := smooth.Defined(d2) && d2 > accelThr
		if rising || accelerating {
			flagged = append(flagged, i)
		}
	}
	return flagged
}

// Detect runs the full detection: flagging, blocking, block selection and
// variance-trend confirmation. Returns nil when nothing is flagged or the
// selected block fails confirmation.
func Detect(sm *smooth.Smoothed, p Params) *Block {
	flagged := CandidateIndices(sm, p)
	if len(flagged) == 0 {
		return nil
	}

	blocks := groupBlocks(sm, flagged)
	block := selectBlock(blocks, p.Policy)

	if !confirmVarianceTrend(sm.Raw, block) {
		return nil
	}
	return block
}

// groupBlocks splits flagged indexes into maximal runs with gaps of at most
// one month.
func groupBlocks(sm *smooth.Smoothed, flagged []int) []*Block {
	var blocks []*Block
	var current []int
	for i, idx := range flagged {
		if i > 0 && idx-flagged[i-1] > 2 {
			blocks = append(blocks, newBlock(sm, current))
			current = nil
		}
		current = append(current, idx)
	}
	blocks = append(blocks, newBlock(sm, current))
	return blocks
}

func newBlock(sm *smooth.Smoothed, indices []int) *Block {
	peak := math.Inf(-1)
	steepest := indices[0]
	for _, idx := range indices {
		if d1 := sm.D1Smooth[idx]; smooth.Defined(d1) && d1 > peak {
			peak = d1
			steepest = idx
		}
	}
	return &Block{
		StartMonth:   sm.Months[steepest],
		EndMonth:     sm.Months[indices[len(indices)-1]],
		PeakStrength: peak,
		Indices:      indices,
	}
}

func selectBlock(blocks []*Block, policy BlockPolicy) *Block {
	if policy == PolicyFirst {
		return blocks[0]
	}
	best := blocks[0]
	for _, b := range blocks[1:] {
		if b.PeakStrength > best.PeakStrength {
			best = b
		}
	}
	return best
}

// confirmVarianceTrend checks that local variability rises through the
// block's date range. A smooth deterministic rise without growing burstiness
// is treated as a weaker signal than a true discrete event. The local scale
// is a rolling standard deviation over pairs of raw fused values; the block
// is confirmed when the OLS slope of that scale against month index is
// positive.
func confirmVarianceTrend(raw []float64, b *Block) bool {
	start := b.Indices[0]
	end := b.Indices[len(b.Indices)-1]

	var xs, ys []float64
	for i := start; i <= end && i < len(raw); i++ {
		if i == 0 {
			continue
		}
		// Sample standard deviation of a 2-observation window.
		sd := math.Abs(raw[i]-raw[i-1]) / math.Sqrt2
		xs = append(xs, float64(i))
		ys = append(ys, sd)
	}
	if len(xs) < 2 {
		return false
	}

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope > 0
}
