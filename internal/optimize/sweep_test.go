package optimize

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iaswatch/iaswatch/internal/changepoint"
	"github.com/iaswatch/iaswatch/internal/normalize"
	"github.com/iaswatch/iaswatch/internal/smooth"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

// stepCase builds a fused series with nZero flat months followed by a bursty
// plateau, the shape a genuine arrival event leaves in mined activity.
func stepCase(species, country string, invasionYear int, nZero, nPlateau int) *Case {
	start := timeseries.MonthKey{Year: invasionYear, Month: time.January}.Add(-nZero)
	n := nZero + nPlateau

	months := make([]timeseries.MonthKey, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		months[i] = start.Add(i)
		if i >= nZero {
			k := i - nZero
			values[i] = 4 + 0.15*float64(k)*float64(1-2*(k%2))
		}
	}

	key := timeseries.SpeciesCountryKey{Species: species, Country: country}
	return &Case{
		Key:          key,
		Fused:        &normalize.FusedSeries{Key: key, Months: months, Values: values},
		InvasionYear: invasionYear,
	}
}

// shortCase is below the smoother's minimum length.
func shortCase(species, country string) *Case {
	start := timeseries.MonthKey{Year: 2018, Month: time.January}
	months := make([]timeseries.MonthKey, 12)
	values := make([]float64, 12)
	for i := range months {
		months[i] = start.Add(i)
		values[i] = float64(i)
	}
	key := timeseries.SpeciesCountryKey{Species: species, Country: country}
	return &Case{Key: key, Fused: &normalize.FusedSeries{Key: key, Months: months, Values: values}, InvasionYear: 2019}
}

// failingCase has enough history but an unusable value, so every candidate
// smoothing parameter is rejected and the fit fails.
func failingCase(species, country string) *Case {
	start := timeseries.MonthKey{Year: 2014, Month: time.January}
	months := make([]timeseries.MonthKey, 30)
	values := make([]float64, 30)
	for i := range months {
		months[i] = start.Add(i)
		values[i] = float64(i % 7)
	}
	values[10] = math.NaN()
	key := timeseries.SpeciesCountryKey{Species: species, Country: country}
	return &Case{Key: key, Fused: &normalize.FusedSeries{Key: key, Months: months, Values: values}, InvasionYear: 2016}
}

func testCases() []*Case {
	return []*Case{
		stepCase("Vespa velutina", "FR", 2018, 36, 12),
		stepCase("Procyon lotor", "DE", 2016, 30, 18),
		shortCase("Myocastor coypus", "IT"),
	}
}

func TestSweepGridShapeAndRates(t *testing.T) {
	defer goleak.VerifyNone(t)

	slopeGrid := []float64{0.05, 0.1, 0.2}
	accelGrid := []float64{0.05, 0.15}

	s := NewSweeper(smooth.DefaultConfig(), changepoint.PolicyStrongest, 4)
	cells, err := s.Sweep(context.Background(), testCases(), slopeGrid, accelGrid)
	require.NoError(t, err)
	require.Len(t, cells, len(slopeGrid)*len(accelGrid))

	// Cells come back in grid order regardless of worker scheduling.
	pos := 0
	for _, slope := range slopeGrid {
		for _, accel := range accelGrid {
			c := cells[pos]
			assert.Equal(t, slope, c.SlopeFrac)
			assert.Equal(t, accel, c.AccelFrac)

			// The short case is excluded; the two usable cases each land in
			// exactly one bucket.
			assert.Equal(t, 2, c.TP+c.FP+c.FN)
			assert.Equal(t, c.TP+c.FN, c.ActualPositives)
			assert.GreaterOrEqual(t, c.TPRate, 0.0)
			assert.LessOrEqual(t, c.TPRate, 1.0)
			assert.GreaterOrEqual(t, c.FPRate, 0.0)
			assert.LessOrEqual(t, c.FPRate, 1.0)
			pos++
		}
	}
}

func TestSweepDeterministicAcrossWorkerCounts(t *testing.T) {
	slopeGrid := []float64{0.02, 0.05, 0.1, 0.2}
	accelGrid := []float64{0.02, 0.1, 0.3}

	serial := NewSweeper(smooth.DefaultConfig(), changepoint.PolicyStrongest, 1)
	parallel := NewSweeper(smooth.DefaultConfig(), changepoint.PolicyStrongest, 8)

	a, err := serial.Sweep(context.Background(), testCases(), slopeGrid, accelGrid)
	require.NoError(t, err)
	b, err := parallel.Sweep(context.Background(), testCases(), slopeGrid, accelGrid)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSweepCountsFitFailuresAsMisses(t *testing.T) {
	cases := append(testCases(), failingCase("Numerica fragilis", "AT"))

	s := NewSweeper(smooth.DefaultConfig(), changepoint.PolicyStrongest, 2)
	cells, err := s.Sweep(context.Background(), cases, []float64{0.05, 0.2}, []float64{0.05})
	require.NoError(t, err)
	require.Len(t, cells, 2)

	for _, c := range cells {
		// Two scoreable cases plus the failed fit; the short case stays out
		// of the denominators entirely.
		assert.Equal(t, 3, c.TP+c.FP+c.FN)
		assert.GreaterOrEqual(t, c.FN, 1)
		assert.Equal(t, c.TP+c.FN, c.ActualPositives)
	}
}

func TestSweepZeroDenominators(t *testing.T) {
	// Only an unusable case: every cell has empty denominators and zero rates.
	s := NewSweeper(smooth.DefaultConfig(), changepoint.PolicyFirst, 2)
	cells, err := s.Sweep(context.Background(), []*Case{shortCase("Xenopus laevis", "PT")}, []float64{0.05}, []float64{0.05})
	require.NoError(t, err)
	require.Len(t, cells, 1)

	assert.Equal(t, 0, cells[0].ActualPositives)
	assert.Zero(t, cells[0].TPRate)
	assert.Zero(t, cells[0].FPRate)
}

func TestSweepCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	grid := make([]float64, 25)
	for i := range grid {
		grid[i] = 0.01 + float64(i)*0.01
	}

	s := NewSweeper(smooth.DefaultConfig(), changepoint.PolicyStrongest, 1)
	_, err := s.Sweep(ctx, testCases(), grid, grid)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBest(t *testing.T) {
	tests := []struct {
		name  string
		cells []Cell
		want  Cell
		ok    bool
	}{
		{name: "empty grid", cells: nil, ok: false},
		{
			name: "highest hit rate wins",
			cells: []Cell{
				{SlopeFrac: 0.1, AccelFrac: 0.1, TPRate: 0.4, FPRate: 0.1},
				{SlopeFrac: 0.2, AccelFrac: 0.1, TPRate: 0.8, FPRate: 0.5},
			},
			want: Cell{SlopeFrac: 0.2, AccelFrac: 0.1, TPRate: 0.8, FPRate: 0.5},
			ok:   true,
		},
		{
			name: "hit-rate tie broken by lower false rate",
			cells: []Cell{
				{SlopeFrac: 0.1, AccelFrac: 0.1, TPRate: 0.8, FPRate: 0.5},
				{SlopeFrac: 0.2, AccelFrac: 0.1, TPRate: 0.8, FPRate: 0.2},
			},
			want: Cell{SlopeFrac: 0.2, AccelFrac: 0.1, TPRate: 0.8, FPRate: 0.2},
			ok:   true,
		},
		{
			name: "full tie prefers smaller thresholds",
			cells: []Cell{
				{SlopeFrac: 0.2, AccelFrac: 0.2, TPRate: 0.8, FPRate: 0.2},
				{SlopeFrac: 0.1, AccelFrac: 0.3, TPRate: 0.8, FPRate: 0.2},
				{SlopeFrac: 0.1, AccelFrac: 0.2, TPRate: 0.8, FPRate: 0.2},
			},
			want: Cell{SlopeFrac: 0.1, AccelFrac: 0.2, TPRate: 0.8, FPRate: 0.2},
			ok:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Best(tt.cells)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
