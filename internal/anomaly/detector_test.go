package anomaly

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

func seriesGroup(t *testing.T, counts []float64) *timeseries.Group {
	t.Helper()
	start := timeseries.MonthKey{Year: 2016, Month: time.January}
	recs := make([]timeseries.ActivityRecord, len(counts))
	for i, c := range counts {
		recs[i] = timeseries.ActivityRecord{
			Platform: "Flickr", Species: "Trachemys scripta", Country: "ES",
			Month: start.Add(i), Count: c,
		}
	}
	store := timeseries.Load(recs)
	g := store.Group(timeseries.GroupKey{Platform: "Flickr", Species: "Trachemys scripta", Country: "ES"})
	require.NotNil(t, g)
	return g
}

// seasonalBase is a 60-month level-10 series with a mild annual cycle.
func seasonalBase() []float64 {
	out := make([]float64, 60)
	for i := range out {
		out[i] = 10 + math.Sin(2*math.Pi*float64(i)/12)
	}
	return out
}

func TestDetectFlagsUpwardSpike(t *testing.T) {
	counts := seasonalBase()
	counts[30] = 100

	g := seriesGroup(t, counts)
	months, err := Detect(g, DefaultConfig())
	require.NoError(t, err)
	require.NotEmpty(t, months)

	spikeMonth := timeseries.MonthKey{Year: 2016, Month: time.January}.Add(30)
	assert.Contains(t, months, spikeMonth)
}

func TestDetectDropsDownwardDip(t *testing.T) {
	counts := seasonalBase()
	counts[30] = 0

	g := seriesGroup(t, counts)
	months, err := Detect(g, DefaultConfig())
	require.NoError(t, err)

	dipMonth := timeseries.MonthKey{Year: 2016, Month: time.January}.Add(30)
	assert.NotContains(t, months, dipMonth, "a collapse in activity is not an invasion signal")
}

func TestDetectConstantSeries(t *testing.T) {
	counts := make([]float64, 36)
	for i := range counts {
		counts[i] = 5
	}

	g := seriesGroup(t, counts)
	months, err := Detect(g, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, months)
}

func TestDetectInsufficientData(t *testing.T) {
	g := seriesGroup(t, []float64{1, 5, 2, 8, 3, 9, 4, 7, 2, 6, 1, 5})

	_, err := Detect(g, DefaultConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
}

func TestDetectAllCollectsSkips(t *testing.T) {
	good := seriesGroup(t, func() []float64 {
		c := seasonalBase()
		c[40] = 120
		return c
	}())
	short := seriesGroup(t, []float64{1, 2, 3, 4, 5, 6})

	flags, skips := DetectAll([]*timeseries.Group{good, short}, DefaultConfig())

	assert.Contains(t, flags, good.Key)
	require.Len(t, skips, 1)
	assert.Equal(t, short.Key, skips[0].Key)
	assert.Contains(t, skips[0].Reason, "insufficient")
}

func TestGeneralizedESD(t *testing.T) {
	data := make([]float64, 50)
	for i := range data {
		data[i] = math.Sin(float64(i) * 1.7) // bounded noise
	}
	data[10] = 40
	data[25] = -35

	outliers, firstLambda := generalizedESD(data, 10, 0.25)
	assert.Equal(t, []int{10, 25}, outliers)
	assert.Greater(t, firstLambda, 2.0)
	assert.Less(t, firstLambda, 4.0)
}

func TestGeneralizedESDNoOutliers(t *testing.T) {
	data := []float64{1, 2, 1.5, 1.8, 2.2, 1.1, 1.9, 2.1, 1.4, 1.7}
	outliers, _ := generalizedESD(data, 3, 0.05)
	assert.Empty(t, outliers)
}

func TestDecomposeAdditivity(t *testing.T) {
	values := seasonalBase()
	dec := decompose(values, 12)

	for i := range values {
		assert.InDelta(t, values[i], dec.Trend[i]+dec.Seasonal[i]+dec.Remainder[i], 1e-9)
	}

	// Seasonal component is centered over one cycle.
	var sum float64
	for _, s := range dec.Seasonal[:12] {
		sum += s
	}
	assert.InDelta(t, 0, sum, 1e-9)
}

func TestDecomposeShortSeriesShrinksPeriod(t *testing.T) {
	values := []float64{1, 3, 2, 4, 3, 5}
	dec := decompose(values, 12)
	require.Len(t, dec.Trend, 6)
	for i := range values {
		assert.InDelta(t, values[i], dec.Trend[i]+dec.Seasonal[i]+dec.Remainder[i], 1e-9)
	}
}
