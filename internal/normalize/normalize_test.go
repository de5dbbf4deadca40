package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

func records(platform, species, country string, start timeseries.MonthKey, counts []float64) []timeseries.ActivityRecord {
	recs := make([]timeseries.ActivityRecord, len(counts))
	for i, c := range counts {
		recs[i] = timeseries.ActivityRecord{
			Platform: platform, Species: species, Country: country,
			Month: start.Add(i), Count: c,
		}
	}
	return recs
}

func testConfig() Config {
	return NewConfig("GBIF", []string{"Facebook"}, true)
}

func TestNormalizeGroupMinMax(t *testing.T) {
	start := timeseries.MonthKey{Year: 2019, Month: time.January}
	store := timeseries.Load(records("Wikipedia", "Sciurus carolinensis", "GB", start, []float64{0, 5, 10, 2}))
	g := store.Group(timeseries.GroupKey{Platform: "Wikipedia", Species: "Sciurus carolinensis", Country: "GB"})

	norm, err := NormalizeGroup(g, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1, 0.2}, norm)
	for _, v := range norm {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestNormalizeGroupAllZeros(t *testing.T) {
	start := timeseries.MonthKey{Year: 2019, Month: time.January}
	store := timeseries.Load(records("Flickr", "Sciurus carolinensis", "GB", start, []float64{0, 0, 0}))
	g := store.Group(timeseries.GroupKey{Platform: "Flickr", Species: "Sciurus carolinensis", Country: "GB"})

	norm, err := NormalizeGroup(g, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, norm)
}

func TestNormalizeGroupPassthrough(t *testing.T) {
	start := timeseries.MonthKey{Year: 2019, Month: time.January}
	store := timeseries.Load(records("Facebook", "Sciurus carolinensis", "GB", start, []float64{0.1, 0.9, 0.4}))
	g := store.Group(timeseries.GroupKey{Platform: "Facebook", Species: "Sciurus carolinensis", Country: "GB"})

	norm, err := NormalizeGroup(g, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.9, 0.4}, norm)
}

func TestNormalizeGroupPassthroughValidation(t *testing.T) {
	start := timeseries.MonthKey{Year: 2019, Month: time.January}
	store := timeseries.Load(records("Facebook", "Sciurus carolinensis", "GB", start, []float64{0.1, 3.5, 0.4}))
	g := store.Group(timeseries.GroupKey{Platform: "Facebook", Species: "Sciurus carolinensis", Country: "GB"})

	_, err := NormalizeGroup(g, testConfig())
	require.Error(t, err)
	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Equal(t, errors.CategoryValidation, enhanced.Category)

	// Same data passes when validation is off.
	norm, err := NormalizeGroup(g, NewConfig("GBIF", []string{"Facebook"}, false))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 3.5, 0.4}, norm)
}

func TestFuseSumsNormalizedPlatforms(t *testing.T) {
	start := timeseries.MonthKey{Year: 2019, Month: time.January}
	var recs []timeseries.ActivityRecord
	recs = append(recs, records("Wikipedia", "Vespa velutina", "FR", start, []float64{2, 4})...)
	recs = append(recs, records("Flickr", "Vespa velutina", "FR", start.Add(1), []float64{10, 5})...)
	// Reference occurrence data must never leak into the fused signal.
	recs = append(recs, records("GBIF", "Vespa velutina", "FR", start, []float64{100, 100, 100})...)

	store := timeseries.Load(recs)
	fused, skipped := Fuse(store, timeseries.SpeciesCountryKey{Species: "Vespa velutina", Country: "FR"}, testConfig())
	require.NotNil(t, fused)
	assert.Empty(t, skipped)

	assert.Equal(t, []string{"Flickr", "Wikipedia"}, fused.Platforms)
	require.Len(t, fused.Months, 3)
	assert.Equal(t, start, fused.Months[0])

	// Wikipedia normalized: 0.5, 1.0; Flickr normalized: 1.0, 0.5 shifted by
	// one month.
	assert.InDelta(t, 0.5, fused.Values[0], 1e-12)
	assert.InDelta(t, 2.0, fused.Values[1], 1e-12)
	assert.InDelta(t, 0.5, fused.Values[2], 1e-12)
}

func TestFuseZeroFillsGridGaps(t *testing.T) {
	start := timeseries.MonthKey{Year: 2019, Month: time.January}
	recs := []timeseries.ActivityRecord{
		{Platform: "YouTube", Species: "Myocastor coypus", Country: "IT", Month: start, Count: 4},
		{Platform: "YouTube", Species: "Myocastor coypus", Country: "IT", Month: start.Add(3), Count: 8},
	}
	store := timeseries.Load(recs)

	fused, skipped := Fuse(store, timeseries.SpeciesCountryKey{Species: "Myocastor coypus", Country: "IT"}, testConfig())
	require.NotNil(t, fused)
	assert.Empty(t, skipped)
	assert.Equal(t, []float64{0.5, 0, 0, 1}, fused.Values)
}

func TestFuseOnlyReferenceData(t *testing.T) {
	start := timeseries.MonthKey{Year: 2019, Month: time.January}
	store := timeseries.Load(records("GBIF", "Vespa velutina", "FR", start, []float64{1, 2, 3}))

	fused, skipped := Fuse(store, timeseries.SpeciesCountryKey{Species: "Vespa velutina", Country: "FR"}, testConfig())
	assert.Nil(t, fused, "no mined-activity platform means no fused series")
	assert.Empty(t, skipped)
}

func TestFuseSkipsInvalidPlatformOnly(t *testing.T) {
	start := timeseries.MonthKey{Year: 2019, Month: time.January}
	var recs []timeseries.ActivityRecord
	recs = append(recs, records("Wikipedia", "Vespa velutina", "FR", start, []float64{2, 4})...)
	// Passthrough values outside [0,1] fail validation; only this platform
	// may drop out of the fusion.
	recs = append(recs, records("Facebook", "Vespa velutina", "FR", start, []float64{0.2, 7})...)

	store := timeseries.Load(recs)
	fused, skipped := Fuse(store, timeseries.SpeciesCountryKey{Species: "Vespa velutina", Country: "FR"}, testConfig())
	require.NotNil(t, fused)
	assert.Equal(t, []string{"Wikipedia"}, fused.Platforms)
	assert.Equal(t, []float64{0.5, 1}, fused.Values)

	require.Len(t, skipped, 1)
	assert.Equal(t, "Facebook", skipped[0].Platform)
	assert.Contains(t, skipped[0].Reason, "outside [0,1]")
}
