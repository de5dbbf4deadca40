package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadMonthly(t *testing.T) {
	path := writeFile(t, "monthly.csv",
		"platform,scientific_name,country_code,month,activity_count,taxonomic_group,habitat\n"+
			"Wikipedia,Vespa velutina,FR,2018-03,12,Insects,Terrestrial\n"+
			"Flickr,Vespa velutina,FR,2018-04-15,3.5,Insects,Terrestrial\n"+
			"Wikipedia,Vespa velutina,FR,not-a-month,4,Insects,Terrestrial\n"+
			"Wikipedia,Vespa velutina,FR,2018-05,-2,Insects,Terrestrial\n")

	records, rowErrs, err := ReadMonthly(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Len(t, rowErrs, 2)

	assert.Equal(t, "Wikipedia", records[0].Platform)
	assert.Equal(t, timeseries.MonthKey{Year: 2018, Month: time.March}, records[0].Month)
	assert.Equal(t, 12.0, records[0].Count)
	assert.Equal(t, timeseries.MonthKey{Year: 2018, Month: time.April}, records[1].Month)
	assert.Equal(t, 3.5, records[1].Count)

	assert.Equal(t, 4, rowErrs[0].Line)
	assert.Equal(t, 5, rowErrs[1].Line)
	assert.Contains(t, rowErrs[1].Error(), "negative")
}

func TestReadMonthlyBadHeader(t *testing.T) {
	path := writeFile(t, "monthly.csv", "platform,name,country,month,count\nWikipedia,x,FR,2018-03,1\n")

	_, _, err := ReadMonthly(path)
	require.Error(t, err)
	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Equal(t, errors.CategoryFileParsing, enhanced.Category)
}

func TestReadMonthlyMissingFile(t *testing.T) {
	_, _, err := ReadMonthly(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Equal(t, errors.CategoryFileIO, enhanced.Category)
}

func TestReadIntroductions(t *testing.T) {
	path := writeFile(t, "introductions.csv",
		"scientific_name,country_code,invasion_year,taxonomic_group,habitat\n"+
			"Vespa velutina,FR,2004,Insects,Terrestrial\n"+
			"Procyon lotor,DE,bad-year,Mammals,Terrestrial\n")

	records, rowErrs, err := ReadIntroductions(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2004, records[0].InvasionYear)
	require.Len(t, rowErrs, 1)
	assert.Contains(t, rowErrs[0].Error(), "invasion_year")
}

func TestReadSynonymsConflict(t *testing.T) {
	path := writeFile(t, "synonyms.csv",
		"raw_name,canonical_name\n"+
			"Rana catesbeiana,Lithobates catesbeianus\n"+
			"Rana catesbeiana,Lithobates catesbeianus\n"+
			"Rana catesbeiana,Something else\n")

	synonyms, rowErrs, err := ReadSynonyms(path)
	require.NoError(t, err)
	assert.Equal(t, "Lithobates catesbeianus", synonyms["Rana catesbeiana"])
	require.Len(t, rowErrs, 1)
	assert.Contains(t, rowErrs[0].Error(), "conflicting")
}

func TestReadDailyAndPopularity(t *testing.T) {
	path := writeFile(t, "daily.csv",
		"platform,scientific_name,country_code,date,activity_count\n"+
			"Flickr,Vespa velutina,FR,2018-03-01,2\n"+
			"Flickr,Vespa velutina,FR,2018-03-01,5\n"+ // same day counts once
			"Flickr,Vespa velutina,FR,2018-03-02,1\n"+
			"Flickr,Vespa velutina,FR,2018-03-03,0\n"+ // zero-activity day ignored
			"Wikipedia,Vespa velutina,FR,2018-03-01,7\n")

	daily, rowErrs, err := ReadDaily(path)
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, daily, 5)

	rows := Popularity(daily)
	require.Len(t, rows, 2)
	assert.Equal(t, PopularityKey{Country: "FR", Species: "Vespa velutina", Platform: "Flickr"}, rows[0].PopularityKey)
	assert.Equal(t, 2, rows[0].ActiveDays)
	assert.Equal(t, "Wikipedia", rows[1].Platform)
	assert.Equal(t, 1, rows[1].ActiveDays)
}

func TestResolver(t *testing.T) {
	synonyms := map[string]string{"Rana catesbeiana": "Lithobates catesbeianus"}
	traits := []TraitRecord{
		{Species: "Lithobates catesbeianus", TaxonomicGroup: "Amphibians", Habitat: "Freshwater"},
	}
	r := NewResolver(synonyms, traits)

	name, ok := r.Canonical("Rana catesbeiana")
	assert.True(t, ok)
	assert.Equal(t, "Lithobates catesbeianus", name)

	name, ok = r.Canonical("Unknownus speciesus")
	assert.False(t, ok)
	assert.Equal(t, "Unknownus speciesus", name)

	assert.Equal(t, []string{"Unknownus speciesus"}, r.Unresolved())
}

func TestResolveActivityFillsTraits(t *testing.T) {
	r := NewResolver(
		map[string]string{"Rana catesbeiana": "Lithobates catesbeianus"},
		[]TraitRecord{{Species: "Lithobates catesbeianus", TaxonomicGroup: "Amphibians", Habitat: "Freshwater"}},
	)

	records := []timeseries.ActivityRecord{
		{Platform: "Flickr", Species: "Rana catesbeiana", Country: "IT", Count: 3},
		{Platform: "Flickr", Species: "Mysterius totalis", Country: "IT", Count: 1},
	}
	resolved := r.ResolveActivity(records)
	require.Len(t, resolved, 2)

	assert.Equal(t, "Lithobates catesbeianus", resolved[0].Species)
	assert.Equal(t, "Amphibians", resolved[0].TaxonomicGroup)
	assert.Equal(t, "Freshwater", resolved[0].Habitat)

	// Unresolved records are kept, just reported.
	assert.Equal(t, "Mysterius totalis", resolved[1].Species)
	assert.Equal(t, []string{"Mysterius totalis"}, r.Unresolved())
}
