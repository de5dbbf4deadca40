// Package anomaly flags point-level activity spikes in individual platform
// series, independently of the changepoint pipeline: each series is split
// into trend + seasonal + remainder and a generalized ESD test is applied to
// the remainder. Only upward excursions count; a downward dip is not
// evidence of an invasion event.
package anomaly

import (
	"fmt"

	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

// Config controls the point-anomaly detector.
type Config struct {
	// Alpha is the GESD significance level. The default is deliberately
	// permissive; downstream review was the original consumer of these flags.
	Alpha float64
	// MaxOutlierFrac bounds the number of outliers tested, as a fraction of
	// series length.
	MaxOutlierFrac float64
	// SeasonalPeriod is the cycle length in months.
	SeasonalPeriod int
	// MinObservations is the minimum filled series length to attempt a
	// decomposition.
	MinObservations int
}

// DefaultConfig returns the standard anomaly configuration.
func DefaultConfig() Config {
	return Config{
		Alpha:           0.25,
		MaxOutlierFrac:  0.2,
		SeasonalPeriod:  12,
		MinObservations: 24,
	}
}

// Detect returns the months of a single-platform series flagged as upward
// point anomalies. The caller is expected to have applied the group
// preconditions already; Detect still returns ErrInsufficientData for series
// shorter than MinObservations after zero-filling.
func Detect(g *timeseries.Group, cfg Config) ([]timeseries.MonthKey, error) {
	months, values := g.FilledSeries()
	n := len(values)
	if n < cfg.MinObservations {
		return nil, errors.New(errors.ErrInsufficientData).
			Component("anomaly").
			Category(errors.CategoryInsufficientData).
			GroupContext(g.Key.Species, g.Key.Country).
			Context("platform", g.Key.Platform).
			Context("months", n).
			Build()
	}

	dec := decompose(values, cfg.SeasonalPeriod)

	maxOutliers := int(float64(n) * cfg.MaxOutlierFrac)
	if maxOutliers < 1 {
		maxOutliers = 1
	}

	flagged, firstLambda := generalizedESD(dec.Remainder, maxOutliers, cfg.Alpha)
	if len(flagged) == 0 {
		return nil, nil
	}

	// Recomposed lower confidence band: trend + seasonal + remainder lower
	// limit. Flagged months below it are downward outliers and dropped.
	mean, sd := meanStddev(dec.Remainder)
	lowerLimit := mean - firstLambda*sd

	var out []timeseries.MonthKey
	for _, idx := range flagged {
		lowerBand := dec.Trend[idx] + dec.Seasonal[idx] + lowerLimit
		if values[idx] > lowerBand {
			out = append(out, months[idx])
		}
	}
	return out, nil
}

// DetectAll runs Detect over every valid platform series, returning flags
// keyed by group and a side list of skipped or failed series. One series'
// failure never aborts the batch.
func DetectAll(groups []*timeseries.Group, cfg Config) (map[timeseries.GroupKey][]timeseries.MonthKey, []Skip) {
	flags := make(map[timeseries.GroupKey][]timeseries.MonthKey)
	var skips []Skip

	for _, g := range groups {
		months, err := Detect(g, cfg)
		if err != nil {
			skips = append(skips, Skip{Key: g.Key, Reason: err.Error()})
			continue
		}
		if len(months) > 0 {
			flags[g.Key] = months
		}
	}
	return flags, skips
}

// Skip records a series the anomaly pass could not score.
type Skip struct {
	Key    timeseries.GroupKey
	Reason string
}

func (s Skip) String() string {
	return fmt.Sprintf("%s/%s/%s: %s", s.Key.Platform, s.Key.Species, s.Key.Country, s.Reason)
}
