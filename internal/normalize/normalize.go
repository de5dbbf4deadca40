// Package normalize rescales per-platform activity counts and fuses them
// into one aggregate signal per (species, country, month).
package normalize

import (
	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

// Config captures the platform provenance decisions the normalizer needs.
// Platform names are configuration here, never compared inline in the
// statistical code.
type Config struct {
	// Passthrough platforms are used unnormalized; their upstream values are
	// already a bounded activity fraction.
	Passthrough map[string]bool
	// ReferencePlatform is excluded from the fused signal: it is ground
	// truth occurrence data, not a mined-activity signal.
	ReferencePlatform string
	// ValidatePassthrough rejects passthrough groups whose values fall
	// outside [0,1] instead of trusting the upstream scale.
	ValidatePassthrough bool
}

// NewConfig builds a Config from the platform settings lists.
func NewConfig(referencePlatform string, passthrough []string, validate bool) Config {
	pt := make(map[string]bool, len(passthrough))
	for _, p := range passthrough {
		pt[p] = true
	}
	return Config{
		Passthrough:         pt,
		ReferencePlatform:   referencePlatform,
		ValidatePassthrough: validate,
	}
}

// NormalizeGroup min-max normalizes one platform series: every count divided
// by the group maximum, all zeros when the maximum is zero. Passthrough
// platforms are returned unchanged. The returned slice is aligned with the
// group's records.
func NormalizeGroup(g *timeseries.Group, cfg Config) ([]float64, error) {
	values := g.Values()

	if cfg.Passthrough[g.Key.Platform] {
		if cfg.ValidatePassthrough {
			for i, v := range values {
				if v < 0 || v > 1 {
					return nil, errors.Newf("passthrough platform %s value %g outside [0,1] at %s",
						g.Key.Platform, v, g.Records[i].Month).
						Component("normalize").
						Category(errors.CategoryValidation).
						GroupContext(g.Key.Species, g.Key.Country).
						Build()
				}
			}
		}
		out := make([]float64, len(values))
		copy(out, values)
		return out, nil
	}

	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}

	out := make([]float64, len(values))
	if maxVal == 0 {
		return out, nil
	}
	for i, v := range values {
		out[i] = v / maxVal
	}
	return out, nil
}

// FusedSeries is the aggregate mined-activity signal for one
// (species, country), evenly spaced over months.
type FusedSeries struct {
	Key    timeseries.SpeciesCountryKey
	Months []timeseries.MonthKey
	Values []float64
	// Platforms lists the platform series that contributed, in name order.
	Platforms []string
}

// PlatformSkip records one platform series excluded from fusion, with the
// validation failure that excluded it.
type PlatformSkip struct {
	Platform string
	Reason   string
}

// Fuse sums normalized per-platform values into one series per
// (species, country). The fused grid spans the union of the contributing
// platforms' observed ranges; months inside the grid with no reported data
// are zero, not skipped. The reference platform never contributes. A platform
// series failing validation is skipped and reported; the remaining platforms
// still fuse. A nil series means no platform contributed.
func Fuse(store *timeseries.Store, key timeseries.SpeciesCountryKey, cfg Config) (*FusedSeries, []PlatformSkip) {
	groups := store.PlatformGroupsFor(key)

	var contributing []*timeseries.Group
	var skipped []PlatformSkip
	normalized := make(map[string][]float64)
	for _, g := range groups {
		if g.Key.Platform == cfg.ReferencePlatform {
			continue
		}
		norm, err := NormalizeGroup(g, cfg)
		if err != nil {
			skipped = append(skipped, PlatformSkip{Platform: g.Key.Platform, Reason: err.Error()})
			continue
		}
		contributing = append(contributing, g)
		normalized[g.Key.Platform] = norm
	}
	if len(contributing) == 0 {
		return nil, skipped
	}

	// Union monthly grid across contributing platforms.
	start := contributing[0].Records[0].Month
	end := contributing[0].Records[len(contributing[0].Records)-1].Month
	for _, g := range contributing[1:] {
		if g.Records[0].Month.Before(start) {
			start = g.Records[0].Month
		}
		if end.Before(g.Records[len(g.Records)-1].Month) {
			end = g.Records[len(g.Records)-1].Month
		}
	}

	n := start.MonthsBetween(end) + 1
	months := make([]timeseries.MonthKey, n)
	for i := 0; i < n; i++ {
		months[i] = start.Add(i)
	}

	values := make([]float64, n)
	platforms := make([]string, 0, len(contributing))
	for _, g := range contributing {
		platforms = append(platforms, g.Key.Platform)
		norm := normalized[g.Key.Platform]
		for i, rec := range g.Records {
			values[start.MonthsBetween(rec.Month)] += norm[i]
		}
	}

	return &FusedSeries{Key: key, Months: months, Values: values, Platforms: platforms}, skipped
}
