// Package timeseries holds the in-memory representation of monthly activity
// per (platform, species, country) and the grouping and precondition checks
// every statistical step depends on.
package timeseries

import (
	"log/slog"
	"sort"

	"github.com/iaswatch/iaswatch/internal/logging"
)

// ActivityRecord is one observation of platform activity for a species in a
// country during one calendar month. At most one record exists per
// (platform, species, country, month).
type ActivityRecord struct {
	Platform       string
	Species        string // canonical scientific name
	Country        string // ISO 3166-1 alpha-2 code
	Month          MonthKey
	Count          float64 // non-negative activity count
	TaxonomicGroup string  // carried through for stratified reporting
	Habitat        string
}

// GroupKey identifies a per-platform series.
type GroupKey struct {
	Platform string
	Species  string
	Country  string
}

// SpeciesCountryKey identifies a fused series.
type SpeciesCountryKey struct {
	Species string
	Country string
}

// Group is an ordered monthly series for one group key. Records are sorted
// by month; temporal order is mandatory for all smoothing and derivative
// operations downstream.
type Group struct {
	Key     GroupKey
	Records []ActivityRecord
}

// Store holds the full activity table grouped by platform series. It is
// immutable once built; groups share no mutable state and may be processed
// concurrently.
type Store struct {
	groups map[GroupKey]*Group
}

func getLog() *slog.Logger {
	return logging.ForService("timeseries")
}

// Load builds a Store from records. Duplicate (platform, species, country,
// month) rows violate the table invariant; the last row wins and a warning
// is logged.
func Load(records []ActivityRecord) *Store {
	s := &Store{groups: make(map[GroupKey]*Group)}
	log := getLog()

	seen := make(map[GroupKey]map[MonthKey]int)
	for _, rec := range records {
		key := GroupKey{Platform: rec.Platform, Species: rec.Species, Country: rec.Country}
		g, ok := s.groups[key]
		if !ok {
			g = &Group{Key: key}
			s.groups[key] = g
			seen[key] = make(map[MonthKey]int)
		}
		if idx, dup := seen[key][rec.Month]; dup {
			log.Warn("duplicate activity record, last write wins",
				"platform", key.Platform, "species", key.Species,
				"country", key.Country, "month", rec.Month.String())
			g.Records[idx] = rec
			continue
		}
		seen[key][rec.Month] = len(g.Records)
		g.Records = append(g.Records, rec)
	}

	for _, g := range s.groups {
		sort.Slice(g.Records, func(i, j int) bool {
			return g.Records[i].Month.Before(g.Records[j].Month)
		})
	}

	return s
}

// Groups returns all platform series in deterministic key order.
func (s *Store) Groups() []*Group {
	keys := make([]GroupKey, 0, len(s.groups))
	for k := range s.groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Species != b.Species {
			return a.Species < b.Species
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.Platform < b.Platform
	})
	out := make([]*Group, len(keys))
	for i, k := range keys {
		out[i] = s.groups[k]
	}
	return out
}

// Group returns the series for a key, or nil.
func (s *Store) Group(key GroupKey) *Group {
	return s.groups[key]
}

// SpeciesCountryKeys returns the distinct (species, country) pairs present,
// sorted.
func (s *Store) SpeciesCountryKeys() []SpeciesCountryKey {
	set := make(map[SpeciesCountryKey]struct{})
	for k := range s.groups {
		set[SpeciesCountryKey{Species: k.Species, Country: k.Country}] = struct{}{}
	}
	keys := make([]SpeciesCountryKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Species != keys[j].Species {
			return keys[i].Species < keys[j].Species
		}
		return keys[i].Country < keys[j].Country
	})
	return keys
}

// PlatformGroupsFor returns the platform series belonging to one
// (species, country) pair, sorted by platform name.
func (s *Store) PlatformGroupsFor(key SpeciesCountryKey) []*Group {
	var out []*Group
	for k, g := range s.groups {
		if k.Species == key.Species && k.Country == key.Country {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Platform < out[j].Key.Platform })
	return out
}

// FilterValid returns the groups passing the minimum-data preconditions and
// the keys of those skipped. Skipping is expected, not exceptional: not every
// input combination has sufficient data.
func (s *Store) FilterValid(minPoints, minUniqueDates int, requireVariability bool) (valid []*Group, skipped []GroupKey) {
	for _, g := range s.Groups() {
		if g.Valid(minPoints, minUniqueDates, requireVariability) {
			valid = append(valid, g)
		} else {
			skipped = append(skipped, g.Key)
		}
	}
	return valid, skipped
}

// Valid reports whether the group has enough data for statistical analysis:
// at least minPoints observations, at least minUniqueDates distinct months,
// and, when requireVariability is set, not all values identical. Degenerate
// series make a smoothing fit ill-posed and rank-test tie-breaking undefined.
func (g *Group) Valid(minPoints, minUniqueDates int, requireVariability bool) bool {
	if len(g.Records) < minPoints {
		return false
	}

	months := make(map[MonthKey]struct{}, len(g.Records))
	for _, r := range g.Records {
		months[r.Month] = struct{}{}
	}
	if len(months) < minUniqueDates {
		return false
	}

	if requireVariability {
		first := g.Records[0].Count
		constant := true
		for _, r := range g.Records[1:] {
			if r.Count != first {
				constant = false
				break
			}
		}
		if constant {
			return false
		}
	}

	return true
}

// Months returns the group's observed months in order.
func (g *Group) Months() []MonthKey {
	out := make([]MonthKey, len(g.Records))
	for i, r := range g.Records {
		out[i] = r.Month
	}
	return out
}

// Values returns the group's counts in month order.
func (g *Group) Values() []float64 {
	out := make([]float64, len(g.Records))
	for i, r := range g.Records {
		out[i] = r.Count
	}
	return out
}

// FilledSeries materializes the group over its full contiguous monthly grid
// from the first to the last observed month, zero-filling interior gaps. The
// downstream smoother requires an evenly spaced index.
func (g *Group) FilledSeries() ([]MonthKey, []float64) {
	if len(g.Records) == 0 {
		return nil, nil
	}
	start := g.Records[0].Month
	end := g.Records[len(g.Records)-1].Month
	n := start.MonthsBetween(end) + 1

	months := make([]MonthKey, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		months[i] = start.Add(i)
	}
	for _, r := range g.Records {
		values[start.MonthsBetween(r.Month)] = r.Count
	}
	return months, values
}
