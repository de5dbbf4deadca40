package ingest

import (
	"sort"

	"github.com/iaswatch/iaswatch/internal/classify"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

// Resolver maps historical scientific names to accepted canonical names and
// tracks names that remain unmatched against the trait reference. Unresolved
// names are surfaced as a list, never silently dropped: silent drops bias
// the stratified reporting downstream.
type Resolver struct {
	synonyms   map[string]string
	traits     map[string]TraitRecord
	unresolved map[string]struct{}
}

// NewResolver builds a resolver from the synonym mapping and trait table.
func NewResolver(synonyms map[string]string, traits []TraitRecord) *Resolver {
	traitIdx := make(map[string]TraitRecord, len(traits))
	for _, t := range traits {
		traitIdx[t.Species] = t
	}
	if synonyms == nil {
		synonyms = map[string]string{}
	}
	return &Resolver{
		synonyms:   synonyms,
		traits:     traitIdx,
		unresolved: make(map[string]struct{}),
	}
}

// Canonical resolves a raw name through the synonym table. ok is false when
// the resolved name has no trait record; the name is then remembered as
// unresolved.
func (r *Resolver) Canonical(raw string) (string, bool) {
	name := raw
	if mapped, found := r.synonyms[raw]; found {
		name = mapped
	}
	if _, known := r.traits[name]; !known {
		r.unresolved[raw] = struct{}{}
		return name, false
	}
	return name, true
}

// Trait returns the trait record for a canonical name.
func (r *Resolver) Trait(canonical string) (TraitRecord, bool) {
	t, ok := r.traits[canonical]
	return t, ok
}

// Unresolved lists the raw names seen with no trait match, sorted.
func (r *Resolver) Unresolved() []string {
	out := make([]string, 0, len(r.unresolved))
	for name := range r.unresolved {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveActivity rewrites activity records to canonical names and fills in
// trait columns from the reference. Records whose name cannot be resolved
// are kept (the statistical pipeline does not need traits) but their names
// are reported via Unresolved.
func (r *Resolver) ResolveActivity(records []timeseries.ActivityRecord) []timeseries.ActivityRecord {
	out := make([]timeseries.ActivityRecord, len(records))
	for i, rec := range records {
		canonical, ok := r.Canonical(rec.Species)
		rec.Species = canonical
		if ok {
			t := r.traits[canonical]
			rec.TaxonomicGroup = t.TaxonomicGroup
			rec.Habitat = t.Habitat
		}
		out[i] = rec
	}
	return out
}

// ResolveIntroductions rewrites introduction records to canonical names.
func (r *Resolver) ResolveIntroductions(records []classify.IntroductionRecord) []classify.IntroductionRecord {
	out := make([]classify.IntroductionRecord, len(records))
	for i, rec := range records {
		canonical, ok := r.Canonical(rec.Species)
		rec.Species = canonical
		if ok {
			t := r.traits[canonical]
			rec.TaxonomicGroup = t.TaxonomicGroup
			rec.Habitat = t.Habitat
		}
		out[i] = rec
	}
	return out
}
