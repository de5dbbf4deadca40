package pipeline

import (
	"sort"

	"github.com/iaswatch/iaswatch/internal/classify"
)

// StratumRates aggregates classification counts for one reporting stratum
// (a taxonomic group or a habitat).
type StratumRates struct {
	Dimension string // "taxonomic_group" or "habitat"
	Stratum   string
	TP        int
	FP        int
	FN        int
	TPRate    float64
	FPRate    float64
}

// Stratify aggregates case results by taxonomic group and by habitat.
// Cases with an empty stratum value (unresolved names) are reported under
// "unknown" so they stay visible rather than vanishing from the totals.
func Stratify(results []CaseResult) []StratumRates {
	type key struct {
		dimension string
		stratum   string
	}
	counts := make(map[key]*StratumRates)

	add := func(dimension, stratum string, label classify.Label) {
		if stratum == "" {
			stratum = "unknown"
		}
		k := key{dimension: dimension, stratum: stratum}
		s, ok := counts[k]
		if !ok {
			s = &StratumRates{Dimension: dimension, Stratum: stratum}
			counts[k] = s
		}
		switch label {
		case classify.TruePositive:
			s.TP++
		case classify.FalsePositive:
			s.FP++
		case classify.FalseNegative:
			s.FN++
		}
	}

	for _, r := range results {
		add("taxonomic_group", r.TaxonomicGroup, r.Label)
		add("habitat", r.Habitat, r.Label)
	}

	out := make([]StratumRates, 0, len(counts))
	for _, s := range counts {
		if s.TP+s.FN > 0 {
			s.TPRate = float64(s.TP) / float64(s.TP+s.FN)
		}
		if s.TP+s.FP > 0 {
			s.FPRate = float64(s.FP) / float64(s.TP+s.FP)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dimension != out[j].Dimension {
			return out[i].Dimension < out[j].Dimension
		}
		return out[i].Stratum < out[j].Stratum
	})
	return out
}

// sortFlagRows orders the visualization flag table deterministically.
func sortFlagRows(rows []FlagRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Species != b.Species {
			return a.Species < b.Species
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		return a.Month.Before(b.Month)
	})
}
