package ingest

import "sort"

// PopularityKey identifies one popularity row.
type PopularityKey struct {
	Country  string
	Species  string
	Platform string
}

// PopularityRow is the derived popularity metric: the number of distinct
// days with nonzero activity per (country, species, platform).
type PopularityRow struct {
	PopularityKey
	ActiveDays int
}

// Popularity computes the metric from the daily activity table.
func Popularity(daily []DailyRecord) []PopularityRow {
	days := make(map[PopularityKey]map[string]struct{})
	for _, rec := range daily {
		if rec.Count <= 0 {
			continue
		}
		key := PopularityKey{Country: rec.Country, Species: rec.Species, Platform: rec.Platform}
		if days[key] == nil {
			days[key] = make(map[string]struct{})
		}
		days[key][rec.Date] = struct{}{}
	}

	rows := make([]PopularityRow, 0, len(days))
	for key, dates := range days {
		rows = append(rows, PopularityRow{PopularityKey: key, ActiveDays: len(dates)})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Species != b.Species {
			return a.Species < b.Species
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.Platform < b.Platform
	})
	return rows
}
