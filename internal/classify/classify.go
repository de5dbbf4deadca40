// Package classify judges temporal agreement between detections and
// EASIN-reported invasion years.
package classify

import (
	"time"

	"github.com/iaswatch/iaswatch/internal/timeseries"
)

// Label is the classification of one (species, country) case against its
// reported invasion year.
type Label string

const (
	TruePositive  Label = "TP"
	FalsePositive Label = "FP"
	FalseNegative Label = "FN"
)

// IntroductionRecord is one row of the external invasion-year reference
// table. One record exists per (species, country); a species may appear in
// several countries with different years.
type IntroductionRecord struct {
	Species        string
	Country        string
	InvasionYear   int
	TaxonomicGroup string
	Habitat        string
}

// Window returns the invasion window for a reported year: the full
// two-calendar-year span [Jan 1 of year-1, Dec 31 of year], inclusive.
// EASIN years are annual granularity with unknown within-year precision, so
// the true event may lie anywhere in the prior year through the reported one.
func Window(invasionYear int) (start, end time.Time) {
	start = time.Date(invasionYear-1, time.January, 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(invasionYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	return start, end
}

// InWindow reports whether t falls inside the invasion window, boundaries
// included.
func InWindow(t time.Time, invasionYear int) bool {
	start, end := Window(invasionYear)
	return !t.Before(start) && !t.After(end)
}

// Classify labels a case from its detected dates: no detections is a miss
// (FalseNegative); any detection inside the window is a hit (TruePositive);
// detections exclusively outside the window are a FalsePositive.
func Classify(detected []timeseries.MonthKey, invasionYear int) Label {
	if len(detected) == 0 {
		return FalseNegative
	}
	for _, m := range detected {
		if InWindow(m.Date(), invasionYear) {
			return TruePositive
		}
	}
	return FalsePositive
}

// AnyInWindow reports whether any detected month falls inside the window.
func AnyInWindow(detected []timeseries.MonthKey, invasionYear int) bool {
	for _, m := range detected {
		if InWindow(m.Date(), invasionYear) {
			return true
		}
	}
	return false
}

// LagDays returns the signed lag in days between the detection closest to
// Jan 1 of the invasion year and that anchor date, considering only
// detections within ±366 days of it. ok is false when no detection
// qualifies. Negative lag means the detection led the reported year.
func LagDays(detected []timeseries.MonthKey, invasionYear int) (lag int, ok bool) {
	anchor := time.Date(invasionYear, time.January, 1, 0, 0, 0, 0, time.UTC)

	const maxWindowDays = 366
	best := 0
	found := false
	for _, m := range detected {
		days := int(m.Date().Sub(anchor).Hours() / 24)
		if days < -maxWindowDays || days > maxWindowDays {
			continue
		}
		if !found || abs(days) < abs(best) {
			best = days
			found = true
		}
	}
	return best, found
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
