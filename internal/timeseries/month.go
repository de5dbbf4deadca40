package timeseries

import (
	"fmt"
	"time"
)

// MonthKey identifies a calendar month. Day-of-month is fixed to 1 for all
// date conversions.
type MonthKey struct {
	Year  int
	Month time.Month
}

// ParseMonth accepts "YYYY-MM" or "YYYY-MM-DD" (day ignored).
func ParseMonth(s string) (MonthKey, error) {
	var t time.Time
	var err error
	switch len(s) {
	case 7:
		t, err = time.Parse("2006-01", s)
	case 10:
		t, err = time.Parse("2006-01-02", s)
	default:
		return MonthKey{}, fmt.Errorf("invalid month %q: want YYYY-MM or YYYY-MM-DD", s)
	}
	if err != nil {
		return MonthKey{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return MonthKey{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf truncates a time to its calendar month.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// Date returns the first day of the month in UTC.
func (m MonthKey) Date() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// String formats the month as YYYY-MM.
func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Index returns the month as a linear count, so consecutive months differ by 1.
func (m MonthKey) Index() int {
	return m.Year*12 + int(m.Month) - 1
}

// Add returns the month n months after m (n may be negative).
func (m MonthKey) Add(n int) MonthKey {
	idx := m.Index() + n
	year := idx / 12
	month := idx%12 + 1
	if month <= 0 {
		month += 12
		year--
	}
	return MonthKey{Year: year, Month: time.Month(month)}
}

// Before reports whether m is earlier than other.
func (m MonthKey) Before(other MonthKey) bool {
	return m.Index() < other.Index()
}

// MonthsBetween returns other.Index() - m.Index().
func (m MonthKey) MonthsBetween(other MonthKey) int {
	return other.Index() - m.Index()
}
