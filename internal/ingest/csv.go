// Package ingest reads the flat input tables produced by the collection
// jobs and resolves scientific-name synonyms before any statistics run.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/iaswatch/iaswatch/internal/classify"
	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

// RowError records a single unparseable input row. Row errors are collected,
// not fatal: the batch processes whatever subset of rows it can.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

// DailyRecord is one row of the daily activity table.
type DailyRecord struct {
	Platform string
	Species  string
	Country  string
	Date     string // YYYY-MM-DD
	Count    float64
}

// TraitRecord maps a species to its reporting strata.
type TraitRecord struct {
	Species        string
	TaxonomicGroup string
	Habitat        string
}

// header expectations per table; order matters.
var (
	monthlyHeader       = []string{"platform", "scientific_name", "country_code", "month", "activity_count", "taxonomic_group", "habitat"}
	dailyHeader         = []string{"platform", "scientific_name", "country_code", "date", "activity_count"}
	introductionsHeader = []string{"scientific_name", "country_code", "invasion_year", "taxonomic_group", "habitat"}
	traitsHeader        = []string{"scientific_name", "taxonomic_group", "habitat"}
	synonymsHeader      = []string{"raw_name", "canonical_name"}
)

// openTable opens a CSV file and validates its header row.
func openTable(path string, want []string) (*csv.Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, nil, errors.Newf("reading header of %s: %w", path, err).
			Component("ingest").
			Category(errors.CategoryFileParsing).
			Build()
	}

	if len(header) < len(want) {
		f.Close()
		return nil, nil, errors.Newf("%s: expected columns %v, got %v", path, want, header).
			Component("ingest").
			Category(errors.CategoryFileParsing).
			Build()
	}
	for i, col := range want {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			f.Close()
			return nil, nil, errors.Newf("%s: column %d is %q, want %q", path, i, header[i], col).
				Component("ingest").
				Category(errors.CategoryFileParsing).
				Build()
		}
	}
	return r, f, nil
}

// ReadMonthly parses the monthly activity table. Unparseable rows are
// returned as a side list.
func ReadMonthly(path string) ([]timeseries.ActivityRecord, []RowError, error) {
	r, f, err := openTable(path, monthlyHeader)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var records []timeseries.ActivityRecord
	var rowErrs []RowError
	line := 1
	for {
		line++
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{File: path, Line: line, Err: err})
			continue
		}

		month, err := timeseries.ParseMonth(strings.TrimSpace(row[3]))
		if err != nil {
			rowErrs = append(rowErrs, RowError{File: path, Line: line, Err: err})
			continue
		}
		count, err := parseCount(row[4])
		if err != nil {
			rowErrs = append(rowErrs, RowError{File: path, Line: line, Err: err})
			continue
		}

		records = append(records, timeseries.ActivityRecord{
			Platform:       strings.TrimSpace(row[0]),
			Species:        strings.TrimSpace(row[1]),
			Country:        strings.TrimSpace(row[2]),
			Month:          month,
			Count:          count,
			TaxonomicGroup: strings.TrimSpace(row[5]),
			Habitat:        strings.TrimSpace(row[6]),
		})
	}
	return records, rowErrs, nil
}

// ReadDaily parses the daily activity table used for the popularity metric.
func ReadDaily(path string) ([]DailyRecord, []RowError, error) {
	r, f, err := openTable(path, dailyHeader)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var records []DailyRecord
	var rowErrs []RowError
	line := 1
	for {
		line++
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{File: path, Line: line, Err: err})
			continue
		}

		count, err := parseCount(row[4])
		if err != nil {
			rowErrs = append(rowErrs, RowError{File: path, Line: line, Err: err})
			continue
		}

		records = append(records, DailyRecord{
			Platform: strings.TrimSpace(row[0]),
			Species:  strings.TrimSpace(row[1]),
			Country:  strings.TrimSpace(row[2]),
			Date:     strings.TrimSpace(row[3]),
			Count:    count,
		})
	}
	return records, rowErrs, nil
}

// ReadIntroductions parses the invasion-year reference table.
func ReadIntroductions(path string) ([]classify.IntroductionRecord, []RowError, error) {
	r, f, err := openTable(path, introductionsHeader)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var records []classify.IntroductionRecord
	var rowErrs []RowError
	line := 1
	for {
		line++
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{File: path, Line: line, Err: err})
			continue
		}

		year, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			rowErrs = append(rowErrs, RowError{File: path, Line: line, Err: fmt.Errorf("invalid invasion_year: %w", err)})
			continue
		}

		records = append(records, classify.IntroductionRecord{
			Species:        strings.TrimSpace(row[0]),
			Country:        strings.TrimSpace(row[1]),
			InvasionYear:   year,
			TaxonomicGroup: strings.TrimSpace(row[3]),
			Habitat:        strings.TrimSpace(row[4]),
		})
	}
	return records, rowErrs, nil
}

// ReadTraits parses the species trait reference table.
func ReadTraits(path string) ([]TraitRecord, []RowError, error) {
	r, f, err := openTable(path, traitsHeader)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var records []TraitRecord
	var rowErrs []RowError
	line := 1
	for {
		line++
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{File: path, Line: line, Err: err})
			continue
		}
		records = append(records, TraitRecord{
			Species:        strings.TrimSpace(row[0]),
			TaxonomicGroup: strings.TrimSpace(row[1]),
			Habitat:        strings.TrimSpace(row[2]),
		})
	}
	return records, rowErrs, nil
}

// ReadSynonyms parses the raw-name to canonical-name mapping.
func ReadSynonyms(path string) (map[string]string, []RowError, error) {
	r, f, err := openTable(path, synonymsHeader)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	synonyms := make(map[string]string)
	var rowErrs []RowError
	line := 1
	for {
		line++
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{File: path, Line: line, Err: err})
			continue
		}
		raw := strings.TrimSpace(row[0])
		canonical := strings.TrimSpace(row[1])
		if existing, dup := synonyms[raw]; dup && existing != canonical {
			rowErrs = append(rowErrs, RowError{File: path, Line: line,
				Err: fmt.Errorf("conflicting synonym for %q: %q vs %q", raw, existing, canonical)})
			continue
		}
		synonyms[raw] = canonical
	}
	return synonyms, rowErrs, nil
}

func parseCount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid activity_count: %w", err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative activity_count %g", v)
	}
	return v, nil
}
