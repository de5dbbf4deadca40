// Package export writes the run's result tables as CSV, the only output
// contract downstream plotting and reporting code depends on.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iaswatch/iaswatch/internal/ingest"
	"github.com/iaswatch/iaswatch/internal/optimize"
	"github.com/iaswatch/iaswatch/internal/pipeline"
)

// writeCSV writes a header and rows to path, creating parent directories.
func writeCSV(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing header of %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing row of %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// WriteClassifications writes the per-(species, country) classification
// table.
func WriteClassifications(path string, results []pipeline.CaseResult) error {
	header := []string{
		"scientific_name", "country", "invasion_year", "detected_dates",
		"in_window", "num_detections", "classification",
		"taxonomic_group", "habitat", "lag_days",
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		dates := make([]string, len(r.Detected))
		for i, m := range r.Detected {
			dates[i] = m.String()
		}
		lag := ""
		if r.LagOK {
			lag = strconv.Itoa(r.LagDays)
		}
		rows = append(rows, []string{
			r.Species,
			r.Country,
			strconv.Itoa(r.InvasionYear),
			strings.Join(dates, ";"),
			strconv.FormatBool(r.InWindow),
			strconv.Itoa(r.NumDetections),
			string(r.Label),
			r.TaxonomicGroup,
			r.Habitat,
			lag,
		})
	}
	return writeCSV(path, header, rows)
}

// WriteGridCells writes the threshold sweep aggregate table.
func WriteGridCells(path string, cells []optimize.Cell) error {
	header := []string{
		"slope_threshold", "accel_threshold",
		"tp_rate", "fp_rate", "tp_count", "fp_count", "fn_count",
		"total_actual_positives",
	}
	rows := make([][]string, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []string{
			formatFloat(c.SlopeFrac),
			formatFloat(c.AccelFrac),
			formatFloat(c.TPRate),
			formatFloat(c.FPRate),
			strconv.Itoa(c.TP),
			strconv.Itoa(c.FP),
			strconv.Itoa(c.FN),
			strconv.Itoa(c.ActualPositives),
		})
	}
	return writeCSV(path, header, rows)
}

// WriteFlags writes the per-(platform, species, country, date) flag table
// consumed by visualization.
func WriteFlags(path string, flags []pipeline.FlagRow) error {
	header := []string{"platform", "species", "country", "date", "is_anomaly", "is_changepoint"}
	rows := make([][]string, 0, len(flags))
	for _, f := range flags {
		rows = append(rows, []string{
			f.Platform,
			f.Species,
			f.Country,
			f.Month.String(),
			yesNo(f.IsAnomaly),
			yesNo(f.IsChangepoint),
		})
	}
	return writeCSV(path, header, rows)
}

// WriteSkips writes the skipped/failed-case side list so a run's exclusions
// are always inspectable.
func WriteSkips(path string, skips []pipeline.Skip, failures []pipeline.Failure) error {
	header := []string{"species", "country", "platform", "kind", "reason"}
	rows := make([][]string, 0, len(skips)+len(failures))
	for _, s := range skips {
		rows = append(rows, []string{s.Species, s.Country, s.Platform, "skip", s.Reason})
	}
	for _, f := range failures {
		rows = append(rows, []string{f.Species, f.Country, "", "fit-failure", f.Err})
	}
	return writeCSV(path, header, rows)
}

// WriteUnresolved writes the scientific names with no trait match.
func WriteUnresolved(path string, names []string) error {
	header := []string{"raw_name"}
	rows := make([][]string, 0, len(names))
	for _, n := range names {
		rows = append(rows, []string{n})
	}
	return writeCSV(path, header, rows)
}

// WritePopularity writes the derived popularity metric.
func WritePopularity(path string, popularity []ingest.PopularityRow) error {
	header := []string{"country", "species", "platform", "active_days"}
	rows := make([][]string, 0, len(popularity))
	for _, p := range popularity {
		rows = append(rows, []string{p.Country, p.Species, p.Platform, strconv.Itoa(p.ActiveDays)})
	}
	return writeCSV(path, header, rows)
}

// WriteStrata writes classification rates stratified by taxonomic group and
// habitat.
func WriteStrata(path string, strata []pipeline.StratumRates) error {
	header := []string{"dimension", "stratum", "tp_count", "fp_count", "fn_count", "tp_rate", "fp_rate"}
	rows := make([][]string, 0, len(strata))
	for _, s := range strata {
		rows = append(rows, []string{
			s.Dimension,
			s.Stratum,
			strconv.Itoa(s.TP),
			strconv.Itoa(s.FP),
			strconv.Itoa(s.FN),
			formatFloat(s.TPRate),
			formatFloat(s.FPRate),
		})
	}
	return writeCSV(path, header, rows)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
