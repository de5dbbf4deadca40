// Package anomalies implements the subcommand running the independent GESD
// point-anomaly pass over individual platform series.
package anomalies

import (
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/iaswatch/iaswatch/internal/anomaly"
	"github.com/iaswatch/iaswatch/internal/conf"
	"github.com/iaswatch/iaswatch/internal/export"
	"github.com/iaswatch/iaswatch/internal/ingest"
	"github.com/iaswatch/iaswatch/internal/logging"
	"github.com/iaswatch/iaswatch/internal/pipeline"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

// Command creates the anomalies command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Flag point-level activity spikes per platform series",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnomalies(settings)
		},
	}

	cmd.Flags().Float64Var(&settings.Anomaly.Alpha, "alpha", settings.Anomaly.Alpha, "GESD significance level")
	return cmd
}

func runAnomalies(settings *conf.Settings) error {
	synonyms, _, err := ingest.ReadSynonyms(settings.Input.SynonymsFile)
	if err != nil {
		return err
	}
	traits, _, err := ingest.ReadTraits(settings.Input.TraitsFile)
	if err != nil {
		return err
	}
	resolver := ingest.NewResolver(synonyms, traits)

	monthly, rowErrs, err := ingest.ReadMonthly(settings.Input.MonthlyFile)
	if err != nil {
		return err
	}
	monthly = resolver.ResolveActivity(monthly)

	store := timeseries.Load(monthly)
	valid, skippedKeys := store.FilterValid(
		settings.Filter.MinPoints, settings.Filter.MinUniqueDates, settings.Filter.RequireVariability)

	cfg := anomaly.Config{
		Alpha:           settings.Anomaly.Alpha,
		MaxOutlierFrac:  settings.Anomaly.MaxOutlierFrac,
		SeasonalPeriod:  settings.Anomaly.SeasonalPeriod,
		MinObservations: settings.Anomaly.MinObservations,
	}
	flags, skips := anomaly.DetectAll(valid, cfg)

	var rows []pipeline.FlagRow
	for key, months := range flags {
		for _, m := range months {
			rows = append(rows, pipeline.FlagRow{
				Platform: key.Platform, Species: key.Species, Country: key.Country,
				Month: m, IsAnomaly: true,
			})
		}
	}
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

	dir := settings.Output.Directory
	if err := export.WriteFlags(filepath.Join(dir, "anomaly_flags.csv"), rows); err != nil {
		return err
	}

	var sideList []pipeline.Skip
	for _, key := range skippedKeys {
		sideList = append(sideList, pipeline.Skip{
			Species: key.Species, Country: key.Country, Platform: key.Platform,
			Reason: "failed minimum-data preconditions",
		})
	}
	for _, s := range skips {
		sideList = append(sideList, pipeline.Skip{
			Species: s.Key.Species, Country: s.Key.Country, Platform: s.Key.Platform,
			Reason: s.Reason,
		})
	}
	if err := export.WriteSkips(filepath.Join(dir, "anomaly_skipped_cases.csv"), sideList, nil); err != nil {
		return err
	}

	logging.HumanReadable().Info("anomaly pass complete",
		"series", len(valid), "flagged_series", len(flags),
		"flagged_months", len(rows), "skipped", len(sideList),
		"row_errors", len(rowErrs))
	return nil
}
