// Package sweep implements the threshold grid-search subcommand.
package sweep

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iaswatch/iaswatch/internal/changepoint"
	"github.com/iaswatch/iaswatch/internal/conf"
	"github.com/iaswatch/iaswatch/internal/datastore"
	"github.com/iaswatch/iaswatch/internal/export"
	"github.com/iaswatch/iaswatch/internal/logging"
	"github.com/iaswatch/iaswatch/internal/optimize"
	"github.com/iaswatch/iaswatch/internal/pipeline"
	"github.com/iaswatch/iaswatch/internal/smooth"
)

// Command creates the sweep command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Grid-search the detector thresholds",
		Long: `Re-run detection and classification for every configured
(slope, accel) threshold pair and report TP/FP rate curves plus the
selected operating point.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), settings)
		},
	}
	return cmd
}

func runSweep(ctx context.Context, settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cases, skips, err := pipeline.BuildSweepCases(settings)
	if err != nil {
		return err
	}

	policy, err := changepoint.ParsePolicy(settings.Detector.Policy)
	if err != nil {
		return err
	}

	smoothCfg := smooth.Config{
		MinMonths: settings.Smoother.MinMonths,
		MaxBasis:  settings.Smoother.MaxBasis,
	}
	workers := settings.Runtime.Workers
	sweeper := optimize.NewSweeper(smoothCfg, policy, workers)

	cells, err := sweeper.Sweep(ctx, cases, settings.Sweep.SlopeGrid, settings.Sweep.AccelGrid)
	if err != nil {
		return err
	}

	dir := settings.Output.Directory
	if err := export.WriteGridCells(filepath.Join(dir, "threshold_grid.csv"), cells); err != nil {
		return err
	}
	if err := export.WriteSkips(filepath.Join(dir, "sweep_skipped_cases.csv"), skips, nil); err != nil {
		return err
	}

	human := logging.HumanReadable()
	if best, ok := optimize.Best(cells); ok {
		human.Info("selected operating point",
			"slope", best.SlopeFrac, "accel", best.AccelFrac,
			"tp_rate", best.TPRate, "fp_rate", best.FPRate,
			"tp", best.TP, "fp", best.FP, "fn", best.FN)

		if settings.Output.SQLite.Enabled {
			store, err := datastore.Open(settings.Output.SQLite.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			sweepID := uuid.New().String()
			if err := store.SaveSweep(sweepID, settings.Detector.Policy, len(cases), best, cells); err != nil {
				return err
			}
		}
	}

	human.Info("sweep complete", "cells", len(cells), "cases", len(cases), "skipped", len(skips))
	return nil
}
