// Package optimize grid-searches the changepoint detector's two threshold
// fractions and aggregates per-case classifications into rate curves.
package optimize

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/iaswatch/iaswatch/internal/changepoint"
	"github.com/iaswatch/iaswatch/internal/classify"
	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/logging"
	"github.com/iaswatch/iaswatch/internal/normalize"
	"github.com/iaswatch/iaswatch/internal/smooth"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

func getLog() *slog.Logger {
	return logging.ForService("optimize")
}

// Case is one (species, country) fused series with its reported invasion
// year, ready for repeated detection runs.
type Case struct {
	Key          timeseries.SpeciesCountryKey
	Fused        *normalize.FusedSeries
	InvasionYear int
}

// Cell is the aggregate outcome of one threshold pair over all cases.
// Rates use the conventions TPRate = TP/(TP+FN), FPRate = FP/(TP+FP), with 0
// on zero denominators so grid ranking never sees NaN.
type Cell struct {
	SlopeFrac float64
	AccelFrac float64
	TP        int
	FP        int
	FN        int
	TPRate    float64
	FPRate    float64
	// ActualPositives is TP+FN, the denominator of TPRate.
	ActualPositives int
}

// Sweeper re-runs detection and classification across a threshold grid.
// Smoothing does not depend on the thresholds, so fitted series are computed
// once per case and memoized for the whole sweep.
type Sweeper struct {
	SmoothCfg smooth.Config
	Policy    changepoint.BlockPolicy
	Workers   int

	fits *gocache.Cache
}

// NewSweeper returns a Sweeper with the given smoothing configuration and
// block policy. workers <= 0 selects a serial sweep.
func NewSweeper(smoothCfg smooth.Config, policy changepoint.BlockPolicy, workers int) *Sweeper {
	return &Sweeper{
		SmoothCfg: smoothCfg,
		Policy:    policy,
		Workers:   workers,
		fits:      gocache.New(gocache.NoExpiration, 0),
	}
}

// fitFor returns the memoized smoothed fit for a case, or an error outcome
// memoized the same way so failing cases are not refit per grid cell.
func (s *Sweeper) fitFor(c *Case) (*smooth.Smoothed, error) {
	key := c.Key.Species + "|" + c.Key.Country
	if v, found := s.fits.Get(key); found {
		switch t := v.(type) {
		case *smooth.Smoothed:
			return t, nil
		case error:
			return nil, t
		}
	}

	sm, err := smooth.Fit(c.Fused.Months, c.Fused.Values, s.SmoothCfg)
	if err != nil {
		s.fits.Set(key, err, gocache.NoExpiration)
		return nil, err
	}
	s.fits.Set(key, sm, gocache.NoExpiration)
	return sm, nil
}

// Sweep evaluates every (slope, accel) pair of the Cartesian grid. Cells are
// independent; they are distributed over a bounded worker pool and returned
// in grid order regardless of scheduling. Cases with insufficient data are
// excluded from the denominators and cases whose fit fails count as
// FalseNegative in every cell, matching the batch pipeline's classification
// of the same data.
func (s *Sweeper) Sweep(ctx context.Context, cases []*Case, slopeGrid, accelGrid []float64) ([]Cell, error) {
	type cellJob struct {
		pos   int
		slope float64
		accel float64
	}

	jobs := make([]cellJob, 0, len(slopeGrid)*len(accelGrid))
	for _, slope := range slopeGrid {
		for _, accel := range accelGrid {
			jobs = append(jobs, cellJob{pos: len(jobs), slope: slope, accel: accel})
		}
	}

	// Warm the fit cache up front so workers only read it. Fit failures are
	// threshold-independent misses: each one adds a constant FalseNegative
	// to every cell.
	usable := make([]*Case, 0, len(cases))
	fitFailures := 0
	for _, c := range cases {
		if _, err := s.fitFor(c); err != nil {
			switch {
			case errors.Is(err, errors.ErrInsufficientData):
			case errors.Is(err, errors.ErrFitFailure):
				fitFailures++
			default:
				return nil, err
			}
			continue
		}
		usable = append(usable, c)
	}
	getLog().Info("sweep starting",
		"cells", len(jobs), "cases", len(usable), "fit_failures", fitFailures,
		"excluded", len(cases)-len(usable)-fitFailures)

	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	cells := make([]Cell, len(jobs))
	jobCh := make(chan cellJob)

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				cells[job.pos] = s.evaluateCell(usable, fitFailures, job.slope, job.accel)
			}
		}()
	}

	var ctxErr error
dispatch:
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break dispatch
		case jobCh <- job:
		}
	}
	close(jobCh)
	wg.Wait()

	if ctxErr != nil {
		return nil, errors.New(ctxErr).
			Component("optimize").
			Category(errors.CategoryCancellation).
			Build()
	}

	getLog().Info("sweep finished", "cells", len(cells), "elapsed", time.Since(start))
	return cells, nil
}

// evaluateCell runs detection and classification for every case at one
// threshold pair. fitFailures seeds the FalseNegative count with the cases
// that never produced a fit.
func (s *Sweeper) evaluateCell(cases []*Case, fitFailures int, slopeFrac, accelFrac float64) Cell {
	cell := Cell{SlopeFrac: slopeFrac, AccelFrac: accelFrac, FN: fitFailures}
	params := changepoint.Params{SlopeFrac: slopeFrac, AccelFrac: accelFrac, Policy: s.Policy}

	for _, c := range cases {
		sm, err := s.fitFor(c)
		if err != nil {
			continue
		}

		var detected []timeseries.MonthKey
		if block := changepoint.Detect(sm, params); block != nil {
			detected = block.Months(sm)
		}

		switch classify.Classify(detected, c.InvasionYear) {
		case classify.TruePositive:
			cell.TP++
		case classify.FalsePositive:
			cell.FP++
		case classify.FalseNegative:
			cell.FN++
		}
	}

	cell.ActualPositives = cell.TP + cell.FN
	if cell.ActualPositives > 0 {
		cell.TPRate = float64(cell.TP) / float64(cell.ActualPositives)
	}
	if cell.TP+cell.FP > 0 {
		cell.FPRate = float64(cell.FP) / float64(cell.TP+cell.FP)
	}
	return cell
}

// Best selects the operating point: maximum TPRate, ties broken by minimum
// FPRate, then by smaller slope and accel fractions. The lexicographic order
// is deliberate; it decides which threshold wins among plateaus.
func Best(cells []Cell) (Cell, bool) {
	if len(cells) == 0 {
		return Cell{}, false
	}
	best := cells[0]
	for _, c := range cells[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best, true
}

func better(a, b Cell) bool {
	if a.TPRate != b.TPRate {
		return a.TPRate > b.TPRate
	}
	if a.FPRate != b.FPRate {
		return a.FPRate < b.FPRate
	}
	if a.SlopeFrac != b.SlopeFrac {
		return a.SlopeFrac < b.SlopeFrac
	}
	return a.AccelFrac < b.AccelFrac
}
