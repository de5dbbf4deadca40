// Package pipeline runs the full analysis batch: normalization and fusion,
// trend smoothing, changepoint detection, classification against reported
// invasion years, the independent anomaly pass and the threshold sweep.
package pipeline

import (
	"github.com/iaswatch/iaswatch/internal/changepoint"
	"github.com/iaswatch/iaswatch/internal/classify"
	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/normalize"
	"github.com/iaswatch/iaswatch/internal/smooth"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

// CaseInput is everything needed to score one (species, country) case.
type CaseInput struct {
	Fused        *normalize.FusedSeries
	Intro        classify.IntroductionRecord
	SmoothConfig smooth.Config
	Detector     changepoint.Params
}

// CaseResult is the scored outcome for one case under one detector
// configuration.
type CaseResult struct {
	Species        string
	Country        string
	InvasionYear   int
	TaxonomicGroup string
	Habitat        string

	// Detected holds the confirmed block's flagged months; empty when no
	// block was confirmed.
	Detected      []timeseries.MonthKey
	BlockStart    timeseries.MonthKey
	BlockEnd      timeseries.MonthKey
	PeakStrength  float64
	NumDetections int
	InWindow      bool
	Label         classify.Label

	LagDays int
	LagOK   bool
}

// ProcessCase is the pure per-case pipeline: smooth, detect, confirm,
// classify. It never mutates shared state; the batch runner maps it over
// cases concurrently.
//
// Error semantics per the batch contract: ErrInsufficientData means the case
// is excluded from all aggregates; ErrFitFailure means the case is reported
// as FalseNegative (an unconfirmed event, not an invented detection) and
// recorded on the problem side-list.
func ProcessCase(in CaseInput) (CaseResult, error) {
	res := CaseResult{
		Species:        in.Intro.Species,
		Country:        in.Intro.Country,
		InvasionYear:   in.Intro.InvasionYear,
		TaxonomicGroup: in.Intro.TaxonomicGroup,
		Habitat:        in.Intro.Habitat,
	}

	sm, err := smooth.Fit(in.Fused.Months, in.Fused.Values, in.SmoothConfig)
	if err != nil {
		if errors.Is(err, errors.ErrFitFailure) {
			// Conservative default: could not confirm an event.
			res.Label = classify.FalseNegative
		}
		return res, err
	}

	if block := changepoint.Detect(sm, in.Detector); block != nil {
		res.Detected = block.Months(sm)
		res.BlockStart = block.StartMonth
		res.BlockEnd = block.EndMonth
		res.PeakStrength = block.PeakStrength
		res.NumDetections = len(res.Detected)
	}

	res.Label = classify.Classify(res.Detected, in.Intro.InvasionYear)
	res.InWindow = classify.AnyInWindow(res.Detected, in.Intro.InvasionYear)
	res.LagDays, res.LagOK = classify.LagDays(res.Detected, in.Intro.InvasionYear)
	return res, nil
}
