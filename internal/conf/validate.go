package conf

import (
	"fmt"
	"slices"
)

// Block selection policy names accepted in configuration. The two variants
// reflect two observed behaviors in the upstream analysis; "strongest" is the
// one used for published per-case result tables.
const (
	PolicyFirst     = "first"
	PolicyStrongest = "strongest"
)

// Validate checks the loaded settings for values the pipeline cannot run with.
func (s *Settings) Validate() error {
	if s.Platforms.ReferencePlatform == "" {
		return fmt.Errorf("platforms.referenceplatform must be set")
	}
	if slices.Contains(s.Platforms.Passthrough, s.Platforms.ReferencePlatform) {
		return fmt.Errorf("reference platform %q cannot also be a passthrough platform", s.Platforms.ReferencePlatform)
	}

	if s.Filter.MinPoints < 1 {
		return fmt.Errorf("filter.minpoints must be at least 1, got %d", s.Filter.MinPoints)
	}
	if s.Filter.MinUniqueDates < 1 {
		return fmt.Errorf("filter.minuniquedates must be at least 1, got %d", s.Filter.MinUniqueDates)
	}

	if s.Smoother.MinMonths < 4 {
		return fmt.Errorf("smoother.minmonths must be at least 4, got %d", s.Smoother.MinMonths)
	}
	if s.Smoother.MaxBasis < 3 {
		return fmt.Errorf("smoother.maxbasis must be at least 3, got %d", s.Smoother.MaxBasis)
	}

	if err := validateFrac("detector.slopefrac", s.Detector.SlopeFrac); err != nil {
		return err
	}
	if err := validateFrac("detector.accelfrac", s.Detector.AccelFrac); err != nil {
		return err
	}
	if s.Detector.Policy != PolicyFirst && s.Detector.Policy != PolicyStrongest {
		return fmt.Errorf("detector.policy must be %q or %q, got %q", PolicyFirst, PolicyStrongest, s.Detector.Policy)
	}

	if s.Anomaly.Alpha <= 0 || s.Anomaly.Alpha >= 1 {
		return fmt.Errorf("anomaly.alpha must be in (0,1), got %g", s.Anomaly.Alpha)
	}
	if s.Anomaly.MaxOutlierFrac <= 0 || s.Anomaly.MaxOutlierFrac > 0.5 {
		return fmt.Errorf("anomaly.maxoutlierfrac must be in (0,0.5], got %g", s.Anomaly.MaxOutlierFrac)
	}
	if s.Anomaly.SeasonalPeriod < 2 {
		return fmt.Errorf("anomaly.seasonalperiod must be at least 2, got %d", s.Anomaly.SeasonalPeriod)
	}

	if len(s.Sweep.SlopeGrid) == 0 || len(s.Sweep.AccelGrid) == 0 {
		return fmt.Errorf("sweep.slopegrid and sweep.accelgrid must be non-empty")
	}
	for _, v := range s.Sweep.SlopeGrid {
		if err := validateFrac("sweep.slopegrid", v); err != nil {
			return err
		}
	}
	for _, v := range s.Sweep.AccelGrid {
		if err := validateFrac("sweep.accelgrid", v); err != nil {
			return err
		}
	}

	if s.Runtime.Workers < 0 {
		return fmt.Errorf("runtime.workers must not be negative, got %d", s.Runtime.Workers)
	}

	return nil
}

func validateFrac(name string, v float64) error {
	if v <= 0 || v >= 1 {
		return fmt.Errorf("%s values must be in (0,1), got %g", name, v)
	}
	return nil
}
