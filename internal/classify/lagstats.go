package classify

import (
	"github.com/montanaflynn/stats"
)

// LagSummary aggregates the lead/lag distribution of detections relative to
// their reported invasion years. Used for reporting only, not for the
// TP/FP/FN decision.
type LagSummary struct {
	Count  int
	Mean   float64
	Median float64
	P10    float64
	P90    float64
	// Leading counts detections strictly before Jan 1 of the invasion year.
	Leading int
}

// SummarizeLags computes distribution statistics over per-case lag values in
// days.
func SummarizeLags(lags []int) (LagSummary, error) {
	if len(lags) == 0 {
		return LagSummary{}, nil
	}

	data := make(stats.Float64Data, len(lags))
	leading := 0
	for i, lag := range lags {
		data[i] = float64(lag)
		if lag < 0 {
			leading++
		}
	}

	mean, err := stats.Mean(data)
	if err != nil {
		return LagSummary{}, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return LagSummary{}, err
	}
	p10, err := stats.Percentile(data, 10)
	if err != nil {
		return LagSummary{}, err
	}
	p90, err := stats.Percentile(data, 90)
	if err != nil {
		return LagSummary{}, err
	}

	return LagSummary{
		Count:   len(lags),
		Mean:    mean,
		Median:  median,
		P10:     p10,
		P90:     p90,
		Leading: leading,
	}, nil
}
