package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iaswatch/iaswatch/internal/anomaly"
	"github.com/iaswatch/iaswatch/internal/changepoint"
	"github.com/iaswatch/iaswatch/internal/classify"
	"github.com/iaswatch/iaswatch/internal/conf"
	"github.com/iaswatch/iaswatch/internal/errors"
	"github.com/iaswatch/iaswatch/internal/ingest"
	"github.com/iaswatch/iaswatch/internal/logging"
	"github.com/iaswatch/iaswatch/internal/normalize"
	"github.com/iaswatch/iaswatch/internal/optimize"
	"github.com/iaswatch/iaswatch/internal/smooth"
	"github.com/iaswatch/iaswatch/internal/timeseries"
)

func getLog() *slog.Logger {
	return logging.ForService("pipeline")
}

// Skip records a case or series excluded before scoring.
type Skip struct {
	Species  string
	Country  string
	Platform string // empty for fused-series skips
	Reason   string
}

// Failure records a case whose fit failed; its result is reported as
// FalseNegative.
type Failure struct {
	Species string
	Country string
	Err     string
}

// FlagRow is one point-level flag for the downstream visualization table.
type FlagRow struct {
	Platform      string // empty for changepoint flags on the fused signal
	Species       string
	Country       string
	Month         timeseries.MonthKey
	IsAnomaly     bool
	IsChangepoint bool
}

// Output bundles everything a run produces. I/O happens only at the batch
// boundaries: the caller persists this wherever it wants.
type Output struct {
	RunID        string
	Results      []CaseResult
	Skips        []Skip
	Failures     []Failure
	Unresolved   []string
	RowErrors    []ingest.RowError
	Flags        []FlagRow
	Popularity   []ingest.PopularityRow
	LagSummary   classify.LagSummary
	Strata       []StratumRates
	Elapsed      time.Duration
	CasesTotal   int
	CasesSkipped int
}

// Run executes the full batch from the configured input tables.
func Run(ctx context.Context, settings *conf.Settings) (*Output, error) {
	start := time.Now()
	runID := uuid.New().String()
	log := getLog().With("run_id", runID)

	// Reference tables first: name resolution must precede all statistics.
	synonyms, synErrs, err := ingest.ReadSynonyms(settings.Input.SynonymsFile)
	if err != nil {
		return nil, err
	}
	traits, traitErrs, err := ingest.ReadTraits(settings.Input.TraitsFile)
	if err != nil {
		return nil, err
	}
	resolver := ingest.NewResolver(synonyms, traits)

	monthly, monthErrs, err := ingest.ReadMonthly(settings.Input.MonthlyFile)
	if err != nil {
		return nil, err
	}
	intros, introErrs, err := ingest.ReadIntroductions(settings.Input.IntroductionsFile)
	if err != nil {
		return nil, err
	}
	daily, dailyErrs, err := ingest.ReadDaily(settings.Input.DailyFile)
	if err != nil {
		return nil, err
	}

	out := &Output{RunID: runID}
	out.RowErrors = append(out.RowErrors, synErrs...)
	out.RowErrors = append(out.RowErrors, traitErrs...)
	out.RowErrors = append(out.RowErrors, monthErrs...)
	out.RowErrors = append(out.RowErrors, introErrs...)
	out.RowErrors = append(out.RowErrors, dailyErrs...)

	monthly = resolver.ResolveActivity(monthly)
	intros = resolver.ResolveIntroductions(intros)
	out.Popularity = ingest.Popularity(daily)

	store := timeseries.Load(monthly)
	validGroups, skippedGroups := store.FilterValid(
		settings.Filter.MinPoints, settings.Filter.MinUniqueDates, settings.Filter.RequireVariability)
	for _, key := range skippedGroups {
		out.Skips = append(out.Skips, Skip{
			Species: key.Species, Country: key.Country, Platform: key.Platform,
			Reason: "failed minimum-data preconditions",
		})
	}
	log.Info("input loaded",
		"activity_rows", len(monthly), "introductions", len(intros),
		"platform_series", len(validGroups), "series_skipped", len(skippedGroups),
		"row_errors", len(out.RowErrors))

	validStore := restrict(validGroups)
	normCfg := normalize.NewConfig(
		settings.Platforms.ReferencePlatform,
		settings.Platforms.Passthrough,
		settings.Platforms.ValidatePassthrough)

	policy, err := changepoint.ParsePolicy(settings.Detector.Policy)
	if err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}

	smoothCfg := smooth.Config{
		MinMonths: settings.Smoother.MinMonths,
		MaxBasis:  settings.Smoother.MaxBasis,
	}
	detector := changepoint.Params{
		SlopeFrac: settings.Detector.SlopeFrac,
		AccelFrac: settings.Detector.AccelFrac,
		Policy:    policy,
	}

	// One scored case per introduction record with mined activity.
	inputs, caseSkips := buildCases(validStore, intros, normCfg, smoothCfg, detector)
	out.Skips = append(out.Skips, caseSkips...)
	out.CasesTotal = len(inputs)

	results, procSkips, failures := mapCases(ctx, inputs, workerCount(settings))
	out.Results = results
	out.Skips = append(out.Skips, procSkips...)
	out.Failures = failures
	out.CasesSkipped = len(procSkips)

	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryCancellation).
			Build()
	}

	// Independent point-anomaly pass over individual platform series.
	anomalyCfg := anomaly.Config{
		Alpha:           settings.Anomaly.Alpha,
		MaxOutlierFrac:  settings.Anomaly.MaxOutlierFrac,
		SeasonalPeriod:  settings.Anomaly.SeasonalPeriod,
		MinObservations: settings.Anomaly.MinObservations,
	}
	anomalyFlags, anomalySkips := anomaly.DetectAll(validGroups, anomalyCfg)
	for _, s := range anomalySkips {
		out.Skips = append(out.Skips, Skip{
			Species: s.Key.Species, Country: s.Key.Country, Platform: s.Key.Platform,
			Reason: s.Reason,
		})
	}

	out.Flags = buildFlagTable(out.Results, anomalyFlags)

	var lags []int
	for _, r := range out.Results {
		if r.Label == classify.TruePositive && r.LagOK {
			lags = append(lags, r.LagDays)
		}
	}
	if out.LagSummary, err = classify.SummarizeLags(lags); err != nil {
		log.Warn("lag summary failed", "error", err)
	}

	out.Strata = Stratify(out.Results)
	out.Unresolved = resolver.Unresolved()
	out.Elapsed = time.Since(start)

	log.Info("run complete",
		"cases", out.CasesTotal, "results", len(out.Results),
		"skips", len(out.Skips), "failures", len(out.Failures),
		"unresolved_names", len(out.Unresolved), "elapsed", out.Elapsed)
	return out, nil
}

// restrict rebuilds a store holding only the given groups.
func restrict(groups []*timeseries.Group) *timeseries.Store {
	var records []timeseries.ActivityRecord
	for _, g := range groups {
		records = append(records, g.Records...)
	}
	return timeseries.Load(records)
}

// buildCases pairs every introduction record with the fused mined-activity
// signal for its (species, country). Introductions with no usable activity
// are skips, not false negatives: no data existed to judge. A platform
// series failing validation is reported as its own skip while the case
// proceeds on the remaining platforms.
func buildCases(store *timeseries.Store, intros []classify.IntroductionRecord,
	normCfg normalize.Config, smoothCfg smooth.Config, detector changepoint.Params,
) ([]CaseInput, []Skip) {
	var inputs []CaseInput
	var skips []Skip

	for _, intro := range intros {
		key := timeseries.SpeciesCountryKey{Species: intro.Species, Country: intro.Country}
		fused, platformSkips := normalize.Fuse(store, key, normCfg)
		for _, ps := range platformSkips {
			skips = append(skips, Skip{Species: intro.Species, Country: intro.Country,
				Platform: ps.Platform, Reason: ps.Reason})
		}
		if fused == nil {
			skips = append(skips, Skip{Species: intro.Species, Country: intro.Country,
				Reason: "no mined-activity platform series"})
			continue
		}
		inputs = append(inputs, CaseInput{
			Fused:        fused,
			Intro:        intro,
			SmoothConfig: smoothCfg,
			Detector:     detector,
		})
	}
	return inputs, skips
}

// mapCases fans ProcessCase out over a bounded worker pool. Results keep the
// input order so repeated runs on identical input are bit-identical.
func mapCases(ctx context.Context, inputs []CaseInput, workers int) ([]CaseResult, []Skip, []Failure) {
	type indexed struct {
		pos int
		in  CaseInput
	}

	results := make([]*CaseResult, len(inputs))
	skips := make([]*Skip, len(inputs))
	failures := make([]*Failure, len(inputs))

	jobCh := make(chan indexed)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				res, err := ProcessCase(job.in)
				switch {
				case err == nil:
					results[job.pos] = &res
				case errors.Is(err, errors.ErrInsufficientData):
					skips[job.pos] = &Skip{
						Species: job.in.Intro.Species,
						Country: job.in.Intro.Country,
						Reason:  err.Error(),
					}
				default:
					// Fit failures are reported as FalseNegative and listed
					// as problematic cases.
					failures[job.pos] = &Failure{
						Species: job.in.Intro.Species,
						Country: job.in.Intro.Country,
						Err:     err.Error(),
					}
					results[job.pos] = &res
				}
			}
		}()
	}

	for i, in := range inputs {
		select {
		case <-ctx.Done():
		case jobCh <- indexed{pos: i, in: in}:
			continue
		}
		break
	}
	close(jobCh)
	wg.Wait()

	var outResults []CaseResult
	var outSkips []Skip
	var outFailures []Failure
	for i := range inputs {
		if results[i] != nil {
			outResults = append(outResults, *results[i])
		}
		if skips[i] != nil {
			outSkips = append(outSkips, *skips[i])
		}
		if failures[i] != nil {
			outFailures = append(outFailures, *failures[i])
		}
	}
	return outResults, outSkips, outFailures
}

// buildFlagTable merges changepoint months (on the fused signal) and anomaly
// months (per platform) into one per-date flag table.
func buildFlagTable(results []CaseResult, anomalies map[timeseries.GroupKey][]timeseries.MonthKey) []FlagRow {
	var rows []FlagRow
	for _, r := range results {
		for _, m := range r.Detected {
			rows = append(rows, FlagRow{
				Species: r.Species, Country: r.Country, Month: m, IsChangepoint: true,
			})
		}
	}
	for key, months := range anomalies {
		for _, m := range months {
			rows = append(rows, FlagRow{
				Platform: key.Platform, Species: key.Species, Country: key.Country,
				Month: m, IsAnomaly: true,
			})
		}
	}
	sortFlagRows(rows)
	return rows
}

// SweepCases converts the scored inputs into optimizer cases.
func SweepCases(inputs []CaseInput) []*optimize.Case {
	cases := make([]*optimize.Case, len(inputs))
	for i, in := range inputs {
		cases[i] = &optimize.Case{
			Key:          timeseries.SpeciesCountryKey{Species: in.Intro.Species, Country: in.Intro.Country},
			Fused:        in.Fused,
			InvasionYear: in.Intro.InvasionYear,
		}
	}
	return cases
}

// BuildSweepCases prepares optimizer cases straight from settings, reusing
// the run's ingestion and fusion path.
func BuildSweepCases(settings *conf.Settings) ([]*optimize.Case, []Skip, error) {
	synonyms, _, err := ingest.ReadSynonyms(settings.Input.SynonymsFile)
	if err != nil {
		return nil, nil, err
	}
	traits, _, err := ingest.ReadTraits(settings.Input.TraitsFile)
	if err != nil {
		return nil, nil, err
	}
	resolver := ingest.NewResolver(synonyms, traits)

	monthly, _, err := ingest.ReadMonthly(settings.Input.MonthlyFile)
	if err != nil {
		return nil, nil, err
	}
	intros, _, err := ingest.ReadIntroductions(settings.Input.IntroductionsFile)
	if err != nil {
		return nil, nil, err
	}

	monthly = resolver.ResolveActivity(monthly)
	intros = resolver.ResolveIntroductions(intros)

	store := timeseries.Load(monthly)
	valid, _ := store.FilterValid(
		settings.Filter.MinPoints, settings.Filter.MinUniqueDates, settings.Filter.RequireVariability)
	validStore := restrict(valid)

	normCfg := normalize.NewConfig(
		settings.Platforms.ReferencePlatform,
		settings.Platforms.Passthrough,
		settings.Platforms.ValidatePassthrough)

	policy, err := changepoint.ParsePolicy(settings.Detector.Policy)
	if err != nil {
		return nil, nil, err
	}
	smoothCfg := smooth.Config{MinMonths: settings.Smoother.MinMonths, MaxBasis: settings.Smoother.MaxBasis}
	detector := changepoint.Params{
		SlopeFrac: settings.Detector.SlopeFrac,
		AccelFrac: settings.Detector.AccelFrac,
		Policy:    policy,
	}

	inputs, skips := buildCases(validStore, intros, normCfg, smoothCfg, detector)
	return SweepCases(inputs), skips, nil
}

func workerCount(settings *conf.Settings) int {
	if settings.Runtime.Workers > 0 {
		return settings.Runtime.Workers
	}
	return runtime.NumCPU()
}
