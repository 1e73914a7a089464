// Package scan runs hyperparameter scans: it materializes the parameter
// space, trains one configuration per round, logs every round to disk and
// prunes the remaining space between rounds.
package scan

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/hyperscan/internal/explog"
	"github.com/banshee-data/hyperscan/internal/monitoring"
	"github.com/banshee-data/hyperscan/internal/paramspace"
	"github.com/banshee-data/hyperscan/internal/reducer"
	"github.com/banshee-data/hyperscan/internal/security"
)

var logf = monitoring.Scoped("scan")

// TimestampLayout names the files of one experiment.
const TimestampLayout = "010206150405"

// Paths are the files an experiment writes under its directory.
type Paths struct {
	Dir       string
	Results   string // <id>.csv
	EpochLog  string // <id>.log
	Decisions string // <id>.json, gamify only
}

func paths(outputDir, experiment, stamp string) Paths {
	dir := filepath.Join(outputDir, security.SanitizeFilename(experiment))
	return Paths{
		Dir:       dir,
		Results:   filepath.Join(dir, stamp+".csv"),
		EpochLog:  filepath.Join(dir, stamp+".log"),
		Decisions: filepath.Join(dir, stamp+".json"),
	}
}

// Run executes a scan. Rounds run one after another; after each one the
// results file is rewritten. The loop ends when the space is exhausted, the
// deadline passes, the performance target is met or ctx is canceled; all
// four return the result with a nil error. A failing round ends the scan
// with an error and the result of the rounds completed before it.
func Run(ctx context.Context, opts Options) (*Result, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	data, err := opts.split()
	if err != nil {
		return nil, err
	}
	smp, err := opts.sampler()
	if err != nil {
		return nil, err
	}
	deadline, err := opts.deadline()
	if err != nil {
		return nil, err
	}
	space, err := paramspace.New(opts.Params, paramspace.Options{
		FractionLimit: opts.FractionLimit,
		RoundLimit:    opts.RoundLimit,
		Deadline:      deadline,
		BooleanLimit:  opts.BooleanLimit,
		Sampler:       smp,
		Clock:         opts.Clock,
	})
	if err != nil {
		return nil, err
	}

	start := opts.Clock.Now()
	stamp := start.Format(TimestampLayout)
	p := paths(opts.OutputDir, opts.ExperimentName, stamp)

	var red *reducer.Reducer
	if opts.ReductionMethod != "" {
		strategy, err := reducer.NewStrategy(opts.ReductionMethod, reducer.Options{
			Seed:       opts.Seed,
			Source:     opts.DecisionSource,
			FS:         opts.FS,
			Path:       p.Decisions,
			Custom:     opts.CustomReducer,
			PluginPath: opts.ReducerPlugin,
		})
		if err != nil {
			return nil, err
		}
		red = reducer.New(strategy, opts.reduction())
	}

	met, err := newMetrics(opts.Metrics, opts.ExperimentName)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if err := opts.FS.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create experiment directory: %w", err)
	}

	results := explog.New(opts.FS, p.Results)
	var epochs *explog.EpochLogger
	if opts.EpochLog {
		epochs = explog.NewEpochLogger(opts.FS, p.EpochLog)
		ctx = WithEpochLogger(ctx, epochs)
	}
	run := &runner{
		model:     opts.Model,
		data:      data,
		clock:     opts.Clock,
		lastEpoch: opts.LastEpoch,
		keep:      opts.SaveWeights,
	}

	res := &Result{
		Params: opts.Params,
		X:      opts.X,
		Y:      opts.Y,
		Details: Details{
			ID:                 uuid.NewString(),
			ExperimentName:     opts.ExperimentName,
			Timestamp:          stamp,
			Start:              start,
			XShape:             shape(opts.X),
			YShape:             shape(opts.Y),
			RandomMethod:       opts.RandomMethod,
			Seed:               opts.Seed,
			ReductionMethod:    opts.ReductionMethod,
			ReductionInterval:  opts.ReductionInterval,
			ReductionWindow:    opts.ReductionWindow,
			ReductionThreshold: opts.ReductionThreshold,
			ReductionMetric:    opts.ReductionMetric,
			MinimizeLoss:       opts.MinimizeLoss,
			Population:         space.Total(),
			Planned:            space.Len(),
			ResultsPath:        p.Results,
		},
	}
	if opts.Sampler != nil {
		res.Details.RandomMethod = "custom"
	}
	finish := func(reason StopReason) {
		res.Table = results.Table()
		res.Details.Stop = opts.Clock.Now()
		res.Details.Elapsed = opts.Clock.Since(start)
		res.Details.Complete = len(res.Rounds)
		res.Details.StopReason = reason
	}

	bar := newProgress(opts.Progress, opts.DisableProgressBar)
	defer bar.finish()
	bar.update(0, space.RemainingLen())
	logf("experiment %s: %d of %d configurations, results in %s", res.Details.ID, space.Len(), space.Total(), p.Results)

	reason := StopExhausted
	for {
		if ctx.Err() != nil {
			reason = StopCanceled
			break
		}
		cfg, ok := space.Next()
		if !ok {
			if space.RemainingLen() > 0 {
				reason = StopDeadline
			}
			break
		}

		index := len(res.Rounds)
		if opts.PrintParams {
			logf("round %d/%d: %s", index+1, index+1+space.RemainingLen(), cfg.Format())
		}
		if epochs != nil {
			epochs.SetRound(index)
		}
		round, hist, err := run.run(ctx, index, cfg)
		if err != nil {
			finish(StopFailed)
			return res, err
		}

		if !results.HasHeader() {
			if err := results.Header(hist.Names(), opts.Params.Names()); err != nil {
				finish(StopFailed)
				return res, fmt.Errorf("round %d: %w", index, err)
			}
		}
		if round.Row.Metrics, err = representatives(hist, results.MetricKeys(), opts.LastEpoch); err != nil {
			finish(StopFailed)
			return res, fmt.Errorf("round %d (%s): %w", index, cfg.Format(), err)
		}
		if err := results.Append(round.Row); err != nil {
			finish(StopFailed)
			return res, fmt.Errorf("round %d: %w", index, err)
		}
		if err := results.Flush(); err != nil {
			finish(StopFailed)
			return res, fmt.Errorf("round %d: %w", index, err)
		}
		res.Rounds = append(res.Rounds, round)

		if opts.ClearSession && opts.SessionClearer != nil {
			opts.SessionClearer()
		}
		met.round(round.Row.Duration(), space.RemainingLen())

		if t := opts.PerformanceTarget; t != nil {
			if v, ok := metricOf(results, round.Row, t.Metric); ok && t.Met(v) {
				logf("round %d: %s=%v reached target %v", index, t.Metric, v, t.Value)
				reason = StopTarget
				break
			}
		}

		if red != nil {
			done := len(res.Rounds)
			table := results.Table()
			if err := red.Observe(ctx, table, opts.Params); err != nil {
				finish(StopFailed)
				return res, fmt.Errorf("round %d: publish reduction state: %w", index, err)
			}
			if red.Due(done) {
				out, err := red.Reduce(ctx, table, opts.Params, space)
				if err != nil {
					finish(StopFailed)
					return res, fmt.Errorf("round %d: %w", index, err)
				}
				res.Details.Reductions += len(out.Decisions)
				met.reduction(len(out.Decisions), out.Removed, space.RemainingLen())
			}
		}
		bar.update(len(res.Rounds), len(res.Rounds)+space.RemainingLen())
	}

	finish(reason)
	logf("experiment %s finished (%s): %d rounds in %s", res.Details.ID, reason, len(res.Rounds), res.Details.Elapsed)
	return res, nil
}

func shape(m interface{ Dims() (int, int) }) [2]int {
	r, c := m.Dims()
	return [2]int{r, c}
}

// metricOf reads a metric of row by header position.
func metricOf(results *explog.Log, row explog.Row, metric string) (float64, bool) {
	for i, k := range results.MetricKeys() {
		if k == metric {
			return row.Metrics[i], true
		}
	}
	return 0, false
}
