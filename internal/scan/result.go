package scan

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hyperscan/internal/evaluate"
	"github.com/banshee-data/hyperscan/internal/explog"
	"github.com/banshee-data/hyperscan/internal/paramspace"
)

// StopReason says why the round loop ended.
type StopReason string

const (
	StopExhausted StopReason = "exhausted"
	StopDeadline  StopReason = "deadline"
	StopTarget    StopReason = "target"
	StopCanceled  StopReason = "canceled"
	StopFailed    StopReason = "failed"
)

// Details is the experiment metadata returned with the results and written
// into deploy packages.
type Details struct {
	ID             string
	ExperimentName string
	Timestamp      string
	Start, Stop    time.Time
	Elapsed        time.Duration
	XShape, YShape [2]int
	RandomMethod   string
	Seed           uint64

	ReductionMethod    string
	ReductionInterval  int
	ReductionWindow    int
	ReductionThreshold float64
	ReductionMetric    string
	MinimizeLoss       bool

	// Population is the size of the full Cartesian product; Planned the
	// number of configurations materialized; Complete the rounds run.
	Population  int
	Planned     int
	Complete    int
	Reductions  int
	StopReason  StopReason
	ResultsPath string
}

// Records renders the details as key, value pairs in a fixed order.
func (d Details) Records() [][]string {
	shape := func(s [2]int) string { return fmt.Sprintf("%dx%d", s[0], s[1]) }
	return [][]string{
		{"experiment_id", d.ID},
		{"experiment_name", d.ExperimentName},
		{"timestamp", d.Timestamp},
		{"start", d.Start.Format(time.RFC3339Nano)},
		{"stop", d.Stop.Format(time.RFC3339Nano)},
		{"elapsed", d.Elapsed.String()},
		{"x_shape", shape(d.XShape)},
		{"y_shape", shape(d.YShape)},
		{"random_method", d.RandomMethod},
		{"seed", strconv.FormatUint(d.Seed, 10)},
		{"reduction_method", d.ReductionMethod},
		{"reduction_interval", strconv.Itoa(d.ReductionInterval)},
		{"reduction_window", strconv.Itoa(d.ReductionWindow)},
		{"reduction_threshold", explog.FormatFloat(d.ReductionThreshold)},
		{"reduction_metric", d.ReductionMetric},
		{"minimize_loss", strconv.FormatBool(d.MinimizeLoss)},
		{"population", strconv.Itoa(d.Population)},
		{"planned_rounds", strconv.Itoa(d.Planned)},
		{"complete_rounds", strconv.Itoa(d.Complete)},
		{"reductions", strconv.Itoa(d.Reductions)},
		{"stop_reason", string(d.StopReason)},
		{"results_path", d.ResultsPath},
	}
}

// Result is what a scan returns.
type Result struct {
	Table   *explog.Table
	Details Details
	Rounds  []Round
	Params  *paramspace.Declaration
	// X and Y are the training data as given, before any validation split.
	X, Y *mat.Dense
}

// Best returns the index of the best round under metric.
func (r *Result) Best(metric string, ascending bool) (int, error) {
	return r.Table.Best(metric, ascending)
}

// BestRound returns the best round under metric.
func (r *Result) BestRound(metric string, ascending bool) (Round, error) {
	i, err := r.Best(metric, ascending)
	if err != nil {
		return Round{}, err
	}
	return r.Rounds[i], nil
}

// BestModel returns the retained artifact of the best round under metric.
func (r *Result) BestModel(metric string, ascending bool) (Artifact, error) {
	round, err := r.BestRound(metric, ascending)
	if err != nil {
		return nil, err
	}
	if round.Artifact == nil {
		return nil, ErrNoArtifact
	}
	return round.Artifact, nil
}

// BestParams returns the configurations of the n best rounds, best first.
func (r *Result) BestParams(metric string, n int, ascending bool) ([]paramspace.Config, error) {
	order, err := r.Table.Order(metric, ascending)
	if err != nil {
		return nil, err
	}
	if n > 0 && n < len(order) {
		order = order[:n]
	}
	out := make([]paramspace.Config, len(order))
	for i, row := range order {
		out[i] = r.Rounds[row].Config
	}
	return out, nil
}

// EvaluateModels cross-validates the best retained artifacts on opts.X and
// opts.Y and adds the score columns to Table.
func (r *Result) EvaluateModels(ctx context.Context, opts evaluate.Options) (map[int]evaluate.Summary, error) {
	return evaluate.EvaluateModels(ctx, r.Table, func(row int) (evaluate.Predictor, error) {
		a := r.Rounds[row].Artifact
		if a == nil {
			return nil, ErrNoArtifact
		}
		return a, nil
	}, opts)
}
