// Package evaluate cross-validates trained models on held-out data and
// scores them per task.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext/prng"

	"github.com/banshee-data/hyperscan/internal/explog"
	"github.com/banshee-data/hyperscan/internal/monitoring"
)

var logf = monitoring.Scoped("evaluate")

// ErrBadInput reports data that cannot be evaluated.
var ErrBadInput = errors.New("bad evaluation input")

// Predictor is a trained model.
type Predictor interface {
	Predict(x mat.Matrix) (*mat.Dense, error)
}

// Options configure EvaluateModels.
type Options struct {
	X, Y *mat.Dense
	Task Task
	// Folds is the number of contiguous slices; default 5.
	Folds int
	// Metric ranks the rows of the results table.
	Metric string
	// NModels is how many of the best rows are evaluated; default 10.
	NModels int
	Shuffle bool
	Seed    uint64
	// Ascending ranks lower metric values first.
	Ascending bool
	// Concurrency bounds the models evaluated at once; default GOMAXPROCS.
	Concurrency int
}

func (o *Options) defaults() {
	if o.Folds == 0 {
		o.Folds = 5
	}
	if o.NModels == 0 {
		o.NModels = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
}

// Columns returns the names of the mean and standard deviation columns
// EvaluateModels appends for task.
func Columns(task Task) (mean, std string) {
	name := task.ScoreName()
	return "eval_" + name + "_mean", "eval_" + name + "_std"
}

// KFold partitions n row indices into folds contiguous slices. With shuffle
// the indices are permuted with seed first. The first n%folds slices hold
// one extra row.
func KFold(n, folds int, shuffle bool, seed uint64) ([][]int, error) {
	if folds < 2 {
		return nil, fmt.Errorf("%w: folds %d < 2", ErrBadInput, folds)
	}
	if n < folds {
		return nil, fmt.Errorf("%w: %d rows for %d folds", ErrBadInput, n, folds)
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if shuffle {
		src := prng.NewMT19937()
		src.Seed(seed)
		rand.New(src).Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}

	out := make([][]int, folds)
	start := 0
	for f := range out {
		size := n / folds
		if f < n%folds {
			size++
		}
		out[f] = idx[start : start+size]
		start += size
	}
	return out, nil
}

// rows copies the given rows of m.
func rows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}

// CrossValidate scores p on every fold of (x, y).
func CrossValidate(ctx context.Context, p Predictor, x, y *mat.Dense, task Task, folds [][]int) ([]float64, error) {
	scores := make([]float64, 0, len(folds))
	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pred, err := p.Predict(rows(x, fold))
		if err != nil {
			return nil, fmt.Errorf("fold %d: predict: %w", i, err)
		}
		s, err := Score(task, rows(y, fold), pred)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		scores = append(scores, s)
	}
	return scores, nil
}

// Summary is the mean and population standard deviation of fold scores.
type Summary struct {
	Mean, Std float64
	Scores    []float64
}

func summarize(scores []float64) (Summary, error) {
	mean, err := stats.Mean(scores)
	if err != nil {
		return Summary{}, err
	}
	std, err := stats.StandardDeviation(scores)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Mean: mean, Std: std, Scores: scores}, nil
}

// EvaluateModels cross-validates the NModels best rows of table, fetching
// each row's model with predictor, and appends the mean and standard
// deviation columns. Rows not evaluated hold NaN. It returns the summaries
// keyed by row index.
func EvaluateModels(ctx context.Context, table *explog.Table, predictor func(row int) (Predictor, error), opts Options) (map[int]Summary, error) {
	opts.defaults()
	if opts.X == nil || opts.Y == nil {
		return nil, fmt.Errorf("%w: x and y are required", ErrBadInput)
	}
	xr, _ := opts.X.Dims()
	yr, _ := opts.Y.Dims()
	if xr != yr {
		return nil, fmt.Errorf("%w: x has %d rows, y has %d", ErrBadInput, xr, yr)
	}
	if _, err := opts.Task.scorer(); err != nil {
		return nil, err
	}
	order, err := table.Order(opts.Metric, opts.Ascending)
	if err != nil {
		return nil, err
	}
	folds, err := KFold(xr, opts.Folds, opts.Shuffle, opts.Seed)
	if err != nil {
		return nil, err
	}
	if len(order) > opts.NModels {
		order = order[:opts.NModels]
	}

	summaries := make([]Summary, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, row := range order {
		g.Go(func() error {
			p, err := predictor(row)
			if err != nil {
				return fmt.Errorf("row %d: %w", row, err)
			}
			scores, err := CrossValidate(gctx, p, opts.X, opts.Y, opts.Task, folds)
			if err != nil {
				return fmt.Errorf("row %d: %w", row, err)
			}
			summaries[i], err = summarize(scores)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	means := make([]float64, table.Len())
	stds := make([]float64, table.Len())
	for i := range means {
		means[i], stds[i] = math.NaN(), math.NaN()
	}
	out := make(map[int]Summary, len(order))
	for i, row := range order {
		means[row], stds[row] = summaries[i].Mean, summaries[i].Std
		out[row] = summaries[i]
	}
	meanCol, stdCol := Columns(opts.Task)
	if err := table.AddColumn(meanCol, means); err != nil {
		return nil, err
	}
	if err := table.AddColumn(stdCol, stds); err != nil {
		return nil, err
	}
	logf("evaluated %d models with %d folds (%s)", len(order), opts.Folds, opts.Task)
	return out, nil
}
