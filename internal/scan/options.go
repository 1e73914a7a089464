package scan

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext/prng"

	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/paramspace"
	"github.com/banshee-data/hyperscan/internal/reducer"
	"github.com/banshee-data/hyperscan/internal/sampler"
	"github.com/banshee-data/hyperscan/internal/timeutil"
)

// DefaultValSplit is the validation fraction used when none is set.
const DefaultValSplit = 0.3

// Target stops the scan once a round's metric reaches Value.
type Target struct {
	Metric   string
	Value    float64
	Minimize bool
}

// Met reports whether v reaches the target.
func (t Target) Met(v float64) bool {
	if t.Minimize {
		return v <= t.Value
	}
	return v >= t.Value
}

// Options configure a scan. Zero values mean "unset"; see DefaultOptions.
type Options struct {
	// Training data. XVal and YVal are optional but must be given together;
	// without them the last ValSplit fraction of X and Y is held out.
	X, Y       *mat.Dense
	XVal, YVal *mat.Dense
	ValSplit   float64
	Shuffle    bool

	Params *paramspace.Declaration
	Model  Model

	// ExperimentName is the output directory under OutputDir.
	ExperimentName string
	OutputDir      string

	// Limits. TimeLimit is parsed with timeutil.ParseDeadline and is ignored
	// when Deadline is set.
	FractionLimit float64
	RoundLimit    int
	TimeLimit     string
	Deadline      time.Time
	BooleanLimit  func(paramspace.Config) bool

	// RandomMethod names a sampler; Sampler overrides it.
	RandomMethod string
	Seed         uint64
	Sampler      paramspace.Sampler

	ReductionMethod    string
	ReductionInterval  int
	ReductionWindow    int
	ReductionThreshold float64
	ReductionMetric    string
	MinimizeLoss       bool
	// CustomReducer and ReducerPlugin back the "local" reduction method.
	CustomReducer reducer.Strategy
	ReducerPlugin string
	// DecisionSource backs the "gamify" method; by default a JSON file next
	// to the results.
	DecisionSource reducer.DecisionSource

	PerformanceTarget *Target

	DisableProgressBar bool
	PrintParams        bool
	// Progress receives the progress bar; defaults to stderr.
	Progress io.Writer

	// ClearSession calls SessionClearer after every round.
	ClearSession   bool
	SessionClearer func()
	// SaveWeights retains every round's artifact for selection and deploy.
	SaveWeights bool
	// LastEpoch reports the final epoch instead of the best one.
	LastEpoch bool
	// EpochLog writes <experiment>/<id>.log through the logger returned by
	// EpochLoggerFrom.
	EpochLog bool

	Clock   timeutil.Clock
	FS      fsutil.FileSystem
	Metrics prometheus.Registerer
}

// DefaultOptions returns options with the library defaults filled in.
func DefaultOptions() Options {
	return Options{
		ValSplit:       DefaultValSplit,
		ExperimentName: "scan",
		RandomMethod:   sampler.DefaultMethod,
		SaveWeights:    true,
	}
}

func (o *Options) applyDefaults() {
	if o.ValSplit == 0 {
		o.ValSplit = DefaultValSplit
	}
	if o.ExperimentName == "" {
		o.ExperimentName = "scan"
	}
	if o.RandomMethod == "" {
		o.RandomMethod = sampler.DefaultMethod
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
}

func (o *Options) reduction() reducer.Config {
	return reducer.Config{
		Method:    o.ReductionMethod,
		Interval:  o.ReductionInterval,
		Window:    o.ReductionWindow,
		Threshold: o.ReductionThreshold,
		Metric:    o.ReductionMetric,
		Minimize:  o.MinimizeLoss,
	}
}

// validate checks everything that can be checked before any round runs.
func (o *Options) validate() error {
	if o.Params == nil {
		return fmt.Errorf("%w: params are required", ErrConfig)
	}
	if err := o.Params.Err(); err != nil {
		return err
	}
	if o.Model == nil {
		return fmt.Errorf("%w: model is required", ErrConfig)
	}
	if o.X == nil || o.Y == nil {
		return fmt.Errorf("%w: x and y are required", ErrConfig)
	}
	if xr, yr := rowsOf(o.X), rowsOf(o.Y); xr != yr {
		return fmt.Errorf("%w: x has %d rows, y has %d", ErrConfig, xr, yr)
	}
	switch {
	case (o.XVal == nil) != (o.YVal == nil):
		return fmt.Errorf("%w: x_val and y_val must be given together", ErrConfig)
	case o.XVal != nil:
		if xr, yr := rowsOf(o.XVal), rowsOf(o.YVal); xr != yr {
			return fmt.Errorf("%w: x_val has %d rows, y_val has %d", ErrConfig, xr, yr)
		}
	case o.ValSplit <= 0 || o.ValSplit >= 1 || math.IsNaN(o.ValSplit):
		return fmt.Errorf("%w: val_split %v outside (0,1)", ErrConfig, o.ValSplit)
	}
	if err := o.reduction().Validate(); err != nil {
		return err
	}
	if t := o.PerformanceTarget; t != nil && t.Metric == "" {
		return fmt.Errorf("%w: performance target needs a metric", ErrConfig)
	}
	return nil
}

func rowsOf(m *mat.Dense) int {
	r, _ := m.Dims()
	return r
}

// deadline resolves Deadline or TimeLimit.
func (o *Options) deadline() (time.Time, error) {
	if !o.Deadline.IsZero() || o.TimeLimit == "" {
		return o.Deadline, nil
	}
	t, err := timeutil.ParseDeadline(o.TimeLimit, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time_limit: %w", ErrConfig, err)
	}
	return t, nil
}

func (o *Options) sampler() (paramspace.Sampler, error) {
	if o.Sampler != nil {
		return o.Sampler, nil
	}
	return sampler.New(o.RandomMethod, o.Seed)
}

// split returns the four data slices, holding out the last ValSplit
// fraction of (X, Y) when no validation set was supplied.
func (o *Options) split() (Data, error) {
	if o.XVal != nil {
		return Data{X: o.X, Y: o.Y, XVal: o.XVal, YVal: o.YVal}, nil
	}
	n := rowsOf(o.X)
	train := int(math.Floor(float64(n)*(1-o.ValSplit) + 1e-9))
	if train < 1 || train >= n {
		return Data{}, fmt.Errorf("%w: val_split %v leaves %d of %d rows for training", ErrConfig, o.ValSplit, train, n)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if o.Shuffle {
		src := prng.NewMT19937()
		src.Seed(o.Seed)
		rand.New(src).Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	return Data{
		X:    selectRows(o.X, idx[:train]),
		Y:    selectRows(o.Y, idx[:train]),
		XVal: selectRows(o.X, idx[train:]),
		YVal: selectRows(o.Y, idx[train:]),
	}, nil
}

func selectRows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}
