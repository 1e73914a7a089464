package scan

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/hyperscan/internal/explog"
	"github.com/banshee-data/hyperscan/internal/paramspace"
	"github.com/banshee-data/hyperscan/internal/timeutil"
)

// Round is one completed round: its results row, configuration and, when
// weights are kept, the trained artifact with its serialized forms. Keeping
// them together keeps the table, timings and artifacts in step.
type Round struct {
	Index    int
	Config   paramspace.Config
	Row      explog.Row
	Artifact Artifact
	Model    []byte
	Weights  []byte
}

// runner executes single rounds.
type runner struct {
	model     Model
	data      Data
	clock     timeutil.Clock
	lastEpoch bool
	keep      bool
}

// run trains cfg and returns the round with its metrics left unset, plus the
// validated history.
func (r *runner) run(ctx context.Context, index int, cfg paramspace.Config) (Round, *History, error) {
	round := Round{Index: index, Config: cfg}
	round.Row.Params = cfg.Values()
	round.Row.Start = r.clock.Now()

	hist, art, err := r.call(ctx, cfg)
	round.Row.End = r.clock.Now()
	if err != nil {
		return round, nil, fmt.Errorf("round %d (%s): %w", index, cfg.Format(), err)
	}
	if hist == nil || art == nil {
		return round, nil, fmt.Errorf("round %d (%s): %w", index, cfg.Format(), ErrBadReturn)
	}
	epochs, err := hist.Epochs()
	if err != nil {
		return round, nil, fmt.Errorf("round %d (%s): %w", index, cfg.Format(), err)
	}
	round.Row.Epochs = epochs

	if r.keep {
		round.Artifact = art
		if round.Model, err = art.MarshalModel(); err != nil {
			return round, nil, fmt.Errorf("round %d: serialize model: %w", index, err)
		}
		if round.Weights, err = art.MarshalWeights(); err != nil {
			return round, nil, fmt.Errorf("round %d: serialize weights: %w", index, err)
		}
	}
	return round, hist, nil
}

// call invokes the training function, turning a panic into an error.
func (r *runner) call(ctx context.Context, cfg paramspace.Config) (hist *History, art Artifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			hist, art = nil, nil
			err = fmt.Errorf("%w: panic: %v", ErrRoundFailed, p)
		}
	}()
	hist, art, err = r.model(ctx, r.data, cfg)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRoundFailed, err)
	}
	return hist, art, err
}

// Representative picks the value reported for one metric: the final epoch
// with lastEpoch, else the best epoch, which is the maximum for metrics whose
// name contains "acc" and the minimum otherwise. The first best epoch wins
// ties and NaN epochs are never best.
func Representative(name string, series []float64, lastEpoch bool) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	if lastEpoch {
		return series[len(series)-1]
	}
	maximize := strings.Contains(name, "acc")
	best := math.NaN()
	for _, v := range series {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(best) || (maximize && v > best) || (!maximize && v < best) {
			best = v
		}
	}
	return best
}

// representatives extracts one value per header metric.
func representatives(hist *History, keys []string, lastEpoch bool) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		series := hist.Series(k)
		if series == nil {
			return nil, fmt.Errorf("%w: metric %q missing (first round reported %v)", ErrEmptyHistory, k, keys)
		}
		out[i] = Representative(k, series, lastEpoch)
	}
	return out, nil
}
