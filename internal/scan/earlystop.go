package scan

import (
	"math"
	"strings"
)

// EarlyStopping tells a training function when a monitored metric has
// stopped improving. The direction follows the representative rule: metrics
// whose name contains "acc" improve upward, all others downward.
type EarlyStopping struct {
	Metric string
	// Patience is the number of epochs without improvement tolerated.
	Patience int
	// MinDelta is the smallest change counted as an improvement.
	MinDelta float64

	best  float64
	wait  int
	epoch int
	set   bool
}

// NewEarlyStopping returns a stopper for metric.
func NewEarlyStopping(metric string, patience int, minDelta float64) *EarlyStopping {
	return &EarlyStopping{Metric: metric, Patience: patience, MinDelta: minDelta}
}

// Observe records one epoch's value and reports whether training should
// stop.
func (e *EarlyStopping) Observe(v float64) bool {
	e.epoch++
	if math.IsNaN(v) {
		e.wait++
		return e.wait > e.Patience
	}
	up := strings.Contains(e.Metric, "acc")
	improved := !e.set ||
		(up && v > e.best+e.MinDelta) ||
		(!up && v < e.best-e.MinDelta)
	if improved {
		e.best, e.set, e.wait = v, true, 0
		return false
	}
	e.wait++
	return e.wait > e.Patience
}

// Best returns the best value seen, NaN before the first epoch.
func (e *EarlyStopping) Best() float64 {
	if !e.set {
		return math.NaN()
	}
	return e.best
}

// Epochs is the number of values observed.
func (e *EarlyStopping) Epochs() int { return e.epoch }
