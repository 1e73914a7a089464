package scan

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hyperscan/internal/explog"
	"github.com/banshee-data/hyperscan/internal/paramspace"
)

// Artifact is a trained model as returned by a training function.
type Artifact interface {
	Predict(x mat.Matrix) (*mat.Dense, error)
	// MarshalModel describes the model, typically as JSON.
	MarshalModel() ([]byte, error)
	// MarshalWeights serializes the learned parameters.
	MarshalWeights() ([]byte, error)
}

// Data holds the four slices handed to every round.
type Data struct {
	X, Y       *mat.Dense
	XVal, YVal *mat.Dense
}

// Model trains one configuration. It returns the per-epoch history and the
// trained artifact.
type Model func(ctx context.Context, data Data, cfg paramspace.Config) (*History, Artifact, error)

type epochLogKey struct{}

// WithEpochLogger attaches a per-epoch logger to ctx.
func WithEpochLogger(ctx context.Context, l *explog.EpochLogger) context.Context {
	return context.WithValue(ctx, epochLogKey{}, l)
}

// EpochLoggerFrom returns the per-epoch logger of the running scan, or nil.
// A nil logger's Log is a no-op, so training functions can call it
// unconditionally.
func EpochLoggerFrom(ctx context.Context) *explog.EpochLogger {
	l, _ := ctx.Value(epochLogKey{}).(*explog.EpochLogger)
	return l
}
