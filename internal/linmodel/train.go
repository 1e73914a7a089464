package linmodel

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hyperscan/internal/paramspace"
	"github.com/banshee-data/hyperscan/internal/scan"
)

// Hyper are the training hyperparameters.
type Hyper struct {
	LR     float64
	Epochs int
	L2     float64
	// Patience stops training after that many epochs without val_loss
	// improvement; 0 disables early stopping.
	Patience int
	Schedule Schedule
}

// Defaults used when a configuration does not declare a hyperparameter.
const (
	DefaultLR     = 0.1
	DefaultEpochs = 20
)

// HyperFrom reads lr, epochs, l2, patience and schedule from cfg.
func HyperFrom(cfg paramspace.Config) (Hyper, error) {
	h := Hyper{LR: DefaultLR, Epochs: DefaultEpochs, Schedule: Constant}
	if v, ok := cfg.Get("lr"); ok {
		h.LR = cfg.Float("lr")
		if !v.IsNumeric() || h.LR <= 0 {
			return h, fmt.Errorf("lr must be a positive number, got %v", v)
		}
	}
	if v, ok := cfg.Get("epochs"); ok {
		h.Epochs = cfg.Int("epochs")
		if !v.IsNumeric() || h.Epochs < 1 {
			return h, fmt.Errorf("epochs must be a positive integer, got %v", v)
		}
	}
	if _, ok := cfg.Get("l2"); ok {
		h.L2 = cfg.Float("l2")
	}
	if _, ok := cfg.Get("patience"); ok {
		h.Patience = cfg.Int("patience")
	}
	if v, ok := cfg.Get("schedule"); ok {
		s, err := scheduleOf(v)
		if err != nil {
			return h, err
		}
		h.Schedule = s
	}
	return h, nil
}

// Trainer returns a scan training function for kind.
func Trainer(kind Kind) scan.Model {
	return func(ctx context.Context, data scan.Data, cfg paramspace.Config) (*scan.History, scan.Artifact, error) {
		h, err := HyperFrom(cfg)
		if err != nil {
			return nil, nil, err
		}
		hist, m, err := Train(ctx, kind, data, h)
		if err != nil {
			return nil, nil, err
		}
		return hist, m, nil
	}
}

// Train fits a model by full-batch gradient descent. After every epoch the
// metrics are added to the history and sent to the scan's epoch logger.
func Train(ctx context.Context, kind Kind, data scan.Data, h Hyper) (*scan.History, *Model, error) {
	n, in := data.X.Dims()
	yr, out := data.Y.Dims()
	if n != yr {
		return nil, nil, fmt.Errorf("%w: x has %d rows, y has %d", ErrShape, n, yr)
	}
	if h.Schedule == nil {
		h.Schedule = Constant
	}

	m := New(kind, in, out)
	hist := scan.NewHistory()
	elog := scan.EpochLoggerFrom(ctx)
	var stop *scan.EarlyStopping
	if h.Patience > 0 {
		stop = scan.NewEarlyStopping("val_loss", h.Patience, 0)
	}

	grad := mat.NewDense(n, out, nil)
	dW := mat.NewDense(in, out, nil)
	for epoch := 0; epoch < h.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		pred, err := m.Predict(data.X)
		if err != nil {
			return nil, nil, err
		}
		// Every loss here has gradient (p - y) with respect to the logits.
		grad.Sub(pred, data.Y)
		grad.Scale(1/float64(n), grad)
		dW.Mul(data.X.T(), grad)
		if h.L2 != 0 {
			dW.Apply(func(i, j int, v float64) float64 { return v + h.L2*m.W.At(i, j) }, dW)
		}
		lr := h.Schedule(h.LR, epoch)
		dW.Scale(lr, dW)
		m.W.Sub(m.W, dW)
		bias := m.B.RawRowView(0)
		for j := range bias {
			var s float64
			for i := 0; i < n; i++ {
				s += grad.At(i, j)
			}
			bias[j] -= lr * s
		}

		metrics, err := m.evaluate(data)
		if err != nil {
			return nil, nil, err
		}
		for _, k := range metricNames(kind) {
			if v, ok := metrics[k]; ok {
				hist.Add(k, v)
			}
		}
		if err := elog.Log(epoch, metrics); err != nil {
			return nil, nil, err
		}
		if stop != nil && stop.Observe(metrics["val_loss"]) {
			break
		}
	}
	return hist, m, nil
}

func metricNames(kind Kind) []string {
	if kind == Linear {
		return []string{"loss", "val_loss"}
	}
	return []string{"loss", "acc", "val_loss", "val_acc"}
}

func (m *Model) evaluate(data scan.Data) (map[string]float64, error) {
	out := make(map[string]float64, 4)
	sets := []struct {
		prefix string
		x, y   *mat.Dense
	}{{"", data.X, data.Y}, {"val_", data.XVal, data.YVal}}
	for _, s := range sets {
		if s.x == nil {
			continue
		}
		pred, err := m.Predict(s.x)
		if err != nil {
			return nil, err
		}
		out[s.prefix+"loss"] = Loss(m.Kind, s.y, pred)
		if m.Kind != Linear {
			out[s.prefix+"acc"] = Accuracy(m.Kind, s.y, pred)
		}
	}
	return out, nil
}

const eps = 1e-12

// Loss is the mean training loss of kind.
func Loss(kind Kind, y, pred mat.Matrix) float64 {
	r, c := y.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t, p := y.At(i, j), pred.At(i, j)
			switch kind {
			case Linear:
				sum += (p - t) * (p - t) / 2
			case Logistic:
				sum -= t*math.Log(p+eps) + (1-t)*math.Log(1-p+eps)
			case Softmax:
				sum -= t * math.Log(p+eps)
			}
		}
	}
	if kind == Softmax {
		return sum / float64(r)
	}
	return sum / float64(r*c)
}

// Accuracy is the fraction of matching cells at 0.5 for logistic models and
// of matching argmax rows for softmax models.
func Accuracy(kind Kind, y, pred mat.Matrix) float64 {
	r, c := y.Dims()
	var hits, total int
	for i := 0; i < r; i++ {
		if kind == Softmax {
			if argmax(y, i, c) == argmax(pred, i, c) {
				hits++
			}
			total++
			continue
		}
		for j := 0; j < c; j++ {
			if (y.At(i, j) >= 0.5) == (pred.At(i, j) >= 0.5) {
				hits++
			}
			total++
		}
	}
	return float64(hits) / float64(total)
}

func argmax(m mat.Matrix, i, c int) int {
	best := 0
	for j := 1; j < c; j++ {
		if m.At(i, j) > m.At(i, best) {
			best = j
		}
	}
	return best
}
