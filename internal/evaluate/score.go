package evaluate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Task selects the scoring function.
type Task string

const (
	Binary     Task = "binary"
	MultiClass Task = "multi_class"
	MultiLabel Task = "multi_label"
	Continuous Task = "continuous"
)

type scorer func(yTrue, yPred mat.Matrix) float64

func (t Task) scorer() (scorer, error) {
	switch t {
	case Binary:
		return binaryF1, nil
	case MultiClass:
		return macroF1, nil
	case MultiLabel:
		return microF1, nil
	case Continuous:
		return meanAbsoluteError, nil
	}
	return nil, fmt.Errorf("%w: unknown task %q", ErrBadInput, string(t))
}

// ScoreName names the score a task is judged by.
func (t Task) ScoreName() string {
	if t == Continuous {
		return "mae"
	}
	return "f1"
}

// Score judges predictions against labels. Binary and multi-label
// predictions are thresholded at 0.5; multi-class rows are compared by
// argmax. Continuous tasks return the mean absolute error, lower is better.
func Score(task Task, yTrue, yPred mat.Matrix) (float64, error) {
	s, err := task.scorer()
	if err != nil {
		return 0, err
	}
	tr, tc := yTrue.Dims()
	pr, pc := yPred.Dims()
	if tr != pr || tc != pc {
		return 0, fmt.Errorf("%w: labels %dx%d, predictions %dx%d", ErrBadInput, tr, tc, pr, pc)
	}
	if tr == 0 {
		return 0, fmt.Errorf("%w: no rows", ErrBadInput)
	}
	return s(yTrue, yPred), nil
}

func f1(tp, fp, fn int) float64 {
	if 2*tp+fp+fn == 0 {
		return 0
	}
	return 2 * float64(tp) / float64(2*tp+fp+fn)
}

// binaryF1 is the F1 of the positive class in the first column.
func binaryF1(yTrue, yPred mat.Matrix) float64 {
	r, _ := yTrue.Dims()
	var tp, fp, fn int
	for i := 0; i < r; i++ {
		t, p := yTrue.At(i, 0) >= 0.5, yPred.At(i, 0) >= 0.5
		switch {
		case t && p:
			tp++
		case p:
			fp++
		case t:
			fn++
		}
	}
	return f1(tp, fp, fn)
}

// microF1 pools every cell.
func microF1(yTrue, yPred mat.Matrix) float64 {
	r, c := yTrue.Dims()
	var tp, fp, fn int
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t, p := yTrue.At(i, j) >= 0.5, yPred.At(i, j) >= 0.5
			switch {
			case t && p:
				tp++
			case p:
				fp++
			case t:
				fn++
			}
		}
	}
	return f1(tp, fp, fn)
}

func argmax(m mat.Matrix, i int) int {
	_, c := m.Dims()
	best := 0
	for j := 1; j < c; j++ {
		if m.At(i, j) > m.At(i, best) {
			best = j
		}
	}
	return best
}

// macroF1 averages per-class F1 over the classes seen in labels or
// predictions.
func macroF1(yTrue, yPred mat.Matrix) float64 {
	r, c := yTrue.Dims()
	tp := make([]int, c)
	fp := make([]int, c)
	fn := make([]int, c)
	for i := 0; i < r; i++ {
		t, p := argmax(yTrue, i), argmax(yPred, i)
		if t == p {
			tp[t]++
			continue
		}
		fp[p]++
		fn[t]++
	}
	var sum float64
	var classes int
	for k := 0; k < c; k++ {
		if tp[k]+fp[k]+fn[k] == 0 {
			continue
		}
		sum += f1(tp[k], fp[k], fn[k])
		classes++
	}
	return sum / float64(classes)
}

func meanAbsoluteError(yTrue, yPred mat.Matrix) float64 {
	r, c := yTrue.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum += math.Abs(yTrue.At(i, j) - yPred.At(i, j))
		}
	}
	return sum / float64(r*c)
}
