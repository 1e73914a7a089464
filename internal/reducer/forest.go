package reducer

import (
	"context"
	"math/rand/v2"

	"gonum.org/v1/gonum/mathext/prng"
	"gonum.org/v1/gonum/stat"
)

// Forest fits a random forest regressor of the metric on the one-hot encoded
// parameters and drops the value with the highest impurity importance whose
// marginal effect on the metric is in the worse direction.
type Forest struct {
	Seed     uint64
	Trees    int // default 64
	MaxDepth int // default 6
	// MaxFeatures is the number of usable features tried at each split;
	// default max(1, features/3).
	MaxFeatures int
}

// Name implements Strategy.
func (f *Forest) Name() string { return "forest" }

// Decide implements Strategy.
func (f *Forest) Decide(_ context.Context, in Input) ([]Decision, error) {
	window := in.Windowed()
	y, err := metricColumn(window, in.Metric)
	if err != nil {
		return nil, err
	}
	dummies, err := oneHot(window)
	if err != nil {
		return nil, err
	}

	x := make([][]float64, len(dummies))
	for j, d := range dummies {
		x[j] = d.Column
	}
	importance := f.importance(x, y)

	best := -1
	bestImp := 0.0
	for j, d := range dummies {
		if constant(d.Column) {
			continue
		}
		effect := marginalEffect(d.Column, y)
		if !in.worse(effect) {
			continue
		}
		if importance[j] > bestImp {
			best, bestImp = j, importance[j]
		}
	}
	if best < 0 || bestImp < in.Threshold {
		return nil, nil
	}
	d := dummies[best]
	return []Decision{{Param: d.Param, Value: d.Value, Score: bestImp, Strategy: f.Name()}}, nil
}

// marginalEffect is mean(y | x=1) - mean(y | x=0).
func marginalEffect(x, y []float64) float64 {
	var on, off float64
	var nOn, nOff int
	for i, v := range x {
		if v == 1 {
			on += y[i]
			nOn++
		} else {
			off += y[i]
			nOff++
		}
	}
	return on/float64(nOn) - off/float64(nOff)
}

// importance returns mean normalized impurity decrease per feature. x is
// column-major: x[feature][row].
func (f *Forest) importance(x [][]float64, y []float64) []float64 {
	trees := f.Trees
	if trees <= 0 {
		trees = 64
	}
	depth := f.MaxDepth
	if depth <= 0 {
		depth = 6
	}
	mtry := f.MaxFeatures
	if mtry <= 0 {
		mtry = max(1, len(x)/3)
	}
	src := prng.NewMT19937()
	src.Seed(f.Seed)
	rng := rand.New(src)

	total := make([]float64, len(x))
	n := len(y)
	for t := 0; t < trees; t++ {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = rng.IntN(n)
		}
		g := grower{x: x, y: y, rng: rng, mtry: mtry, gain: make([]float64, len(x))}
		g.grow(rows, depth)
		gain := g.gain

		var sum float64
		for _, g := range gain {
			sum += g
		}
		if sum == 0 {
			continue
		}
		for j, g := range gain {
			total[j] += g / sum
		}
	}
	for j := range total {
		total[j] /= float64(trees)
	}
	return total
}

type grower struct {
	x    [][]float64
	y    []float64
	rng  *rand.Rand
	mtry int
	gain []float64
}

// grow splits rows greedily on the binary feature with the largest
// reduction in squared error, accumulating that reduction into gain. Each
// node looks at up to mtry features that can split it, in random order.
func (g *grower) grow(rows []int, depth int) {
	if depth == 0 || len(rows) < 2 {
		return
	}
	parent := sse(g.y, rows)
	if parent == 0 {
		return
	}

	bestFeature := -1
	bestGain := 0.0
	var bestLeft, bestRight []int
	tried := 0
	for _, j := range g.rng.Perm(len(g.x)) {
		if tried == g.mtry {
			break
		}
		var left, right []int
		for _, r := range rows {
			if g.x[j][r] == 1 {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		tried++
		if gain := parent - sse(g.y, left) - sse(g.y, right); gain > bestGain {
			bestFeature, bestGain, bestLeft, bestRight = j, gain, left, right
		}
	}
	if bestFeature < 0 {
		return
	}
	g.gain[bestFeature] += bestGain
	g.grow(bestLeft, depth-1)
	g.grow(bestRight, depth-1)
}

// sse is the sum of squared deviations of y over rows.
func sse(y []float64, rows []int) float64 {
	if len(rows) < 2 {
		return 0
	}
	vals := make([]float64, len(rows))
	for i, r := range rows {
		vals[i] = y[r]
	}
	return stat.Variance(vals, nil) * float64(len(vals)-1)
}
