package reducer

import (
	"context"
	"math"
)

// Correlation drops the value whose one-hot column has the strongest Spearman
// correlation with the metric in the worse direction. Ties go to the column
// encoded first.
type Correlation struct{}

// Name implements Strategy.
func (Correlation) Name() string { return "correlation" }

// Decide implements Strategy.
func (c Correlation) Decide(_ context.Context, in Input) ([]Decision, error) {
	window := in.Windowed()
	y, err := metricColumn(window, in.Metric)
	if err != nil {
		return nil, err
	}
	dummies, err := oneHot(window)
	if err != nil {
		return nil, err
	}

	best := -1
	bestAbs := 0.0
	bestRho := 0.0
	for i, d := range dummies {
		if constant(d.Column) {
			continue
		}
		rho := Spearman(d.Column, y)
		if math.IsNaN(rho) || !in.worse(rho) {
			continue
		}
		if a := math.Abs(rho); a > bestAbs {
			best, bestAbs, bestRho = i, a, rho
		}
	}
	if best < 0 || bestAbs < in.Threshold {
		return nil, nil
	}
	d := dummies[best]
	return []Decision{{Param: d.Param, Value: d.Value, Score: bestRho, Strategy: c.Name()}}, nil
}
