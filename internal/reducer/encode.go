package reducer

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/hyperscan/internal/explog"
	"github.com/banshee-data/hyperscan/internal/paramspace"
)

// dummy is one one-hot column: 1 where the parameter holds Value.
type dummy struct {
	Param  string
	Value  paramspace.Value
	Column []float64
}

// oneHot encodes every parameter column of table. Columns are ordered by
// parameter declaration, then by first appearance of the value.
func oneHot(table *explog.Table) ([]dummy, error) {
	var out []dummy
	for _, name := range table.ParamKeys() {
		values, err := table.ParamColumn(name)
		if err != nil {
			return nil, err
		}
		index := make(map[string]int)
		for i, v := range values {
			j, ok := index[v.Key()]
			if !ok {
				j = len(out)
				index[v.Key()] = j
				out = append(out, dummy{Param: name, Value: v, Column: make([]float64, len(values))})
			}
			out[j].Column[i] = 1
		}
	}
	return out, nil
}

// constant reports whether every element equals the first.
func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

// metricColumn fetches the judged metric and rejects windows that cannot
// support a decision.
func metricColumn(table *explog.Table, metric string) ([]float64, error) {
	if table.Len() < 2 {
		return nil, fmt.Errorf("%w: %d rows in window", ErrSkipped, table.Len())
	}
	y, err := table.Column(metric)
	if err != nil {
		return nil, err
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s has non-finite values", ErrSkipped, metric)
		}
	}
	if constant(y) {
		return nil, fmt.Errorf("%w: %s has no variance", ErrSkipped, metric)
	}
	return y, nil
}

// Ranks returns 1-based ranks of xs with ties given their average rank.
func Ranks(xs []float64) []float64 {
	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return xs[order[a]] < xs[order[b]] })

	ranks := make([]float64, len(xs))
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && xs[order[j+1]] == xs[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// Spearman is the rank correlation of x and y. It is NaN when either side
// has no variance.
func Spearman(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 || constant(x) || constant(y) {
		return math.NaN()
	}
	return stat.Correlation(Ranks(x), Ranks(y), nil)
}
