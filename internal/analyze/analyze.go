// Package analyze reports on a finished experiment: extremes of a metric,
// the best parameter rows and how each parameter correlates with a metric.
// It works on the results CSV, so it can inspect scans from earlier runs.
package analyze

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"

	"github.com/banshee-data/hyperscan/internal/explog"
	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/reducer"
)

// ErrNoRounds is returned by reports on an empty results table.
var ErrNoRounds = errors.New("no rounds in results")

// Report wraps a results table.
type Report struct {
	sheet *explog.Sheet
}

// New reports on an in-memory table.
func New(t *explog.Table) *Report {
	rec := t.Records()
	return &Report{sheet: &explog.Sheet{Header: rec[0], Rows: rec[1:]}}
}

// FromSheet reports on a parsed results CSV.
func FromSheet(s *explog.Sheet) *Report { return &Report{sheet: s} }

// Load reads a results CSV written by a scan.
func Load(fsys fsutil.FileSystem, path string) (*Report, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	s, err := explog.ReadCSV(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return FromSheet(s), nil
}

// Columns returns the header.
func (r *Report) Columns() []string { return append([]string(nil), r.sheet.Header...) }

// Rounds is the number of data rows.
func (r *Report) Rounds() int { return len(r.sheet.Rows) }

// numeric parses column name. Cells that do not parse become NaN; ok is
// false when no cell parses.
func (r *Report) numeric(name string) (vals []float64, ok bool, err error) {
	cells, err := r.sheet.Column(name)
	if err != nil {
		return nil, false, err
	}
	vals = make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = v
		ok = true
	}
	return vals, ok, nil
}

func (r *Report) metric(name string) ([]float64, error) {
	if r.Rounds() == 0 {
		return nil, ErrNoRounds
	}
	vals, ok, err := r.numeric(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("column %q is not numeric", name)
	}
	return vals, nil
}

// extreme returns the index of the first largest (or smallest) value,
// ignoring NaN.
func extreme(vals []float64, largest bool) int {
	best := -1
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || (largest && v > vals[best]) || (!largest && v < vals[best]) {
			best = i
		}
	}
	return best
}

// High is the largest value of metric.
func (r *Report) High(metric string) (float64, error) {
	vals, err := r.metric(metric)
	if err != nil {
		return 0, err
	}
	return vals[extreme(vals, true)], nil
}

// Low is the smallest value of metric.
func (r *Report) Low(metric string) (float64, error) {
	vals, err := r.metric(metric)
	if err != nil {
		return 0, err
	}
	return vals[extreme(vals, false)], nil
}

// RoundsToHigh is the 0-based round at which metric first reached its
// highest value.
func (r *Report) RoundsToHigh(metric string) (int, error) {
	vals, err := r.metric(metric)
	if err != nil {
		return 0, err
	}
	return extreme(vals, true), nil
}

// Summary describes the distribution of a metric.
type Summary struct {
	Count        int
	Mean         float64
	Std          float64
	Median       float64
	Min          float64
	Max          float64
	Percentile25 float64
	Percentile75 float64
}

// Describe summarizes metric, skipping rows where it is not a number.
func (r *Report) Describe(metric string) (Summary, error) {
	vals, err := r.metric(metric)
	if err != nil {
		return Summary{}, err
	}
	data := make(stats.Float64Data, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			data = append(data, v)
		}
	}
	s := Summary{Count: len(data)}
	steps := []struct {
		dst *float64
		fn  func() (float64, error)
	}{
		{&s.Mean, data.Mean},
		{&s.Std, data.StandardDeviation},
		{&s.Median, data.Median},
		{&s.Min, data.Min},
		{&s.Max, data.Max},
		{&s.Percentile25, func() (float64, error) { return data.PercentileNearestRank(25) }},
		{&s.Percentile75, func() (float64, error) { return data.PercentileNearestRank(75) }},
	}
	for _, st := range steps {
		v, err := st.fn()
		if err != nil {
			return Summary{}, fmt.Errorf("describe %s: %w", metric, err)
		}
		*st.dst = v
	}
	return s, nil
}

func (r *Report) excluded(metric string, exclude []string) map[string]bool {
	skip := map[string]bool{metric: true, explog.EpochsColumn: true}
	for _, e := range exclude {
		skip[e] = true
	}
	return skip
}

// BestParams returns the n best rows by metric, best first, restricted to
// the columns not named in exclude. The metric and round_epochs columns are
// always left out. n <= 0 returns every row.
func (r *Report) BestParams(metric string, exclude []string, n int, ascending bool) (*explog.Sheet, error) {
	vals, err := r.metric(metric)
	if err != nil {
		return nil, err
	}
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := vals[order[a]], vals[order[b]]
		if math.IsNaN(vb) {
			return !math.IsNaN(va)
		}
		if math.IsNaN(va) {
			return false
		}
		if ascending {
			return va < vb
		}
		return va > vb
	})
	if n > 0 && n < len(order) {
		order = order[:n]
	}

	skip := r.excluded(metric, exclude)
	var keep []int
	out := &explog.Sheet{}
	for j, name := range r.sheet.Header {
		if !skip[name] {
			keep = append(keep, j)
			out.Header = append(out.Header, name)
		}
	}
	for _, i := range order {
		row := make([]string, len(keep))
		for k, j := range keep {
			row[k] = r.sheet.Rows[i][j]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// Correlation is the Spearman rank correlation of one column with a metric.
type Correlation struct {
	Column string
	Rho    float64
}

// Correlate returns the Spearman correlation of every numeric column with
// metric, in header order. Columns that are not numeric or have no variance
// are left out.
func (r *Report) Correlate(metric string, exclude []string) ([]Correlation, error) {
	y, err := r.metric(metric)
	if err != nil {
		return nil, err
	}
	skip := r.excluded(metric, exclude)
	var out []Correlation
	for _, name := range r.sheet.Header {
		if skip[name] {
			continue
		}
		x, ok, err := r.numeric(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var xs, ys []float64
		for i := range x {
			if !math.IsNaN(x[i]) && !math.IsNaN(y[i]) {
				xs = append(xs, x[i])
				ys = append(ys, y[i])
			}
		}
		rho := reducer.Spearman(xs, ys)
		if math.IsNaN(rho) {
			continue
		}
		out = append(out, Correlation{Column: name, Rho: rho})
	}
	return out, nil
}
