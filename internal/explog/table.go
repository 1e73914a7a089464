package explog

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/banshee-data/hyperscan/internal/paramspace"
)

// EpochsColumn is the first column of every results table.
const EpochsColumn = "round_epochs"

// Row is one completed round as it appears in the results table.
type Row struct {
	Epochs  int
	Metrics []float64          // aligned with the metric keys of the header
	Params  []paramspace.Value // aligned with the parameter keys of the header
	Start   time.Time
	End     time.Time
}

// Duration is the wall time spent in the training function.
func (r Row) Duration() time.Duration { return r.End.Sub(r.Start) }

// Table is an immutable-shape view of the results: round_epochs, the metric
// columns, the parameter columns, then any columns added after the scan.
type Table struct {
	metricKeys []string
	paramKeys  []string
	rows       []Row

	extraKeys []string
	extra     map[string][]float64
}

// NewTable builds a table from rows. Rows are copied.
func NewTable(metricKeys, paramKeys []string, rows []Row) *Table {
	return &Table{
		metricKeys: append([]string(nil), metricKeys...),
		paramKeys:  append([]string(nil), paramKeys...),
		rows:       append([]Row(nil), rows...),
		extra:      make(map[string][]float64),
	}
}

// Len is the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// MetricKeys returns the metric column names.
func (t *Table) MetricKeys() []string { return append([]string(nil), t.metricKeys...) }

// ParamKeys returns the parameter column names.
func (t *Table) ParamKeys() []string { return append([]string(nil), t.paramKeys...) }

// Columns returns every column name in order.
func (t *Table) Columns() []string {
	cols := make([]string, 0, 1+len(t.metricKeys)+len(t.paramKeys)+len(t.extraKeys))
	cols = append(cols, EpochsColumn)
	cols = append(cols, t.metricKeys...)
	cols = append(cols, t.paramKeys...)
	return append(cols, t.extraKeys...)
}

// Row returns data row i.
func (t *Table) Row(i int) Row { return t.rows[i] }

// Rows returns a copy of the data rows.
func (t *Table) Rows() []Row { return append([]Row(nil), t.rows...) }

// Tail returns a table holding only the last n rows.
func (t *Table) Tail(n int) *Table {
	if n <= 0 || n > len(t.rows) {
		n = len(t.rows)
	}
	return NewTable(t.metricKeys, t.paramKeys, t.rows[len(t.rows)-n:])
}

func indexOf(keys []string, name string) int {
	for i, k := range keys {
		if k == name {
			return i
		}
	}
	return -1
}

// HasMetric reports whether name is a metric column.
func (t *Table) HasMetric(name string) bool { return indexOf(t.metricKeys, name) >= 0 }

// Column returns a numeric column: round_epochs, a metric, an added column or
// a parameter whose values are all numeric.
func (t *Table) Column(name string) ([]float64, error) {
	out := make([]float64, len(t.rows))
	switch {
	case name == EpochsColumn:
		for i, r := range t.rows {
			out[i] = float64(r.Epochs)
		}
		return out, nil
	case indexOf(t.metricKeys, name) >= 0:
		j := indexOf(t.metricKeys, name)
		for i, r := range t.rows {
			out[i] = r.Metrics[j]
		}
		return out, nil
	case t.extra[name] != nil:
		return append(out[:0], t.extra[name]...), nil
	case indexOf(t.paramKeys, name) >= 0:
		j := indexOf(t.paramKeys, name)
		for i, r := range t.rows {
			f, ok := r.Params[j].Float()
			if !ok || !r.Params[j].IsNumeric() {
				return nil, fmt.Errorf("column %q row %d is not numeric: %v", name, i, r.Params[j])
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown column %q", name)
}

// ParamColumn returns the values of one parameter column.
func (t *Table) ParamColumn(name string) ([]paramspace.Value, error) {
	j := indexOf(t.paramKeys, name)
	if j < 0 {
		return nil, fmt.Errorf("unknown parameter column %q", name)
	}
	out := make([]paramspace.Value, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Params[j]
	}
	return out, nil
}

// AddColumn appends a numeric column. Existing columns cannot be replaced
// except ones previously added with AddColumn.
func (t *Table) AddColumn(name string, values []float64) error {
	if len(values) != len(t.rows) {
		return fmt.Errorf("column %q has %d values for %d rows", name, len(values), len(t.rows))
	}
	if name == EpochsColumn || indexOf(t.metricKeys, name) >= 0 || indexOf(t.paramKeys, name) >= 0 {
		return fmt.Errorf("column %q already exists", name)
	}
	if _, ok := t.extra[name]; !ok {
		t.extraKeys = append(t.extraKeys, name)
	}
	t.extra[name] = append([]float64(nil), values...)
	return nil
}

// Order returns row indices sorted by column. Ties keep row order and NaN
// values sort last in either direction.
func (t *Table) Order(column string, ascending bool) ([]int, error) {
	vals, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := vals[order[a]], vals[order[b]]
		switch {
		case math.IsNaN(x):
			return false
		case math.IsNaN(y):
			return true
		case ascending:
			return x < y
		default:
			return x > y
		}
	})
	return order, nil
}

// Best returns the index of the best row under column and direction.
func (t *Table) Best(column string, ascending bool) (int, error) {
	if len(t.rows) == 0 {
		return 0, fmt.Errorf("results table is empty")
	}
	order, err := t.Order(column, ascending)
	if err != nil {
		return 0, err
	}
	return order[0], nil
}

// FormatFloat renders a metric the way the results CSV stores it.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Records renders the header and every data row as strings.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.rows)+1)
	out = append(out, t.Columns())
	for i, r := range t.rows {
		rec := make([]string, 0, len(out[0]))
		rec = append(rec, strconv.Itoa(r.Epochs))
		for _, m := range r.Metrics {
			rec = append(rec, FormatFloat(m))
		}
		for _, p := range r.Params {
			rec = append(rec, p.String())
		}
		for _, k := range t.extraKeys {
			rec = append(rec, FormatFloat(t.extra[k][i]))
		}
		out = append(out, rec)
	}
	return out
}

// WriteCSV writes the header and all rows.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write results csv: %w", err)
	}
	return nil
}

// Sheet is a results CSV read back from disk: the header and raw cells.
type Sheet struct {
	Header []string
	Rows   [][]string
}

// ReadCSV parses a results CSV.
func ReadCSV(r io.Reader) (*Sheet, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read results csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read results csv: missing header")
	}
	return &Sheet{Header: records[0], Rows: records[1:]}, nil
}

// Column returns the cells of one column.
func (s *Sheet) Column(name string) ([]string, error) {
	j := indexOf(s.Header, name)
	if j < 0 {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	out := make([]string, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = r[j]
	}
	return out, nil
}
