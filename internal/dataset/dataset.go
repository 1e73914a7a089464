// Package dataset reads numeric CSV files into gonum matrices and writes
// matrices back as CSV.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hyperscan/internal/fsutil"
)

// ErrFormat reports a CSV that cannot be read as a numeric matrix.
var ErrFormat = errors.New("bad dataset")

// Options controls how a file is split into features and labels.
type Options struct {
	// Header is true when the first record names the columns.
	Header bool
	// Labels names the label columns. Without a header they are given as
	// 0-based column numbers. Empty means the last column.
	Labels []string
	// OneHot expands a single integer label column into one column per
	// class, for softmax models.
	OneHot bool
	Comma  rune
}

// Frame is a parsed numeric CSV.
type Frame struct {
	Columns []string
	Data    *mat.Dense
}

// ReadCSV parses r. Every cell must be a number.
func ReadCSV(r io.Reader, header bool, comma rune) (*Frame, error) {
	cr := csv.NewReader(r)
	if comma != 0 {
		cr.Comma = comma
	}
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	f := &Frame{}
	if header {
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: missing header", ErrFormat)
		}
		f.Columns = records[0]
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrFormat)
	}
	cols := len(records[0])
	if f.Columns == nil {
		f.Columns = make([]string, cols)
		for j := range f.Columns {
			f.Columns[j] = strconv.Itoa(j)
		}
	}

	data := make([]float64, 0, len(records)*cols)
	for i, rec := range records {
		for j, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %q is not a number", ErrFormat, i+1, f.Columns[j], cell)
			}
			data = append(data, v)
		}
	}
	f.Data = mat.NewDense(len(records), cols, data)
	return f, nil
}

// Split returns the feature and label matrices named by labels.
func (f *Frame) Split(labels []string) (x, y *mat.Dense, err error) {
	rows, cols := f.Data.Dims()
	if len(labels) == 0 {
		labels = []string{f.Columns[cols-1]}
	}
	isLabel := make(map[int]bool, len(labels))
	var yCols []int
	for _, name := range labels {
		j := indexOf(f.Columns, name)
		if j < 0 {
			return nil, nil, fmt.Errorf("%w: unknown label column %q", ErrFormat, name)
		}
		if !isLabel[j] {
			isLabel[j] = true
			yCols = append(yCols, j)
		}
	}
	var xCols []int
	for j := 0; j < cols; j++ {
		if !isLabel[j] {
			xCols = append(xCols, j)
		}
	}
	if len(xCols) == 0 {
		return nil, nil, fmt.Errorf("%w: no feature columns left", ErrFormat)
	}
	return columns(f.Data, rows, xCols), columns(f.Data, rows, yCols), nil
}

func columns(m *mat.Dense, rows int, cols []int) *mat.Dense {
	out := mat.NewDense(rows, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < rows; i++ {
			out.Set(i, k, m.At(i, j))
		}
	}
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// OneHot expands a column of non-negative integer class labels into one
// column per class.
func OneHot(y mat.Matrix) (*mat.Dense, error) {
	rows, cols := y.Dims()
	if cols != 1 {
		return nil, fmt.Errorf("%w: one-hot needs a single label column, got %d", ErrFormat, cols)
	}
	classes := 0
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if v < 0 || v != float64(int(v)) {
			return nil, fmt.Errorf("%w: row %d label %v is not a class index", ErrFormat, i+1, v)
		}
		classes = max(classes, int(v)+1)
	}
	out := mat.NewDense(rows, classes, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, int(y.At(i, 0)), 1)
	}
	return out, nil
}

// Load reads path from fsys and splits it per opts.
func Load(fsys fsutil.FileSystem, path string, opts Options) (x, y *mat.Dense, err error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read dataset: %w", err)
	}
	f, err := ReadCSV(bytes.NewReader(raw), opts.Header, opts.Comma)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	x, y, err = f.Split(opts.Labels)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if opts.OneHot {
		if y, err = OneHot(y); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return x, y, nil
}

// WriteCSV writes up to limit rows of m without a header; limit <= 0 writes
// every row.
func WriteCSV(w io.Writer, m mat.Matrix, limit int) error {
	rows, cols := m.Dims()
	if limit > 0 && limit < rows {
		rows = limit
	}
	cw := csv.NewWriter(w)
	rec := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := range rec {
			rec[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
