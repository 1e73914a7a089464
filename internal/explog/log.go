// Package explog keeps the append-only results log of a scan and persists
// it after every round. The on-disk CSV always equals the in-memory table up
// to the most recently flushed round.
package explog

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/monitoring"
)

var logf = monitoring.Scoped("explog")

// ErrNoHeader reports an Append before Header.
var ErrNoHeader = errors.New("results log header not written")

// Log accumulates round rows and rewrites its CSV on Flush.
type Log struct {
	fs   fsutil.FileSystem
	path string

	metricKeys []string
	paramKeys  []string
	header     bool
	rows       []Row
}

// New returns an empty log persisted at path. A nil fs uses the OS.
func New(fs fsutil.FileSystem, path string) *Log {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Log{fs: fs, path: path}
}

// Path is the CSV location.
func (l *Log) Path() string { return l.path }

// Len is the number of rows appended.
func (l *Log) Len() int { return len(l.rows) }

// HasHeader reports whether Header has been called.
func (l *Log) HasHeader() bool { return l.header }

// MetricKeys returns the metric columns fixed by Header.
func (l *Log) MetricKeys() []string { return append([]string(nil), l.metricKeys...) }

// Header fixes the column order. It may be called again only with the same
// columns.
func (l *Log) Header(metricKeys, paramKeys []string) error {
	if l.header {
		if !slices.Equal(l.metricKeys, metricKeys) || !slices.Equal(l.paramKeys, paramKeys) {
			return fmt.Errorf("results header already set to %v %v", l.metricKeys, l.paramKeys)
		}
		return nil
	}
	if len(metricKeys) == 0 {
		return fmt.Errorf("results header needs at least one metric")
	}
	seen := map[string]bool{EpochsColumn: true}
	for _, k := range append(slices.Clone(metricKeys), paramKeys...) {
		if seen[k] {
			return fmt.Errorf("duplicate results column %q", k)
		}
		seen[k] = true
	}
	l.metricKeys = slices.Clone(metricKeys)
	l.paramKeys = slices.Clone(paramKeys)
	l.header = true
	return nil
}

// Append adds one row. Its metric and parameter counts must match the header.
func (l *Log) Append(row Row) error {
	if !l.header {
		return ErrNoHeader
	}
	if len(row.Metrics) != len(l.metricKeys) {
		return fmt.Errorf("row has %d metrics, header has %d", len(row.Metrics), len(l.metricKeys))
	}
	if len(row.Params) != len(l.paramKeys) {
		return fmt.Errorf("row has %d parameters, header has %d", len(row.Params), len(l.paramKeys))
	}
	row.Metrics = slices.Clone(row.Metrics)
	row.Params = slices.Clone(row.Params)
	l.rows = append(l.rows, row)
	return nil
}

// Table materializes the rows appended so far.
func (l *Log) Table() *Table {
	return NewTable(l.metricKeys, l.paramKeys, l.rows)
}

// Flush rewrites the whole CSV atomically. It is a no-op before Header.
func (l *Log) Flush() error {
	if !l.header {
		return nil
	}
	var buf bytes.Buffer
	if err := l.Table().WriteCSV(&buf); err != nil {
		return err
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := l.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create results directory: %w", err)
		}
	}
	if err := l.fs.WriteFileAtomic(l.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("flush results to %s: %w", l.path, err)
	}
	logf("flushed %d rows to %s", len(l.rows), l.path)
	return nil
}
