package explog

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/banshee-data/hyperscan/internal/fsutil"
	pv "github.com/banshee-data/hyperscan/internal/paramspace"
)

func row(epochs int, metrics []float64, params ...pv.Value) Row {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	return Row{Epochs: epochs, Metrics: metrics, Params: params, Start: start, End: start.Add(time.Second)}
}

func TestLog_FlushMatchesTable(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	l := New(mfs, "exp/101526091500.csv")

	require.NoError(t, l.Flush(), "flush before header is a no-op")
	assert.False(t, mfs.Exists("exp/101526091500.csv"))

	require.NoError(t, l.Header([]string{"val_acc", "val_loss"}, []string{"lr", "bs"}))
	rows := []Row{
		row(3, []float64{0.7, 0.25}, pv.Float(0.1), pv.Int(8)),
		row(2, []float64{0.5, math.NaN()}, pv.Float(0.2), pv.Int(16)),
	}
	for i, r := range rows {
		require.NoError(t, l.Append(r))
		require.NoError(t, l.Flush())

		data, err := mfs.ReadFile(l.Path())
		require.NoError(t, err)
		sheet, err := ReadCSV(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Len(t, sheet.Rows, i+1, "disk rows equal in-memory rows after flush")
		assert.Equal(t, []string{"round_epochs", "val_acc", "val_loss", "lr", "bs"}, sheet.Header)
	}

	data, err := mfs.ReadFile(l.Path())
	require.NoError(t, err)
	want := "round_epochs,val_acc,val_loss,lr,bs\n3,0.7,0.25,0.1,8\n2,0.5,NaN,0.2,16\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, mfs.Writes["exp/101526091500.csv"])
	assert.True(t, mfs.Exists("exp"))
}

func TestLog_HeaderRules(t *testing.T) {
	l := New(fsutil.NewMemoryFileSystem(), "r.csv")
	assert.True(t, errors.Is(l.Append(row(1, []float64{1})), ErrNoHeader))

	assert.Error(t, l.Header(nil, []string{"a"}), "no metrics")
	assert.Error(t, l.Header([]string{"a"}, []string{"a"}), "duplicate column")
	assert.Error(t, l.Header([]string{"round_epochs"}, nil), "reserved column")

	require.NoError(t, l.Header([]string{"loss"}, []string{"a"}))
	require.NoError(t, l.Header([]string{"loss"}, []string{"a"}), "same header again is fine")
	assert.Error(t, l.Header([]string{"acc"}, []string{"a"}), "column order is fixed")

	assert.Error(t, l.Append(row(1, []float64{1, 2}, pv.Int(1))), "metric count")
	assert.Error(t, l.Append(row(1, []float64{1})), "param count")
	assert.NoError(t, l.Append(row(1, []float64{1}, pv.Int(1))))
}

func TestLog_OSFileSystem(t *testing.T) {
	dir := t.TempDir()
	l := New(nil, filepath.Join(dir, "exp", "run.csv"))
	require.NoError(t, l.Header([]string{"loss"}, []string{"opt"}))
	require.NoError(t, l.Append(row(1, []float64{0.5}, pv.String("adam"))))
	require.NoError(t, l.Flush())

	data, err := fsutil.OSFileSystem{}.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Equal(t, "round_epochs,loss,opt\n1,0.5,adam\n", string(data))
}

func TestLog_AppendCopiesSlices(t *testing.T) {
	l := New(fsutil.NewMemoryFileSystem(), "r.csv")
	require.NoError(t, l.Header([]string{"loss"}, []string{"a"}))
	metrics := []float64{1}
	require.NoError(t, l.Append(row(1, metrics, pv.Int(1))))
	metrics[0] = 99
	got, err := l.Table().Column("loss")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, got)
}

func TestEpochLogger(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	e := NewEpochLogger(mfs, "exp/run.log")
	e.SetRound(2)
	require.NoError(t, e.Log(0, map[string]float64{"loss": 0.9}))
	require.NoError(t, e.Log(1, map[string]float64{"loss": 0.4, "acc": 0.8}))

	data, err := mfs.ReadFile("exp/run.log")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry EpochEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, EpochEntry{Round: 2, Epoch: 1, Metrics: map[string]float64{"loss": 0.4, "acc": 0.8}}, entry)

	var nilLogger *EpochLogger
	assert.NoError(t, nilLogger.Log(0, nil))
}

func TestEpochLogger_NonFinite(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	e := NewEpochLogger(mfs, "exp/diverged.log")
	require.NoError(t, e.Log(0, map[string]float64{"loss": math.Inf(1), "acc": math.NaN(), "val_loss": math.Inf(-1)}))

	data, err := mfs.ReadFile("exp/diverged.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"loss":"+Inf"`)
	assert.Contains(t, string(data), `"val_loss":"-Inf"`)

	var entry EpochEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.True(t, math.IsInf(entry.Metrics["loss"], 1))
	assert.True(t, math.IsInf(entry.Metrics["val_loss"], -1))
	assert.True(t, math.IsNaN(entry.Metrics["acc"]))

	assert.Error(t, json.Unmarshal([]byte(`{"round":0,"epoch":0,"metrics":{"loss":"fast"}}`), &entry))
}

func TestWriteXLSX(t *testing.T) {
	tbl := NewTable([]string{"val_acc"}, []string{"opt", "lr"}, []Row{
		row(2, []float64{0.9}, pv.String("A"), pv.Float(0.1)),
		row(2, []float64{math.NaN()}, pv.String("B"), pv.Float(0.2)),
	})
	require.NoError(t, tbl.AddColumn("eval_f1_mean", []float64{0.8, math.NaN()}))

	data, err := tbl.WriteXLSX()
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	want := [][]string{
		{"round_epochs", "val_acc", "opt", "lr", "eval_f1_mean"},
		{"2", "0.9", "A", "0.1", "0.8"},
		{"2", "NaN", "B", "0.2", "NaN"},
	}
	assert.Equal(t, want, rows)
}
