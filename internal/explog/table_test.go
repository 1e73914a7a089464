package explog

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pv "github.com/banshee-data/hyperscan/internal/paramspace"
)

func sampleTable() *Table {
	return NewTable([]string{"val_acc", "val_loss"}, []string{"opt", "units"}, []Row{
		row(3, []float64{0.6, 0.4}, pv.String("A"), pv.Int(8)),
		row(3, []float64{0.9, 0.1}, pv.String("B"), pv.Int(16)),
		row(2, []float64{0.7, math.NaN()}, pv.String("A"), pv.Int(16)),
		row(4, []float64{0.8, 0.2}, pv.String("B"), pv.Int(8)),
	})
}

func TestTable_Columns(t *testing.T) {
	tbl := sampleTable()
	assert.Equal(t, []string{"round_epochs", "val_acc", "val_loss", "opt", "units"}, tbl.Columns())
	assert.Equal(t, 4, tbl.Len())
	assert.True(t, tbl.HasMetric("val_acc"))
	assert.False(t, tbl.HasMetric("opt"))

	epochs, err := tbl.Column("round_epochs")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 2, 4}, epochs)

	units, err := tbl.Column("units")
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 16, 16, 8}, units)

	_, err = tbl.Column("opt")
	assert.Error(t, err, "string parameter is not numeric")
	_, err = tbl.Column("nope")
	assert.Error(t, err)

	opts, err := tbl.ParamColumn("opt")
	require.NoError(t, err)
	assert.Equal(t, "B", opts[1].String())
}

func TestTable_OrderAndBest(t *testing.T) {
	tbl := sampleTable()
	tests := []struct {
		name      string
		column    string
		ascending bool
		order     []int
	}{
		{"acc descending", "val_acc", false, []int{1, 3, 2, 0}},
		{"acc ascending", "val_acc", true, []int{0, 2, 3, 1}},
		{"loss ascending NaN last", "val_loss", true, []int{1, 3, 0, 2}},
		{"loss descending NaN last", "val_loss", false, []int{0, 3, 1, 2}},
		{"ties keep row order", "units", true, []int{0, 3, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := tbl.Order(tt.column, tt.ascending)
			require.NoError(t, err)
			assert.Equal(t, tt.order, order)

			best, err := tbl.Best(tt.column, tt.ascending)
			require.NoError(t, err)
			assert.Equal(t, tt.order[0], best)
		})
	}

	_, err := NewTable([]string{"a"}, nil, nil).Best("a", true)
	assert.Error(t, err)
}

func TestTable_AddColumn(t *testing.T) {
	tbl := sampleTable()
	require.NoError(t, tbl.AddColumn("eval_mean", []float64{1, 2, 3, 4}))
	require.NoError(t, tbl.AddColumn("eval_mean", []float64{4, 3, 2, 1}), "added columns may be replaced")
	assert.Error(t, tbl.AddColumn("val_acc", []float64{1, 2, 3, 4}))
	assert.Error(t, tbl.AddColumn("short", []float64{1}))

	assert.Equal(t, "eval_mean", tbl.Columns()[5])
	got, err := tbl.Column("eval_mean")
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 3, 2, 1}, got)

	var sb strings.Builder
	require.NoError(t, tbl.WriteCSV(&sb))
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	assert.Equal(t, "round_epochs,val_acc,val_loss,opt,units,eval_mean", lines[0])
	assert.Equal(t, "3,0.6,0.4,A,8,4", lines[1])
}

func TestTable_Tail(t *testing.T) {
	tbl := sampleTable()
	tail := tbl.Tail(2)
	assert.Equal(t, 2, tail.Len())
	acc, err := tail.Column("val_acc")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.7, 0.8}, acc)
	assert.Equal(t, 4, tbl.Tail(10).Len())
	assert.Equal(t, 4, tbl.Tail(0).Len())
}

func TestSheet(t *testing.T) {
	sheet, err := ReadCSV(strings.NewReader("round_epochs,loss,opt\n1,0.5,adam\n2,0.25,sgd\n"))
	require.NoError(t, err)
	col, err := sheet.Column("opt")
	require.NoError(t, err)
	assert.Equal(t, []string{"adam", "sgd"}, col)
	_, err = sheet.Column("lr")
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}
