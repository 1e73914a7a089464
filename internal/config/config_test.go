package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/linmodel"
	pv "github.com/banshee-data/hyperscan/internal/paramspace"
	"github.com/banshee-data/hyperscan/internal/scan"
	"github.com/banshee-data/hyperscan/internal/timeutil"
)

const scanYAML = `
experiment_name: blobs
data:
  path: blobs.csv
  header: true
  labels: [label]
model: logistic
params:
  lr: [0.5, 0.05]
  epochs: {range: [2, 4, 2]}
  l2: 0
  schedule: [Constant, StepDecay]
  note: [null, "x", true]
round_limit: 3
seed: 11
random_method: sobol
reduction:
  method: correlation
  interval: 3
  threshold: 0.3
  metric: val_loss
  minimize: true
performance_target:
  metric: val_acc
  value: 1.01
disable_progress_bar: true
`

func names(decl *pv.Declaration) []string { return decl.Names() }

func valueStrings(decl *pv.Declaration, i int) []string {
	var out []string
	for _, v := range decl.Params()[i].Values {
		out = append(out, v.String())
	}
	return out
}

func TestParse_Declaration(t *testing.T) {
	f, err := Parse([]byte(scanYAML))
	require.NoError(t, err)
	require.NoError(t, f.Validate())

	decl, err := f.Declaration()
	require.NoError(t, err)
	assert.Equal(t, []string{"lr", "epochs", "l2", "schedule", "note"}, names(decl), "file order is kept")
	assert.Equal(t, []string{"0.5", "0.05"}, valueStrings(decl, 0))
	assert.Equal(t, []string{"2", "4"}, valueStrings(decl, 1))
	assert.Equal(t, []string{"0"}, valueStrings(decl, 2))
	assert.Equal(t, []string{"Constant", "StepDecay"}, valueStrings(decl, 3))
	assert.Equal(t, []string{"None", "x", "true"}, valueStrings(decl, 4))

	sched := decl.Params()[3].Values[1]
	assert.Equal(t, pv.KindFunc, sched.Kind())
	assert.Equal(t, 0.05, sched.Fn().(linmodel.Schedule)(0.1, 10))

	epochs := decl.Params()[1].Values[0]
	assert.Equal(t, pv.KindInt, epochs.Kind())
}

func TestParse_JSON(t *testing.T) {
	f, err := Parse([]byte(`{"data": {"path": "d.csv"}, "params": {"b": [1, 2], "a": {"range": [0.0, 1.0, 3]}}}`))
	require.NoError(t, err)
	decl, err := f.Declaration()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, names(decl))
	assert.Equal(t, []string{"0", "0.5", "1"}, valueStrings(decl, 1))
}

func TestValidate(t *testing.T) {
	const (
		data   = "data: {path: d.csv}\n"
		params = "params: {lr: [0.1]}\n"
	)
	tests := []struct {
		name string
		doc  string
	}{
		{"no data path", "data: {path: ''}\n" + params},
		{"unknown model", data + params + "model: svm\n"},
		{"empty params", data + "params: {}\n"},
		{"bad val_split", data + params + "val_split: 1.5\n"},
		{"bad fraction", data + params + "fraction_limit: 0\n"},
		{"negative rounds", data + params + "round_limit: -1\n"},
		{"bad time", data + params + "time_limit: tomorrow\n"},
		{"unknown sampler", data + params + "random_method: dice\n"},
		{"bad threshold", data + params + "reduction: {method: correlation, threshold: 2, metric: val_acc}\n"},
		{"missing reduction metric", data + params + "reduction: {method: forest}\n"},
		{"target without metric", data + params + "performance_target: {value: 1}\n"},
		{"unknown schedule", data + "params: {schedule: [Cosine]}\n"},
		{"bad range", data + "params: {lr: {range: [1, 2]}}\n"},
		{"zero steps", data + "params: {lr: {range: [1, 2, 0]}}\n"},
		{"nested value", data + "params: {lr: [[1]]}\n"},
		{"bad constraint", data + params + "constraints: ['lr ~ 1']\n"},
		{"constraint unknown param", data + params + "constraints: ['depth < 3']\n"},
		{"wide comma", "data: {path: d.csv, comma: ';;'}\n" + params},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.doc))
			require.NoError(t, err)
			assert.ErrorIs(t, f.Validate(), pv.ErrConfig)
		})
	}

	f, err := Parse([]byte(data + params))
	require.NoError(t, err)
	assert.NoError(t, f.Validate())
}

func TestPredicate(t *testing.T) {
	f, err := Parse([]byte("data: {path: d.csv}\nparams: {a: [1, 2, 3], b: [1, 2, 3], c: [p, q]}\nconstraints: ['a<b', \"c != 'q'\"]\n"))
	require.NoError(t, err)
	require.NoError(t, f.Validate())
	keep, err := f.Predicate()
	require.NoError(t, err)

	decl, err := f.Declaration()
	require.NoError(t, err)
	space, err := pv.New(decl, pv.Options{BooleanLimit: keep})
	require.NoError(t, err)
	var got []string
	for cfg, ok := space.Next(); ok; cfg, ok = space.Next() {
		got = append(got, cfg.Format())
	}
	assert.ElementsMatch(t, []string{"a=1 b=2 c=p", "a=1 b=3 c=p", "a=2 b=3 c=p"}, got)

	none := &ScanFile{}
	p, err := none.Predicate()
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestConstraintOperators(t *testing.T) {
	decl := pv.NewDeclaration().Add("n", pv.Values(4)).Add("s", pv.Values("relu"))
	require.NoError(t, decl.Err())
	cfg := pv.NewConfig(decl, []pv.Value{pv.Int(4), pv.String("relu")})
	tests := []struct {
		expr string
		want bool
	}{
		{"n < 5", true},
		{"n <= 4", true},
		{"n > 4", false},
		{"n >= 4.0", true},
		{"n == 4", true},
		{"n != 4", false},
		{"s == relu", true},
		{"s == 'tanh'", false},
		{"s < 3", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := parseConstraint(tt.expr, decl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.holds(cfg))
		})
	}
}

func TestApplyEnv(t *testing.T) {
	f, err := Parse([]byte(scanYAML))
	require.NoError(t, err)
	env := map[string]string{
		"HYPERSCAN_EXPERIMENT_NAME": "override",
		"HYPERSCAN_SEED":            "99",
		"HYPERSCAN_ROUND_LIMIT":     "1",
		"HYPERSCAN_FRACTION_LIMIT":  "0.5",
		"HYPERSCAN_RANDOM_METHOD":   "halton",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	require.NoError(t, f.ApplyEnv(lookup))
	assert.Equal(t, "override", *f.ExperimentName)
	assert.Equal(t, uint64(99), *f.Seed)
	assert.Equal(t, 1, *f.RoundLimit)
	assert.Equal(t, 0.5, *f.FractionLimit)
	assert.Equal(t, "halton", f.GetRandomMethod())

	env = map[string]string{"HYPERSCAN_SEED": "-1"}
	assert.Error(t, f.ApplyEnv(lookup))
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("HYPERSCAN_TEST_PRESET", "keep")
	t.Cleanup(func() { os.Unsetenv("HYPERSCAN_TEST_FROM_FILE") })

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile(".env", []byte("HYPERSCAN_TEST_PRESET=other\nHYPERSCAN_TEST_FROM_FILE=7\n"), 0o644))
	require.NoError(t, LoadEnv(mfs, ".env"))
	assert.Equal(t, "keep", os.Getenv("HYPERSCAN_TEST_PRESET"))
	assert.Equal(t, "7", os.Getenv("HYPERSCAN_TEST_FROM_FILE"))

	assert.NoError(t, LoadEnv(mfs, "missing.env"))
}

func TestLoad(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("exp/scan.yaml", []byte(scanYAML), 0o644))
	f, err := Load(mfs, "exp/scan.yaml")
	require.NoError(t, err)
	assert.Equal(t, "exp/blobs.csv", f.Data.Path, "data paths are relative to the scan file")

	_, err = Load(mfs, "exp/scan.toml")
	assert.Error(t, err)
	require.NoError(t, mfs.WriteFile("big.yaml", []byte(strings.Repeat("#", MaxFileSize+1)), 0o644))
	_, err = Load(mfs, "big.yaml")
	assert.ErrorContains(t, err, "too large")
	require.NoError(t, mfs.WriteFile("bad.yaml", []byte("params: [unclosed"), 0o644))
	_, err = Load(mfs, "bad.yaml")
	assert.Error(t, err)
}

func blobsCSV() string {
	var b strings.Builder
	b.WriteString("x1,x2,label\n")
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			b.WriteString("1,1,1\n")
		} else {
			b.WriteString("-1,-1,0\n")
		}
	}
	return b.String()
}

func TestToOptions_RunsScan(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("exp/scan.yaml", []byte(scanYAML), 0o644))
	require.NoError(t, mfs.WriteFile("exp/blobs.csv", []byte(blobsCSV()), 0o644))

	f, err := Load(mfs, "exp/scan.yaml")
	require.NoError(t, err)
	opts, err := f.ToOptions(mfs)
	require.NoError(t, err)

	assert.Equal(t, "blobs", opts.ExperimentName)
	assert.Equal(t, 3, opts.RoundLimit)
	assert.Equal(t, uint64(11), opts.Seed)
	assert.Equal(t, "sobol", opts.RandomMethod)
	assert.Equal(t, "correlation", opts.ReductionMethod)
	assert.True(t, opts.MinimizeLoss)
	require.NotNil(t, opts.PerformanceTarget)
	assert.Equal(t, 1.01, opts.PerformanceTarget.Value)
	assert.True(t, opts.SaveWeights)
	r, c := opts.X.Dims()
	assert.Equal(t, [2]int{20, 2}, [2]int{r, c})

	opts.Clock = timeutil.NewMockClock(time.Date(2026, 10, 16, 9, 15, 0, 0, time.UTC))
	res, err := scan.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Table.Len())
	assert.Equal(t, []string{"round_epochs", "loss", "acc", "val_loss", "val_acc", "lr", "epochs", "l2", "schedule", "note"}, res.Table.Columns())
}

func TestToOptions_Errors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f, err := Parse([]byte("data: {path: missing.csv}\nparams: {lr: [0.1]}\n"))
	require.NoError(t, err)
	_, err = f.ToOptions(mfs)
	assert.Error(t, err)

	f, err = Parse([]byte("params: {lr: [0.1]}\n"))
	require.NoError(t, err)
	_, err = f.ToOptions(mfs)
	assert.ErrorIs(t, err, pv.ErrConfig)
}
