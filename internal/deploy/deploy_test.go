package deploy

import (
	"archive/zip"
	"bytes"
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/linmodel"
	pv "github.com/banshee-data/hyperscan/internal/paramspace"
	"github.com/banshee-data/hyperscan/internal/scan"
	"github.com/banshee-data/hyperscan/internal/testutil"
	"github.com/banshee-data/hyperscan/internal/timeutil"
)

var accByLR = map[float64]float64{0.1: 0.6, 0.2: 0.9, 0.3: 0.7, 0.4: 0.8}

// scored returns a linear model whose single weight is the configured
// round's val_acc, so the restored weight identifies the round.
func scored(_ context.Context, _ scan.Data, cfg pv.Config) (*scan.History, scan.Artifact, error) {
	acc := accByLR[cfg.Float("lr")]
	m := linmodel.New(linmodel.Linear, 2, 1)
	m.W.Set(0, 0, acc)
	m.B.Set(0, 0, -acc)
	return scan.NewHistory().Add("val_acc", acc/2, acc), m, nil
}

func runScan(t *testing.T, mfs *fsutil.MemoryFileSystem, model scan.Model, decl *pv.Declaration) *scan.Result {
	t.Helper()
	require.NoError(t, decl.Err())
	x, y := testutil.Blobs(150)
	opts := scan.DefaultOptions()
	opts.X, opts.Y = x, y
	opts.Params = decl
	opts.Model = model
	opts.ExperimentName = "blobs"
	opts.DisableProgressBar = true
	opts.FS = mfs
	opts.Clock = timeutil.NewMockClock(time.Date(2026, 10, 16, 9, 15, 0, 0, time.UTC))
	res, err := scan.Run(context.Background(), opts)
	require.NoError(t, err)
	return res
}

func TestDeployRestore_BestModel(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	decl := pv.NewDeclaration().Add("lr", pv.Values(0.1, 0.2, 0.3, 0.4))
	res := runScan(t, mfs, scored, decl)

	archive, err := Deploy(res, Options{Name: "best model", Metric: "val_acc", Dir: "out", FS: mfs})
	require.NoError(t, err)
	assert.Equal(t, "out/best_model.zip", archive)
	assert.False(t, mfs.Exists("out/best_model"), "working directory removed")

	raw, err := mfs.ReadFile(archive)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"best_model/best_model_model.json",
		"best_model/best_model_model.h5",
		"best_model/best_model_details.txt",
		"best_model/best_model_x.csv",
		"best_model/best_model_y.csv",
		"best_model/best_model_results.csv",
		"best_model/best_model_params.npy",
		"best_model/README.txt",
	}, names)

	pkg, err := Restore(archive, Options{FS: mfs, Loader: linmodel.LoadArtifact})
	require.NoError(t, err)
	assert.Equal(t, "best_model", pkg.Name)
	assert.True(t, decl.Equal(pkg.Params))

	m, ok := pkg.Model.(*linmodel.Model)
	require.True(t, ok)
	assert.Equal(t, 0.9, m.W.At(0, 0), "restored the val_acc=0.9 round")

	best, err := res.BestModel("val_acc", false)
	require.NoError(t, err)
	want, err := best.Predict(pkg.X)
	require.NoError(t, err)
	got, err := pkg.Model.Predict(pkg.X)
	require.NoError(t, err)
	testutil.AssertDenseEqual(t, want, got, 0)

	xr, xc := pkg.X.Dims()
	assert.Equal(t, [2]int{SampleRows, 2}, [2]int{xr, xc})
	yr, _ := pkg.Y.Dims()
	assert.Equal(t, SampleRows, yr)
	testutil.AssertDenseEqual(t, res.X.Slice(0, SampleRows, 0, 2), pkg.X, 0)

	assert.Equal(t, res.Table.Columns(), pkg.Results.Header)
	assert.Len(t, pkg.Results.Rows, 4)

	round, ok := pkg.Detail("best_round")
	require.True(t, ok)
	bestIdx, err := res.Best("val_acc", false)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(bestIdx), round)
	name, _ := pkg.Detail("experiment_name")
	assert.Equal(t, "blobs", name)
	assert.Contains(t, pkg.README, "lr = 0.2")
	assert.Contains(t, pkg.README, "hyperscan restore best_model.zip")
}

func TestDeployRestore_TrainedModel(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	inverse, err := linmodel.ScheduleValue("InverseTime")
	require.NoError(t, err)
	decl := pv.NewDeclaration().
		Add("lr", pv.Values(0.05, 0.5)).
		Add("epochs", pv.Values(5)).
		Add("schedule", pv.Values(inverse, linmodel.Constant))
	res := runScan(t, mfs, linmodel.Trainer(linmodel.Logistic), decl)

	archive, err := Deploy(res, Options{Name: "blobs", Metric: "val_loss", Ascending: true, FS: mfs})
	require.NoError(t, err)
	pkg, err := Restore(archive, Options{FS: mfs, Loader: linmodel.LoadArtifact})
	require.NoError(t, err)
	assert.True(t, decl.Equal(pkg.Params), "schedules survive by name")

	best, err := res.BestModel("val_loss", true)
	require.NoError(t, err)
	want, err := best.Predict(pkg.X)
	require.NoError(t, err)
	got, err := pkg.Model.Predict(pkg.X)
	require.NoError(t, err)
	testutil.AssertDenseEqual(t, want, got, 0)
}

func TestRestore_WithoutLoader(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	res := runScan(t, mfs, scored, pv.NewDeclaration().Add("lr", pv.Values(0.1, 0.2)))
	archive, err := Deploy(res, Options{Name: "raw", Metric: "val_acc", FS: mfs})
	require.NoError(t, err)

	pkg, err := Restore(archive, Options{FS: mfs})
	require.NoError(t, err)
	assert.Nil(t, pkg.Model)
	assert.JSONEq(t, `{"kind":"linear","inputs":2,"outputs":1}`, string(pkg.ModelJSON))
	assert.NotEmpty(t, pkg.Weights)
}

func TestDeploy_NameOfExistingDirectory(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	res := runScan(t, mfs, scored, pv.NewDeclaration().Add("lr", pv.Values(0.1, 0.2)))
	require.NoError(t, mfs.WriteFile("out/blobs/run.csv", []byte("kept"), 0o644))
	require.NoError(t, mfs.MkdirAll("out/blobs", 0o755))

	archive, err := Deploy(res, Options{Name: "blobs", Metric: "val_acc", Dir: "out", FS: mfs})
	require.NoError(t, err)
	assert.Equal(t, "out/blobs.zip", archive)

	names, err := mfs.ReadDir("out")
	require.NoError(t, err)
	assert.Equal(t, []string{"blobs", "blobs.zip"}, names, "staging directory removed")
	kept, err := mfs.ReadFile("out/blobs/run.csv")
	require.NoError(t, err)
	assert.Equal(t, "kept", string(kept))

	pkg, err := Restore(archive, Options{FS: mfs})
	require.NoError(t, err)
	assert.Equal(t, "blobs", pkg.Name)
}

func TestDeploy_Errors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	res := runScan(t, mfs, scored, pv.NewDeclaration().Add("lr", pv.Values(0.1, 0.2)))

	_, err := Deploy(res, Options{Metric: "val_acc", FS: mfs})
	assert.ErrorIs(t, err, scan.ErrConfig)
	_, err = Deploy(res, Options{Name: "x", FS: mfs})
	assert.ErrorIs(t, err, scan.ErrConfig)
	_, err = Deploy(res, Options{Name: "x", Metric: "nope", FS: mfs})
	assert.Error(t, err)

	_, err = Deploy(res, Options{Name: "dup", Metric: "val_acc", FS: mfs})
	require.NoError(t, err)
	_, err = Deploy(res, Options{Name: "dup", Metric: "val_acc", FS: mfs})
	assert.ErrorIs(t, err, ErrExists)

	stripped := *res
	stripped.Rounds = make([]scan.Round, len(res.Rounds))
	for i, r := range res.Rounds {
		stripped.Rounds[i] = scan.Round{Index: r.Index, Config: r.Config, Row: r.Row}
	}
	_, err = Deploy(&stripped, Options{Name: "none", Metric: "val_acc", FS: mfs})
	assert.ErrorIs(t, err, scan.ErrNoArtifact)
}

func TestDeploy_RetainedBytesOnly(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	res := runScan(t, mfs, scored, pv.NewDeclaration().Add("lr", pv.Values(0.3, 0.4)))
	for i := range res.Rounds {
		res.Rounds[i].Artifact = nil
	}
	archive, err := Deploy(res, Options{Name: "bytes", Metric: "val_acc", FS: mfs})
	require.NoError(t, err)
	pkg, err := Restore(archive, Options{FS: mfs, Loader: linmodel.LoadArtifact})
	require.NoError(t, err)
	assert.Equal(t, 0.8, pkg.Model.(*linmodel.Model).W.At(0, 0))
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRestore_RejectsBadArchives(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"path traversal", map[string]string{"../evil.txt": "x"}},
		{"absolute", map[string]string{"/etc/passwd": "x"}},
		{"top-level file", map[string]string{"loose.txt": "x"}},
		{"nested", map[string]string{"a/b/c.txt": "x"}},
		{"two packages", map[string]string{"a/a_model.json": "{}", "b/b_model.json": "{}"}},
		{"missing files", map[string]string{"a/a_model.json": "{}"}},
		{"empty", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mfs := fsutil.NewMemoryFileSystem()
			require.NoError(t, mfs.WriteFile("bad.zip", zipOf(t, tt.files), 0o644))
			_, err := Restore("bad.zip", Options{FS: mfs})
			assert.ErrorIs(t, err, ErrArchive)
		})
	}

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("text.zip", []byte("not a zip"), 0o644))
	_, err := Restore("text.zip", Options{FS: mfs})
	assert.ErrorIs(t, err, ErrArchive)
	_, err = Restore("missing.zip", Options{FS: mfs})
	assert.Error(t, err)
}
