// Package deploy packages the best model of a finished scan into a ZIP
// archive and restores such archives.
package deploy

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/hyperscan/internal/dataset"
	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/monitoring"
	"github.com/banshee-data/hyperscan/internal/scan"
	"github.com/banshee-data/hyperscan/internal/security"
	"github.com/banshee-data/hyperscan/internal/version"
)

var logf = monitoring.Scoped("deploy")

// SampleRows is the number of x and y rows shipped with a package.
const SampleRows = 100

// ErrExists is returned when the package archive is already present.
var ErrExists = errors.New("deploy package already exists")

// Loader rebuilds an artifact from its model description and weights.
type Loader func(model, weights []byte) (scan.Artifact, error)

// Options configures Deploy and Restore.
type Options struct {
	// Name is the package name; it is sanitized for use as a file name.
	Name string
	// Metric and Ascending select the best round.
	Metric    string
	Ascending bool
	// Dir receives the archive; default ".".
	Dir string
	FS  fsutil.FileSystem
	// Loader restores the artifact; without it Restore leaves Model nil.
	Loader Loader
}

func (o Options) fs() fsutil.FileSystem {
	if o.FS == nil {
		return fsutil.OSFileSystem{}
	}
	return o.FS
}

// Package file suffixes, in archive order.
const (
	fileModel   = "_model.json"
	fileWeights = "_model.h5"
	fileDetails = "_details.txt"
	fileX       = "_x.csv"
	fileY       = "_y.csv"
	fileResults = "_results.csv"
	fileParams  = "_params.npy"
	fileReadme  = "README.txt"
)

type entry struct {
	name string
	data []byte
}

// Deploy writes the package for the best round of res under metric and
// returns the archive path.
func Deploy(res *scan.Result, opts Options) (string, error) {
	if opts.Name == "" {
		return "", fmt.Errorf("%w: deploy needs a package name", scan.ErrConfig)
	}
	if opts.Metric == "" {
		return "", fmt.Errorf("%w: deploy needs a metric", scan.ErrConfig)
	}
	name := security.SanitizeFilename(opts.Name)
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	fsys := opts.fs()
	archive := filepath.Join(dir, name+".zip")
	if fsys.Exists(archive) {
		return "", fmt.Errorf("%w: %s", ErrExists, archive)
	}

	best, err := res.Best(opts.Metric, opts.Ascending)
	if err != nil {
		return "", fmt.Errorf("select best round: %w", err)
	}
	round := res.Rounds[best]
	model, weights, err := payload(round)
	if err != nil {
		return "", fmt.Errorf("round %d: %w", best, err)
	}

	entries, err := build(res, opts, name, best, model, weights)
	if err != nil {
		return "", err
	}

	// Staged apart from <dir>/<name>, which may be the experiment's own
	// output directory.
	work := filepath.Join(dir, "."+name+"-"+uuid.NewString())
	if err := fsys.MkdirAll(work, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", work, err)
	}
	defer func() {
		if err := fsys.RemoveAll(work); err != nil {
			logf("remove %s: %v", work, err)
		}
	}()
	for _, e := range entries {
		if err := fsys.WriteFile(filepath.Join(work, e.name), e.data, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", e.name, err)
		}
	}

	zipped, err := zipDir(fsys, work, name, entries, res.Details.Stop)
	if err != nil {
		return "", err
	}
	if err := fsys.WriteFileAtomic(archive, zipped, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", archive, err)
	}
	logf("packaged round %d (%s) as %s", best, round.Config.Format(), archive)
	return archive, nil
}

// payload prefers the live artifact and falls back to the retained bytes.
func payload(round scan.Round) (model, weights []byte, err error) {
	if round.Artifact != nil {
		if model, err = round.Artifact.MarshalModel(); err != nil {
			return nil, nil, fmt.Errorf("serialize model: %w", err)
		}
		if weights, err = round.Artifact.MarshalWeights(); err != nil {
			return nil, nil, fmt.Errorf("serialize weights: %w", err)
		}
		return model, weights, nil
	}
	if round.Model == nil {
		return nil, nil, scan.ErrNoArtifact
	}
	return round.Model, round.Weights, nil
}

func build(res *scan.Result, opts Options, name string, best int, model, weights []byte) ([]entry, error) {
	details, err := detailsCSV(res.Details, opts, best)
	if err != nil {
		return nil, err
	}
	var x, y, results bytes.Buffer
	if err := dataset.WriteCSV(&x, res.X, SampleRows); err != nil {
		return nil, fmt.Errorf("write x sample: %w", err)
	}
	if err := dataset.WriteCSV(&y, res.Y, SampleRows); err != nil {
		return nil, fmt.Errorf("write y sample: %w", err)
	}
	if err := res.Table.WriteCSV(&results); err != nil {
		return nil, err
	}
	params, err := json.MarshalIndent(res.Params, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	readme, err := renderReadme(res, opts, name, best)
	if err != nil {
		return nil, err
	}
	return []entry{
		{name + fileModel, model},
		{name + fileWeights, weights},
		{name + fileDetails, details},
		{name + fileX, x.Bytes()},
		{name + fileY, y.Bytes()},
		{name + fileResults, results.Bytes()},
		{name + fileParams, params},
		{fileReadme, readme},
	}, nil
}

func detailsCSV(d scan.Details, opts Options, best int) ([]byte, error) {
	records := append(d.Records(),
		[]string{"deploy_metric", opts.Metric},
		[]string{"deploy_ascending", strconv.FormatBool(opts.Ascending)},
		[]string{"best_round", strconv.Itoa(best)},
		[]string{"hyperscan_version", version.Version},
	)
	var buf bytes.Buffer
	if err := csv.NewWriter(&buf).WriteAll(records); err != nil {
		return nil, fmt.Errorf("write details: %w", err)
	}
	return buf.Bytes(), nil
}

// zipDir reads the written files back and archives them under name/.
func zipDir(fsys fsutil.FileSystem, work, name string, entries []entry, modified time.Time) ([]byte, error) {
	if modified.IsZero() {
		modified = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	staged, err := fsys.ReadDir(work)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", work, err)
	}
	if len(staged) != len(entries) {
		return nil, fmt.Errorf("%s holds %d files, want %d", work, len(staged), len(entries))
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		data, err := fsys.ReadFile(filepath.Join(work, e.name))
		if err != nil {
			return nil, fmt.Errorf("read back %s: %w", e.name, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     path.Join(name, e.name),
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", e.name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("zip %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

var readmeTemplate = template.Must(template.New("readme").Parse(`{{.Name}}
{{.Rule}}

Deploy package created by hyperscan {{.Version}} from experiment
{{.Experiment}} ({{.ID}}), {{.Complete}} rounds.

The model is round {{.Round}}, the best by {{.Metric}} ({{if .Ascending}}lower{{else}}higher{{end}} is better).
{{range .Params}}
  {{.Name}} = {{.Value}}{{end}}

Files
  {{.Name}}_model.json    model description
  {{.Name}}_model.h5      model weights
  {{.Name}}_details.txt   experiment details
  {{.Name}}_x.csv         first {{.Sample}} input rows
  {{.Name}}_y.csv         first {{.Sample}} label rows
  {{.Name}}_results.csv   full results table
  {{.Name}}_params.npy    parameter declaration (JSON)

Restore with:

  hyperscan restore {{.Name}}.zip
`))

type readmeParam struct{ Name, Value string }

func renderReadme(res *scan.Result, opts Options, name string, best int) ([]byte, error) {
	cfg := res.Rounds[best].Config
	params := make([]readmeParam, 0, cfg.Len())
	for i, n := range cfg.Names() {
		params = append(params, readmeParam{n, cfg.At(i).String()})
	}
	rule := make([]byte, len(name))
	for i := range rule {
		rule[i] = '='
	}
	var buf bytes.Buffer
	err := readmeTemplate.Execute(&buf, map[string]any{
		"Name":       name,
		"Rule":       string(rule),
		"Version":    version.Version,
		"Experiment": res.Details.ExperimentName,
		"ID":         res.Details.ID,
		"Complete":   res.Details.Complete,
		"Round":      best,
		"Metric":     opts.Metric,
		"Ascending":  opts.Ascending,
		"Params":     params,
		"Sample":     SampleRows,
	})
	if err != nil {
		return nil, fmt.Errorf("render readme: %w", err)
	}
	return buf.Bytes(), nil
}
