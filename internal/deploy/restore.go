package deploy

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hyperscan/internal/dataset"
	"github.com/banshee-data/hyperscan/internal/explog"
	"github.com/banshee-data/hyperscan/internal/paramspace"
	"github.com/banshee-data/hyperscan/internal/scan"
	"github.com/banshee-data/hyperscan/internal/security"
)

// ErrArchive reports an archive that is not a deploy package.
var ErrArchive = errors.New("invalid deploy archive")

// maxEntrySize bounds each extracted file.
const maxEntrySize = 256 << 20

// Package is a restored deploy archive.
type Package struct {
	Name    string
	Params  *paramspace.Declaration
	Details [][]string
	X, Y    *mat.Dense
	// Model is nil when Restore was called without a Loader.
	Model   scan.Artifact
	Results *explog.Sheet

	ModelJSON []byte
	Weights   []byte
	README    string
}

// Detail looks up one details record.
func (p *Package) Detail(key string) (string, bool) {
	for _, rec := range p.Details {
		if len(rec) == 2 && rec[0] == key {
			return rec[1], true
		}
	}
	return "", false
}

// Restore reads the archive at archivePath into memory.
func Restore(archivePath string, opts Options) (*Package, error) {
	raw, err := opts.fs().ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	name, files, err := extract(zr)
	if err != nil {
		return nil, err
	}

	need := func(suffix string) ([]byte, error) {
		data, ok := files[name+suffix]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s%s", ErrArchive, name, suffix)
		}
		return data, nil
	}
	pkg := &Package{Name: name, README: string(files[fileReadme])}

	if pkg.ModelJSON, err = need(fileModel); err != nil {
		return nil, err
	}
	if pkg.Weights, err = need(fileWeights); err != nil {
		return nil, err
	}

	params, err := need(fileParams)
	if err != nil {
		return nil, err
	}
	pkg.Params = paramspace.NewDeclaration()
	if err := json.Unmarshal(params, pkg.Params); err != nil {
		return nil, fmt.Errorf("%w: params: %w", ErrArchive, err)
	}

	details, err := need(fileDetails)
	if err != nil {
		return nil, err
	}
	if pkg.Details, err = csv.NewReader(bytes.NewReader(details)).ReadAll(); err != nil {
		return nil, fmt.Errorf("%w: details: %w", ErrArchive, err)
	}

	if pkg.X, err = matrix(need(fileX)); err != nil {
		return nil, fmt.Errorf("%w: x sample: %w", ErrArchive, err)
	}
	if pkg.Y, err = matrix(need(fileY)); err != nil {
		return nil, fmt.Errorf("%w: y sample: %w", ErrArchive, err)
	}

	results, err := need(fileResults)
	if err != nil {
		return nil, err
	}
	if pkg.Results, err = explog.ReadCSV(bytes.NewReader(results)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	if opts.Loader != nil {
		if pkg.Model, err = opts.Loader(pkg.ModelJSON, pkg.Weights); err != nil {
			return nil, fmt.Errorf("load model: %w", err)
		}
	}
	return pkg, nil
}

// extract validates every entry and returns the files keyed by base name.
// All files must live directly under one top-level directory.
func extract(zr *zip.Reader) (string, map[string][]byte, error) {
	var name string
	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		clean, err := security.ValidateArchiveEntry(f.Name)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrArchive, err)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		dir, base := path.Split(clean)
		dir = strings.TrimSuffix(dir, "/")
		if dir == "" || strings.Contains(dir, "/") {
			return "", nil, fmt.Errorf("%w: unexpected entry %q", ErrArchive, f.Name)
		}
		if name == "" {
			name = dir
		} else if dir != name {
			return "", nil, fmt.Errorf("%w: entries under both %q and %q", ErrArchive, name, dir)
		}
		if f.UncompressedSize64 > maxEntrySize {
			return "", nil, fmt.Errorf("%w: %s is %d bytes", ErrArchive, clean, f.UncompressedSize64)
		}
		data, err := readEntry(f)
		if err != nil {
			return "", nil, err
		}
		files[base] = data
	}
	if name == "" {
		return "", nil, fmt.Errorf("%w: empty archive", ErrArchive)
	}
	return name, files, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrArchive, f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrArchive, f.Name, err)
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrArchive, f.Name, maxEntrySize)
	}
	return data, nil
}

func matrix(data []byte, err error) (*mat.Dense, error) {
	if err != nil {
		return nil, err
	}
	f, err := dataset.ReadCSV(bytes.NewReader(data), false, 0)
	if err != nil {
		return nil, err
	}
	return f.Data, nil
}
