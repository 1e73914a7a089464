package config

import (
	"github.com/banshee-data/hyperscan/internal/dataset"
	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/linmodel"
	"github.com/banshee-data/hyperscan/internal/scan"
)

// DatasetOptions returns how the data files are read.
func (f *ScanFile) DatasetOptions() dataset.Options {
	opts := dataset.Options{Header: f.Data.Header, Labels: f.Data.Labels, OneHot: f.Data.OneHot}
	if r := []rune(f.Data.Comma); len(r) == 1 {
		opts.Comma = r[0]
	}
	return opts
}

// ToOptions validates the file, loads its data and builds the scan options.
// The built-in linear model trainer is used as the training function.
func (f *ScanFile) ToOptions(fsys fsutil.FileSystem) (scan.Options, error) {
	opts := scan.DefaultOptions()
	if err := f.Validate(); err != nil {
		return opts, err
	}
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}

	var err error
	dopts := f.DatasetOptions()
	if opts.X, opts.Y, err = dataset.Load(fsys, f.Data.Path, dopts); err != nil {
		return opts, err
	}
	if f.Data.Validation != "" {
		if opts.XVal, opts.YVal, err = dataset.Load(fsys, f.Data.Validation, dopts); err != nil {
			return opts, err
		}
	}
	if opts.Params, err = f.Declaration(); err != nil {
		return opts, err
	}
	if opts.BooleanLimit, err = f.Predicate(); err != nil {
		return opts, err
	}
	kind, err := linmodel.ParseKind(f.GetModel())
	if err != nil {
		return opts, err
	}
	opts.Model = linmodel.Trainer(kind)

	opts.ExperimentName = getOr(f.ExperimentName, opts.ExperimentName)
	opts.OutputDir = getOr(f.OutputDir, "")
	opts.ValSplit = getOr(f.ValSplit, opts.ValSplit)
	opts.Shuffle = getOr(f.Shuffle, false)
	opts.FractionLimit = getOr(f.FractionLimit, 0)
	opts.RoundLimit = getOr(f.RoundLimit, 0)
	opts.TimeLimit = getOr(f.TimeLimit, "")
	opts.RandomMethod = f.GetRandomMethod()
	opts.Seed = getOr(f.Seed, 0)
	if r := f.Reduction; r != nil {
		opts.ReductionMethod = r.Method
		opts.ReductionInterval = r.Interval
		opts.ReductionWindow = r.Window
		opts.ReductionThreshold = r.Threshold
		opts.ReductionMetric = r.Metric
		opts.MinimizeLoss = r.Minimize
		opts.ReducerPlugin = r.Plugin
	}
	if t := f.PerformanceTarget; t != nil {
		opts.PerformanceTarget = &scan.Target{Metric: t.Metric, Value: t.Value, Minimize: t.Minimize}
	}
	opts.SaveWeights = getOr(f.SaveWeights, opts.SaveWeights)
	opts.LastEpoch = getOr(f.LastEpoch, false)
	opts.EpochLog = getOr(f.EpochLog, false)
	opts.PrintParams = getOr(f.PrintParams, false)
	opts.DisableProgressBar = getOr(f.DisableProgressBar, false)
	opts.FS = fsys
	return opts, nil
}
