// Package config loads scan files: the YAML or JSON description of one
// experiment that the hyperscan CLI runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/linmodel"
	"github.com/banshee-data/hyperscan/internal/paramspace"
	"github.com/banshee-data/hyperscan/internal/reducer"
	"github.com/banshee-data/hyperscan/internal/sampler"
	"github.com/banshee-data/hyperscan/internal/timeutil"
)

// MaxFileSize bounds scan files.
const MaxFileSize = 1 << 20

// EnvPrefix prefixes the environment overrides.
const EnvPrefix = "HYPERSCAN_"

// Data locates the training and optional validation CSV files.
type Data struct {
	Path       string   `yaml:"path" json:"path"`
	Validation string   `yaml:"validation,omitempty" json:"validation,omitempty"`
	Header     bool     `yaml:"header" json:"header"`
	Labels     []string `yaml:"labels,omitempty" json:"labels,omitempty"`
	OneHot     bool     `yaml:"one_hot,omitempty" json:"one_hot,omitempty"`
	Comma      string   `yaml:"comma,omitempty" json:"comma,omitempty"`
}

// Reduction configures the online reducer.
type Reduction struct {
	Method    string  `yaml:"method" json:"method"`
	Interval  int     `yaml:"interval" json:"interval"`
	Window    int     `yaml:"window" json:"window"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Metric    string  `yaml:"metric" json:"metric"`
	Minimize  bool    `yaml:"minimize" json:"minimize"`
	// Plugin is a Go plugin for the local method.
	Plugin string `yaml:"plugin,omitempty" json:"plugin,omitempty"`
}

// Target stops the scan once a metric reaches Value.
type Target struct {
	Metric   string  `yaml:"metric" json:"metric"`
	Value    float64 `yaml:"value" json:"value"`
	Minimize bool    `yaml:"minimize" json:"minimize"`
}

// ScanFile is the root of a scan file. Optional settings are pointers so
// that unset fields fall back to the library defaults.
type ScanFile struct {
	ExperimentName *string `yaml:"experiment_name" json:"experiment_name"`
	OutputDir      *string `yaml:"output_dir" json:"output_dir"`

	Data  Data   `yaml:"data" json:"data"`
	Model string `yaml:"model" json:"model"`
	// Params is an ordered mapping, decoded by Declaration.
	Params yaml.Node `yaml:"params" json:"-"`

	ValSplit *float64 `yaml:"val_split" json:"val_split"`
	Shuffle  *bool    `yaml:"shuffle" json:"shuffle"`

	FractionLimit *float64 `yaml:"fraction_limit" json:"fraction_limit"`
	RoundLimit    *int     `yaml:"round_limit" json:"round_limit"`
	TimeLimit     *string  `yaml:"time_limit" json:"time_limit"`
	// Constraints are "param op value" predicates that every configuration
	// must satisfy, for example "batch_size <= 64".
	Constraints []string `yaml:"constraints" json:"constraints"`

	RandomMethod *string `yaml:"random_method" json:"random_method"`
	Seed         *uint64 `yaml:"seed" json:"seed"`

	Reduction         *Reduction `yaml:"reduction" json:"reduction"`
	PerformanceTarget *Target    `yaml:"performance_target" json:"performance_target"`

	SaveWeights        *bool `yaml:"save_weights" json:"save_weights"`
	LastEpoch          *bool `yaml:"last_epoch" json:"last_epoch"`
	EpochLog           *bool `yaml:"epoch_log" json:"epoch_log"`
	PrintParams        *bool `yaml:"print_params" json:"print_params"`
	DisableProgressBar *bool `yaml:"disable_progress_bar" json:"disable_progress_bar"`
}

// Load reads and validates a scan file. Relative data paths are resolved
// against the file's directory.
func Load(fsys fsutil.FileSystem, path string) (*ScanFile, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	clean := filepath.Clean(path)
	switch ext := filepath.Ext(clean); ext {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("scan file must be .yaml, .yml or .json, got %q", ext)
	}
	data, err := fsys.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("scan file too large: %d bytes (max %d)", len(data), MaxFileSize)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", clean, err)
	}
	f.resolve(filepath.Dir(clean))
	return f, nil
}

// Parse decodes a scan file. JSON is accepted as YAML.
func Parse(data []byte) (*ScanFile, error) {
	var f ScanFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scan file: %w", err)
	}
	return &f, nil
}

func (f *ScanFile) resolve(dir string) {
	for _, p := range []*string{&f.Data.Path, &f.Data.Validation} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// LoadEnv reads a .env file into the process environment without replacing
// variables that are already set. A missing file is not an error.
func LoadEnv(fsys fsutil.FileSystem, path string) error {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if !fsys.Exists(path) {
		return nil
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return err
	}
	env, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range env {
		if _, ok := os.LookupEnv(k); !ok {
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyEnv overrides settings from HYPERSCAN_* variables found by lookup,
// typically os.LookupEnv.
func (f *ScanFile) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst **string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = &v
		}
	}
	str("EXPERIMENT_NAME", &f.ExperimentName)
	str("OUTPUT_DIR", &f.OutputDir)
	str("TIME_LIMIT", &f.TimeLimit)
	str("RANDOM_METHOD", &f.RandomMethod)

	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sSEED: %w", EnvPrefix, err)
		}
		f.Seed = &n
	}
	if v, ok := lookup(EnvPrefix + "ROUND_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sROUND_LIMIT: %w", EnvPrefix, err)
		}
		f.RoundLimit = &n
	}
	if v, ok := lookup(EnvPrefix + "FRACTION_LIMIT"); ok {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sFRACTION_LIMIT: %w", EnvPrefix, err)
		}
		f.FractionLimit = &x
	}
	if v, ok := lookup(EnvPrefix + "DISABLE_PROGRESS_BAR"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDISABLE_PROGRESS_BAR: %w", EnvPrefix, err)
		}
		f.DisableProgressBar = &b
	}
	return nil
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", paramspace.ErrConfig, fmt.Sprintf(format, args...))
}

// Validate checks the settings that can be judged without loading data.
func (f *ScanFile) Validate() error {
	if f.Data.Path == "" {
		return configErr("data.path is required")
	}
	if len([]rune(f.Data.Comma)) > 1 {
		return configErr("data.comma must be a single character, got %q", f.Data.Comma)
	}
	if _, err := linmodel.ParseKind(f.GetModel()); err != nil {
		return configErr("model: %v", err)
	}
	if f.Params.Kind != yaml.MappingNode || len(f.Params.Content) == 0 {
		return configErr("params must be a non-empty mapping")
	}
	if f.ValSplit != nil && (*f.ValSplit <= 0 || *f.ValSplit >= 1) {
		return configErr("val_split must be in (0,1), got %v", *f.ValSplit)
	}
	if f.FractionLimit != nil && (*f.FractionLimit <= 0 || *f.FractionLimit > 1) {
		return configErr("fraction_limit must be in (0,1], got %v", *f.FractionLimit)
	}
	if f.RoundLimit != nil && *f.RoundLimit < 0 {
		return configErr("round_limit must be non-negative, got %d", *f.RoundLimit)
	}
	if f.TimeLimit != nil {
		if _, err := timeutil.ParseDeadline(*f.TimeLimit, nil); err != nil {
			return configErr("%v", err)
		}
	}
	if _, err := sampler.New(f.GetRandomMethod(), 0); err != nil {
		return configErr("random_method: %v", err)
	}
	if r := f.Reduction; r != nil && r.Method != "" {
		cfg := reducer.Config{Method: r.Method, Interval: r.Interval, Window: r.Window, Threshold: r.Threshold, Metric: r.Metric, Minimize: r.Minimize}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if t := f.PerformanceTarget; t != nil && t.Metric == "" {
		return configErr("performance_target.metric is required")
	}
	if _, err := f.Declaration(); err != nil {
		return err
	}
	if _, err := f.Predicate(); err != nil {
		return err
	}
	return nil
}

// GetModel returns the model kind, default logistic.
func (f *ScanFile) GetModel() string {
	if f.Model == "" {
		return string(linmodel.Logistic)
	}
	return strings.ToLower(f.Model)
}

// GetRandomMethod returns the sampler name or the default.
func (f *ScanFile) GetRandomMethod() string {
	if f.RandomMethod == nil || *f.RandomMethod == "" {
		return sampler.DefaultMethod
	}
	return *f.RandomMethod
}

func getOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
