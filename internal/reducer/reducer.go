// Package reducer prunes the remaining parameter space between rounds. A
// Strategy inspects the results so far and names (parameter, value) pairs
// that correlate with poor outcomes; the Reducer removes every remaining
// configuration containing them.
package reducer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/hyperscan/internal/explog"
	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/monitoring"
	"github.com/banshee-data/hyperscan/internal/paramspace"
)

var logf = monitoring.Scoped("reducer")

// ErrSkipped means the strategy could not reach a decision this interval.
// The Reducer treats it as a no-op; it never reaches the caller.
var ErrSkipped = errors.New("reduction skipped")

// ErrUnknownMethod reports an unregistered strategy. It wraps
// paramspace.ErrConfig.
var ErrUnknownMethod = fmt.Errorf("%w: unknown reduction method", paramspace.ErrConfig)

// Input is what a strategy sees when asked to decide.
type Input struct {
	// Table holds every completed round so far.
	Table *explog.Table
	// Params is the scan's declaration.
	Params *paramspace.Declaration
	// Metric is the column judged.
	Metric string
	// Minimize is true when lower metric values are better.
	Minimize bool
	// Window is the number of trailing rows considered; <= 0 means all.
	Window int
	// Threshold in [0,1] is the minimum strength required to act.
	Threshold float64
	// Round is the number of completed rounds.
	Round int
}

// Windowed returns the trailing Window rows of the table.
func (in Input) Windowed() *explog.Table {
	return in.Table.Tail(in.Window)
}

// worse reports whether a signed association with the metric points toward
// poorer outcomes.
func (in Input) worse(assoc float64) bool {
	if in.Minimize {
		return assoc > 0
	}
	return assoc < 0
}

// Decision names one (parameter, value) pair to remove.
type Decision struct {
	Param    string
	Value    paramspace.Value
	Score    float64
	Strategy string
}

func (d Decision) String() string {
	return fmt.Sprintf("%s=%s (%s %.3f)", d.Param, d.Value, d.Strategy, d.Score)
}

// Strategy decides what to remove. Returning no decisions, or an error
// wrapping ErrSkipped, leaves the space untouched.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, in Input) ([]Decision, error)
}

// RoundObserver is implemented by strategies that need to see every round,
// not only reduction intervals.
type RoundObserver interface {
	ObserveRound(ctx context.Context, in Input) error
}

// Remover is the part of the parameter space a Reducer mutates.
type Remover interface {
	RemoveIs(name string, value any) (int, error)
}

// Config selects and tunes the reduction.
type Config struct {
	Method    string
	Interval  int
	Window    int
	Threshold float64
	Metric    string
	Minimize  bool
}

// Validate checks the settings that do not depend on the results table.
func (c Config) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("%w: reduction_interval %d is negative", paramspace.ErrConfig, c.Interval)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: reduction_threshold %v outside [0,1]", paramspace.ErrConfig, c.Threshold)
	}
	if c.Method != "" && c.Metric == "" {
		return fmt.Errorf("%w: reduction_metric is required with reduction_method %q", paramspace.ErrConfig, c.Method)
	}
	return nil
}

// Outcome reports what one reduction did.
type Outcome struct {
	Decisions []Decision
	Removed   int
}

// Reducer runs a strategy on its interval.
type Reducer struct {
	strategy Strategy
	cfg      Config
}

// New wraps strategy with cfg.
func New(strategy Strategy, cfg Config) *Reducer {
	return &Reducer{strategy: strategy, cfg: cfg}
}

// Strategy returns the wrapped strategy.
func (r *Reducer) Strategy() Strategy { return r.strategy }

// Due reports whether a reduction runs after completed rounds.
func (r *Reducer) Due(completed int) bool {
	return r.cfg.Interval > 0 && completed > 0 && completed%r.cfg.Interval == 0
}

func (r *Reducer) input(table *explog.Table, params *paramspace.Declaration, round int) Input {
	return Input{
		Table:     table,
		Params:    params,
		Metric:    r.cfg.Metric,
		Minimize:  r.cfg.Minimize,
		Window:    r.cfg.Window,
		Threshold: r.cfg.Threshold,
		Round:     round,
	}
}

// Observe forwards a completed round to strategies that implement
// RoundObserver.
func (r *Reducer) Observe(ctx context.Context, table *explog.Table, params *paramspace.Declaration) error {
	obs, ok := r.strategy.(RoundObserver)
	if !ok {
		return nil
	}
	return obs.ObserveRound(ctx, r.input(table, params, table.Len()))
}

// Reduce asks the strategy for decisions and removes them from space.
func (r *Reducer) Reduce(ctx context.Context, table *explog.Table, params *paramspace.Declaration, space Remover) (Outcome, error) {
	in := r.input(table, params, table.Len())
	if !table.HasMetric(in.Metric) {
		return Outcome{}, fmt.Errorf("%w: reduction metric %q not in results %v", paramspace.ErrConfig, in.Metric, table.MetricKeys())
	}

	decisions, err := r.strategy.Decide(ctx, in)
	if errors.Is(err, ErrSkipped) {
		logf("round %d: %s skipped: %v", in.Round, r.strategy.Name(), err)
		return Outcome{}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("%s reducer: %w", r.strategy.Name(), err)
	}

	var out Outcome
	for _, d := range decisions {
		n, err := space.RemoveIs(d.Param, d.Value)
		if err != nil {
			return out, fmt.Errorf("apply %s: %w", d, err)
		}
		logf("round %d: dropped %s, removed %d configurations", in.Round, d, n)
		out.Decisions = append(out.Decisions, d)
		out.Removed += n
	}
	if len(decisions) == 0 {
		logf("round %d: %s found nothing to drop", in.Round, r.strategy.Name())
	}
	return out, nil
}

// Options are handed to strategy factories.
type Options struct {
	Seed uint64
	// Source is the external decision source for the gamify strategy.
	Source DecisionSource
	// FS and Path locate the default gamify decision file.
	FS   fsutil.FileSystem
	Path string
	// Custom is the strategy used by the "local" method.
	Custom Strategy
	// PluginPath is a Go plugin exporting a Reducer symbol, used by "local"
	// when Custom is nil.
	PluginPath string
}

// Factory builds a strategy for one scan.
type Factory func(opts Options) (Strategy, error)

// Registry holds strategy factories by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory), aliases: make(map[string]string)}
}

// Register adds a factory under name and aliases, replacing any previous one.
func (r *Registry) Register(name string, f Factory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	for _, a := range aliases {
		r.aliases[a] = name
	}
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the named strategy.
func (r *Registry) New(method string, opts Options) (Strategy, error) {
	r.mu.RLock()
	name := strings.ToLower(strings.TrimSpace(method))
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownMethod, method, strings.Join(r.List(), ", "))
	}
	return f(opts)
}

// DefaultRegistry returns a registry with the built-in strategies.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register("correlation", func(Options) (Strategy, error) { return Correlation{}, nil }, "spearman", "correlation_spearman")
	reg.Register("forest", func(o Options) (Strategy, error) { return &Forest{Seed: o.Seed}, nil }, "trees", "random_forest")
	reg.Register("gamify", newGamify)
	reg.Register("local", newLocal)
	return reg
}

var registry = DefaultRegistry()

// Register adds a named strategy to the package registry so scans can select
// it by reduction method.
func Register(name string, s Strategy) {
	registry.Register(name, func(Options) (Strategy, error) { return s, nil })
}

// NewStrategy builds a strategy from the package registry.
func NewStrategy(method string, opts Options) (Strategy, error) {
	return registry.New(method, opts)
}

// Methods lists the strategies in the package registry.
func Methods() []string { return registry.List() }
