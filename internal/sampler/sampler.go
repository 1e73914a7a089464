// Package sampler chooses which configurations of a parameter space are
// materialized. Every strategy returns n distinct indices in [0, population)
// and is deterministic for a given seed.
package sampler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/hyperscan/internal/paramspace"
)

var (
	// ErrBadSample reports a sample size outside [1, population].
	ErrBadSample = errors.New("bad sample size")

	// ErrUnknownMethod reports an unregistered strategy name. It wraps
	// paramspace.ErrConfig.
	ErrUnknownMethod = fmt.Errorf("%w: unknown random method", paramspace.ErrConfig)
)

// DefaultMethod is used when no random method is configured.
const DefaultMethod = "uniform_mersenne"

// Sampler picks n distinct indices in [0, population).
type Sampler interface {
	Sample(n, population int) ([]int, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(n, population int) ([]int, error)

// Sample calls f.
func (f SamplerFunc) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	return f(n, population)
}

func checkSize(n, population int) error {
	if n < 1 {
		return fmt.Errorf("%w: n=%d must be at least 1", ErrBadSample, n)
	}
	if n > population {
		return fmt.Errorf("%w: n=%d exceeds population %d", ErrBadSample, n, population)
	}
	return nil
}

// Definition describes a registered strategy.
type Definition struct {
	Name        string
	Aliases     []string
	Description string
	// New builds a sampler for one scan.
	New func(seed uint64) Sampler
}

// Registry holds sampling strategies by name.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]*Definition
	aliases map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]*Definition),
		aliases: make(map[string]string),
	}
}

// Register adds a strategy, replacing any previous one with the same name.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[def.Name] = def
	for _, a := range def.Aliases {
		r.aliases[a] = def.Name
	}
}

// Get looks a strategy up by name or alias, case-insensitively.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	def, ok := r.methods[name]
	return def, ok
}

// List returns the canonical strategy names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named strategy. An empty name selects DefaultMethod.
func (r *Registry) New(method string, seed uint64) (Sampler, error) {
	if strings.TrimSpace(method) == "" {
		method = DefaultMethod
	}
	def, ok := r.Get(method)
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownMethod, method, strings.Join(r.List(), ", "))
	}
	return def.New(seed), nil
}

// DefaultRegistry returns a registry with every built-in strategy.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(&Definition{
		Name:        "uniform_mersenne",
		Aliases:     []string{"uniform", "mersenne"},
		Description: "Uniform without replacement driven by MT19937.",
		New:         func(seed uint64) Sampler { return UniformMersenne{Seed: seed} },
	})
	reg.Register(&Definition{
		Name:        "uniform_crypto",
		Aliases:     []string{"crypto"},
		Description: "Uniform without replacement driven by a seeded ChaCha8 stream.",
		New:         func(seed uint64) Sampler { return UniformCrypto{Seed: seed} },
	})
	reg.Register(&Definition{
		Name:        "sobol",
		Description: "Digitally shifted van der Corput sequence in Gray-code order.",
		New:         func(seed uint64) Sampler { return Sobol{Seed: seed} },
	})
	reg.Register(&Definition{
		Name:        "halton",
		Description: "Radical inverse in base 3 with a random rotation.",
		New:         func(seed uint64) Sampler { return Halton{Seed: seed} },
	})
	reg.Register(&Definition{
		Name:        "korobov_matrix",
		Aliases:     []string{"korobov"},
		Description: "Shifted rank-1 lattice with a generator coprime to the population.",
		New:         func(seed uint64) Sampler { return Korobov{Seed: seed} },
	})
	reg.Register(&Definition{
		Name:        "latin_matrix",
		Aliases:     []string{"latin"},
		Description: "One-dimensional Latin hypercube.",
		New:         func(seed uint64) Sampler { return LatinMatrix{Seed: seed} },
	})
	reg.Register(&Definition{
		Name:        "latin_improved",
		Description: "Best of several Latin hypercube designs under the maximin criterion.",
		New:         func(seed uint64) Sampler { return LatinImproved{Seed: seed} },
	})
	reg.Register(&Definition{
		Name:        "latin_sudoku",
		Description: "Latin hypercube whose draw order cycles through coarse blocks.",
		New:         func(seed uint64) Sampler { return LatinSudoku{Seed: seed} },
	})
	return reg
}

var defaultRegistry = DefaultRegistry()

// New builds a built-in strategy by name.
func New(method string, seed uint64) (Sampler, error) {
	return defaultRegistry.New(method, seed)
}

// Methods lists the built-in strategy names.
func Methods() []string {
	return defaultRegistry.List()
}

// Fixed returns indices in a predetermined order, skipping entries outside
// the population. It fails when fewer than n usable entries exist.
type Fixed []int

// Sample implements Sampler.
func (f Fixed) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	out := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for _, i := range f {
		if len(out) == n {
			break
		}
		if i < 0 || i >= population || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	if len(out) < n {
		return nil, fmt.Errorf("%w: fixed order has %d usable indices, want %d", ErrBadSample, len(out), n)
	}
	return out, nil
}
