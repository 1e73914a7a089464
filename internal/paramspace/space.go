// Package paramspace materializes a declared hyperparameter space into a
// sampled configuration array and hands configurations out round by round.
// Reducers shrink the remaining index through the Remove* operations.
package paramspace

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/combin"

	"github.com/banshee-data/hyperscan/internal/monitoring"
	"github.com/banshee-data/hyperscan/internal/timeutil"
)

var logf = monitoring.Scoped("paramspace")

// Sampler picks n distinct indices in [0, population).
type Sampler interface {
	Sample(n, population int) ([]int, error)
}

// Options are the limits applied while materializing the space. Zero values
// mean "unset".
type Options struct {
	// FractionLimit keeps floor(total*FractionLimit) configurations.
	FractionLimit float64
	// RoundLimit caps the number of configurations.
	RoundLimit int
	// Deadline stops Next from handing out configurations once passed.
	Deadline time.Time
	// BooleanLimit keeps only configurations for which it returns true.
	BooleanLimit func(Config) bool
	// Sampler chooses which indices of the full product are materialized.
	// A nil Sampler takes the first n indices in enumeration order.
	Sampler Sampler
	// Clock is used for the deadline. Defaults to the real clock.
	Clock timeutil.Clock
}

// Space is the materialized configuration array plus the remaining index.
// The array is never mutated after New; only the remaining index shrinks.
type Space struct {
	decl      *Declaration
	rows      [][]int // value offsets per parameter
	remaining []int
	round     int
	total     int
	deadline  time.Time
	clock     timeutil.Clock
}

// New validates decl and opts and materializes the configuration array.
func New(decl *Declaration, opts Options) (*Space, error) {
	if err := decl.Err(); err != nil {
		return nil, err
	}
	if opts.FractionLimit < 0 || opts.FractionLimit > 1 || math.IsNaN(opts.FractionLimit) {
		return nil, fmt.Errorf("%w: fraction_limit %v outside (0,1]", ErrConfig, opts.FractionLimit)
	}
	if opts.RoundLimit < 0 {
		return nil, fmt.Errorf("%w: round_limit %d is negative", ErrConfig, opts.RoundLimit)
	}

	total, err := decl.Total()
	if err != nil {
		return nil, err
	}
	want := EffectiveSize(total, opts.FractionLimit, opts.RoundLimit)
	if want < 1 {
		return nil, fmt.Errorf("%w: limits leave %d of %d configurations", ErrEmptySpace, want, total)
	}

	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Space{
		decl:     decl,
		total:    total,
		deadline: opts.Deadline,
		clock:    clock,
	}

	rows, err := s.materialize(want, opts.Sampler, opts.BooleanLimit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: boolean limit rejected all %d configurations", ErrEmptySpace, total)
	}
	s.rows = rows
	s.remaining = make([]int, len(rows))
	for i := range s.remaining {
		s.remaining[i] = i
	}
	logf("materialized %d of %d configurations", len(rows), total)
	return s, nil
}

// EffectiveSize is the minimum of the limits that are set, and total when
// none is.
func EffectiveSize(total int, fraction float64, roundLimit int) int {
	n := total
	if fraction > 0 {
		n = min(n, int(math.Floor(float64(total)*fraction)))
	}
	if roundLimit > 0 {
		n = min(n, roundLimit)
	}
	return n
}

// materialize samples want indices and decodes them into rows. With a
// boolean limit the sample doubles until enough rows survive or the full
// population has been drawn.
func (s *Space) materialize(want int, sampler Sampler, keep func(Config) bool) ([][]int, error) {
	dims := s.decl.Dims()
	n := want
	for {
		idx, err := sampleIndices(sampler, n, s.total)
		if err != nil {
			return nil, err
		}

		rows := make([][]int, 0, len(idx))
		for _, linear := range idx {
			row := combin.SubFor(nil, linear, dims)
			if keep != nil && !keep(s.config(row)) {
				continue
			}
			rows = append(rows, row)
		}

		if keep == nil || len(rows) >= want || n >= s.total {
			if len(rows) > want {
				rows = rows[:want]
			}
			if keep != nil {
				logf("boolean limit kept %d of %d sampled configurations", len(rows), n)
			}
			return rows, nil
		}
		n = min(2*n, s.total)
	}
}

func sampleIndices(sampler Sampler, n, population int) ([]int, error) {
	if sampler == nil {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	idx, err := sampler.Sample(n, population)
	if err != nil {
		return nil, err
	}
	if len(idx) != n {
		return nil, fmt.Errorf("sampler returned %d indices, want %d", len(idx), n)
	}
	seen := make(map[int]bool, n)
	for _, i := range idx {
		if i < 0 || i >= population || seen[i] {
			return nil, fmt.Errorf("sampler returned invalid or repeated index %d for population %d", i, population)
		}
		seen[i] = true
	}
	return idx, nil
}

func (s *Space) config(row []int) Config {
	values := make([]Value, len(row))
	for i, off := range row {
		values[i] = s.decl.params[i].Values[off]
	}
	return Config{decl: s.decl, values: values}
}

// Declaration returns the declaration the space was built from.
func (s *Space) Declaration() *Declaration { return s.decl }

// Total is the size of the full Cartesian product.
func (s *Space) Total() int { return s.total }

// Len is the number of materialized configurations.
func (s *Space) Len() int { return len(s.rows) }

// Row returns materialized configuration i.
func (s *Space) Row(i int) Config { return s.config(s.rows[i]) }

// Remaining returns a copy of the remaining index.
func (s *Space) Remaining() []int { return append([]int(nil), s.remaining...) }

// RemainingLen is the number of configurations not yet handed out.
func (s *Space) RemainingLen() int { return len(s.remaining) }

// Round is the number of configurations handed out by Next.
func (s *Space) Round() int { return s.round }

// Exhausted reports whether Next would return false.
func (s *Space) Exhausted() bool {
	return len(s.remaining) == 0 || timeutil.Expired(s.clock, s.deadline)
}

// Next pops the front of the remaining index. It returns false when nothing
// remains or the deadline has passed.
func (s *Space) Next() (Config, bool) {
	if s.Exhausted() {
		return Config{}, false
	}
	i := s.remaining[0]
	s.remaining = s.remaining[1:]
	s.round++
	return s.config(s.rows[i]), true
}

// RemoveFunc drops every remaining configuration for which drop returns true
// and reports how many were dropped.
func (s *Space) RemoveFunc(drop func(Config) bool) int {
	kept := s.remaining[:0:0]
	for _, i := range s.remaining {
		if !drop(s.config(s.rows[i])) {
			kept = append(kept, i)
		}
	}
	removed := len(s.remaining) - len(kept)
	s.remaining = kept
	return removed
}

func (s *Space) column(name string) (int, error) {
	col, ok := s.decl.Index(name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown parameter %q", ErrConfig, name)
	}
	return col, nil
}

func (s *Space) removeWhere(name string, value any, drop func(have, want Value) bool) (int, error) {
	col, err := s.column(name)
	if err != nil {
		return 0, err
	}
	want, err := Of(value)
	if err != nil {
		return 0, err
	}
	return s.RemoveFunc(func(c Config) bool { return drop(c.At(col), want) }), nil
}

// RemoveIs drops configurations whose name equals value.
func (s *Space) RemoveIs(name string, value any) (int, error) {
	return s.removeWhere(name, value, func(have, want Value) bool { return have.Equal(want) })
}

// RemoveIsNot drops configurations whose name differs from value.
func (s *Space) RemoveIsNot(name string, value any) (int, error) {
	return s.removeWhere(name, value, func(have, want Value) bool { return !have.Equal(want) })
}

// RemoveGE drops configurations whose numeric name is >= value. Non-numeric
// entries are kept.
func (s *Space) RemoveGE(name string, value any) (int, error) {
	return s.removeWhere(name, value, func(have, want Value) bool {
		c, ok := have.Compare(want)
		return ok && c >= 0
	})
}

// RemoveLE drops configurations whose numeric name is <= value. Non-numeric
// entries are kept.
func (s *Space) RemoveLE(name string, value any) (int, error) {
	return s.removeWhere(name, value, func(have, want Value) bool {
		c, ok := have.Compare(want)
		return ok && c <= 0
	})
}
