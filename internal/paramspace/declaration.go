package paramspace

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValueSet is the declared domain of one parameter: either an explicit list
// or a (start, end, steps) range expanded to evenly spaced values.
type ValueSet struct {
	values []Value
	err    error

	isRange bool
	intRng  bool
	start   float64
	end     float64
	steps   int
}

// Values declares a discrete value set. Elements may be any type accepted by
// Of, including nil and named functions.
func Values(xs ...any) ValueSet {
	vs := ValueSet{values: make([]Value, 0, len(xs))}
	for i, x := range xs {
		v, err := Of(x)
		if err != nil {
			vs.err = fmt.Errorf("value[%d]: %w", i, err)
			return vs
		}
		vs.values = append(vs.values, v)
	}
	return vs
}

// IntRange declares steps evenly spaced values from start to end inclusive,
// truncated to integers and deduplicated.
func IntRange(start, end, steps int) ValueSet {
	return ValueSet{isRange: true, intRng: true, start: float64(start), end: float64(end), steps: steps}
}

// FloatRange declares steps evenly spaced values from start to end inclusive.
func FloatRange(start, end float64, steps int) ValueSet {
	return ValueSet{isRange: true, start: start, end: end, steps: steps}
}

// Expand returns the concrete values of the set.
func (s ValueSet) Expand() ([]Value, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.isRange {
		if len(s.values) == 0 {
			return nil, fmt.Errorf("%w: empty value list", ErrConfig)
		}
		return append([]Value(nil), s.values...), nil
	}
	if s.steps <= 0 {
		return nil, fmt.Errorf("%w: steps=%d", ErrBadRange, s.steps)
	}
	if math.IsNaN(s.start) || math.IsNaN(s.end) || math.IsInf(s.start, 0) || math.IsInf(s.end, 0) {
		return nil, fmt.Errorf("%w: non-finite bounds", ErrBadRange)
	}

	points := linspace(s.start, s.end, s.steps)
	out := make([]Value, 0, len(points))
	if !s.intRng {
		for _, p := range points {
			out = append(out, Float(p))
		}
		return out, nil
	}

	seen := make(map[int]bool, len(points))
	for _, p := range points {
		n := int(p)
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, Int(n))
	}
	return out, nil
}

// linspace returns n points from start to end inclusive. The last point is
// pinned to end to avoid accumulated rounding.
func linspace(start, end float64, n int) []float64 {
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = end
	return out
}

// Param is one declared hyperparameter with its expanded values.
type Param struct {
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// Declaration is the ordered hyperparameter dictionary. Declaration order
// fixes the column order of the configuration array and of the results log.
type Declaration struct {
	params []Param
	index  map[string]int
	err    error
}

// NewDeclaration returns an empty declaration.
func NewDeclaration() *Declaration {
	return &Declaration{index: make(map[string]int)}
}

// Add appends a parameter. The first error encountered is kept and reported
// by Err; later calls become no-ops.
func (d *Declaration) Add(name string, set ValueSet) *Declaration {
	if d.err != nil {
		return d
	}
	if name == "" {
		d.err = fmt.Errorf("%w: empty parameter name", ErrConfig)
		return d
	}
	if _, dup := d.index[name]; dup {
		d.err = fmt.Errorf("%w: duplicate parameter %q", ErrConfig, name)
		return d
	}
	values, err := set.Expand()
	if err != nil {
		d.err = fmt.Errorf("parameter %q: %w", name, err)
		return d
	}
	d.index[name] = len(d.params)
	d.params = append(d.params, Param{Name: name, Values: values})
	return d
}

// Err reports the first declaration error, or ErrConfig when no parameter
// was declared.
func (d *Declaration) Err() error {
	if d == nil {
		return fmt.Errorf("%w: nil parameter declaration", ErrConfig)
	}
	if d.err != nil {
		return d.err
	}
	if len(d.params) == 0 {
		return fmt.Errorf("%w: empty parameter declaration", ErrConfig)
	}
	return nil
}

// Len is the number of declared parameters.
func (d *Declaration) Len() int { return len(d.params) }

// Names returns parameter names in declaration order.
func (d *Declaration) Names() []string {
	names := make([]string, len(d.params))
	for i, p := range d.params {
		names[i] = p.Name
	}
	return names
}

// Params returns a copy of the declared parameters.
func (d *Declaration) Params() []Param {
	out := make([]Param, len(d.params))
	for i, p := range d.params {
		out[i] = Param{Name: p.Name, Values: append([]Value(nil), p.Values...)}
	}
	return out
}

// Index returns the column of name.
func (d *Declaration) Index(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Dims returns the number of values of each parameter.
func (d *Declaration) Dims() []int {
	dims := make([]int, len(d.params))
	for i, p := range d.params {
		dims[i] = len(p.Values)
	}
	return dims
}

// Total is the size of the Cartesian product of all value sets.
func (d *Declaration) Total() (int, error) {
	total := 1
	for _, p := range d.params {
		n := len(p.Values)
		if n == 0 {
			return 0, nil
		}
		if total > math.MaxInt/n {
			return 0, fmt.Errorf("%w: parameter space exceeds %d configurations", ErrConfig, math.MaxInt)
		}
		total *= n
	}
	return total, nil
}

// Equal reports whether both declarations have the same names and values in
// the same order.
func (d *Declaration) Equal(o *Declaration) bool {
	if d.Len() != o.Len() {
		return false
	}
	for i, p := range d.params {
		q := o.params[i]
		if p.Name != q.Name || len(p.Values) != len(q.Values) {
			return false
		}
		for j := range p.Values {
			if p.Values[j].Kind() != q.Values[j].Kind() || !p.Values[j].Equal(q.Values[j]) {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the declaration as an ordered list of parameters.
func (d *Declaration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.params)
}

// UnmarshalJSON restores a declaration written by MarshalJSON.
func (d *Declaration) UnmarshalJSON(data []byte) error {
	var params []Param
	if err := json.Unmarshal(data, &params); err != nil {
		return err
	}
	fresh := NewDeclaration()
	for _, p := range params {
		vals := make([]any, len(p.Values))
		for i, v := range p.Values {
			vals[i] = v
		}
		fresh.Add(p.Name, Values(vals...))
	}
	if err := fresh.Err(); err != nil {
		return err
	}
	*d = *fresh
	return nil
}
