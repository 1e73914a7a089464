package paramspace

import (
	"strings"
)

// Config is one concrete configuration: a named view over one row of the
// configuration array. Predicates and training functions access values by
// parameter name.
type Config struct {
	decl   *Declaration
	values []Value
}

// NewConfig builds a configuration from values in declaration order.
func NewConfig(decl *Declaration, values []Value) Config {
	return Config{decl: decl, values: values}
}

// Len is the number of parameters.
func (c Config) Len() int { return len(c.values) }

// Names returns the parameter names in declaration order.
func (c Config) Names() []string {
	if c.decl == nil {
		return nil
	}
	return c.decl.Names()
}

// Values returns a copy of the values in declaration order.
func (c Config) Values() []Value { return append([]Value(nil), c.values...) }

// At returns the value in column i.
func (c Config) At(i int) Value { return c.values[i] }

// Get returns the value of name.
func (c Config) Get(name string) (Value, bool) {
	if c.decl == nil {
		return None(), false
	}
	i, ok := c.decl.Index(name)
	if !ok {
		return None(), false
	}
	return c.values[i], true
}

// Value returns the value of name, or None when name is not declared.
func (c Config) Value(name string) Value {
	v, _ := c.Get(name)
	return v
}

// Float returns name as a float, or 0 when it is not numeric.
func (c Config) Float(name string) float64 {
	f, _ := c.Value(name).Float()
	return f
}

// Int returns name as an int, or 0 when it is not numeric.
func (c Config) Int(name string) int {
	i, _ := c.Value(name).Int()
	return i
}

// String returns name as text: the string payload, the callable name, or the
// formatted number.
func (c Config) String(name string) string {
	return c.Value(name).String()
}

// Bool returns name as a boolean, or false when it is not a Bool.
func (c Config) Bool(name string) bool {
	b, _ := c.Value(name).Bool()
	return b
}

// Func returns the callable held by name.
func (c Config) Func(name string) any {
	return c.Value(name).Fn()
}

// Map returns the configuration keyed by name.
func (c Config) Map() map[string]Value {
	out := make(map[string]Value, len(c.values))
	for i, name := range c.Names() {
		out[name] = c.values[i]
	}
	return out
}

// Format renders "name=value" pairs in declaration order.
func (c Config) Format() string {
	names := c.Names()
	parts := make([]string, len(c.values))
	for i, v := range c.values {
		parts[i] = names[i] + "=" + v.String()
	}
	return strings.Join(parts, " ")
}
