package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/hyperscan/internal/linmodel"
	"github.com/banshee-data/hyperscan/internal/paramspace"
)

// Declaration decodes params in file order. Each entry is a list of
// values, a single value, or a mapping {range: [start, end, steps]}. The
// values of a parameter named "schedule" are learning rate schedule names.
func (f *ScanFile) Declaration() (*paramspace.Declaration, error) {
	if f.Params.Kind != yaml.MappingNode {
		return nil, configErr("params must be a mapping")
	}
	decl := paramspace.NewDeclaration()
	content := f.Params.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value
		set, err := valueSet(name, content[i+1])
		if err != nil {
			return nil, fmt.Errorf("params.%s (line %d): %w", name, content[i].Line, err)
		}
		decl.Add(name, set)
	}
	if err := decl.Err(); err != nil {
		return nil, err
	}
	return decl, nil
}

func valueSet(name string, n *yaml.Node) (paramspace.ValueSet, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		vals := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := scalar(name, item)
			if err != nil {
				return paramspace.ValueSet{}, err
			}
			vals = append(vals, v)
		}
		return paramspace.Values(vals...), nil
	case yaml.MappingNode:
		if len(n.Content) != 2 || n.Content[0].Value != "range" {
			return paramspace.ValueSet{}, configErr("mapping must be {range: [start, end, steps]}")
		}
		return rangeSet(n.Content[1])
	case yaml.ScalarNode:
		v, err := scalar(name, n)
		if err != nil {
			return paramspace.ValueSet{}, err
		}
		return paramspace.Values(v), nil
	}
	return paramspace.ValueSet{}, configErr("unsupported value")
}

func scalar(name string, n *yaml.Node) (any, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, configErr("values must be scalars")
	}
	switch n.Tag {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		err := n.Decode(&b)
		return b, err
	case "!!int":
		var i int
		err := n.Decode(&i)
		return i, err
	case "!!float":
		var x float64
		err := n.Decode(&x)
		return x, err
	}
	if name == "schedule" {
		return linmodel.ScheduleValue(n.Value)
	}
	return n.Value, nil
}

func rangeSet(n *yaml.Node) (paramspace.ValueSet, error) {
	if n.Kind != yaml.SequenceNode || len(n.Content) != 3 {
		return paramspace.ValueSet{}, configErr("range must be [start, end, steps]")
	}
	var steps int
	if err := n.Content[2].Decode(&steps); err != nil {
		return paramspace.ValueSet{}, configErr("range steps: %v", err)
	}
	start, end := n.Content[0], n.Content[1]
	if start.Tag == "!!int" && end.Tag == "!!int" {
		var a, b int
		if err := start.Decode(&a); err != nil {
			return paramspace.ValueSet{}, err
		}
		if err := end.Decode(&b); err != nil {
			return paramspace.ValueSet{}, err
		}
		return paramspace.IntRange(a, b, steps), nil
	}
	var a, b float64
	if err := start.Decode(&a); err != nil {
		return paramspace.ValueSet{}, configErr("range start: %v", err)
	}
	if err := end.Decode(&b); err != nil {
		return paramspace.ValueSet{}, configErr("range end: %v", err)
	}
	return paramspace.FloatRange(a, b, steps), nil
}

// constraint is one parsed "left op right" predicate.
type constraint struct {
	left, op string
	// right is a parameter name when ref is set, else a literal.
	right paramspace.Value
	ref   string
}

var operators = []string{"<=", ">=", "!=", "==", "<", ">"}

func parseConstraint(s string, decl *paramspace.Declaration) (constraint, error) {
	for _, op := range operators {
		i := strings.Index(s, op)
		if i < 0 {
			continue
		}
		c := constraint{left: strings.TrimSpace(s[:i]), op: op}
		right := strings.TrimSpace(s[i+len(op):])
		if _, ok := decl.Index(c.left); !ok {
			return c, configErr("constraint %q: unknown parameter %q", s, c.left)
		}
		if right == "" {
			return c, configErr("constraint %q: missing right-hand side", s)
		}
		if _, ok := decl.Index(right); ok {
			c.ref = right
		} else if x, err := strconv.ParseFloat(right, 64); err == nil {
			c.right = paramspace.Float(x)
		} else {
			c.right = paramspace.String(strings.Trim(right, `"'`))
		}
		return c, nil
	}
	return constraint{}, configErr("constraint %q: no comparison operator", s)
}

func (c constraint) holds(cfg paramspace.Config) bool {
	left := cfg.Value(c.left)
	right := c.right
	if c.ref != "" {
		right = cfg.Value(c.ref)
	}
	switch c.op {
	case "==":
		return left.Equal(right)
	case "!=":
		return !left.Equal(right)
	}
	cmp, ok := left.Compare(right)
	if !ok {
		return false
	}
	switch c.op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	}
	return cmp >= 0
}

// Predicate combines the constraints into a boolean limit. It returns nil
// when there are no constraints.
func (f *ScanFile) Predicate() (func(paramspace.Config) bool, error) {
	if len(f.Constraints) == 0 {
		return nil, nil
	}
	decl, err := f.Declaration()
	if err != nil {
		return nil, err
	}
	cs := make([]constraint, len(f.Constraints))
	for i, s := range f.Constraints {
		if cs[i], err = parseConstraint(s, decl); err != nil {
			return nil, err
		}
	}
	return func(cfg paramspace.Config) bool {
		for _, c := range cs {
			if !c.holds(cfg) {
				return false
			}
		}
		return true
	}, nil
}
