package paramspace

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindFunc
)

var kindNames = [...]string{
	KindNone:   "none",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindFunc:   "func",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func parseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return KindNone, fmt.Errorf("%w: unknown value kind %q", ErrConfig, s)
}

// Value is one hyperparameter value. Callables carry a stable name which is
// used for identity, logging and persistence; the function itself is only
// available to the training function through Fn.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	fn   any
}

// None returns the empty value.
func None() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

// Int wraps an integer.
func Int(i int) Value { return Value{kind: KindInt, i: int64(i)} }

// Float wraps a float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Func wraps a callable under a stable name. fn may be nil when only the
// name is known, for example after restoring a deployed package.
func Func(name string, fn any) Value { return Value{kind: KindFunc, s: name, fn: fn} }

// Of converts a Go value into a Value. Functions are named after their
// symbol, so Of(math.Sqrt) has the name "Sqrt".
func Of(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return None(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(t), nil
	case int8:
		return Int(int(t)), nil
	case int16:
		return Int(int(t)), nil
	case int32:
		return Int(int(t)), nil
	case int64:
		return Value{kind: KindInt, i: t}, nil
	case uint8:
		return Int(int(t)), nil
	case uint16:
		return Int(int(t)), nil
	case uint32:
		return Value{kind: KindInt, i: int64(t)}, nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Func && !rv.IsNil() {
		return Func(funcName(rv), x), nil
	}
	return None(), fmt.Errorf("%w: unsupported parameter value %T", ErrConfig, x)
}

// MustOf is Of for literal declarations; it panics on unsupported types.
func MustOf(x any) Value {
	v, err := Of(x)
	if err != nil {
		panic(err)
	}
	return v
}

func funcName(rv reflect.Value) string {
	fn := runtime.FuncForPC(rv.Pointer())
	if fn == nil {
		return "func"
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNone reports whether v is the empty value.
func (v Value) IsNone() bool { return v.kind == KindNone }

// IsNumeric reports whether v is an Int or a Float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// Float returns the numeric value of an Int or Float.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindBool:
		return float64(v.i), true
	}
	return 0, false
}

// Int returns the integer value, truncating floats.
func (v Value) Int() (int, bool) {
	switch v.kind {
	case KindInt, KindBool:
		return int(v.i), true
	case KindFloat:
		return int(v.f), true
	}
	return 0, false
}

// Bool returns the boolean value.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.i == 1, true
}

// Str returns the string payload of a String value or the name of a Func.
func (v Value) Str() (string, bool) {
	if v.kind != KindString && v.kind != KindFunc {
		return "", false
	}
	return v.s, true
}

// Fn returns the callable held by a Func value.
func (v Value) Fn() any { return v.fn }

// String renders v the way it appears in the results CSV.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		if v.i == 1 {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString, KindFunc:
		return v.s
	}
	return "None"
}

// Key is a stable identity string. Numeric values share a key when they are
// numerically equal, so Int(1) and Float(1) are the same parameter value.
func (v Value) Key() string {
	switch v.kind {
	case KindInt:
		return "n:" + strconv.FormatInt(v.i, 10)
	case KindFloat:
		if v.f == math.Trunc(v.f) && math.Abs(v.f) < 1<<53 {
			return "n:" + strconv.FormatInt(int64(v.f), 10)
		}
		return "n:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return "b:" + v.String()
	case KindString:
		return "s:" + v.s
	case KindFunc:
		return "fn:" + v.s
	}
	return "none"
}

// Equal reports whether v and o denote the same parameter value.
func (v Value) Equal(o Value) bool {
	if v.IsNumeric() && o.IsNumeric() {
		a, _ := v.Float()
		b, _ := o.Float()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindBool:
		return v.i == o.i
	default:
		return v.s == o.s
	}
}

// Compare orders two numeric values. ok is false when either is not numeric.
func (v Value) Compare(o Value) (cmp int, ok bool) {
	if !v.IsNumeric() || !o.IsNumeric() {
		return 0, false
	}
	a, _ := v.Float()
	b, _ := o.Float()
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	}
	return 0, true
}

type valueJSON struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes v with its kind so a round trip preserves the variant.
func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Kind: v.kind.String()}
	var payload any
	switch v.kind {
	case KindBool:
		payload = v.i == 1
	case KindInt:
		payload = v.i
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			payload = strconv.FormatFloat(v.f, 'g', -1, 64)
		} else {
			payload = v.f
		}
	case KindString, KindFunc:
		payload = v.s
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		out.Value = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form written by MarshalJSON. Func values come
// back with their name only.
func (v *Value) UnmarshalJSON(data []byte) error {
	var in valueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	kind, err := parseKind(in.Kind)
	if err != nil {
		return err
	}
	switch kind {
	case KindNone:
		*v = None()
	case KindBool:
		var b bool
		if err := json.Unmarshal(in.Value, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case KindInt:
		var i int64
		if err := json.Unmarshal(in.Value, &i); err != nil {
			return err
		}
		*v = Value{kind: KindInt, i: i}
	case KindFloat:
		var f float64
		if err := json.Unmarshal(in.Value, &f); err != nil {
			var s string
			if json.Unmarshal(in.Value, &s) != nil {
				return err
			}
			if f, err = strconv.ParseFloat(s, 64); err != nil {
				return err
			}
		}
		*v = Float(f)
	case KindString, KindFunc:
		var s string
		if err := json.Unmarshal(in.Value, &s); err != nil {
			return err
		}
		*v = Value{kind: kind, s: s}
	}
	return nil
}
