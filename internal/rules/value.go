// Package rules implements the embedded rule expression language:
// a lexer, parser and evaluator with a builtin function library, a
// bounded compilation cache, and the JSON rule-configuration layer
// that drives the optional entry scorer.
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the typed value representation every context
// entry is normalized to before evaluation.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindTime:
		return "time"
	}
	return "invalid"
}

// Value is the uniform typed representation used by the evaluator.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
	t    time.Time
}

var Null = Value{kind: KindNull}

func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Str(s string) Value     { return Value{kind: KindString, s: s} }
func List(vs []Value) Value  { return Value{kind: KindList, list: vs} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// From normalizes an arbitrary Go value. Type checks run boolean
// before integer before float before string; collections convert
// recursively. Unknown types stringify.
func From(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case Value:
		return x
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case string:
		return Str(x)
	case time.Time:
		return Time(x)
	case []Value:
		return List(x)
	case []float64:
		vs := make([]Value, len(x))
		for i, f := range x {
			vs[i] = Float(f)
		}
		return List(vs)
	case []string:
		vs := make([]Value, len(x))
		for i, s := range x {
			vs[i] = Str(s)
		}
		return List(vs)
	case []interface{}:
		vs := make([]Value, len(x))
		for i, e := range x {
			vs[i] = From(e)
		}
		return List(vs)
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = From(e)
		}
		return Map(m)
	case map[string]Value:
		return Map(x)
	default:
		return Str(fmt.Sprintf("%v", x))
	}
}

// Export converts back to a plain Go value for callers outside the
// evaluator.
func (v Value) Export() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindTime:
		return v.t
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, e := range v.list {
			out[i] = e.Export()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			out[k] = e.Export()
		}
		return out
	}
	return nil
}

// AsBool reports the truthiness of a value. Null is false, numbers are
// true when non-zero, strings and collections when non-empty.
func (v Value) AsBool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindList:
		return len(v.list) > 0
	case KindMap:
		return len(v.m) > 0
	case KindTime:
		return !v.t.IsZero()
	}
	return false
}

// AsFloat converts a numeric or numeric-string value.
func (v Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindInt:
		return float64(v.i), nil
	case KindFloat:
		return v.f, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", v.s)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %s to number", v.kind)
}

// AsInt converts to an integer, truncating floats.
func (v Value) AsInt() (int64, error) {
	if v.kind == KindInt {
		return v.i, nil
	}
	f, err := v.AsFloat()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// AsString renders the value as text.
func (v Value) AsString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339)
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.AsString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.m[k].AsString()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

// AsList returns the element slice of a list value.
func (v Value) AsList() ([]Value, error) {
	if v.kind != KindList {
		return nil, fmt.Errorf("expected list, got %s", v.kind)
	}
	return v.list, nil
}

// AsTime converts a time value or an RFC 3339 string.
func (v Value) AsTime() (time.Time, error) {
	switch v.kind {
	case KindTime:
		return v.t, nil
	case KindString:
		t, err := time.Parse(time.RFC3339, v.s)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot parse %q as time", v.s)
		}
		return t, nil
	case KindInt:
		return time.Unix(v.i, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %s to time", v.kind)
}

// Field looks up a key of a map value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindMap {
		return Null, false
	}
	e, ok := v.m[name]
	return e, ok
}

// Equal compares two values. Numeric kinds compare by magnitude so an
// int 3 equals a float 3.0.
func (v Value) Equal(o Value) bool {
	if v.isNumeric() && o.isNumeric() {
		a, _ := v.AsFloat()
		b, _ := o.AsFloat()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindTime:
		return v.t.Equal(o.t)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) isNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat
}
