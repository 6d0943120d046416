package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fields reads loosely typed values decoded from JSON or YAML into
// map[string]any. Lookups accept several keys so one logical field can be
// supplied under any of its aliases; the first key holding a non-null value
// wins. Shape mismatches are reported as *StructureError carrying the field
// path.
type Fields struct {
	path string
	m    map[string]any
}

// NewFields wraps v, which must be a decoded object.
func NewFields(path string, v any) (Fields, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Fields{}, &StructureError{Path: path, Msg: "expected object, got " + kindOf(v)}
	}
	return Fields{path: path, m: m}, nil
}

// Path is the location of this object inside the document.
func (f Fields) Path() string { return f.path }

// Value returns the raw value of the first key that is present and non-null.
func (f Fields) Value(keys ...string) any {
	_, v, _ := f.lookup(keys...)
	return v
}

// Has reports whether any of the keys holds a non-null value.
func (f Fields) Has(keys ...string) bool {
	_, _, ok := f.lookup(keys...)
	return ok
}

// String returns the string under keys, or def when absent.
func (f Fields) String(def string, keys ...string) (string, error) {
	key, v, ok := f.lookup(keys...)
	if !ok {
		return def, nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", f.mismatch(key, "string", v)
	}
	return s, nil
}

// RequiredString is String without a default.
func (f Fields) RequiredString(keys ...string) (string, error) {
	key, v, ok := f.lookup(keys...)
	if !ok {
		return "", &StructureError{Path: f.field(keys[0]), Msg: "required field missing"}
	}
	s, isStr := v.(string)
	if !isStr {
		return "", f.mismatch(key, "string", v)
	}
	return s, nil
}

// OptString returns nil when absent; the value is passed through verbatim.
func (f Fields) OptString(keys ...string) (*string, error) {
	key, v, ok := f.lookup(keys...)
	if !ok {
		return nil, nil
	}
	s, isStr := v.(string)
	if !isStr {
		return nil, f.mismatch(key, "string", v)
	}
	return &s, nil
}

// Strings returns the first non-empty string list under keys, or an empty
// list. An empty list under an earlier key falls through to the next alias.
func (f Fields) Strings(keys ...string) ([]string, error) {
	for _, key := range keys {
		v, ok := f.m[key]
		if !ok || v == nil {
			continue
		}
		list, isList := v.([]any)
		if !isList {
			return nil, f.mismatch(key, "array", v)
		}
		if len(list) == 0 {
			continue
		}
		out := make([]string, 0, len(list))
		for i, el := range list {
			s, isStr := el.(string)
			if !isStr {
				return nil, f.mismatch(fmt.Sprintf("%s[%d]", key, i), "string", el)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return []string{}, nil
}

// Objects returns the list of objects under keys. present is false when no
// key holds a value.
func (f Fields) Objects(keys ...string) (objs []Fields, present bool, err error) {
	key, v, ok := f.lookup(keys...)
	if !ok {
		return nil, false, nil
	}
	list, isList := v.([]any)
	if !isList {
		return nil, true, f.mismatch(key, "array", v)
	}
	objs = make([]Fields, 0, len(list))
	for i, el := range list {
		child, err := NewFields(fmt.Sprintf("%s[%d]", f.field(key), i), el)
		if err != nil {
			return nil, true, err
		}
		objs = append(objs, child)
	}
	return objs, true, nil
}

func (f Fields) lookup(keys ...string) (string, any, bool) {
	for _, key := range keys {
		if v, ok := f.m[key]; ok && v != nil {
			return key, v, true
		}
	}
	return "", nil, false
}

func (f Fields) field(key string) string {
	if f.path == "" {
		return key
	}
	return f.path + "." + key
}

func (f Fields) mismatch(key, want string, got any) *StructureError {
	return &StructureError{Path: f.field(key), Msg: "expected " + want + ", got " + kindOf(got)}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64, float32, int, int64, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any, map[any]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// CoerceInt converts numeric-like input to an int, returning def when the
// value is absent or cannot be read as a number. Floats truncate toward zero
// and numeric strings may carry surrounding whitespace.
func CoerceInt(v any, def int) int {
	if n, ok := toInt(v, true); ok {
		return n
	}
	return def
}

// toInt converts v; with truncate unset, only integral floats are accepted.
func toInt(v any, truncate bool) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		if x > math.MaxInt {
			return 0, false
		}
		return int(x), true
	case float64:
		return floatToInt(x, truncate)
	case float32:
		return floatToInt(float64(x), truncate)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f, truncate)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return n, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func floatToInt(f float64, truncate bool) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t != f && !truncate {
		return 0, false
	}
	if t >= math.MaxInt64 || t < math.MinInt64 {
		return 0, false
	}
	return int(t), true
}

// NormalizeDifficulty lower-cases the difficulty label; absent means medium.
func NormalizeDifficulty(v any) string {
	switch x := v.(type) {
	case nil:
		return DefaultDifficulty
	case string:
		return strings.ToLower(x)
	default:
		return strings.ToLower(fmt.Sprint(x))
	}
}
