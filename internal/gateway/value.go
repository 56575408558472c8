package gateway

import (
	"fmt"
	"math"
	"strings"
)

type transformKind int

const (
	transformUnion transformKind = iota
	transformRemove
)

// transform is a field value applied relative to the stored value.
type transform struct {
	kind   transformKind
	values []any
}

// ArrayUnion adds values to an array field, skipping ones already present.
// The merge happens inside the gateway, so concurrent unions never lose
// elements.
func ArrayUnion(values ...any) any {
	return transform{kind: transformUnion, values: normalizeSlice(values)}
}

// ArrayRemove removes every occurrence of values from an array field.
func ArrayRemove(values ...any) any {
	return transform{kind: transformRemove, values: normalizeSlice(values)}
}

// Normalize converts v to the canonical representation documents use:
// int64 and float64 numbers, []any arrays and Fields maps.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int64, float64, transform:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		return normalizeSlice(x)
	case Fields:
		return NormalizeFields(x)
	case map[string]any:
		return NormalizeFields(x)
	default:
		return fmt.Sprint(x)
	}
}

func normalizeSlice(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}

// NormalizeFields returns a normalized deep copy of f.
func NormalizeFields(f map[string]any) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = Normalize(v)
	}
	return out
}

// Clone returns a deep copy of f.
func Clone(f Fields) Fields {
	if f == nil {
		return nil
	}
	return NormalizeFields(f)
}

// Merge applies updates on top of current and returns the result. current is
// left untouched.
func Merge(current, updates Fields) Fields {
	out := Clone(current)
	if out == nil {
		out = Fields{}
	}
	for k, v := range updates {
		v = Normalize(v)
		t, ok := v.(transform)
		if !ok {
			out[k] = v
			continue
		}
		existing, _ := out[k].([]any)
		out[k] = applyTransform(existing, t)
	}
	return out
}

func applyTransform(existing []any, t transform) []any {
	result := make([]any, 0, len(existing)+len(t.values))
	switch t.kind {
	case transformUnion:
		result = append(result, existing...)
		for _, v := range t.values {
			if !containsValue(result, v) {
				result = append(result, v)
			}
		}
	case transformRemove:
		for _, v := range existing {
			if !containsValue(t.values, v) {
				result = append(result, v)
			}
		}
	}
	return result
}

func containsValue(values []any, v any) bool {
	for _, candidate := range values {
		if Equal(candidate, v) {
			return true
		}
	}
	return false
}

// Equal reports whether two normalized values are equal. Numbers compare by
// value regardless of their integer or float representation.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Fields:
		y, ok := b.(Fields)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			if w, ok := y[k]; !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Compare orders two values: missing/nil first, then booleans, numbers and
// strings. Values of other types compare equal.
func Compare(a, b any) int {
	a, b = Normalize(a), Normalize(b)
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case 3:
		return strings.Compare(a.(string), b.(string))
	default:
		return 0
	}
}

func typeRank(v any) int {
	switch Normalize(v).(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// Int reads an integral number field, accepting either representation.
func Int(v any) int {
	switch x := Normalize(v).(type) {
	case int64:
		return int(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int(x)
	default:
		return 0
	}
}

// Strings reads an array field of strings, skipping other element types.
func Strings(v any) []string {
	values, ok := Normalize(v).([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, e := range values {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
