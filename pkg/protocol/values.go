package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Params is the wire form of operation parameters: a flat list alternating
// parameter key and parameter value. Order and key uniqueness are up to the caller.
type Params []any

// Add appends a key/value pair and returns the extended list.
func (p Params) Add(key int, value any) Params {
	return append(p, key, value)
}

// AddIf appends a key/value pair only when cond is true.
func (p Params) AddIf(cond bool, key int, value any) Params {
	if !cond {
		return p
	}
	return append(p, key, value)
}

// Valid reports whether the list holds complete key/value pairs.
func (p Params) Valid() bool {
	return len(p)%2 == 0
}

// Values is the unflattened form of a `vals` array, keyed by parameter code.
type Values map[int]any

// Unflatten rebuilds a key→value mapping from a flat key/value list.
// The list must have even length and integer keys.
func Unflatten(flat []any) (Values, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("%w: %d elements", ErrOddValues, len(flat))
	}
	vals := make(Values, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		key, ok := toInt(flat[i])
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValueKey, flat[i])
		}
		vals[key] = flat[i+1]
	}
	return vals, nil
}

// Flatten converts a mapping back to its flat wire form, ordered by the given keys.
// Keys missing from the mapping are skipped.
func Flatten(vals Values, order ...int) Params {
	p := make(Params, 0, len(order)*2)
	for _, k := range order {
		if v, ok := vals[k]; ok {
			p = append(p, k, v)
		}
	}
	return p
}

// Has reports whether the key is present.
func (v Values) Has(key int) bool {
	_, ok := v[key]
	return ok
}

// Int returns the value for key as an int.
func (v Values) Int(key int) (int, bool) {
	raw, ok := v[key]
	if !ok {
		return 0, false
	}
	return toInt(raw)
}

// IntOr returns the value for key as an int, or def when absent or not numeric.
func (v Values) IntOr(key int, def int) int {
	if n, ok := v.Int(key); ok {
		return n
	}
	return def
}

// String returns the value for key as a string.
func (v Values) String(key int) (string, bool) {
	s, ok := v[key].(string)
	return s, ok
}

// Bool returns the value for key as a bool.
func (v Values) Bool(key int) (bool, bool) {
	b, ok := v[key].(bool)
	return b, ok
}

// Map returns the value for key as a string-keyed object.
func (v Values) Map(key int) (map[string]any, bool) {
	m, ok := v[key].(map[string]any)
	return m, ok
}

// Slice returns the value for key as a list.
func (v Values) Slice(key int) ([]any, bool) {
	s, ok := v[key].([]any)
	return s, ok
}

// Ints returns the value for key as a list of ints, skipping non-numeric items.
func (v Values) Ints(key int) []int {
	raw, ok := v.Slice(key)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		if n, ok := toInt(item); ok {
			out = append(out, n)
		}
	}
	return out
}

// ToInt converts a decoded JSON scalar (number or numeric string) to an int.
func ToInt(v any) (int, bool) {
	return toInt(v)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}
