package actions

import (
	"encoding/json"
	"fmt"
	"math"
)

// Args are the arguments of one action as decoded from a rule set.
type Args map[string]any

// Has reports whether key is present.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Value returns a required argument of any type.
func (a Args) Value(key string) (any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	return v, nil
}

// Text returns a required string argument.
func (a Args) Text(key string) (string, error) {
	v, err := a.Value(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

// Number returns a required numeric argument.
func (a Args) Number(key string) (float64, error) {
	v, err := a.Value(key)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("argument %q must be a number, got %T", key, v)
	}
	return f, nil
}

// OptionalNumber returns a numeric argument and whether it was given.
func (a Args) OptionalNumber(key string) (float64, bool, error) {
	if !a.Has(key) {
		return 0, false, nil
	}
	f, err := a.Number(key)
	return f, err == nil, err
}

// MaxArgIndex is the highest argument position an action may address.
const MaxArgIndex = 255

// Index returns a required integer argument in [0, MaxArgIndex].
func (a Args) Index(key string) (int, error) {
	f, err := a.Number(key)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("argument %q must be a non-negative integer, got %v", key, f)
	}
	if f > MaxArgIndex {
		return 0, fmt.Errorf("argument %q must be at most %d, got %v", key, MaxArgIndex, f)
	}
	return int(f), nil
}

// toFloat converts the numeric forms produced by the CUE, JSON and YAML
// decoders to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
