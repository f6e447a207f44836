package actions

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// log_result logs the result.
func newLogResult(e env) (afterStep, error) {
	return func(result any, _ []any) (any, error) {
		e.log.Info("result observed", "path", e.path, "result", fmt.Sprint(result))
		return nil, nil
	}, nil
}

// constant{value} replaces every result.
func newConstant(e env) (afterStep, error) {
	v, err := e.args.Value("value")
	if err != nil {
		return nil, err
	}
	return func(any, []any) (any, error) {
		return v, nil
	}, nil
}

// clamp{min?, max?} bounds numeric results.
func newClamp(e env) (afterStep, error) {
	lo, hasLo, err := e.args.OptionalNumber("min")
	if err != nil {
		return nil, err
	}
	hi, hasHi, err := e.args.OptionalNumber("max")
	if err != nil {
		return nil, err
	}
	if !hasLo && !hasHi {
		return nil, errors.New("clamp needs min or max")
	}
	if hasLo && hasHi && lo > hi {
		return nil, fmt.Errorf("clamp min %v is greater than max %v", lo, hi)
	}
	return func(result any, _ []any) (any, error) {
		f, ok := toFloat(result)
		if !ok {
			return nil, nil
		}
		if hasLo && f < lo {
			f = lo
		}
		if hasHi && f > hi {
			f = hi
		}
		return f, nil
	}, nil
}

// scale{factor} multiplies numeric results.
func newScale(e env) (afterStep, error) {
	factor, err := e.args.Number("factor")
	if err != nil {
		return nil, err
	}
	return func(result any, _ []any) (any, error) {
		f, ok := toFloat(result)
		if !ok {
			return nil, nil
		}
		return f * factor, nil
	}, nil
}

// replace_text{pattern, replacement} rewrites string results.
func newReplaceText(e env) (afterStep, error) {
	pattern, err := e.args.Text("pattern")
	if err != nil {
		return nil, err
	}
	replacement, err := e.args.Text("replacement")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	return func(result any, _ []any) (any, error) {
		s, ok := result.(string)
		if !ok {
			return nil, nil
		}
		return re.ReplaceAllString(s, replacement), nil
	}, nil
}

// json_set{path, value} sets a field in JSON text results.
func newJSONSet(e env) (afterStep, error) {
	path, err := e.args.Text("path")
	if err != nil {
		return nil, err
	}
	if !e.args.Has("value") {
		return nil, fmt.Errorf("missing argument %q", "value")
	}
	value := e.args["value"]
	return func(result any, _ []any) (any, error) {
		s, ok := result.(string)
		if !ok || !gjson.Valid(s) {
			return nil, nil
		}
		return sjson.Set(s, path, value)
	}, nil
}

// json_delete{path} removes a field from JSON text results.
func newJSONDelete(e env) (afterStep, error) {
	path, err := e.args.Text("path")
	if err != nil {
		return nil, err
	}
	return func(result any, _ []any) (any, error) {
		s, ok := result.(string)
		if !ok || !gjson.Valid(s) {
			return nil, nil
		}
		return sjson.Delete(s, path)
	}, nil
}

// json_pick{path} replaces JSON text results with one field's value.
func newJSONPick(e env) (afterStep, error) {
	path, err := e.args.Text("path")
	if err != nil {
		return nil, err
	}
	return func(result any, _ []any) (any, error) {
		s, ok := result.(string)
		if !ok || !gjson.Valid(s) {
			return nil, nil
		}
		r := gjson.Get(s, path)
		if !r.Exists() {
			return nil, nil
		}
		return r.Value(), nil
	}, nil
}
