package actions

import "fmt"

// log_args logs the call arguments.
func newLogArgs(e env) (beforeStep, error) {
	return func(args []any) ([]any, error) {
		e.log.Info("call observed", "path", e.path, "args", fmt.Sprint(args))
		return nil, nil
	}, nil
}

// set_arg{index, value} replaces one argument, padding with undefined.
func newSetArg(e env) (beforeStep, error) {
	idx, err := e.args.Index("index")
	if err != nil {
		return nil, err
	}
	if !e.args.Has("value") {
		return nil, fmt.Errorf("missing argument %q", "value")
	}
	value := e.args["value"]
	return func(args []any) ([]any, error) {
		n := len(args)
		if idx >= n {
			n = idx + 1
		}
		out := make([]any, n)
		copy(out, args)
		out[idx] = value
		return out, nil
	}, nil
}

// prefix_arg{index, prefix} prepends prefix to a string argument.
func newPrefixArg(e env) (beforeStep, error) {
	idx, err := e.args.Index("index")
	if err != nil {
		return nil, err
	}
	prefix, err := e.args.Text("prefix")
	if err != nil {
		return nil, err
	}
	return func(args []any) ([]any, error) {
		if idx >= len(args) {
			return nil, nil
		}
		s, ok := args[idx].(string)
		if !ok {
			return nil, nil
		}
		out := make([]any, len(args))
		copy(out, args)
		out[idx] = prefix + s
		return out, nil
	}, nil
}
