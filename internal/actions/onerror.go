package actions

// log_error logs the failure and lets it propagate.
func newLogError(e env) (errorStep, error) {
	return func(cause error, _ []any) (any, error) {
		e.log.Warn("call failed", "path", e.path, "error", cause.Error())
		return nil, nil
	}, nil
}

// fallback{value} swallows the failure and returns value.
func newFallback(e env) (errorStep, error) {
	v, err := e.args.Value("value")
	if err != nil {
		return nil, err
	}
	return func(error, []any) (any, error) {
		return v, nil
	}, nil
}
