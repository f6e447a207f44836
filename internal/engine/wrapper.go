package engine

import (
	"github.com/roach88/veil/internal/future"
	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/namespace"
)

// buildFunctionWrapper returns a replacement for original with the same
// name, arity, string form and statics. A constructible routed here keeps
// its construct entry point unobserved.
func (e *Engine) buildFunctionWrapper(original *namespace.Function, r *Rule) *namespace.Function {
	spec := namespace.FunctionSpec{
		Name:   original.Name(),
		Arity:  original.Arity(),
		Source: original.String(),
		Call: func(this any, args []any) (any, error) {
			return e.intercept(r, r.Path, r.Observers, original, this, args)
		},
	}
	if original.IsConstructible() {
		spec.Construct = func(args []any) (*namespace.Object, error) {
			return original.Construct(args...)
		}
	}
	w := namespace.NewFunction(spec)
	copyStatics(original, w)
	return w
}

// wrapMethod returns a replacement for one instance method, scoped by label
// in the journal.
func (e *Engine) wrapMethod(r *Rule, label string, obs Observers, original *namespace.Function) *namespace.Function {
	return namespace.NewFunction(namespace.FunctionSpec{
		Name:   original.Name(),
		Arity:  original.Arity(),
		Source: original.String(),
		Call: func(this any, args []any) (any, error) {
			return e.intercept(r, label, obs, original, this, args)
		},
	})
}

// copyStatics copies own properties other than "prototype", keeping their
// descriptors.
func copyStatics(from, to *namespace.Function) {
	src, dst := from.Props(), to.Props()
	for _, k := range src.OwnKeys() {
		if k == "prototype" {
			continue
		}
		v, _ := src.Own(k)
		desc, _ := src.Descriptor(k)
		_ = dst.Define(k, v, desc)
	}
}

// intercept runs one call through the observer protocol:
//
//  1. inactive rule: call the original, nothing observed
//  2. Before may replace the arguments
//  3. call the original
//  4. on error, OnError may supply a value
//  5. deferred results get a derived future
//  6. otherwise After may replace the result
//
// Observer failures never reach the caller. Errors from the original reach
// the caller unchanged unless OnError supplies a value.
func (e *Engine) intercept(r *Rule, label string, obs Observers, original *namespace.Function, this any, args []any) (any, error) {
	if !r.Active() {
		return original.Apply(this, args)
	}

	e.emit(ir.EventCall, label, Render(args))
	callArgs := e.runBefore(label, obs, original, args)

	result, err := original.Apply(this, callArgs)
	if err != nil {
		e.emit(ir.EventThrow, label, err.Error())
		if v, ok := e.runOnError(label, obs, original, callArgs, err); ok {
			e.emit(ir.EventRecovered, label, Render(v))
			return v, nil
		}
		return nil, err
	}

	if t, ok := future.As(result); ok {
		e.emit(ir.EventDeferred, label, "")
		return e.derive(label, obs, original, callArgs, t), nil
	}

	result = e.runAfter(label, obs, original, callArgs, result)
	e.emit(ir.EventReturn, label, Render(result))
	return result, nil
}

// derive returns a future that settles after src, with exactly one of After
// or OnError applied per settlement.
func (e *Engine) derive(label string, obs Observers, original *namespace.Function, args []any, src future.Thenable) *future.Future {
	out := future.New()
	src.Then(func(value any, err error) {
		if err != nil {
			e.emit(ir.EventRejected, label, err.Error())
			if v, ok := e.runOnError(label, obs, original, args, err); ok {
				e.emit(ir.EventRecovered, label, Render(v))
				out.Resolve(v)
				return
			}
			out.Reject(err)
			return
		}
		v := e.runAfter(label, obs, original, args, value)
		e.emit(ir.EventSettled, label, Render(v))
		out.Resolve(v)
	})
	return out
}

func (e *Engine) runBefore(label string, obs Observers, original *namespace.Function, args []any) []any {
	if obs.Before == nil {
		return args
	}
	in := make([]any, len(args))
	copy(in, args)
	out, err := callObserver(func() ([]any, error) { return obs.Before(in, original) })
	if err != nil {
		e.observerFailed(label, ir.PhaseBefore, err)
		return args
	}
	if out == nil {
		return args
	}
	return out
}

func (e *Engine) runAfter(label string, obs Observers, original *namespace.Function, args []any, result any) any {
	if obs.After == nil {
		return result
	}
	out, err := callObserver(func() (any, error) { return obs.After(result, args, original) })
	if err != nil {
		e.observerFailed(label, ir.PhaseAfter, err)
		return result
	}
	if out == nil {
		return result
	}
	return out
}

// runOnError reports whether the observer supplied a replacement value.
func (e *Engine) runOnError(label string, obs Observers, original *namespace.Function, args []any, cause error) (any, bool) {
	if obs.OnError == nil {
		return nil, false
	}
	out, err := callObserver(func() (any, error) { return obs.OnError(cause, args, original) })
	if err != nil {
		e.observerFailed(label, ir.PhaseOnError, err)
		return nil, false
	}
	return out, out != nil
}

func (e *Engine) observerFailed(label, phase string, cause error) {
	err := newInterceptError(ErrCodeObserverFailure, label, phase+" observer failed", cause)
	e.emit(ir.EventObserverFailure, label, phase+": "+cause.Error())
	e.debug("observer failed", "path", label, "phase", phase, "error", err)
}

// callObserver runs fn, converting a panic into a PanicError.
func callObserver[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if v := recover(); v != nil {
			var zero T
			out, err = zero, &PanicError{Value: v}
		}
	}()
	return fn()
}
