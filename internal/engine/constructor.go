package engine

import (
	"sort"

	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/namespace"
)

// buildConstructorWrapper returns a constructible that builds instances with
// original and then rewrites the rule's methods on each instance.
//
// The wrapper shares original's prototype, so InstanceOf holds against
// either function, and the prototype itself is never modified. Instances
// built by calling original directly are unaffected. Calling the wrapper
// without construction fails exactly as original does.
func (e *Engine) buildConstructorWrapper(original *namespace.Function, r *Rule) *namespace.Function {
	w := namespace.NewFunction(namespace.FunctionSpec{
		Name:      original.Name(),
		Arity:     original.Arity(),
		Source:    original.String(),
		Prototype: original.Prototype(),
		Call: func(this any, args []any) (any, error) {
			return original.Apply(this, args)
		},
		Construct: func(args []any) (*namespace.Object, error) {
			inst, err := original.Construct(args...)
			if err != nil {
				return nil, err
			}
			if r.Active() {
				e.emit(ir.EventConstruct, r.Path, Render(args))
			}
			e.rewriteInstance(r, inst)
			return inst, nil
		},
	})
	copyStatics(original, w)
	return w
}

// rewriteInstance shadows each observed method with an own property of the
// instance. Missing or non-callable methods are skipped.
func (e *Engine) rewriteInstance(r *Rule, inst *namespace.Object) {
	methods := make(map[string]Observers, len(r.MethodHooks)+1)
	methods[r.Method] = r.Observers
	for name, obs := range r.MethodHooks {
		methods[name] = obs
	}

	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := inst.Get(name)
		if !ok {
			e.debug("instance method missing", "path", r.Path, "method", name)
			continue
		}
		fn, ok := v.(*namespace.Function)
		if !ok {
			e.debug("instance method not callable", "path", r.Path, "method", name)
			continue
		}
		label := r.Path + "#" + name
		wrapped := e.wrapMethod(r, label, methods[name], fn)
		if err := inst.Define(name, wrapped, namespace.Descriptor{Writable: true, Configurable: true}); err != nil {
			e.debug("instance method rewrite failed", "path", r.Path, "method", name, "error", err)
		}
	}
}
