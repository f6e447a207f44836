package harness

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/namespace"
	"github.com/roach88/veil/internal/testutil"
)

// fixtureSet is the namespace a scenario runs against. builtins holds the
// function first installed at each path, for original_restored.
type fixtureSet struct {
	ns       *namespace.Namespace
	pending  map[string]*testutil.Pending
	builtins map[string]*namespace.Function
}

func newFixtureSet() *fixtureSet {
	return &fixtureSet{
		ns:       namespace.New(),
		pending:  make(map[string]*testutil.Pending),
		builtins: make(map[string]*namespace.Function),
	}
}

// install builds f and binds it at f.Path with plain assignment.
func (fs *fixtureSet) install(f Fixture) error {
	if f.Type == FixtureStandard {
		root := fs.ns.Global()
		prefix := ""
		if f.Path != "" {
			obj, err := fs.container(f.Path, true)
			if err != nil {
				return err
			}
			root, prefix = obj, f.Path+"."
		}
		fs.pending[prefix+"fetch"] = testutil.Populate(root)
		for _, name := range root.OwnKeys() {
			if fn, ok := root.Own(name); ok {
				if fn, isFn := fn.(*namespace.Function); isFn {
					fs.builtins[prefix+name] = fn
				}
			}
		}
		if math, ok := root.Own("Math"); ok {
			if obj, isObj := math.(*namespace.Object); isObj {
				for _, name := range []string{"random", "max"} {
					if fn, found := obj.Own(name); found {
						fs.builtins[prefix+"Math."+name] = fn.(*namespace.Function)
					}
				}
			}
		}
		return nil
	}

	owner, name, err := fs.slot(f.Path)
	if err != nil {
		return err
	}
	value, err := fs.build(f)
	if err != nil {
		return err
	}
	if err := owner.Set(name, value); err != nil {
		return fmt.Errorf("fixture %s: %w", f.Path, err)
	}
	if fn, ok := value.(*namespace.Function); ok {
		fs.builtins[f.Path] = fn
	}
	return nil
}

// build creates the value for f.
func (fs *fixtureSet) build(f Fixture) (any, error) {
	name := lastSegment(f.Path)

	var fn *namespace.Function
	switch f.Type {
	case FixtureObject:
		return namespace.NewObject(), nil
	case FixtureDeferred:
		var p *testutil.Pending
		fn, p = testutil.NewDeferredFunc(name, f.Arity)
		fs.pending[f.Path] = p
	case FixtureConstructor:
		fn = newConstructorFixture(name, f)
	default:
		call, err := callFor(f.Type, f.Value)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", f.Path, err)
		}
		fn = namespace.NewNative(name, f.Arity, call)
	}
	return fn, nil
}

// slot returns the owner and property name for path, creating missing
// intermediate containers.
func (fs *fixtureSet) slot(path string) (*namespace.Object, string, error) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return fs.ns.Global(), path, nil
	}
	owner, err := fs.container(path[:idx], true)
	if err != nil {
		return nil, "", err
	}
	return owner, path[idx+1:], nil
}

// container walks path from the global object. With create, missing
// segments become empty objects.
func (fs *fixtureSet) container(path string, create bool) (*namespace.Object, error) {
	cur := fs.ns.Global()
	for _, seg := range strings.Split(path, ".") {
		v, ok := cur.Own(seg)
		if !ok {
			if !create {
				return nil, fmt.Errorf("fixture path %s: %s is missing", path, seg)
			}
			next := namespace.NewObject()
			if err := cur.Set(seg, next); err != nil {
				return nil, fmt.Errorf("fixture path %s: %w", path, err)
			}
			cur = next
			continue
		}
		next, isContainer := namespace.Container(v)
		if !isContainer {
			return nil, fmt.Errorf("fixture path %s: %s is not a container", path, seg)
		}
		cur = next
	}
	return cur, nil
}

func callFor(kind string, value any) (namespace.CallFunc, error) {
	switch kind {
	case FixtureConstant:
		v := normalize(value)
		return func(any, []any) (any, error) { return v, nil }, nil
	case FixtureEcho:
		return func(_ any, args []any) (any, error) { return argAt(args, 0), nil }, nil
	case FixtureSum:
		return func(_ any, args []any) (any, error) {
			total := 0.0
			for _, a := range args {
				if n, ok := testutil.Number(a); ok {
					total += n
				}
			}
			return total, nil
		}, nil
	case FixtureFail:
		msg := "fixture failure"
		if value != nil {
			msg = fmt.Sprint(value)
		}
		return func(any, []any) (any, error) { return nil, errors.New(msg) }, nil
	default:
		return nil, fmt.Errorf("unknown function type %q", kind)
	}
}

// newConstructorFixture builds a constructible whose instances keep their
// first argument as "value".
func newConstructorFixture(name string, f Fixture) *namespace.Function {
	proto := namespace.NewObject()
	for _, mname := range sortedMethodNames(f.Methods) {
		m := f.Methods[mname]
		var call namespace.CallFunc
		switch m.Type {
		case MethodSelf:
			call = func(this any, _ []any) (any, error) {
				return instanceValue(this), nil
			}
		case MethodScale:
			call = func(this any, args []any) (any, error) {
				x, _ := testutil.Number(argAt(args, 0))
				factor, ok := testutil.Number(instanceValue(this))
				if !ok {
					factor = 1
				}
				return x * factor, nil
			}
		default:
			// validateFixture has rejected anything callFor cannot build.
			call, _ = callFor(m.Type, m.Value)
		}
		_ = proto.Define(mname, namespace.NewNative(mname, 0, call), namespace.Descriptor{Writable: true, Configurable: true})
	}

	return namespace.NewConstructor(name, f.Arity, proto, func(self *namespace.Object, args []any) error {
		if len(args) == 0 {
			return nil
		}
		return self.Set("value", normalize(args[0]))
	})
}

func instanceValue(this any) any {
	self, ok := this.(*namespace.Object)
	if !ok {
		return nil
	}
	v, _ := self.Get("value")
	return v
}

func sortedMethodNames(m map[string]Method) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// normalize converts YAML-decoded numbers to float64, recursively, so they
// compare equal to values produced by fixtures and actions.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// normalizeRule returns spec with its action arguments normalized.
func normalizeRule(spec ir.RuleSpec) ir.RuleSpec {
	spec.Before = normalizeActions(spec.Before)
	spec.After = normalizeActions(spec.After)
	spec.OnError = normalizeActions(spec.OnError)
	if len(spec.Methods) > 0 {
		methods := make(map[string]ir.MethodSpec, len(spec.Methods))
		for name, m := range spec.Methods {
			methods[name] = ir.MethodSpec{
				Before:  normalizeActions(m.Before),
				After:   normalizeActions(m.After),
				OnError: normalizeActions(m.OnError),
			}
		}
		spec.Methods = methods
	}
	return spec
}

func normalizeActions(in []ir.ActionSpec) []ir.ActionSpec {
	if in == nil {
		return nil
	}
	out := make([]ir.ActionSpec, len(in))
	for i, a := range in {
		out[i] = ir.ActionSpec{Action: a.Action}
		if a.Args != nil {
			out[i].Args = normalize(a.Args).(map[string]any)
		}
	}
	return out
}

func normalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = normalize(a)
	}
	return out
}
