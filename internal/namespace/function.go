package namespace

import (
	"errors"
	"fmt"
)

// CallFunc is the call entry point of a Function.
type CallFunc func(this any, args []any) (any, error)

// ConstructFunc is the construct entry point of a constructible Function.
type ConstructFunc func(args []any) (*Object, error)

// InvocationError is returned when a constructible is called without the
// construct entry point.
type InvocationError struct {
	Name string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("Failed to construct '%s': Please use the 'new' operator", e.Name)
}

// IsInvocationError reports whether err is an InvocationError.
func IsInvocationError(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}

// ErrNotConstructible is returned by Construct on plain functions.
var ErrNotConstructible = errors.New("namespace: value is not a constructor")

// FunctionSpec describes a Function to create.
type FunctionSpec struct {
	Name  string
	Arity int

	// Source overrides the string form. Empty means native form.
	Source string

	Call      CallFunc
	Construct ConstructFunc

	// Prototype is exposed as the "prototype" property of constructibles.
	Prototype *Object
}

// Function is a callable value. Constructibles additionally carry a
// construct entry point and a prototype object.
//
// Properties (statics, "prototype") live in Props. A Function is usable as a
// path segment container just like an Object.
type Function struct {
	name      string
	arity     int
	source    string
	call      CallFunc
	construct ConstructFunc
	props     *Object
}

// NewFunction creates a Function from spec. Constructibles get a
// "prototype" property whose "constructor" points back at the function,
// unless the prototype already has one.
func NewFunction(spec FunctionSpec) *Function {
	fn := &Function{
		name:      spec.Name,
		arity:     spec.Arity,
		source:    spec.Source,
		call:      spec.Call,
		construct: spec.Construct,
		props:     NewObject(),
	}
	if spec.Prototype != nil {
		_ = fn.props.Define("prototype", spec.Prototype, Descriptor{Writable: true})
		if !spec.Prototype.Has("constructor") {
			_ = spec.Prototype.Define("constructor", fn, Descriptor{Writable: true, Configurable: true})
		}
	}
	if fn.call == nil && fn.construct != nil {
		name := spec.Name
		fn.call = func(any, []any) (any, error) {
			return nil, &InvocationError{Name: name}
		}
	}
	return fn
}

// NewNative creates a plain native function.
func NewNative(name string, arity int, call CallFunc) *Function {
	return NewFunction(FunctionSpec{Name: name, Arity: arity, Call: call})
}

// NewConstructor creates a native constructible whose instances inherit from
// proto and are initialised by init. Calling it without Construct fails with
// InvocationError.
func NewConstructor(name string, arity int, proto *Object, init func(self *Object, args []any) error) *Function {
	if proto == nil {
		proto = NewObject()
	}
	return NewFunction(FunctionSpec{
		Name:      name,
		Arity:     arity,
		Prototype: proto,
		Construct: func(args []any) (*Object, error) {
			self := NewObjectWithProto(proto)
			if init != nil {
				if err := init(self, args); err != nil {
					return nil, err
				}
			}
			return self, nil
		},
	})
}

// NativeSource renders the string form of a native function.
func NativeSource(name string) string {
	return fmt.Sprintf("function %s() { [native code] }", name)
}

// Name returns the function's name.
func (f *Function) Name() string { return f.name }

// Arity returns the declared parameter count.
func (f *Function) Arity() int { return f.arity }

// String returns the function's string form.
func (f *Function) String() string {
	if f.source != "" {
		return f.source
	}
	return NativeSource(f.name)
}

// Props returns the function's own property table.
func (f *Function) Props() *Object { return f.props }

// IsConstructible reports whether the function has a construct entry point.
func (f *Function) IsConstructible() bool { return f.construct != nil }

// Prototype returns the "prototype" property if it is an object.
func (f *Function) Prototype() *Object {
	v, ok := f.props.Own("prototype")
	if !ok {
		return nil
	}
	p, _ := v.(*Object)
	return p
}

// Call invokes the function with this bound to this.
func (f *Function) Call(this any, args ...any) (any, error) {
	return f.Apply(this, args)
}

// Apply invokes the function with an argument slice.
func (f *Function) Apply(this any, args []any) (any, error) {
	if f.call == nil {
		return nil, nil
	}
	return f.call(this, args)
}

// Construct invokes the construct entry point.
func (f *Function) Construct(args ...any) (*Object, error) {
	if f.construct == nil {
		return nil, fmt.Errorf("construct %q: %w", f.name, ErrNotConstructible)
	}
	return f.construct(args)
}

// InstanceOf reports whether fn's prototype appears on obj's prototype chain.
func InstanceOf(obj *Object, fn *Function) bool {
	if obj == nil || fn == nil {
		return false
	}
	target := fn.Prototype()
	if target == nil {
		return false
	}
	for p := obj.Proto(); p != nil; p = p.Proto() {
		if p == target {
			return true
		}
	}
	return false
}

// Container returns the property table used when v is a path segment.
func Container(v any) (*Object, bool) {
	switch c := v.(type) {
	case *Object:
		return c, c != nil
	case *Function:
		return c.props, c != nil
	default:
		return nil, false
	}
}
