// Package namespace models the shared, mutable global namespace that veil
// intercepts in.
//
// A Namespace is a root Object plus a replaceable property-definition
// primitive. Hosts populate the root with objects and functions; the engine
// resolves dotted paths against it and swaps slots for wrappers. Code that
// wants its definitions to be observable (and that the anti-tamper layer can
// refuse) calls DefineProperty rather than Object.Define.
package namespace

import "sync"

// Definer is the property-definition primitive. It returns target on
// success, mirroring the host convention.
type Definer func(target *Object, name string, value any, desc Descriptor) (*Object, error)

// Namespace is the global root plus its definition primitive.
type Namespace struct {
	global *Object

	mu      sync.RWMutex
	definer Definer
}

// New creates an empty namespace whose definer is the raw Object.Define.
func New() *Namespace {
	return &Namespace{
		global:  NewObject(),
		definer: RawDefine,
	}
}

// RawDefine is the untampered definition primitive.
func RawDefine(target *Object, name string, value any, desc Descriptor) (*Object, error) {
	if err := target.Define(name, value, desc); err != nil {
		return nil, err
	}
	return target, nil
}

// Global returns the root object.
func (ns *Namespace) Global() *Object {
	return ns.global
}

// Definer returns the current definition primitive.
func (ns *Namespace) Definer() Definer {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.definer
}

// SetDefiner installs d as the definition primitive and returns the previous
// one.
func (ns *Namespace) SetDefiner(d Definer) Definer {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	prev := ns.definer
	ns.definer = d
	return prev
}

// DefineProperty defines name on target through the current primitive.
func (ns *Namespace) DefineProperty(target *Object, name string, value any, desc Descriptor) (*Object, error) {
	return ns.Definer()(target, name, value, desc)
}
