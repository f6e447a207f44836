package namespace

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors returned by slot operations.
var (
	ErrReadOnly        = errors.New("namespace: property is read-only")
	ErrNotConfigurable = errors.New("namespace: property is not configurable")
	ErrNotFunction     = errors.New("namespace: property is not a function")
)

// Descriptor holds the attributes of a property slot.
type Descriptor struct {
	Writable     bool
	Enumerable   bool
	Configurable bool
}

// DefaultDescriptor is the descriptor used for properties created by plain
// assignment.
var DefaultDescriptor = Descriptor{Writable: true, Enumerable: true, Configurable: true}

type slot struct {
	value any
	desc  Descriptor
}

// Object is a mutable bag of named slots with an optional prototype.
//
// Get walks the prototype chain; Own, Set, Define and Delete only look at the
// object's own slots. Object is safe for concurrent use.
type Object struct {
	mu    sync.RWMutex
	slots map[string]*slot
	proto *Object
}

// NewObject creates an empty object with no prototype.
func NewObject() *Object {
	return &Object{slots: make(map[string]*slot)}
}

// NewObjectWithProto creates an empty object whose prototype is proto.
func NewObjectWithProto(proto *Object) *Object {
	o := NewObject()
	o.proto = proto
	return o
}

// Proto returns the object's prototype, or nil.
func (o *Object) Proto() *Object {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.proto
}

// SetProto replaces the object's prototype.
func (o *Object) SetProto(proto *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.proto = proto
}

// Own returns the value of an own property.
func (o *Object) Own(name string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.slots[name]
	if !ok {
		return nil, false
	}
	return s.value, true
}

// Has reports whether name is an own property.
func (o *Object) Has(name string) bool {
	_, ok := o.Own(name)
	return ok
}

// Get returns the value of name, searching the prototype chain.
func (o *Object) Get(name string) (any, bool) {
	for cur := o; cur != nil; cur = cur.Proto() {
		if v, ok := cur.Own(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Descriptor returns the descriptor of an own property.
func (o *Object) Descriptor(name string) (Descriptor, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.slots[name]
	if !ok {
		return Descriptor{}, false
	}
	return s.desc, true
}

// Set assigns value to name. Existing slots keep their descriptor; new slots
// get DefaultDescriptor. Assigning to a non-writable slot fails.
func (o *Object) Set(name string, value any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.slots[name]; ok {
		if !s.desc.Writable {
			return fmt.Errorf("set %q: %w", name, ErrReadOnly)
		}
		s.value = value
		return nil
	}
	o.slots[name] = &slot{value: value, desc: DefaultDescriptor}
	return nil
}

// Define creates or redefines an own slot with an explicit descriptor.
// Redefining a non-configurable slot fails.
//
// Define is the raw primitive. Code that must be observable by the anti-tamper
// layer goes through Namespace.DefineProperty instead.
func (o *Object) Define(name string, value any, desc Descriptor) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.slots[name]; ok && !s.desc.Configurable {
		return fmt.Errorf("define %q: %w", name, ErrNotConfigurable)
	}
	o.slots[name] = &slot{value: value, desc: desc}
	return nil
}

// Delete removes an own slot. Non-configurable slots are kept and false is
// returned.
func (o *Object) Delete(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.slots[name]
	if !ok {
		return true
	}
	if !s.desc.Configurable {
		return false
	}
	delete(o.slots, name)
	return true
}

// Keys returns the enumerable own property names in sorted order.
func (o *Object) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	keys := make([]string, 0, len(o.slots))
	for k, s := range o.slots {
		if s.desc.Enumerable {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// OwnKeys returns every own property name, enumerable or not, sorted.
func (o *Object) OwnKeys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	keys := make([]string, 0, len(o.slots))
	for k := range o.slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Invoke looks up name (prototype chain included) and calls it with this
// bound to o.
func (o *Object) Invoke(name string, args ...any) (any, error) {
	v, _ := o.Get(name)
	fn, ok := v.(*Function)
	if !ok {
		return nil, fmt.Errorf("invoke %q: %w", name, ErrNotFunction)
	}
	return fn.Call(o, args...)
}
