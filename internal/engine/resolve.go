package engine

import "github.com/roach88/veil/internal/namespace"

// Binding is a resolved path: the owning container, the final property name
// and the value currently stored there.
type Binding struct {
	Owner *namespace.Object
	Name  string
	Value any
}

// Resolve walks path from root. It fails the moment any segment is absent
// or an intermediate value is not a container. Missing paths are reported
// through ok, never as an error.
func Resolve(root *namespace.Object, path string) (Binding, bool) {
	segs, ok := splitPath(path)
	if !ok || root == nil {
		return Binding{}, false
	}

	owner := root
	for _, seg := range segs[:len(segs)-1] {
		v, found := owner.Get(seg)
		if !found {
			return Binding{}, false
		}
		next, isContainer := namespace.Container(v)
		if !isContainer {
			return Binding{}, false
		}
		owner = next
	}

	name := segs[len(segs)-1]
	v, found := owner.Get(name)
	if !found {
		return Binding{}, false
	}
	return Binding{Owner: owner, Name: name, Value: v}, true
}
