package engine

import "github.com/roach88/veil/internal/namespace"

// kindStrategy tries to decide the kind of a resolved callable.
type kindStrategy interface {
	tryDetect(name string, fn *namespace.Function) (kind TargetKind, ambiguous, ok bool)
}

// kindChain runs strategies in order; the first that answers wins. A chain
// with no answer routes to KindFunction.
type kindChain []kindStrategy

func newKindChain(strategies ...kindStrategy) kindChain {
	out := make(kindChain, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c kindChain) detect(name string, fn *namespace.Function) (TargetKind, bool) {
	for _, s := range c {
		if kind, ambiguous, ok := s.tryDetect(name, fn); ok {
			return kind, ambiguous
		}
	}
	return KindFunction, false
}

// allowList routes known host constructibles by name.
type allowList map[string]bool

func newAllowList(names []string) allowList {
	a := make(allowList, len(names))
	for _, n := range names {
		a[n] = true
	}
	return a
}

func (a allowList) tryDetect(name string, fn *namespace.Function) (TargetKind, bool, bool) {
	if a[name] && fn.IsConstructible() {
		return KindConstructible, false, true
	}
	return KindAuto, false, false
}

// structuralProbe treats a callable whose prototype points back at it as a
// constructible. The probe is a heuristic, so its answers are flagged
// ambiguous.
type structuralProbe struct{}

func (structuralProbe) tryDetect(_ string, fn *namespace.Function) (TargetKind, bool, bool) {
	if !fn.IsConstructible() {
		return KindAuto, false, false
	}
	proto := fn.Prototype()
	if proto == nil {
		return KindAuto, false, false
	}
	if ctor, ok := proto.Own("constructor"); ok && ctor == any(fn) {
		return KindConstructible, true, true
	}
	return KindAuto, false, false
}
