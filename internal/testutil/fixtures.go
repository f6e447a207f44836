package testutil

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/veil/internal/future"
	"github.com/roach88/veil/internal/namespace"
)

// ErrFixture is returned by the "fail" fixture.
var ErrFixture = errors.New("fixture failure")

// RandomValue is what the Math.random fixture returns.
const RandomValue = 0.5

// Pending holds the futures returned by a deferred fixture, in call order,
// so tests can settle them in any order.
type Pending struct {
	mu      sync.Mutex
	futures []*future.Future
}

func (p *Pending) add() *future.Future {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := future.New()
	p.futures = append(p.futures, f)
	return f
}

func (p *Pending) at(i int) *future.Future {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.futures) {
		panic(fmt.Sprintf("testutil: no pending call %d (have %d)", i, len(p.futures)))
	}
	return p.futures[i]
}

// Len returns how many calls are recorded.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.futures)
}

// Resolve settles the i-th call with v.
func (p *Pending) Resolve(i int, v any) bool {
	return p.at(i).Resolve(v)
}

// Reject settles the i-th call with err.
func (p *Pending) Reject(i int, err error) bool {
	return p.at(i).Reject(err)
}

// NewDeferredFunc returns a function whose every call returns a new pending
// future recorded in the returned Pending.
func NewDeferredFunc(name string, arity int) (*namespace.Function, *Pending) {
	p := &Pending{}
	fn := namespace.NewNative(name, arity, func(any, []any) (any, error) {
		return p.add(), nil
	})
	return fn, p
}

// NewThing builds the Thing constructor. Instances store their first
// argument as "factor" (default 1); compute(x) returns x*factor and
// describe() returns "thing".
func NewThing() *namespace.Function {
	proto := namespace.NewObject()
	_ = proto.Define("compute", namespace.NewNative("compute", 1, func(this any, args []any) (any, error) {
		self, ok := this.(*namespace.Object)
		if !ok {
			return nil, errors.New("compute: illegal invocation")
		}
		x, _ := Number(arg(args, 0))
		factor := 1.0
		if v, found := self.Get("factor"); found {
			if f, isNum := Number(v); isNum {
				factor = f
			}
		}
		return x * factor, nil
	}), namespace.Descriptor{Writable: true, Configurable: true})
	_ = proto.Define("describe", namespace.NewNative("describe", 0, func(any, []any) (any, error) {
		return "thing", nil
	}), namespace.Descriptor{Writable: true, Configurable: true})

	return namespace.NewConstructor("Thing", 1, proto, func(self *namespace.Object, args []any) error {
		factor := 1.0
		if f, ok := Number(arg(args, 0)); ok {
			factor = f
		}
		return self.Set("factor", factor)
	})
}

// NewTextDecoder builds a constructible whose instances decode by returning
// their input unchanged.
func NewTextDecoder() *namespace.Function {
	proto := namespace.NewObject()
	_ = proto.Define("decode", namespace.NewNative("decode", 1, func(_ any, args []any) (any, error) {
		return fmt.Sprint(arg(args, 0)), nil
	}), namespace.Descriptor{Writable: true, Configurable: true})
	return namespace.NewConstructor("TextDecoder", 0, proto, nil)
}

// Fixture is a populated namespace:
//
//	Math.random()   returns RandomValue
//	Math.max(a, b)  returns the larger number
//	echo(x)         returns x
//	fail()          returns ErrFixture
//	fetch(url)      returns a pending future (see Pending)
//	Thing           see NewThing
//	TextDecoder     see NewTextDecoder
type Fixture struct {
	NS      *namespace.Namespace
	Pending *Pending
}

// NewFixture builds a fresh Fixture.
func NewFixture() *Fixture {
	ns := namespace.New()
	return &Fixture{NS: ns, Pending: Populate(ns.Global())}
}

// Populate installs the Fixture bindings on root and returns the Pending of
// its fetch.
func Populate(root *namespace.Object) *Pending {
	math := namespace.NewObject()
	_ = math.Set("random", namespace.NewNative("random", 0, func(any, []any) (any, error) {
		return RandomValue, nil
	}))
	_ = math.Set("max", namespace.NewNative("max", 2, func(_ any, args []any) (any, error) {
		a, _ := Number(arg(args, 0))
		b, _ := Number(arg(args, 1))
		if a > b {
			return a, nil
		}
		return b, nil
	}))
	_ = root.Set("Math", math)

	_ = root.Set("echo", namespace.NewNative("echo", 1, func(_ any, args []any) (any, error) {
		return arg(args, 0), nil
	}))
	_ = root.Set("fail", namespace.NewNative("fail", 0, func(any, []any) (any, error) {
		return nil, ErrFixture
	}))

	fetch, pending := NewDeferredFunc("fetch", 1)
	_ = root.Set("fetch", fetch)
	_ = root.Set("Thing", NewThing())
	_ = root.Set("TextDecoder", NewTextDecoder())

	return pending
}

// Number converts the numeric kinds fixtures deal in to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}
