// Package future provides promise-like deferred values.
//
// A Future settles exactly once, either resolved with a value or rejected
// with an error. Settlement callbacks registered with Then run synchronously
// in the settling goroutine, in registration order, so a chain of derived
// futures settles in the same relative order as its sources.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrNilReason is the rejection reason used when Reject is given a nil error.
var ErrNilReason = errors.New("future: rejected without a reason")

// Thenable is any deferred value that reports its settlement.
type Thenable interface {
	Then(fn func(value any, err error))
}

// Future is a deferred value.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     any
	err       error
	callbacks []func(any, error)
}

// New creates a pending future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved creates a future already resolved with v.
func Resolved(v any) *Future {
	f := New()
	f.Resolve(v)
	return f
}

// Rejected creates a future already rejected with err.
func Rejected(err error) *Future {
	f := New()
	f.Reject(err)
	return f
}

// Resolve settles the future with v. It returns false if the future was
// already settled.
func (f *Future) Resolve(v any) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err. It returns false if the future was
// already settled.
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = ErrNilReason
	}
	return f.settle(nil, err)
}

func (f *Future) settle(v any, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// Then registers fn to run on settlement. If the future has already settled,
// fn runs immediately in the caller's goroutine.
func (f *Future) Then(fn func(value any, err error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

// Done returns a channel closed on settlement.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has settled.
func (f *Future) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Result returns the settlement. ok is false while pending.
func (f *Future) Result() (value any, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.settled
}

// Await blocks until the future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		v, err, _ := f.Result()
		return v, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// As reports whether v is a deferred value.
func As(v any) (Thenable, bool) {
	if v == nil {
		return nil, false
	}
	t, ok := v.(Thenable)
	return t, ok
}
