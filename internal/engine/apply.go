package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/namespace"
)

// ApplyAll applies every active, unapplied rule in path order, then
// activates the anti-tamper guard when stealth mode is on. It returns the
// number of rules applied by this call.
func (e *Engine) ApplyAll() int {
	e.mu.Lock()
	pending := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.Active() && !r.Applied() {
			pending = append(pending, r)
		}
	}
	e.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].Path < pending[j].Path })

	applied := 0
	for _, r := range pending {
		if !e.reentry.Enter(r.Path) {
			e.debug("apply skipped", "path", r.Path, "error", newInterceptError(ErrCodeReentrant, r.Path, "path is busy", nil))
			continue
		}
		if e.apply(r) {
			applied++
		}
		e.reentry.Leave(r.Path)
	}

	if e.cfg.StealthMode {
		e.guard.Activate()
	}
	e.debug("apply all", "applied", applied, "pending", len(pending))
	return applied
}

// ApplyOne applies the rule at path, whether or not it is active. Applying
// an already installed rule is a no-op that returns true.
func (e *Engine) ApplyOne(path string) bool {
	r, found := e.lookup(path)
	if !found {
		return false
	}
	if !e.reentry.Enter(path) {
		e.debug("apply refused", "path", path, "error", newInterceptError(ErrCodeReentrant, path, "path is busy", nil))
		return false
	}
	defer e.reentry.Leave(path)
	return e.apply(r)
}

// RestoreAll puts back every captured original and returns how many rules
// were restored. Rules stay registered.
func (e *Engine) RestoreAll() int {
	n := 0
	for _, path := range e.Paths() {
		r, found := e.lookup(path)
		if !found || !e.reentry.Enter(path) {
			continue
		}
		if e.restore(r) {
			n++
		}
		e.reentry.Leave(path)
	}
	return n
}

// apply drives one rule through Resolving to Applied or Failed. The caller
// holds the path in the reentry guard.
func (e *Engine) apply(r *Rule) bool {
	e.mu.Lock()
	if e.rules[r.Path] != r {
		e.mu.Unlock()
		return false
	}
	if r.Applied() {
		owner, name, wrapper := r.owner, r.name, r.Wrapper
		e.mu.Unlock()
		return e.reinstall(r, owner, name, wrapper)
	}
	r.State = StateResolving
	e.mu.Unlock()

	b, ok := Resolve(e.ns.Global(), r.Path)
	if !ok {
		return e.fail(r, newInterceptError(ErrCodePathNotFound, r.Path, "path did not resolve", nil))
	}
	original, ok := b.Value.(*namespace.Function)
	if !ok {
		return e.fail(r, newInterceptError(ErrCodeNotCallable, r.Path, fmt.Sprintf("resolved value is %T", b.Value), nil))
	}

	kind := r.Kind
	if kind == KindAuto {
		var ambiguous bool
		kind, ambiguous = e.kinds.detect(b.Name, original)
		if ambiguous {
			e.log.Warn("constructible detected structurally", "path", r.Path, "name", b.Name)
		}
	}
	e.mu.Lock()
	r.ResolvedKind = kind
	e.mu.Unlock()

	if kind == KindConstructible && !original.IsConstructible() {
		return e.fail(r, newInterceptError(ErrCodeNotCallable, r.Path, "value is not constructible", nil))
	}

	var wrapper *namespace.Function
	if kind == KindConstructible {
		wrapper = e.buildConstructorWrapper(original, r)
	} else {
		wrapper = e.buildFunctionWrapper(original, r)
	}

	if err := e.install(b.Owner, b.Name, wrapper); err != nil {
		return e.fail(r, newInterceptError(ErrCodeNotCallable, r.Path, "install failed", err))
	}

	e.mu.Lock()
	r.Original = original
	r.Wrapper = wrapper
	r.State = StateApplied
	r.LastError = nil
	r.AppliedAt = e.clk.Now()
	r.owner = b.Owner
	r.name = b.Name
	e.mu.Unlock()

	e.emit(ir.EventApplied, r.Path, "kind="+kind.String())
	e.debug("rule applied", "path", r.Path, "kind", kind.String())
	return true
}

// reinstall keeps apply idempotent: the same wrapper goes back only if the
// binding no longer holds it.
func (e *Engine) reinstall(r *Rule, owner *namespace.Object, name string, wrapper *namespace.Function) bool {
	if cur, ok := owner.Own(name); ok && cur == any(wrapper) {
		return true
	}
	if err := e.install(owner, name, wrapper); err != nil {
		e.debug("reinstall failed", "path", r.Path, "error", err)
		return false
	}
	e.emit(ir.EventApplied, r.Path, "reinstalled")
	return true
}

func (e *Engine) fail(r *Rule, err *InterceptError) bool {
	e.mu.Lock()
	r.State = StateFailed
	r.LastError = err
	e.mu.Unlock()

	e.emit(ir.EventApplyFailed, r.Path, string(err.Code))
	e.debug("rule failed", "path", r.Path, "error", err)
	return false
}

// install writes value at owner.name. Stealth installs go through the
// captured definition primitive and keep the slot's attributes; plain
// assignment is the fallback.
func (e *Engine) install(owner *namespace.Object, name string, value any) error {
	if e.cfg.StealthMode {
		desc, ok := owner.Descriptor(name)
		if !ok {
			desc = namespace.DefaultDescriptor
		}
		_, err := e.define(owner, name, value, desc)
		if err == nil {
			return nil
		}
		e.debug("stealth install failed, assigning", "property", name, "error", err)
	}
	return owner.Set(name, value)
}

// restore puts the captured original back and moves the rule to Restored.
// It returns false if the rule was not applied. The caller holds the path in
// the reentry guard.
func (e *Engine) restore(r *Rule) bool {
	e.mu.Lock()
	if !r.Applied() {
		e.mu.Unlock()
		return false
	}
	owner, name, original := r.owner, r.name, r.Original
	e.mu.Unlock()

	if err := owner.Set(name, original); err != nil {
		desc, ok := owner.Descriptor(name)
		if !ok {
			desc = namespace.DefaultDescriptor
		}
		if _, derr := e.define(owner, name, original, desc); derr != nil {
			e.debug("restore failed", "path", r.Path, "error", derr)
		}
	}

	e.mu.Lock()
	r.Wrapper = nil
	r.AppliedAt = time.Time{}
	r.State = StateRestored
	e.mu.Unlock()

	e.emit(ir.EventRestored, r.Path, "")
	e.debug("rule restored", "path", r.Path)
	return true
}
