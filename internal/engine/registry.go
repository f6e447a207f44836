package engine

import (
	"sort"
	"time"

	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/namespace"
)

// Status summarises the registry.
type Status struct {
	TotalRules  int                   `json:"total_rules"`
	ActiveRules int                   `json:"active_rules"`
	Rules       map[string]RuleStatus `json:"rules"`
}

// RuleStatus is the per-rule entry of Status.
type RuleStatus struct {
	ID      string `json:"id"`
	Active  bool   `json:"active"`
	Applied bool   `json:"applied"`
	Method  string `json:"method"`
	Kind    string `json:"kind"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

// RuleInfo is a point-in-time copy of a rule.
type RuleInfo struct {
	ID           string
	Path         string
	Method       string
	Kind         TargetKind
	ResolvedKind TargetKind
	State        RuleState
	Active       bool
	Applied      bool
	Original     *namespace.Function
	Wrapper      *namespace.Function
	LastError    error
	CreatedAt    time.Time
	AppliedAt    time.Time
}

// Register adds or replaces the rule for path.
//
// It returns false for an empty path, a path with an empty segment, an
// unknown kind, or a path that is mid-apply. Registering over an applied rule
// restores the original first. With AutoApply the rule is applied at once;
// an apply failure leaves the rule registered in the Failed state.
func (e *Engine) Register(path string, hook Hook) bool {
	segs, ok := splitPath(path)
	if !ok {
		e.debug("register refused", "path", path, "error", newInterceptError(ErrCodeInvalidRule, path, "empty path or segment", nil))
		return false
	}
	if hook.Kind < KindAuto || hook.Kind > KindConstructible {
		e.debug("register refused", "path", path, "error", newInterceptError(ErrCodeInvalidRule, path, "unknown kind", nil))
		return false
	}
	if !e.reentry.Enter(path) {
		e.debug("register refused", "path", path, "error", newInterceptError(ErrCodeReentrant, path, "path is busy", nil))
		return false
	}
	defer e.reentry.Leave(path)

	method := hook.Method
	if method == "" {
		method = segs[len(segs)-1]
	}

	if prev, found := e.lookup(path); found {
		e.restore(prev)
	}

	r := &Rule{
		ID:          e.ids.Generate(),
		Path:        path,
		Method:      method,
		Kind:        hook.Kind,
		Observers:   hook.Observers,
		MethodHooks: copyMethodHooks(hook.MethodHooks),
		State:       StateRegistered,
		CreatedAt:   e.clk.Now(),
	}
	r.active.Store(!hook.Inactive)

	e.mu.Lock()
	e.rules[path] = r
	e.mu.Unlock()

	e.emit(ir.EventRegistered, path, "kind="+hook.Kind.String()+" method="+method)
	e.debug("rule registered", "path", path, "id", r.ID)

	if e.cfg.AutoApply && r.Active() {
		e.apply(r)
	}
	return true
}

// RegisterBatch registers every definition and returns how many succeeded.
func (e *Engine) RegisterBatch(defs []Definition) int {
	n := 0
	for _, d := range defs {
		if e.Register(d.Path, d.Hook) {
			n++
		}
	}
	return n
}

// Unregister restores the original if applied and removes the rule. It
// returns false if no rule is registered or the path is busy.
func (e *Engine) Unregister(path string) bool {
	if !e.reentry.Enter(path) {
		e.debug("unregister refused", "path", path, "error", newInterceptError(ErrCodeReentrant, path, "path is busy", nil))
		return false
	}
	defer e.reentry.Leave(path)

	r, found := e.lookup(path)
	if !found {
		return false
	}
	e.restore(r)

	e.mu.Lock()
	if e.rules[path] == r {
		delete(e.rules, path)
	}
	e.mu.Unlock()

	e.emit(ir.EventUnregistered, path, "")
	e.debug("rule unregistered", "path", path)
	return true
}

// SetActive switches a rule on or off. Installed wrappers consult the flag
// on every call, so the change takes effect immediately.
func (e *Engine) SetActive(path string, active bool) bool {
	r, found := e.lookup(path)
	if !found {
		return false
	}
	if r.active.Swap(active) == active {
		return true
	}
	if active {
		e.emit(ir.EventActivated, path, "")
	} else {
		e.emit(ir.EventDeactivated, path, "")
	}
	return true
}

// Status returns a summary of every registered rule.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		TotalRules: len(e.rules),
		Rules:      make(map[string]RuleStatus, len(e.rules)),
	}
	for path, r := range e.rules {
		active := r.Active()
		if active {
			st.ActiveRules++
		}
		// ResolvedKind outlives the application that set it.
		kind := r.Kind
		if r.ResolvedKind != KindAuto {
			kind = r.ResolvedKind
		}
		rs := RuleStatus{
			ID:      r.ID,
			Active:  active,
			Applied: r.Applied(),
			Method:  r.Method,
			Kind:    kind.String(),
			State:   r.State.String(),
		}
		if r.LastError != nil {
			rs.Error = r.LastError.Error()
		}
		st.Rules[path] = rs
	}
	return st
}

// Rule returns a copy of the rule registered at path.
func (e *Engine) Rule(path string) (RuleInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rules[path]
	if !ok {
		return RuleInfo{}, false
	}
	return RuleInfo{
		ID:           r.ID,
		Path:         r.Path,
		Method:       r.Method,
		Kind:         r.Kind,
		ResolvedKind: r.ResolvedKind,
		State:        r.State,
		Active:       r.Active(),
		Applied:      r.Applied(),
		Original:     r.Original,
		Wrapper:      r.Wrapper,
		LastError:    r.LastError,
		CreatedAt:    r.CreatedAt,
		AppliedAt:    r.AppliedAt,
	}, true
}

// Paths returns every registered path in sorted order.
func (e *Engine) Paths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	paths := make([]string, 0, len(e.rules))
	for p := range e.rules {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (e *Engine) lookup(path string) (*Rule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[path]
	return r, ok
}

// trackedPath reports which rule protects (owner, name): an applied rule
// bound there, or a single-segment rule on the global object.
func (e *Engine) trackedPath(owner *namespace.Object, name string) (string, bool) {
	global := e.ns.Global()

	e.mu.Lock()
	defer e.mu.Unlock()

	for path, r := range e.rules {
		if r.Applied() && r.owner == owner && r.name == name {
			return path, true
		}
		if owner == global && path == name {
			return path, true
		}
	}
	return "", false
}

func copyMethodHooks(in map[string]Observers) map[string]Observers {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]Observers, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
