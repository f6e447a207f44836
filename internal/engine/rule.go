package engine

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/roach88/veil/internal/namespace"
)

// TargetKind routes a rule to the function wrapper or the constructor
// adapter.
type TargetKind int

const (
	// KindAuto detects the kind from the resolved value.
	KindAuto TargetKind = iota
	// KindFunction wraps the binding as a plain function.
	KindFunction
	// KindConstructible wraps the binding as a constructor and rewrites
	// instance methods.
	KindConstructible
)

func (k TargetKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindConstructible:
		return "constructible"
	default:
		return "auto"
	}
}

// ParseKind maps a rule-set kind string to a TargetKind.
func ParseKind(s string) (TargetKind, bool) {
	switch s {
	case "", "auto":
		return KindAuto, true
	case "function":
		return KindFunction, true
	case "constructible":
		return KindConstructible, true
	default:
		return KindAuto, false
	}
}

// RuleState is the lifecycle state of a rule.
type RuleState int

const (
	StateRegistered RuleState = iota
	StateResolving
	StateApplied
	StateFailed
	StateRestored
)

func (s RuleState) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateApplied:
		return "applied"
	case StateFailed:
		return "failed"
	case StateRestored:
		return "restored"
	default:
		return "registered"
	}
}

// BeforeFunc observes arguments before the original runs. A nil slice keeps
// the original arguments.
type BeforeFunc func(args []any, original *namespace.Function) ([]any, error)

// AfterFunc observes a successful result. A nil return keeps the result.
type AfterFunc func(result any, args []any, original *namespace.Function) (any, error)

// ErrorFunc observes a failure. A non-nil return replaces the failure with
// that value; nil lets the failure propagate.
type ErrorFunc func(cause error, args []any, original *namespace.Function) (any, error)

// Observers groups the three optional observer callbacks.
type Observers struct {
	Before  BeforeFunc
	After   AfterFunc
	OnError ErrorFunc
}

// Hook is the registration payload for a path.
type Hook struct {
	// Method is the intercepted method. For constructibles it names the
	// instance method to rewrite. Defaults to the last path segment.
	Method string

	// Kind overrides kind detection.
	Kind TargetKind

	Observers

	// MethodHooks are extra instance methods rewritten on constructed
	// instances, each with its own observers.
	MethodHooks map[string]Observers

	// Inactive registers the rule switched off.
	Inactive bool
}

// Definition pairs a path with a Hook for batch registration.
type Definition struct {
	Path string
	Hook Hook
}

// Rule is a registered intercept rule. Fields other than the activation
// flag are guarded by the engine's mutex.
type Rule struct {
	ID     string
	Path   string
	Method string
	Kind   TargetKind

	Observers
	MethodHooks map[string]Observers

	active atomic.Bool

	// Original is the captured binding; non-nil once applied successfully.
	Original *namespace.Function
	// Wrapper is the installed replacement; nil unless applied.
	Wrapper *namespace.Function

	ResolvedKind TargetKind
	State        RuleState
	LastError    error

	CreatedAt time.Time
	AppliedAt time.Time

	owner *namespace.Object
	name  string
}

// Active reports whether the rule is switched on.
func (r *Rule) Active() bool {
	return r.active.Load()
}

// Applied reports whether a wrapper is currently installed.
func (r *Rule) Applied() bool {
	return r.State == StateApplied && r.Wrapper != nil
}

// splitPath splits a dotted path and reports whether every segment is
// non-empty.
func splitPath(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, false
		}
	}
	return segs, true
}
