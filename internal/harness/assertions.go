package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/veil/internal/engine"
	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/namespace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    []ir.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, describe(ev))
		}
	}

	return buf.String()
}

func describe(ev ir.Event) string {
	s := string(ev.Kind)
	if ev.Path != "" {
		s += " " + ev.Path
	}
	if ev.Detail != "" {
		s += " " + ev.Detail
	}
	return s
}

// matches reports whether ev has the given kind, and the given path and
// detail when they are non-empty.
func matches(ev ir.Event, kind ir.EventKind, path, detail string) bool {
	if ev.Kind != kind {
		return false
	}
	if path != "" && ev.Path != path {
		return false
	}
	return detail == "" || ev.Detail == detail
}

func matchDescription(kind ir.EventKind, path, detail string) string {
	s := string(kind)
	if path != "" {
		s += " at " + path
	}
	if detail != "" {
		s += fmt.Sprintf(" with detail %q", detail)
	}
	return s
}

// assertTraceContains checks that some event matches the assertion.
func assertTraceContains(trace []ir.Event, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a.Kind, a.Path, a.Detail) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: matchDescription(a.Kind, a.Path, a.Detail),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []ir.Event, a Assertion) error {
	pos := 0
	for i, want := range a.Events {
		found := false
		for pos < len(trace) {
			ev := trace[pos]
			pos++
			if matches(ev, want.Kind, want.Path, want.Detail) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events[%d] %s after events[%d]", i, matchDescription(want.Kind, want.Path, want.Detail), i-1),
				Actual:   "not found in order",
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(trace []ir.Event, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a.Kind, a.Path, a.Detail) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, matchDescription(a.Kind, a.Path, a.Detail)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertStatus checks the registry summary, and one rule's entry when Path
// is set.
func assertStatus(st engine.Status, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: AssertStatus, Expected: expected, Actual: actual}
	}

	if a.Total != nil && st.TotalRules != *a.Total {
		return fail(fmt.Sprintf("%d registered rules", *a.Total), fmt.Sprintf("%d", st.TotalRules))
	}
	if a.Path == "" {
		return nil
	}

	rs, found := st.Rules[a.Path]
	if a.Present != nil && *a.Present != found {
		return fail(fmt.Sprintf("rule %s present=%t", a.Path, *a.Present), fmt.Sprintf("present=%t", found))
	}
	if !found {
		if a.Present != nil {
			return nil
		}
		return fail(fmt.Sprintf("rule %s registered", a.Path), "not registered")
	}

	if a.Active != nil && rs.Active != *a.Active {
		return fail(fmt.Sprintf("rule %s active=%t", a.Path, *a.Active), fmt.Sprintf("active=%t", rs.Active))
	}
	if a.Applied != nil && rs.Applied != *a.Applied {
		return fail(fmt.Sprintf("rule %s applied=%t", a.Path, *a.Applied), fmt.Sprintf("applied=%t", rs.Applied))
	}
	if a.State != "" && rs.State != a.State {
		return fail(fmt.Sprintf("rule %s state=%s", a.Path, a.State), "state="+rs.State)
	}
	if a.Method != "" && rs.Method != a.Method {
		return fail(fmt.Sprintf("rule %s method=%s", a.Path, a.Method), "method="+rs.Method)
	}
	if a.RuleKind != "" && rs.Kind != a.RuleKind {
		return fail(fmt.Sprintf("rule %s kind=%s", a.Path, a.RuleKind), "kind="+rs.Kind)
	}
	return nil
}

// assertOriginalRestored checks that the binding at Path is the function the
// fixture installed there.
func assertOriginalRestored(actx *AssertionContext, a Assertion) error {
	original, ok := actx.Builtins[a.Path]
	if !ok {
		return fmt.Errorf("original_restored: no fixture function at %s", a.Path)
	}
	b, found := engine.Resolve(actx.Engine.Namespace().Global(), a.Path)
	if !found {
		return &AssertionError{
			Type:     AssertOriginalRestored,
			Expected: fmt.Sprintf("%s bound to the fixture function", a.Path),
			Actual:   "path did not resolve",
		}
	}
	if cur, isFn := b.Value.(*namespace.Function); !isFn || cur != original {
		return &AssertionError{
			Type:     AssertOriginalRestored,
			Expected: fmt.Sprintf("%s bound to the fixture function", a.Path),
			Actual:   fmt.Sprintf("bound to %v", b.Value),
		}
	}
	return nil
}

// AssertionContext provides what assertions need beyond the trace.
type AssertionContext struct {
	// Engine is the engine the scenario ran.
	Engine *engine.Engine

	// Builtins maps fixture paths to the functions first installed there.
	Builtins map[string]*namespace.Function
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter is needed only for original_restored assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertStatus:
			err = assertStatus(result.Status, assertion)
		case AssertOriginalRestored:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: original_restored requires engine context", i)
			} else {
				err = assertOriginalRestored(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
