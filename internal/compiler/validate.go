package compiler

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/veil/internal/actions"
	"github.com/roach88/veil/internal/ir"
)

// Validation error codes (E200-E209)
const (
	ErrNoRules           = "E200" // rule set has no rules
	ErrInvalidPath       = "E201" // empty path or malformed segment
	ErrDuplicatePath     = "E202" // path registered twice
	ErrInvalidKind       = "E203" // kind not auto/function/constructible
	ErrUnknownAction     = "E204" // action not in the phase's catalog
	ErrInvalidActionArgs = "E205" // action arguments rejected by the catalog
	ErrMethodsOnFunction = "E206" // methods given for a function rule
	ErrInvalidMethodName = "E207" // method or methods key is not an identifier
	ErrInvalidWindow     = "E208" // guard_window unparsable or negative
	ErrInvalidAllowance  = "E209" // guard_allowance negative
)

// ValidationError represents a rule-set validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var (
	// segmentPattern matches one path segment: an identifier as it would
	// appear in a property access.
	segmentPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
)

// Validate checks a compiled rule set. Returns all errors found (does not
// fail-fast).
func Validate(rs *ir.RuleSet) []ValidationError {
	var errs []ValidationError
	if rs == nil || len(rs.Rules) == 0 {
		errs = append(errs, ValidationError{
			Field:   "rule",
			Message: "at least one rule is required",
			Code:    ErrNoRules,
		})
		if rs == nil {
			return errs
		}
	}

	errs = append(errs, validateSettings(rs.Settings)...)

	seen := make(map[string]bool, len(rs.Rules))
	for _, spec := range rs.Rules {
		field := "rule." + quoteField(spec.Path)

		if seen[spec.Path] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate rule path %q", spec.Path),
				Code:    ErrDuplicatePath,
			})
		}
		seen[spec.Path] = true

		errs = append(errs, validateRule(field, spec)...)
	}
	return errs
}

func validateSettings(s ir.Settings) []ValidationError {
	var errs []ValidationError
	if s.GuardWindow != "" {
		d, err := time.ParseDuration(s.GuardWindow)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{
				Field:   "settings.guard_window",
				Message: fmt.Sprintf("invalid duration %q", s.GuardWindow),
				Code:    ErrInvalidWindow,
			})
		case d < 0:
			errs = append(errs, ValidationError{
				Field:   "settings.guard_window",
				Message: "guard window must not be negative",
				Code:    ErrInvalidWindow,
			})
		}
	}
	if s.GuardAllowance != nil && *s.GuardAllowance < 0 {
		errs = append(errs, ValidationError{
			Field:   "settings.guard_allowance",
			Message: "guard allowance must not be negative",
			Code:    ErrInvalidAllowance,
		})
	}
	return errs
}

func validateRule(field string, spec ir.RuleSpec) []ValidationError {
	var errs []ValidationError

	if !isValidPath(spec.Path) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid path %q, expected dotted identifiers like \"Math.random\"", spec.Path),
			Code:    ErrInvalidPath,
		})
	}

	if !ir.ValidKinds[spec.Kind] {
		errs = append(errs, ValidationError{
			Field:   field + ".kind",
			Message: fmt.Sprintf("invalid kind %q, must be \"auto\", \"function\" or \"constructible\"", spec.Kind),
			Code:    ErrInvalidKind,
		})
	}

	if spec.Method != "" && !segmentPattern.MatchString(spec.Method) {
		errs = append(errs, ValidationError{
			Field:   field + ".method",
			Message: fmt.Sprintf("invalid method name %q", spec.Method),
			Code:    ErrInvalidMethodName,
		})
	}

	errs = append(errs, validateActions(field+".before", ir.PhaseBefore, spec.Before)...)
	errs = append(errs, validateActions(field+".after", ir.PhaseAfter, spec.After)...)
	errs = append(errs, validateActions(field+".on_error", ir.PhaseOnError, spec.OnError)...)

	if len(spec.Methods) > 0 && spec.Kind == ir.KindFunction {
		errs = append(errs, ValidationError{
			Field:   field + ".methods",
			Message: "methods only apply to constructible targets",
			Code:    ErrMethodsOnFunction,
		})
	}
	for _, name := range ir.SortedKeys(spec.Methods) {
		m := spec.Methods[name]
		mfield := field + ".methods." + name
		if !segmentPattern.MatchString(name) {
			errs = append(errs, ValidationError{
				Field:   mfield,
				Message: fmt.Sprintf("invalid method name %q", name),
				Code:    ErrInvalidMethodName,
			})
		}
		errs = append(errs, validateActions(mfield+".before", ir.PhaseBefore, m.Before)...)
		errs = append(errs, validateActions(mfield+".after", ir.PhaseAfter, m.After)...)
		errs = append(errs, validateActions(mfield+".on_error", ir.PhaseOnError, m.OnError)...)
	}

	return errs
}

func validateActions(field, phase string, list []ir.ActionSpec) []ValidationError {
	var errs []ValidationError
	for i, a := range list {
		afield := fmt.Sprintf("%s[%d]", field, i)
		if !actions.Known(phase, a.Action) {
			errs = append(errs, ValidationError{
				Field:   afield,
				Message: fmt.Sprintf("unknown %s action %q (known: %s)", phase, a.Action, strings.Join(actions.Names(phase), ", ")),
				Code:    ErrUnknownAction,
			})
			continue
		}
		if err := actions.Check(phase, a); err != nil {
			errs = append(errs, ValidationError{
				Field:   afield,
				Message: err.Error(),
				Code:    ErrInvalidActionArgs,
			})
		}
	}
	return errs
}

// isValidPath checks that every dotted segment is an identifier.
func isValidPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, ".") {
		if !segmentPattern.MatchString(seg) {
			return false
		}
	}
	return true
}

// quoteField renders a path as a CUE field selector.
func quoteField(path string) string {
	if segmentPattern.MatchString(path) {
		return path
	}
	return fmt.Sprintf("%q", path)
}
