package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/veil/internal/compiler"
	"github.com/roach88/veil/internal/ir"
)

// Scenario defines a conformance test scenario.
// Scenarios build a namespace from fixtures, register rules against it,
// drive calls and tamper attempts, and assert on the resulting event trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Settings override the default engine configuration.
	Settings ir.Settings `yaml:"settings,omitempty"`

	// Fixtures populate the namespace before any rule is registered.
	Fixtures []Fixture `yaml:"fixtures"`

	// Rules are registered in order once the fixtures exist.
	Rules []ir.RuleSpec `yaml:"rules,omitempty"`

	// RulesFile is a CUE rule set, relative to the scenario file. Its
	// settings apply beneath Settings.
	RulesFile string `yaml:"rules_file,omitempty"`

	// Steps drive the engine and the namespace.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and engine status.
	Assertions []Assertion `yaml:"assertions"`

	// Session is a fixed session ID for deterministic traces.
	// Defaults to "test-session".
	Session string `yaml:"session,omitempty"`
}

// Fixture types.
const (
	FixtureConstant    = "constant"    // returns value
	FixtureEcho        = "echo"        // returns its first argument
	FixtureSum         = "sum"         // returns the sum of numeric arguments
	FixtureFail        = "fail"        // fails with value as the message
	FixtureDeferred    = "deferred"    // returns a pending future settled by resolve/reject steps
	FixtureConstructor = "constructor" // constructible; instances hold their first argument as "value"
	FixtureObject      = "object"      // empty container
	FixtureStandard    = "standard"    // the stock test namespace (Math, echo, fail, fetch, Thing, TextDecoder)
)

// Fixture describes one namespace binding.
type Fixture struct {
	// Path is the dotted binding path. Missing containers are created.
	Path string `yaml:"path"`

	// Type is one of the Fixture* constants.
	Type string `yaml:"type"`

	// Value is the constant result, or the failure message for "fail".
	Value any `yaml:"value,omitempty"`

	// Arity is the reported parameter count.
	Arity int `yaml:"arity,omitempty"`

	// Methods are prototype methods for constructors.
	Methods map[string]Method `yaml:"methods,omitempty"`
}

// Method types for constructor fixtures, in addition to the function types.
const (
	MethodSelf  = "self"  // returns the instance's value
	MethodScale = "scale" // returns its first argument times the instance's value
)

// Method describes one prototype method of a constructor fixture.
type Method struct {
	Type  string `yaml:"type"`
	Value any    `yaml:"value,omitempty"`
}

// Step types.
const (
	StepCall        = "call"
	StepNew         = "new"
	StepNewOriginal = "new_original"
	StepInvoke      = "invoke"
	StepRedefine    = "redefine"
	StepAdvance     = "advance"
	StepActivate    = "activate"
	StepDeactivate  = "deactivate"
	StepApply       = "apply"
	StepApplyAll    = "apply_all"
	StepReady       = "ready"
	StepUnregister  = "unregister"
	StepRegister    = "register"
	StepResolve     = "resolve"
	StepReject      = "reject"
	StepAwait       = "await"
	StepClose       = "close"
)

// Step is one action in a scenario. Which fields apply depends on Type.
type Step struct {
	Type string `yaml:"type"`

	// Path names the binding or rule the step targets.
	Path string `yaml:"path,omitempty"`

	// Args are call or construct arguments.
	Args []any `yaml:"args,omitempty"`

	// Save stores the step's value (result, instance or future) under a
	// name for later invoke and await steps.
	Save string `yaml:"save,omitempty"`

	// Target names a saved instance (invoke) or future (await).
	Target string `yaml:"target,omitempty"`

	// Method is the instance method for invoke.
	Method string `yaml:"method,omitempty"`

	// Fixture is the replacement installed by redefine.
	Fixture *Fixture `yaml:"fixture,omitempty"`

	// Duration advances the mock clock, e.g. "10s".
	Duration string `yaml:"duration,omitempty"`

	// Index selects the pending call of a deferred fixture (resolve, reject).
	Index int `yaml:"index,omitempty"`

	// Value settles a deferred call (resolve) or is the message (reject).
	Value any `yaml:"value,omitempty"`

	// Rule is registered by register steps.
	Rule *ir.RuleSpec `yaml:"rule,omitempty"`

	// Expect validates the step outcome. Nil skips validation.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Value is the expected result, compared numerically for numbers.
	Value any `yaml:"value,omitempty"`

	// Undefined expects a nil result.
	Undefined bool `yaml:"undefined,omitempty"`

	// Error expects a failure whose message contains this text.
	Error string `yaml:"error,omitempty"`

	// Blocked expects a redefinition to leave the binding unchanged (true)
	// or to replace it (false).
	Blocked *bool `yaml:"blocked,omitempty"`

	// OK is the expected boolean outcome of engine operations (apply,
	// activate, deactivate, unregister, register).
	OK *bool `yaml:"ok,omitempty"`

	// Count is the expected number of rules applied by apply_all or ready.
	Count *int `yaml:"count,omitempty"`

	// InstanceOf expects the constructed instance to be an instance of the
	// current binding at this path.
	InstanceOf string `yaml:"instance_of,omitempty"`

	// Deferred expects the call to return a future.
	Deferred bool `yaml:"deferred,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains    = "trace_contains"
	AssertTraceOrder       = "trace_order"
	AssertTraceCount       = "trace_count"
	AssertStatus           = "status"
	AssertOriginalRestored = "original_restored"
)

// Assertion validates the trace or engine state after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind is the event kind (trace_contains, trace_count).
	Kind ir.EventKind `yaml:"kind,omitempty"`

	// Path filters events (trace_*) or names the rule (status,
	// original_restored).
	Path string `yaml:"path,omitempty"`

	// Detail is the exact event detail (trace_contains). Empty matches any.
	Detail string `yaml:"detail,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected order (trace_order). Events need not be
	// consecutive.
	Events []EventMatch `yaml:"events,omitempty"`

	// Rule status fields (status). Unset fields are not checked.
	Present  *bool  `yaml:"present,omitempty"`
	Active   *bool  `yaml:"active,omitempty"`
	Applied  *bool  `yaml:"applied,omitempty"`
	State    string `yaml:"state,omitempty"`
	Method   string `yaml:"method,omitempty"`
	RuleKind string `yaml:"rule_kind,omitempty"`

	// Total is the expected number of registered rules (status).
	Total *int `yaml:"total,omitempty"`
}

// EventMatch selects events by kind and optional path and detail.
type EventMatch struct {
	Kind   ir.EventKind `yaml:"kind"`
	Path   string       `yaml:"path,omitempty"`
	Detail string       `yaml:"detail,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A rules_file is resolved relative to the scenario file and compiled.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.RulesFile != "" && !filepath.IsAbs(scenario.RulesFile) {
		scenario.RulesFile = filepath.Join(filepath.Dir(path), scenario.RulesFile)
	}
	if err := scenario.loadRulesFile(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML. A rules_file is not loaded.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// loadRulesFile compiles RulesFile and merges it into the scenario. Inline
// rules win over file rules with the same path; inline settings win over
// file settings.
func (s *Scenario) loadRulesFile() error {
	if s.RulesFile == "" {
		return nil
	}
	rs, err := compiler.CompileFile(s.RulesFile)
	if err != nil {
		return fmt.Errorf("rules_file: %w", err)
	}
	if errs := compiler.Validate(rs); len(errs) > 0 {
		return fmt.Errorf("rules_file: %w", errs[0])
	}

	inline := make(map[string]bool, len(s.Rules))
	for _, r := range s.Rules {
		inline[r.Path] = true
	}
	merged := make([]ir.RuleSpec, 0, len(rs.Rules)+len(s.Rules))
	for _, r := range rs.Rules {
		if !inline[r.Path] {
			merged = append(merged, r)
		}
	}
	s.Rules = append(merged, s.Rules...)
	s.Settings = mergeSettings(rs.Settings, s.Settings)
	s.RulesFile = ""
	return nil
}

func mergeSettings(base, over ir.Settings) ir.Settings {
	if over.StealthMode != nil {
		base.StealthMode = over.StealthMode
	}
	if over.DebugMode != nil {
		base.DebugMode = over.DebugMode
	}
	if over.AutoApply != nil {
		base.AutoApply = over.AutoApply
	}
	if over.AutoRestore != nil {
		base.AutoRestore = over.AutoRestore
	}
	if over.GuardWindow != "" {
		base.GuardWindow = over.GuardWindow
	}
	if over.GuardAllowance != nil {
		base.GuardAllowance = over.GuardAllowance
	}
	return base
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Fixtures) == 0 {
		return fmt.Errorf("fixtures list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, f := range s.Fixtures {
		if err := validateFixture(f); err != nil {
			return fmt.Errorf("fixtures[%d]: %w", i, err)
		}
	}

	if len(s.Rules) > 0 {
		if errs := compiler.Validate(&ir.RuleSet{Settings: s.Settings, Rules: s.Rules}); len(errs) > 0 {
			return fmt.Errorf("rules: %w", errs[0])
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}

func validateFixture(f Fixture) error {
	switch f.Type {
	case FixtureStandard:
		return nil
	case FixtureConstant, FixtureEcho, FixtureSum, FixtureFail, FixtureDeferred, FixtureObject:
		if len(f.Methods) > 0 {
			return fmt.Errorf("methods are only allowed on constructor fixtures")
		}
	case FixtureConstructor:
		for name, m := range f.Methods {
			if !validMethodType(m.Type) {
				return fmt.Errorf("method %s: unknown type %q", name, m.Type)
			}
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown fixture type %q", f.Type)
	}
	if f.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

func validMethodType(t string) bool {
	switch t {
	case FixtureConstant, FixtureEcho, FixtureSum, FixtureFail, MethodSelf, MethodScale:
		return true
	}
	return false
}

func validateStep(step Step) error {
	needPath := func() error {
		if step.Path == "" {
			return fmt.Errorf("path is required for %s", step.Type)
		}
		return nil
	}

	switch step.Type {
	case StepCall, StepNew, StepNewOriginal, StepActivate, StepDeactivate, StepApply, StepUnregister, StepResolve, StepReject:
		return needPath()
	case StepInvoke:
		if step.Target == "" || step.Method == "" {
			return fmt.Errorf("target and method are required for invoke")
		}
	case StepAwait:
		if step.Target == "" {
			return fmt.Errorf("target is required for await")
		}
	case StepRedefine:
		if err := needPath(); err != nil {
			return err
		}
		if step.Fixture == nil {
			return fmt.Errorf("fixture is required for redefine")
		}
		f := *step.Fixture
		f.Path = step.Path
		return validateFixture(f)
	case StepAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("invalid duration %q for advance", step.Duration)
		}
	case StepRegister:
		if step.Rule == nil {
			return fmt.Errorf("rule is required for register")
		}
		if errs := compiler.Validate(&ir.RuleSet{Rules: []ir.RuleSpec{*step.Rule}}); len(errs) > 0 {
			return fmt.Errorf("rule: %w", errs[0])
		}
	case StepApplyAll, StepReady, StepClose:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("kind is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("events list is required for trace_order")
		}
		for i, e := range a.Events {
			if e.Kind == "" {
				return fmt.Errorf("events[%d]: kind is required", i)
			}
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("kind is required for trace_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
	case AssertStatus:
		if a.Path == "" && a.Total == nil {
			return fmt.Errorf("path or total is required for status")
		}
	case AssertOriginalRestored:
		if a.Path == "" {
			return fmt.Errorf("path is required for original_restored")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
