package ir

// Target kinds accepted in rule sets.
const (
	KindAuto          = "auto"
	KindFunction      = "function"
	KindConstructible = "constructible"
)

// ValidKinds lists the accepted values of RuleSpec.Kind. Empty means auto.
var ValidKinds = map[string]bool{
	"":                true,
	KindAuto:          true,
	KindFunction:      true,
	KindConstructible: true,
}

// Observer phases.
const (
	PhaseBefore  = "before"
	PhaseAfter   = "after"
	PhaseOnError = "on_error"
)

// ActionSpec names a catalog action and its arguments.
type ActionSpec struct {
	Action string         `json:"action" yaml:"action"`
	Args   map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// RuleSpec is the declarative form of an intercept rule.
type RuleSpec struct {
	// Path is the dotted path to the intercepted binding, e.g. "Math.random".
	Path string `json:"path" yaml:"path"`

	// Kind is "function", "constructible" or empty for auto-detection.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Method is the intercepted method name. For constructibles it names the
	// instance method to rewrite. Defaults to the last path segment.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// Methods holds additional instance method observers for constructibles.
	Methods map[string]MethodSpec `json:"methods,omitempty" yaml:"methods,omitempty"`

	Before  []ActionSpec `json:"before,omitempty" yaml:"before,omitempty"`
	After   []ActionSpec `json:"after,omitempty" yaml:"after,omitempty"`
	OnError []ActionSpec `json:"on_error,omitempty" yaml:"on_error,omitempty"`

	// Inactive registers the rule switched off.
	Inactive bool `json:"inactive,omitempty" yaml:"inactive,omitempty"`
}

// MethodSpec carries observer actions for one extra instance method.
type MethodSpec struct {
	Before  []ActionSpec `json:"before,omitempty" yaml:"before,omitempty"`
	After   []ActionSpec `json:"after,omitempty" yaml:"after,omitempty"`
	OnError []ActionSpec `json:"on_error,omitempty" yaml:"on_error,omitempty"`
}

// Settings overrides engine configuration. Nil fields keep the engine's
// value.
type Settings struct {
	StealthMode *bool `json:"stealth_mode,omitempty" yaml:"stealth_mode,omitempty"`
	DebugMode   *bool `json:"debug_mode,omitempty" yaml:"debug_mode,omitempty"`
	AutoApply   *bool `json:"auto_apply,omitempty" yaml:"auto_apply,omitempty"`
	AutoRestore *bool `json:"auto_restore,omitempty" yaml:"auto_restore,omitempty"`

	// GuardWindow is a Go duration string, e.g. "10s".
	GuardWindow string `json:"guard_window,omitempty" yaml:"guard_window,omitempty"`

	GuardAllowance *int `json:"guard_allowance,omitempty" yaml:"guard_allowance,omitempty"`
}

// RuleSet is a compiled collection of rules plus engine settings.
// Rules are sorted by Path.
type RuleSet struct {
	Settings Settings   `json:"settings" yaml:"settings"`
	Rules    []RuleSpec `json:"rules" yaml:"rules"`
}
