package ir

// Version constants for the rule-set schema and engine.
const (
	// RuleSetVersion is the rule-set schema version.
	RuleSetVersion = "1"

	// EngineVersion is the veil engine version.
	EngineVersion = "0.3.0"
)
