package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/veil/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string     `json:"scenario_name"`
	Session      string     `json:"session,omitempty"`
	Trace        []ir.Event `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. Event sessions are dropped; the snapshot carries it
// once.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		traceList[i] = ev.Canonical()
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.Session != "" {
		result["session"] = s.Session
	}
	return result
}

// MarshalSnapshot returns the canonical JSON snapshot of a result's trace.
// Identical runs produce identical bytes.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Session:      result.Session,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
