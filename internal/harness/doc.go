// Package harness provides conformance testing for veil rule sets.
//
// A scenario builds a namespace from fixtures, registers intercept rules
// against it, drives calls and tamper attempts through the real engine, and
// asserts on the journal the engine wrote to the store.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: random_clamp
//	description: "Math.random is clamped to zero"
//	settings:
//	  guard_window: 5s
//	fixtures:
//	  - path: Math.random
//	    type: constant
//	    value: 0.5
//	rules:
//	  - path: Math.random
//	    kind: function
//	    after:
//	      - action: clamp
//	        args: { max: 0 }
//	steps:
//	  - type: call
//	    path: Math.random
//	    expect: { value: 0 }
//	assertions:
//	  - type: trace_contains
//	    kind: return
//	    path: Math.random
//	    detail: "0"
//
// Rules may instead come from a CUE file named by rules_file, resolved
// relative to the scenario.
//
// # Assertion Types
//
//   - trace_contains: an event with the kind (and path and detail, if given) exists
//   - trace_order: events appear in the given order, not necessarily adjacent
//   - trace_count: exactly N matching events exist
//   - status: the registry entry for a rule has the given fields
//   - original_restored: the binding holds the function the fixture installed
//
// # Deterministic Testing
//
// Every scenario runs with a mock clock starting at testutil.Epoch, a fixed
// session ID, counter rule IDs and a fresh in-memory SQLite store. The trace
// is read back from the store, so the same scenario always produces the
// same golden snapshot.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/random_clamp.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
