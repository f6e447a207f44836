package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: test_scenario
description: "Test scenario for validation"
fixtures:
  - path: Math.random
    type: constant
    value: 0.5
rules:
  - path: Math.random
    after:
      - action: clamp
        args: { max: 0.1 }
steps:
  - type: call
    path: Math.random
assertions:
  - type: trace_contains
    kind: call
`

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), minimalScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	require.Len(t, scenario.Fixtures, 1)
	assert.Equal(t, "Math.random", scenario.Fixtures[0].Path)
	assert.Equal(t, 0.5, scenario.Fixtures[0].Value)
	require.Len(t, scenario.Rules, 1)
	assert.Equal(t, "clamp", scenario.Rules[0].After[0].Action)
	assert.Len(t, scenario.Steps, 1)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, t.TempDir(), minimalScenario+"flow_token: abc\n")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_RulesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.cue"), []byte(`
settings: guard_window: "3s"
rule: echo: after: [{action: "constant", value: "x"}]
rule: "Math.random": after: [{action: "scale", factor: 2}]
`), 0644))

	path := writeScenario(t, dir, `
name: from_file
description: "Rules come from CUE"
rules_file: rules.cue
settings:
  guard_window: 5s
fixtures:
  - type: standard
rules:
  - path: Math.random
    after:
      - action: clamp
        args: { max: 0 }
steps:
  - type: ready
assertions:
  - type: status
    total: 2
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Empty(t, scenario.RulesFile)
	assert.Equal(t, "5s", scenario.Settings.GuardWindow)
	require.Len(t, scenario.Rules, 2)
	assert.Equal(t, "echo", scenario.Rules[0].Path)
	assert.Equal(t, "Math.random", scenario.Rules[1].Path)
	assert.Equal(t, "clamp", scenario.Rules[1].After[0].Action, "inline rules win over file rules")
}

func TestLoadScenario_RulesFileInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.cue"), []byte(`
rule: echo: after: [{action: "explode"}]
`), 0644))
	path := writeScenario(t, dir, `
name: bad_file
description: "Rules file names an unknown action"
rules_file: rules.cue
fixtures:
  - type: standard
steps:
  - type: ready
assertions:
  - type: status
    total: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules_file")
}

func TestParseScenario_ValidationErrors(t *testing.T) {
	base := func(fixtures, rules, steps, assertions string) string {
		return "name: n\ndescription: d\n" + fixtures + rules + steps + assertions
	}
	okFixtures := "fixtures:\n  - { path: echo, type: echo }\n"
	okSteps := "steps:\n  - { type: call, path: echo }\n"
	okAssertions := "assertions:\n  - { type: trace_count, kind: call, count: 1 }\n"

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing name", "description: d\n" + okFixtures + okSteps + okAssertions, "name is required"},
		{"missing description", "name: n\n" + okFixtures + okSteps + okAssertions, "description is required"},
		{"no fixtures", base("", "", okSteps, okAssertions), "fixtures list is required"},
		{"no steps", base(okFixtures, "", "", okAssertions), "steps list is required"},
		{"no assertions", base(okFixtures, "", okSteps, ""), "assertions list is required"},
		{"unknown fixture type", base("fixtures:\n  - { path: x, type: widget }\n", "", okSteps, okAssertions), `unknown fixture type "widget"`},
		{"fixture without path", base("fixtures:\n  - { type: echo }\n", "", okSteps, okAssertions), "path is required"},
		{"methods on function", base("fixtures:\n  - { path: x, type: echo, methods: { m: { type: self } } }\n", "", okSteps, okAssertions), "only allowed on constructor"},
		{"bad method type", base("fixtures:\n  - { path: X, type: constructor, methods: { m: { type: nope } } }\n", "", okSteps, okAssertions), `unknown type "nope"`},
		{"invalid rule", base(okFixtures, "rules:\n  - { path: echo, kind: gadget }\n", okSteps, okAssertions), "rules:"},
		{"unknown step", base(okFixtures, "", "steps:\n  - { type: jump }\n", okAssertions), `unknown step type "jump"`},
		{"call without path", base(okFixtures, "", "steps:\n  - { type: call }\n", okAssertions), "path is required for call"},
		{"invoke without method", base(okFixtures, "", "steps:\n  - { type: invoke, target: w }\n", okAssertions), "target and method are required"},
		{"redefine without fixture", base(okFixtures, "", "steps:\n  - { type: redefine, path: echo }\n", okAssertions), "fixture is required"},
		{"bad duration", base(okFixtures, "", "steps:\n  - { type: advance, duration: soon }\n", okAssertions), "invalid duration"},
		{"register without rule", base(okFixtures, "", "steps:\n  - { type: register }\n", okAssertions), "rule is required"},
		{"await without target", base(okFixtures, "", "steps:\n  - { type: await }\n", okAssertions), "target is required"},
		{"unknown assertion", base(okFixtures, "", okSteps, "assertions:\n  - { type: final_state }\n"), `unknown assertion type "final_state"`},
		{"contains without kind", base(okFixtures, "", okSteps, "assertions:\n  - { type: trace_contains }\n"), "kind is required"},
		{"empty order", base(okFixtures, "", okSteps, "assertions:\n  - { type: trace_order }\n"), "events list is required"},
		{"negative count", base(okFixtures, "", okSteps, "assertions:\n  - { type: trace_count, kind: call, count: -1 }\n"), "non-negative"},
		{"status without target", base(okFixtures, "", okSteps, "assertions:\n  - { type: status }\n"), "path or total is required"},
		{"restored without path", base(okFixtures, "", okSteps, "assertions:\n  - { type: original_restored }\n"), "path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
