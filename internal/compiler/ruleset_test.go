package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/veil/internal/ir"
)

func TestCompileSourceBasic(t *testing.T) {
	rs, err := CompileSource([]byte(`
		settings: {stealth_mode: true, auto_apply: true, guard_window: "5s", guard_allowance: 3}
		rule: {
			"Thing": {
				kind: "constructible"
				method: "compute"
				after: [{action: "scale", factor: 2}]
				methods: describe: after: [{action: "constant", value: "widget"}]
			}
			"Math.random": {kind: "function", after: [{action: "clamp", max: 0}]}
		}
	`), "rules.cue")
	require.NoError(t, err)

	require.NotNil(t, rs.Settings.StealthMode)
	assert.True(t, *rs.Settings.StealthMode)
	require.NotNil(t, rs.Settings.AutoApply)
	assert.True(t, *rs.Settings.AutoApply)
	assert.Nil(t, rs.Settings.DebugMode)
	assert.Equal(t, "5s", rs.Settings.GuardWindow)
	require.NotNil(t, rs.Settings.GuardAllowance)
	assert.Equal(t, 3, *rs.Settings.GuardAllowance)

	require.Len(t, rs.Rules, 2)
	assert.Equal(t, "Math.random", rs.Rules[0].Path, "rules are sorted by path")
	assert.Equal(t, "Thing", rs.Rules[1].Path)

	random := rs.Rules[0]
	assert.Equal(t, ir.KindFunction, random.Kind)
	require.Len(t, random.After, 1)
	assert.Equal(t, "clamp", random.After[0].Action)
	assert.Equal(t, map[string]any{"max": 0.0}, random.After[0].Args)

	thing := rs.Rules[1]
	assert.Equal(t, ir.KindConstructible, thing.Kind)
	assert.Equal(t, "compute", thing.Method)
	assert.Equal(t, map[string]any{"factor": 2.0}, thing.After[0].Args)
	require.Contains(t, thing.Methods, "describe")
	assert.Equal(t, "widget", thing.Methods["describe"].After[0].Args["value"])
}

func TestCompileSourceActionWithoutArgs(t *testing.T) {
	rs, err := CompileSource([]byte(`rule: echo: {before: [{action: "log_args"}], inactive: true}`), "rules.cue")
	require.NoError(t, err)
	require.Len(t, rs.Rules, 1)
	assert.True(t, rs.Rules[0].Inactive)
	assert.Nil(t, rs.Rules[0].Before[0].Args)
}

func TestCompileSourceNestedArgs(t *testing.T) {
	rs, err := CompileSource([]byte(`
		rule: fetch: after: [{action: "json_set", path: "user.flags", value: {admin: false, tags: ["a", "b"]}}]
	`), "rules.cue")
	require.NoError(t, err)
	value := rs.Rules[0].After[0].Args["value"]
	assert.Equal(t, map[string]any{"admin": false, "tags": []any{"a", "b"}}, value)
}

func TestCompileSourceEmpty(t *testing.T) {
	rs, err := CompileSource([]byte(`settings: debug_mode: true`), "rules.cue")
	require.NoError(t, err)
	assert.Empty(t, rs.Rules)
	require.NotNil(t, rs.Settings.DebugMode)
	assert.True(t, *rs.Settings.DebugMode)
}

func TestCompileSourceSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"bad kind", `rule: echo: kind: "class"`},
		{"unknown rule field", `rule: echo: priority: 1`},
		{"unknown top-level field", `rules: echo: {}`},
		{"action missing name", `rule: echo: after: [{max: 1}]`},
		{"negative allowance", `settings: guard_allowance: -1`},
		{"wrong settings type", `settings: stealth_mode: "yes"`},
		{"incomplete value", `rule: echo: method: string`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource([]byte(tt.src), "rules.cue")
			require.Error(t, err)
		})
	}
}

func TestCompileSourceSyntaxErrorHasPosition(t *testing.T) {
	_, err := CompileSource([]byte("rule: {\n  echo: {\n"), "broken.cue")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.cue")
	require.NoError(t, os.WriteFile(path, []byte(`rule: echo: after: [{action: "log_result"}]`), 0o644))

	rs, err := CompileFile(path)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, "echo", rs.Rules[0].Path)

	_, err = CompileFile(filepath.Join(dir, "missing.cue"))
	assert.Error(t, err)
}

func TestCompileDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "random.cue"),
		[]byte("package rules\n\nrule: \"Math.random\": after: [{action: \"clamp\", max: 0}]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.cue"),
		[]byte("package rules\n\nsettings: auto_apply: false\nrule: echo: {}\n"), 0o644))

	rs, err := CompileDir(dir)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 2)
	assert.Equal(t, "Math.random", rs.Rules[0].Path)
	assert.Equal(t, "echo", rs.Rules[1].Path)
	require.NotNil(t, rs.Settings.AutoApply)
	assert.False(t, *rs.Settings.AutoApply)
}

func TestCompileErrorFormatting(t *testing.T) {
	err := &CompileError{Field: "rule.echo", Message: "bad"}
	assert.Equal(t, "rule.echo: bad", err.Error())
}

func TestCompiledRuleSetHashIsStable(t *testing.T) {
	a, err := CompileSource([]byte(`rule: {b: {}, a: {after: [{action: "scale", factor: 2}]}}`), "a.cue")
	require.NoError(t, err)
	b, err := CompileSource([]byte(`rule: {a: {after: [{action: "scale", factor: 2}]}, b: {}}`), "b.cue")
	require.NoError(t, err)

	ha, err := ir.RuleSetHash(*a)
	require.NoError(t, err)
	hb, err := ir.RuleSetHash(*b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "field order in the source does not change the hash")
}
