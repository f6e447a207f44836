package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/veil/internal/compiler"
)

func TestValidateValidFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.cue", validRules)

	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Equal(t, "✓ All rules valid (2)\n", out)
}

func TestValidateValidFileJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.cue", validRules)

	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Rules)
}

func TestValidateVerboseListsRules(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.cue", validRules)

	_, errOut, err := execute(NewValidateCommand(&RootOptions{Format: "text", Verbose: true}), path)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Compiled 2 rule(s)")
	assert.Contains(t, errOut, "  Math.random")
	assert.Contains(t, errOut, "  echo")
}

func TestValidateNonExistentPath(t *testing.T) {
	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestValidateInvalidRules(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.cue", `
rule: echo: after: [{action: "explode"}]
rule: "Math..random": after: [{action: "clamp", max: 0}]
`)

	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownAction)
	assert.Contains(t, out, compiler.ErrInvalidPath)
}

func TestValidateInvalidRulesJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.cue", `rule: echo: after: [{action: "explode"}]`)

	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "json"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "rule.echo.after[0]", resp.Data.Errors[0].Field)
	assert.Equal(t, compiler.ErrUnknownAction, resp.Error.Code)
}

func TestValidateEmptyRuleSet(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.cue", `settings: auto_apply: true`)

	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, compiler.ErrNoRules)
}

func TestValidateCompileError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.cue", `rule: echo: kind: "gadget"`)

	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeCompile)
}

func TestValidatePath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.cue", validRules)

	rs, errs, err := ValidatePath(path)
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, rs.Rules, 2)
	assert.Equal(t, "Math.random", rs.Rules[0].Path)
	assert.Equal(t, "5s", rs.Settings.GuardWindow)

	_, _, err = ValidatePath(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
