package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommandPassesWithoutGolden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "clamp.yaml", clampScenario)

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ random_clamp\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandHarnessTestdata(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "0 failed")
}

func TestTestCommandFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "clamp.yaml", clampScenario)
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_value")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "clamp.yaml", clampScenario)
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "cl*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
	assert.NotContains(t, out, "wrong_value")
}

func TestTestCommandInvalidFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "clamp.yaml", clampScenario)

	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandGoldenLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "clamp.yaml", clampScenario)
	goldenPath := filepath.Join(dir, "golden", "clamp.golden")

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ random_clamp (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"random_clamp"`)
	assert.Contains(t, string(golden), `{"detail":"0","kind":"return","path":"Math.random","seq":4}`)

	// The golden directory is not scanned for scenarios.
	out, _, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario_name":"random_clamp","trace":[]}`), 0644))
	out, _, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "clamp.yaml", clampScenario)
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandMissingDir(t *testing.T) {
	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: [unclosed\n")

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "failed to load scenario")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "a.golden"), goldenFilePath(filepath.Join("s", "a.yaml")))
	assert.Equal(t, filepath.Join("golden", "b.golden"), goldenFilePath("b.yml"))
}
