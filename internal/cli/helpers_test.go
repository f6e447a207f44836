package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const clampScenario = `name: random_clamp
description: "Math.random is clamped to zero"
fixtures:
  - { path: Math.random, type: constant, value: 0.5 }
rules:
  - path: Math.random
    kind: function
    after: [{ action: clamp, args: { max: 0 } }]
steps:
  - { type: call, path: Math.random, expect: { value: 0 } }
assertions:
  - { type: trace_contains, kind: return, path: Math.random, detail: "0" }
`

const failingScenario = `name: wrong_value
description: "Expects the unclamped value"
fixtures:
  - { path: Math.random, type: constant, value: 0.5 }
rules:
  - path: Math.random
    after: [{ action: clamp, args: { max: 0 } }]
steps:
  - { type: call, path: Math.random, expect: { value: 0.5 } }
assertions:
  - { type: trace_count, kind: call, count: 1 }
`

const validRules = `settings: guard_window: "5s"
rule: "Math.random": after: [{action: "clamp", max: 0}]
rule: echo: before: [{action: "prefix_arg", index: 0, prefix: ">"}]
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns its stdout, stderr and error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
