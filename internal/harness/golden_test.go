package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/veil/internal/ir"
)

// Golden files live in testdata/golden. Regenerate with:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{
		"random_clamp",
		"guard_redefine",
		"deferred_scale",
		"restore_unregister",
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			requirePass(t, result)
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/random_clamp.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	require.NoError(t, AssertGolden(t, "random_clamp", result))
}

func TestMarshalSnapshot(t *testing.T) {
	result := NewResult("s1")
	result.Trace = []ir.Event{
		{Seq: 1, Session: "s1", Kind: ir.EventCall, Path: "echo", Detail: `["<a>"]`},
		{Seq: 2, Session: "s1", Kind: ir.EventRestored, Path: "echo"},
	}

	data, err := MarshalSnapshot("snap", result)
	require.NoError(t, err)

	want := `{"scenario_name":"snap","session":"s1","trace":[` +
		`{"detail":"[\"<a>\"]","kind":"call","path":"echo","seq":1},` +
		`{"kind":"restored","path":"echo","seq":2}]}`
	assert.Equal(t, want, string(data))
}

func TestMarshalSnapshot_EmptyTrace(t *testing.T) {
	data, err := MarshalSnapshot("empty", NewResult(""))
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"empty","trace":[]}`, string(data))
}
