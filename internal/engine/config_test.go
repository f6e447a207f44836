package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/namespace"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "veil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.StealthMode)
	assert.False(t, cfg.DebugMode)
	assert.True(t, cfg.AutoApply)
	assert.False(t, cfg.AutoRestore)
	assert.Equal(t, 10*time.Second, cfg.GuardWindow)
	assert.Equal(t, 2, cfg.GuardAllowance)
	assert.Equal(t, DefaultConstructibleNames, cfg.ConstructibleNames)

	cfg.ConstructibleNames[0] = "Mutated"
	assert.Equal(t, "TextDecoder", DefaultConstructibleNames[0], "defaults are copied")
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
stealth_mode: false
debug_mode: true
guard_window: 3s
constructible_names: [Widget]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.False(t, cfg.StealthMode)
	assert.True(t, cfg.DebugMode)
	assert.True(t, cfg.AutoApply, "missing fields keep defaults")
	assert.Equal(t, 3*time.Second, cfg.GuardWindow)
	assert.Equal(t, 2, cfg.GuardAllowance)
	assert.Equal(t, []string{"Widget"}, cfg.ConstructibleNames)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "read config")
	})
	t.Run("unknown field", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "stealth: true\n"))
		assert.ErrorContains(t, err, "parse config")
	})
	t.Run("negative allowance", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "guard_allowance: -1\n"))
		assert.ErrorContains(t, err, "guard_allowance")
	})
}

func TestConfig_Merge(t *testing.T) {
	off := false
	allowance := 5
	cfg, err := DefaultConfig().Merge(ir.Settings{
		StealthMode:    &off,
		AutoApply:      &off,
		GuardWindow:    "1m",
		GuardAllowance: &allowance,
	})
	require.NoError(t, err)

	assert.False(t, cfg.StealthMode)
	assert.False(t, cfg.AutoApply)
	assert.False(t, cfg.DebugMode, "unset settings are left alone")
	assert.Equal(t, time.Minute, cfg.GuardWindow)
	assert.Equal(t, 5, cfg.GuardAllowance)

	_, err = DefaultConfig().Merge(ir.Settings{GuardWindow: "soon"})
	assert.ErrorContains(t, err, "guard_window")
}

func TestConfig_ConstructibleNamesDriveDetection(t *testing.T) {
	ns := namespace.New()
	widget := namespace.NewFunction(namespace.FunctionSpec{
		Name: "Widget",
		Construct: func([]any) (*namespace.Object, error) {
			return namespace.NewObject(), nil
		},
	})
	require.NoError(t, ns.Global().Set("Widget", widget))

	cfg := DefaultConfig()
	cfg.ConstructibleNames = []string{"Widget"}
	eng := New(ns, WithConfig(cfg))
	t.Cleanup(eng.Close)

	require.True(t, eng.Register("Widget", Hook{}))
	assert.Equal(t, "constructible", eng.Status().Rules["Widget"].Kind)
}
