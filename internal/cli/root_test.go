package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/veil/internal/engine"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "veil", cmd.Use)
	assert.Contains(t, cmd.Long, "intercept rules")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "run", "test", "trace"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("log-file"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	dbFlag := runCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
	require.NotNil(t, runCmd.Flags().Lookup("session"))
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestTraceCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	traceCmd, _, err := cmd.Find([]string{"trace"})
	require.NoError(t, err)

	require.NotNil(t, traceCmd.Flags().Lookup("db"))
	require.NotNil(t, traceCmd.Flags().Lookup("session"))
	require.NotNil(t, traceCmd.Flags().Lookup("kind"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := execute(NewRootCommand(), "--format", "invalid", "validate", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootOptions_Logger(t *testing.T) {
	cmd := NewRootCommand()
	errBuf := &bytes.Buffer{}
	cmd.SetErr(errBuf)

	log, err := (&RootOptions{}).Logger(cmd)
	require.NoError(t, err)
	log.Info("quiet")
	assert.Empty(t, errBuf.String())

	log, err = (&RootOptions{Verbose: true}).Logger(cmd)
	require.NoError(t, err)
	log.Debug("loud", "path", "echo")
	assert.Contains(t, errBuf.String(), "loud")
	assert.Contains(t, errBuf.String(), "path=echo")

	logFile := filepath.Join(t.TempDir(), "veil.log")
	log, err = (&RootOptions{LogFile: logFile}).Logger(cmd)
	require.NoError(t, err)
	log.Info("to file", "rules", 2)
	require.NoError(t, log.Close())
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to file"`)
}

func TestRootOptions_EngineConfig(t *testing.T) {
	cfg, err := (&RootOptions{}).EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultConfig(), cfg)

	path := writeFile(t, t.TempDir(), "veil.yaml", "auto_apply: false\nguard_allowance: 4\n")
	cfg, err = (&RootOptions{ConfigPath: path}).EngineConfig()
	require.NoError(t, err)
	assert.False(t, cfg.AutoApply)
	assert.Equal(t, 4, cfg.GuardAllowance)
	assert.True(t, cfg.StealthMode)

	bad := writeFile(t, t.TempDir(), "bad.yaml", "flow_token: x\n")
	_, err = (&RootOptions{ConfigPath: bad}).EngineConfig()
	assert.Error(t, err)
}
