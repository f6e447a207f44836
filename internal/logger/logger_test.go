package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewWriter_KeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug")

	log.Info("rule applied", "path", "Math.random", "active", true)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "rule applied", lines[0]["message"])
	assert.Equal(t, "Math.random", lines[0]["path"])
	assert.Equal(t, true, lines[0]["active"])
}

func TestNewWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestErr_IncludesError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info")

	log.Err(errors.New("boom"), "apply failed", "path", "fetch")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestWith_AddsContext(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With("component", "guard")

	log.Info("tick", "odd")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "guard", lines[0]["component"])
	assert.Equal(t, "(MISSING)", lines[0]["odd"])
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_UnknownWriter(t *testing.T) {
	_, err := New(Options{Writer: []string{"syslog"}})
	assert.Error(t, err)
}

func TestNew_FileWriterRequiresPath(t *testing.T) {
	_, err := New(Options{Writer: []string{"file"}})
	assert.Error(t, err)
}

func TestNew_FileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "veil.log")
	var console bytes.Buffer

	log, err := New(Options{Level: "info", Writer: []string{"console", "file"}, File: path, Console: &console})
	require.NoError(t, err)

	log.Info("hello", "k", "v")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, console.String(), "hello")
}

func TestClose_ReleasesLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "veil.log")

	log, err := New(Options{Writer: []string{"file"}, File: path})
	require.NoError(t, err)
	child := log.With("session", "s1")
	child.Info("before close")

	require.NoError(t, child.Close())
	require.NoError(t, log.Close(), "closing twice is harmless")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"before close"`)
	assert.Contains(t, string(data), `"session":"s1"`)
	require.NoError(t, os.Remove(path))
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Info("nothing")
	log.With("a", 1).Err(errors.New("x"), "nothing")
	assert.NoError(t, log.Close())
}
