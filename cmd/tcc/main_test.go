package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "programs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tcc dev\n", out)
}

func TestProgramsValidate(t *testing.T) {
	path := writeFile(t, `programs:
  - sequence: red, yellow
    command: next_left 2
  - sequence: blue
    command: stop
  - sequence: red, yellow
    command: keep_right
`)

	out, errOut, err := execute(t, "programs", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "BLUE -> stop")
	assert.Contains(t, out, "RED-YELLOW -> keep_right")
	assert.Contains(t, out, "2 programs OK")
	assert.Contains(t, errOut, "RED-YELLOW replaces an earlier program")
}

func TestProgramsValidateRejectsBadFile(t *testing.T) {
	path := writeFile(t, `programs:
  - sequence: red, black
    command: stop
`)
	_, _, err := execute(t, "programs", "validate", path)
	assert.Error(t, err)

	_, _, err = execute(t, "programs", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProgramsValidateRejectsOverlongTrigger(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "tcc.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("decoder:\n  max_sequence_length: 2\n"), 0o600))
	path := writeFile(t, `programs:
  - sequence: red, yellow, blue
    command: stop
`)

	_, _, err := execute(t, "--config", cfgPath, "programs", "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RED-YELLOW-BLUE")

	out, _, err := execute(t, "programs", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 programs OK")
}

func TestProgramsFmt(t *testing.T) {
	path := writeFile(t, `programs:
  - {sequence: "RED,yellow", command: "NEXT_LEFT 2"}
`)
	out, _, err := execute(t, "programs", "fmt", path)
	require.NoError(t, err)
	assert.Contains(t, out, "command: next_left 2")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("speed:\n  cruise: 9\n"), 0o600))

	_, _, err := execute(t, "--config", path, "run", "--no-keyboard")
	assert.Error(t, err)
}
