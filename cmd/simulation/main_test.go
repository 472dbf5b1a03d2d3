package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMain_FailureLoggedToFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "simulation.log")
	cfgFile := filepath.Join(dir, "simulation.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
log:
  file: `+logFile+`
nats:
  enabled: true
  url: nats://127.0.0.1:1
  max_reconnects: 0
simulation:
  bars: 10
`), 0o644))

	assert.Equal(t, 1, runMain([]string{"-config", cfgFile}))

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "simulation failed")
}

func TestRunMain_BadConfig(t *testing.T) {
	assert.Equal(t, 2, runMain([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.Equal(t, 2, runMain([]string{"-unknown-flag"}))
}
