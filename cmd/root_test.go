// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/securai/internal/config"
	"github.com/xkilldash9x/securai/internal/observability"
)

// resetForTest clears the global state the root command builds up: the
// shared viper instance, the package-level config, and the logger.
func resetForTest(t *testing.T) {
	t.Helper()

	viper.Reset()
	cfgFile = ""
	appConfig = nil

	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
}

// executeCommand runs the command tree with the given args and returns the
// combined output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// executeCommandNoPreRun is for testing argument and flag validation without
// triggering config loading in PersistentPreRunE.
func executeCommandNoPreRun(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	root.PersistentPreRunE = nil
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// createTempConfig writes YAML to a temp file and returns its path.
func createTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)

	output, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, output, Version)
}

func TestRootCmd_NoArgsPrintsHelp(t *testing.T) {
	resetForTest(t)

	output, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, output, "securai")
	assert.Contains(t, output, "generate")
	assert.Contains(t, output, "track")
}

func TestPersistentPreRun_LoadsConfigFileAndEnv(t *testing.T) {
	resetForTest(t)

	cfgPath := createTempConfig(t, `
logger:
  level: error
pipeline:
  workers: 6
`)
	t.Setenv("SECURAI_PIPELINE_OUTPUT_DIR", "env-reports")

	output, err := executeCommand(t, "--config", cfgPath, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "securai "+Version)

	require.NotNil(t, appConfig)
	assert.Equal(t, 6, appConfig.Pipeline.Workers, "config file should override the default")
	assert.Equal(t, "env-reports", appConfig.Pipeline.OutputDir, "environment should override the default")
	assert.Equal(t, 45*time.Second, appConfig.Pipeline.DraftTimeout, "untouched keys keep their defaults")
}

func TestPersistentPreRun_InvalidConfigFails(t *testing.T) {
	resetForTest(t)

	cfgPath := createTempConfig(t, "pipeline:\n  workers: 99\n")

	_, err := executeCommand(t, "--config", cfgPath, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestPersistentPreRun_MissingExplicitConfigFails(t *testing.T) {
	resetForTest(t)

	_, err := executeCommand(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestPersistentPreRun_NoConfigFileUsesDefaults(t *testing.T) {
	resetForTest(t)

	// Point discovery at an empty home so no real config file leaks in.
	homedir.Reset()
	t.Setenv("HOME", t.TempDir())

	_, err := executeCommand(t, "version")
	require.NoError(t, err)

	require.NotNil(t, appConfig)
	assert.Equal(t, 4, appConfig.Pipeline.Workers)
	assert.Equal(t, ":8080", appConfig.API.ListenAddr)
	assert.Equal(t, config.TrackingFile, appConfig.Tracking.Backend)
}

func TestVersionCmd_PrintsBuildDetails(t *testing.T) {
	resetForTest(t)

	output, err := executeCommandNoPreRun(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "securai "+Version)
}
