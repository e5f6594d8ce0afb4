package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edgewatt/powerexporter/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	// Create a temporary settings file
	tempDir, err := os.MkdirTemp("", "config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	settingsContent := []byte(`
config_server_url = "http://config.example:8080"
config_timeout = 10
local_config_path = "/var/lib/powerexporter/config.yaml"
device_id = "bench-rig-01"
log_level = "debug"
`)
	settingsPath := filepath.Join(tempDir, "powerexporter.toml")
	err = os.WriteFile(settingsPath, settingsContent, 0o600)
	require.NoError(t, err)

	// Point the loader at the test settings file
	t.Setenv("POWEREXPORTER_CONFIG", settingsPath)

	settings, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://config.example:8080", settings.ServerURL, "Expected ServerURL from file")
	assert.Equal(t, 10, settings.TimeoutSeconds, "Expected TimeoutSeconds 10")
	assert.Equal(t, "/var/lib/powerexporter/config.yaml", settings.LocalConfigPath, "Expected LocalConfigPath from file")
	assert.Equal(t, "bench-rig-01", settings.DeviceID, "Expected DeviceID bench-rig-01")
	assert.Equal(t, "debug", settings.LogLevel, "Expected LogLevel debug")
}

func TestLoadSettingsDefaults(t *testing.T) {
	// Ensure no settings file is used
	t.Setenv("POWEREXPORTER_CONFIG", "")

	settings, err := config.Load()
	require.NoError(t, err, "Failed to load settings")

	assert.Equal(t, config.DefaultServerURL, settings.ServerURL, "Expected default ServerURL")
	assert.Equal(t, config.DefaultTimeoutSeconds, settings.TimeoutSeconds, "Expected default TimeoutSeconds")
	assert.Equal(t, config.DefaultLocalConfigPath, settings.LocalConfigPath, "Expected default LocalConfigPath")
	assert.Equal(t, config.DefaultLogLevel, settings.LogLevel, "Expected default LogLevel info")

	hostname, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, hostname, settings.DeviceID, "Expected DeviceID to default to the hostname")
}

func TestLoadSettingsInvalidFormat(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	settingsContent := []byte(`
This is not a valid TOML file
`)
	settingsPath := filepath.Join(tempDir, "powerexporter.toml")
	err = os.WriteFile(settingsPath, settingsContent, 0o600)
	require.NoError(t, err)

	t.Setenv("POWEREXPORTER_CONFIG", settingsPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestInvalidLogLevel(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	settingsContent := []byte(`
log_level = "invalid"
`)
	settingsPath := filepath.Join(tempDir, "powerexporter.toml")
	err = os.WriteFile(settingsPath, settingsContent, 0o600)
	require.NoError(t, err)

	t.Setenv("POWEREXPORTER_CONFIG", settingsPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_log_level")
}

func TestLogLevelFlag(t *testing.T) {
	// Save original args and restore after test
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	t.Setenv("POWEREXPORTER_CONFIG", "")
	os.Args = []string{"cmd", "--log-level", "debug"}

	settings, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", settings.LogLevel, "Expected LogLevel to be set by flag")
}

func TestSettingsPrecedence(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	settingsContent := []byte(`
config_timeout = 30
log_level = "error"
`)
	settingsPath := filepath.Join(tempDir, "powerexporter.toml")
	err = os.WriteFile(settingsPath, settingsContent, 0o600)
	require.NoError(t, err)

	t.Setenv("POWEREXPORTER_CONFIG", settingsPath)
	t.Setenv("POWEREXPORTER_LOG_LEVEL", "warning")

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"cmd", "--config-timeout", "3"}

	settings, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 3, settings.TimeoutSeconds, "Expected flag to override the file value")
	assert.Equal(t, "warning", settings.LogLevel, "Expected environment to override the file value")
}
