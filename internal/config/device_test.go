package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgewatt/powerexporter/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDeviceConfigTableForm(t *testing.T) {
	doc := []byte(`
device_type: jetson_orin
interval: 10
metrics:
  jetson_temp_cpu_celsius: true
  jetson_power_total_watts: false
`)

	cfg := &config.Device{}
	require.NoError(t, yaml.Unmarshal(doc, cfg))

	assert.Equal(t, "jetson_orin", cfg.DeviceType)
	assert.Equal(t, 10, cfg.Interval)
	assert.Equal(t, config.MetricsTable{
		"jetson_temp_cpu_celsius":  true,
		"jetson_power_total_watts": false,
	}, cfg.Metrics, "Expected table form to decode verbatim")
}

func TestDeviceConfigLegacyListMigration(t *testing.T) {
	doc := []byte(`
device_type: jetson_xavier
metrics:
  - jetson_temp_cpu_celsius
  - jetson_power_total_watts
`)

	cfg := &config.Device{}
	require.NoError(t, yaml.Unmarshal(doc, cfg))

	assert.Equal(t, config.MetricsTable{
		"jetson_temp_cpu_celsius":  true,
		"jetson_power_total_watts": true,
	}, cfg.Metrics, "Expected every listed metric to migrate as enabled")

	// Once converted the document must stay in table form.
	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	again := &config.Device{}
	require.NoError(t, yaml.Unmarshal(out, again))
	assert.Equal(t, cfg.Metrics, again.Metrics, "Expected the converted form to be stable")
	assert.Contains(t, string(out), "jetson_temp_cpu_celsius: true", "Expected marshalled metrics in table form")
}

func TestDeviceConfigLegacyListJSON(t *testing.T) {
	doc := []byte(`{"device_type": "shelly", "metrics": ["shelly_power_total_watts", "shelly_energy_total_wh"]}`)

	cfg := &config.Device{}
	require.NoError(t, json.Unmarshal(doc, cfg))

	assert.Equal(t, config.MetricsTable{
		"shelly_power_total_watts": true,
		"shelly_energy_total_wh":   true,
	}, cfg.Metrics, "Expected the JSON list form to migrate as enabled")
}

func TestDeviceConfigUnknownKeysSurviveRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.yaml")

	doc := []byte(`
device_type: raspberry_pi
metrics:
  rpi_power_total_watts: true
site: lab-3
rack_position: 12
`)
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	store := config.NewStore(path)
	cfg, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, "lab-3", cfg.Extra["site"], "Expected unknown keys to be retained")
	require.NoError(t, store.Save(cfg))

	again, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "lab-3", again.Extra["site"], "Expected unknown keys to survive a save/load cycle")
	assert.Equal(t, 12, again.Extra["rack_position"], "Expected unknown keys to survive a save/load cycle")
}

func TestDeviceConfigDefaults(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.yaml")

	doc := []byte(`
device_type: shelly
metrics: {}
`)
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	cfg, err := config.NewStore(path).Load()
	require.NoError(t, err)

	assert.Equal(t, config.DefaultInterval, cfg.Interval, "Expected default interval")
	assert.Equal(t, config.DefaultPort, cfg.Port, "Expected default exposition port")
	assert.Equal(t, config.DefaultReloadPort, cfg.ReloadPort, "Expected default management port")
	require.NotNil(t, cfg.Shelly, "Expected shelly options to be populated for the shelly family")
	assert.Equal(t, config.DefaultShellyListenPort, cfg.Shelly.ListenPort)
	assert.Equal(t, config.DefaultShellyRequestTimeout, cfg.Shelly.RequestTimeout)
}

func TestDeviceConfigMissingDeviceType(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte("metrics: {}\n"), 0o600))

	_, err := config.NewStore(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config_missing_device_type")
}

func TestDeviceConfigEmptyFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	_, err := config.NewStore(path).Load()
	require.Error(t, err, "An empty local config must not resolve")
}

func TestDeviceConfigClone(t *testing.T) {
	cfg := &config.Device{
		DeviceType: "jetson_nano",
		Metrics:    config.MetricsTable{"jetson_power_pom_5v_in_watts": true},
		Extra:      map[string]any{"site": "lab-3"},
	}

	clone := cfg.Clone()
	clone.Metrics["jetson_power_pom_5v_in_watts"] = false
	clone.Extra["site"] = "lab-4"

	assert.True(t, cfg.Metrics["jetson_power_pom_5v_in_watts"], "Expected clone mutation to leave the original alone")
	assert.Equal(t, "lab-3", cfg.Extra["site"], "Expected clone mutation to leave the original alone")
}
