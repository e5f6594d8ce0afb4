package config_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgewatt/powerexporter/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(serverURL, localPath string) *config.Resolver {
	settings := &config.Settings{
		ServerURL:       serverURL,
		TimeoutSeconds:  2,
		LocalConfigPath: localPath,
		DeviceID:        "test-device",
		LogLevel:        config.DefaultLogLevel,
	}

	return config.NewResolver(settings)
}

func TestResolveCentralOverridesLocal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/config/test-device", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"device_type": "jetson_orin", "interval": 7, "metrics": {"jetson_temp_cpu_celsius": true}}`))
	}))
	defer server.Close()

	tempDir := t.TempDir()
	localPath := filepath.Join(tempDir, "config.yaml")

	// A stale local mirror that the central answer must replace.
	stale := []byte("device_type: jetson_nano\ninterval: 60\nmetrics: {}\n")
	require.NoError(t, os.WriteFile(localPath, stale, 0o600))

	resolver := newTestResolver(server.URL, localPath)
	cfg, source, err := resolver.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, config.SourceCentral, source, "Expected the central source to win")
	assert.Equal(t, "jetson_orin", cfg.DeviceType)
	assert.Equal(t, 7, cfg.Interval)

	// The local mirror must now hold the central document.
	mirrored, err := config.NewStore(localPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "jetson_orin", mirrored.DeviceType, "Expected the central config to be mirrored locally")
}

func TestResolveFallsBackToLocal(t *testing.T) {
	pushed := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.Error(w, "boom", http.StatusInternalServerError)
		case http.MethodPut:
			doc, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			select {
			case pushed <- doc:
			default:
			}
			_, _ = w.Write([]byte(`{"status": "ok"}`))
		}
	}))
	defer server.Close()

	tempDir := t.TempDir()
	localPath := filepath.Join(tempDir, "config.yaml")
	local := []byte("device_type: raspberry_pi\nmetrics:\n  rpi_power_total_watts: true\n")
	require.NoError(t, os.WriteFile(localPath, local, 0o600))

	resolver := newTestResolver(server.URL, localPath)
	cfg, source, err := resolver.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, config.SourceLocal, source, "Expected the local fallback")
	assert.Equal(t, "raspberry_pi", cfg.DeviceType)

	// The fallback config must be pushed upstream so the authority
	// learns about this device.
	select {
	case doc := <-pushed:
		uploaded := &config.Device{}
		require.NoError(t, json.Unmarshal(doc, uploaded))
		assert.Equal(t, "raspberry_pi", uploaded.DeviceType, "Expected the local config to be self-registered")
	case <-time.After(3 * time.Second):
		t.Fatal("expected a config push to the authority")
	}
}

func TestResolveNoConfigAnywhere(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	tempDir := t.TempDir()
	resolver := newTestResolver(server.URL, filepath.Join(tempDir, "missing.yaml"))

	_, _, err := resolver.Resolve(context.Background())
	require.Error(t, err, "No central answer and no local file must be fatal")
	assert.Contains(t, err.Error(), "config_no_local_fallback")
}

func TestResolveLocalOnly(t *testing.T) {
	tempDir := t.TempDir()
	localPath := filepath.Join(tempDir, "config.yaml")
	local := []byte("device_type: lattepanda\nmetrics: {}\n")
	require.NoError(t, os.WriteFile(localPath, local, 0o600))

	// An empty server URL disables the authority.
	resolver := newTestResolver("", localPath)
	cfg, source, err := resolver.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, config.SourceLocal, source)
	assert.Equal(t, "lattepanda", cfg.DeviceType)
}
