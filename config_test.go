package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HEADPHONED_ADAPTER", "HEADPHONED_POLL_INTERVAL", "HEADPHONED_EVENT_NAME",
		"HEADPHONED_BRIDGES", "HEADPHONED_SOCKET", "HEADPHONED_HTTP_ADDR", "HEADPHONED_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	// Keep a stray .env in the package dir from leaking in.
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "hci0", cfg.Adapter)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, DefaultEventName, cfg.EventName)
	assert.Equal(t, []string{bridgeSocket}, cfg.Bridges)
	assert.Equal(t, "/run/user/1000/headphoned.sock", cfg.Socket)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_File(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
adapter: hci1
poll_interval: 500ms
event_name: HEADPHONES
bridges: [socket, dbus, http]
http_addr: 127.0.0.1:9000
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "hci1", cfg.Adapter)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "HEADPHONES", cfg.EventName)
	assert.Equal(t, []string{bridgeSocket, bridgeDBus, bridgeHTTP}, cfg.Bridges)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HEADPHONED_POLL_INTERVAL", "5s")
	t.Setenv("HEADPHONED_BRIDGES", "http, dbus")
	t.Setenv("HEADPHONED_SOCKET", "/tmp/hp.sock")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, []string{bridgeHTTP, bridgeDBus}, cfg.Bridges)
	assert.Equal(t, "/tmp/hp.sock", cfg.Socket)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "unknown bridge", yaml: "bridges: [grpc]\n"},
		{name: "empty bridges", yaml: "bridges: []\n"},
		{name: "negative poll", yaml: "poll_interval: -1s\n"},
		{name: "bad yaml", yaml: "adapter: [\n"},
		{name: "bad env duration", env: map[string]string{"HEADPHONED_POLL_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := loadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	clearConfigEnv(t)
	// .env never overrides variables that are already set, even to "".
	require.NoError(t, os.Unsetenv("HEADPHONED_EVENT_NAME"))
	t.Cleanup(func() { os.Unsetenv("HEADPHONED_EVENT_NAME") })
	require.NoError(t, os.WriteFile(".env", []byte("HEADPHONED_EVENT_NAME=FROM_DOTENV\n"), 0o600))

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "FROM_DOTENV", cfg.EventName)
}

func TestLoadConfig_UnreadableDotEnv(t *testing.T) {
	clearConfigEnv(t)
	// A directory named .env exists but cannot be read as a file.
	require.NoError(t, os.Mkdir(".env", 0o700))

	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "load .env")
}
