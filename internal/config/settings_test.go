package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"benchhub"
	"benchhub/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	settings, err := Load("", benchhub.DefaultSettingsTOML, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8000", settings.Hub.Addr)
	assert.Equal(t, 30*time.Second, settings.Hub.ViewerKeepalive)
	assert.Equal(t, 300*time.Second, settings.Hub.AgentTimeout)
	assert.Equal(t, 10*time.Second, settings.Hub.WriteTimeout)
	assert.Equal(t, 256, settings.Hub.ViewerQueue)
	assert.Equal(t, "index.html", settings.Hub.Dashboard)
	assert.Empty(t, settings.Hub.AllowedOrigins)

	assert.Equal(t, "localhost:8000", settings.Agent.Server)
	assert.Equal(t, "generic_runner.sh", settings.Agent.Runner)
	assert.Equal(t, "benchmark_config.sh", settings.Agent.Config)
	assert.Equal(t, 30*time.Second, settings.Agent.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, settings.Agent.RetryDelay)
	assert.Equal(t, 500*time.Millisecond, settings.Agent.FlushGrace)
	assert.False(t, settings.Agent.UseProxy)

	assert.Equal(t, logging.LevelInfo, settings.Log.Level)
	assert.False(t, settings.OTel.Enabled)
	assert.Equal(t, "benchhub", settings.OTel.ServiceName)
}

func TestLoadTOMLFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "benchhub.toml", `
[hub]
agent_timeout = 900
allowed-origins = ["http://dash.local"]

[agent]
machine = "server-02"
flush-grace = "0s"
`)
	settings, err := Load(path, benchhub.DefaultSettingsTOML, nil)
	require.NoError(t, err)

	assert.Equal(t, 900*time.Second, settings.Hub.AgentTimeout)
	assert.Equal(t, []string{"http://dash.local"}, settings.Hub.AllowedOrigins)
	assert.Equal(t, "server-02", settings.Agent.Machine)
	assert.Equal(t, time.Duration(0), settings.Agent.FlushGrace)
	assert.Equal(t, 30*time.Second, settings.Hub.ViewerKeepalive)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "benchhub.yaml", `
hub:
  addr: ":9100"
  viewer-queue: 64
agent:
  retry-delay: 2s
log:
  level: debug
`)
	settings, err := Load(path, benchhub.DefaultSettingsTOML, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9100", settings.Hub.Addr)
	assert.Equal(t, 64, settings.Hub.ViewerQueue)
	assert.Equal(t, 2*time.Second, settings.Agent.RetryDelay)
	assert.Equal(t, logging.LevelDebug, settings.Log.Level)
}

func TestLoadOverridesWin(t *testing.T) {
	path := writeFile(t, "benchhub.toml", "[hub]\naddr = \":9000\"\n")
	overrides := map[string]any{
		"hub.addr":                 ":9999",
		"HUB.AGENT_TIMEOUT":        "45s",
		"agent.use_proxy":          "true",
		"hub.allowed-origins":      "http://a, http://b",
		"agent.heartbeat-interval": "1.5",
	}
	settings, err := Load(path, benchhub.DefaultSettingsTOML, overrides)
	require.NoError(t, err)

	assert.Equal(t, ":9999", settings.Hub.Addr)
	assert.Equal(t, 45*time.Second, settings.Hub.AgentTimeout)
	assert.True(t, settings.Agent.UseProxy)
	assert.Equal(t, []string{"http://a", "http://b"}, settings.Hub.AllowedOrigins)
	assert.Equal(t, 1500*time.Millisecond, settings.Agent.HeartbeatInterval)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "absent.toml"), benchhub.DefaultSettingsTOML, nil)
	require.NoError(t, err)
	assert.Equal(t, ":8000", settings.Hub.Addr)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeFile(t, "broken.toml", "[hub\naddr = ")
	_, err := Load(path, benchhub.DefaultSettingsTOML, nil)
	assert.Error(t, err)
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	overrides := map[string]any{
		"hub.agent-timeout": "soon",
		"hub.viewer-queue":  int64(-4),
		"log.level":         "chatty",
	}
	settings, err := Load("", benchhub.DefaultSettingsTOML, overrides)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, settings.Hub.AgentTimeout)
	assert.Equal(t, 256, settings.Hub.ViewerQueue)
	assert.Equal(t, logging.LevelInfo, settings.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	overrides := EnvOverrides([]string{
		"BENCHHUB_HUB_AGENT_TIMEOUT=600s",
		"BENCHHUB_AGENT_MACHINE=server-03",
		"BENCHHUB_LOG_LEVEL=warn",
		"BENCHHUB_UNKNOWN_THING=1",
		"BENCHHUB_HUB_=x",
		"PATH=/usr/bin",
	})
	assert.Equal(t, map[string]any{
		"hub.agent-timeout": "600s",
		"agent.machine":     "server-03",
		"log.level":         "warn",
	}, overrides)
}
