package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"benchhub/internal/logging"
)

const EnvPrefix = "BENCHHUB_"

var sections = []string{"hub", "agent", "log", "otel"}

type Settings struct {
	Hub   HubSettings
	Agent AgentSettings
	Log   LogSettings
	OTel  OTelSettings
}

type HubSettings struct {
	Addr            string
	ViewerKeepalive time.Duration
	AgentTimeout    time.Duration
	WriteTimeout    time.Duration
	ViewerQueue     int
	Dashboard       string
	AllowedOrigins  []string
}

type AgentSettings struct {
	Server            string
	Machine           string
	Hostname          string
	Runner            string
	Config            string
	HeartbeatInterval time.Duration
	RetryDelay        time.Duration
	FlushGrace        time.Duration
	StopTimeout       time.Duration
	UseProxy          bool
}

type LogSettings struct {
	Level logging.Level
}

type OTelSettings struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// Load layers the defaults document, the settings file at path and overrides, in that
// order. A missing file is not an error. Files ending in .yaml or .yml are read as YAML,
// anything else as TOML.
func Load(path string, defaultsPayload []byte, overrides map[string]any) (Settings, error) {
	defaultsStore, err := DecodeTOML(defaultsPayload)
	if err != nil {
		return Settings{}, fmt.Errorf("decode defaults: %w", err)
	}
	defaults := defaultsStore.Flat()
	values := defaultsStore.Flat()

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else {
			store, err := decodeFile(path, payload)
			if err != nil {
				return Settings{}, fmt.Errorf("decode %s: %w", path, err)
			}
			for key, value := range store.Flat() {
				values[key] = value
			}
		}
	}

	for key, value := range overrides {
		normalized := NormalizeKey(key)
		if normalized == "" {
			continue
		}
		values[normalized] = value
	}

	settings := Settings{}

	settings.Hub.Addr = stringSetting(values, "hub.addr", "")
	settings.Hub.ViewerKeepalive = durationSetting(values, "hub.viewer-keepalive", 0)
	settings.Hub.AgentTimeout = durationSetting(values, "hub.agent-timeout", 0)
	settings.Hub.WriteTimeout = durationSetting(values, "hub.write-timeout", 0)
	settings.Hub.ViewerQueue = int(intSetting(values, "hub.viewer-queue", 0))
	settings.Hub.Dashboard = stringSetting(values, "hub.dashboard", "")
	settings.Hub.AllowedOrigins = listSetting(values, "hub.allowed-origins")

	settings.Agent.Server = stringSetting(values, "agent.server", "")
	settings.Agent.Machine = stringSetting(values, "agent.machine", "")
	settings.Agent.Hostname = stringSetting(values, "agent.hostname", "")
	settings.Agent.Runner = stringSetting(values, "agent.runner", "")
	settings.Agent.Config = stringSetting(values, "agent.config", "")
	settings.Agent.HeartbeatInterval = durationSetting(values, "agent.heartbeat-interval", 0)
	settings.Agent.RetryDelay = durationSetting(values, "agent.retry-delay", 0)
	settings.Agent.FlushGrace = durationSetting(values, "agent.flush-grace", -1)
	settings.Agent.StopTimeout = durationSetting(values, "agent.stop-timeout", 0)
	settings.Agent.UseProxy = boolSetting(values, "agent.use-proxy", false)

	if level, ok := logging.ParseLevel(stringSetting(values, "log.level", "")); ok {
		settings.Log.Level = level
	}

	settings.OTel.Enabled = boolSetting(values, "otel.enabled", false)
	settings.OTel.Endpoint = stringSetting(values, "otel.endpoint", "")
	settings.OTel.ServiceName = stringSetting(values, "otel.service-name", "")

	return normalizeSettings(settings, defaults), nil
}

// EnvOverrides maps BENCHHUB_<SECTION>_<KEY> variables to settings keys, for example
// BENCHHUB_HUB_AGENT_TIMEOUT to hub.agent-timeout. Unknown sections are ignored.
func EnvOverrides(environ []string) map[string]any {
	overrides := map[string]any{}
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		for _, section := range sections {
			key, found := strings.CutPrefix(rest, section+"_")
			if !found || key == "" {
				continue
			}
			overrides[NormalizeKey(section+"."+key)] = value
			break
		}
	}
	return overrides
}

func decodeFile(path string, payload []byte) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(payload)
	default:
		return DecodeTOML(payload)
	}
}

func normalizeSettings(settings Settings, defaults map[string]any) Settings {
	if settings.Hub.Addr == "" {
		settings.Hub.Addr = stringSetting(defaults, "hub.addr", ":8000")
	}
	if settings.Hub.ViewerKeepalive <= 0 {
		settings.Hub.ViewerKeepalive = durationSetting(defaults, "hub.viewer-keepalive", 30*time.Second)
	}
	if settings.Hub.AgentTimeout <= 0 {
		settings.Hub.AgentTimeout = durationSetting(defaults, "hub.agent-timeout", 300*time.Second)
	}
	if settings.Hub.WriteTimeout <= 0 {
		settings.Hub.WriteTimeout = durationSetting(defaults, "hub.write-timeout", 10*time.Second)
	}
	if settings.Hub.ViewerQueue <= 0 {
		settings.Hub.ViewerQueue = int(intSetting(defaults, "hub.viewer-queue", 256))
	}
	if settings.Hub.Dashboard == "" {
		settings.Hub.Dashboard = stringSetting(defaults, "hub.dashboard", "index.html")
	}
	if settings.Agent.Server == "" {
		settings.Agent.Server = stringSetting(defaults, "agent.server", "localhost:8000")
	}
	if settings.Agent.Runner == "" {
		settings.Agent.Runner = stringSetting(defaults, "agent.runner", "generic_runner.sh")
	}
	if settings.Agent.Config == "" {
		settings.Agent.Config = stringSetting(defaults, "agent.config", "benchmark_config.sh")
	}
	if settings.Agent.HeartbeatInterval <= 0 {
		settings.Agent.HeartbeatInterval = durationSetting(defaults, "agent.heartbeat-interval", 30*time.Second)
	}
	if settings.Agent.RetryDelay <= 0 {
		settings.Agent.RetryDelay = durationSetting(defaults, "agent.retry-delay", 5*time.Second)
	}
	if settings.Agent.FlushGrace < 0 {
		settings.Agent.FlushGrace = durationSetting(defaults, "agent.flush-grace", 500*time.Millisecond)
	}
	if settings.Agent.StopTimeout <= 0 {
		settings.Agent.StopTimeout = durationSetting(defaults, "agent.stop-timeout", 10*time.Second)
	}
	if settings.Log.Level == "" {
		settings.Log.Level = logging.LevelInfo
	}
	if settings.OTel.ServiceName == "" {
		settings.OTel.ServiceName = stringSetting(defaults, "otel.service-name", "benchhub")
	}
	return settings
}

func stringSetting(values map[string]any, key string, fallback string) string {
	value, ok := values[NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(string); ok {
		return strings.TrimSpace(parsed)
	}
	return fallback
}

func intSetting(values map[string]any, key string, fallback int64) int64 {
	value, ok := values[NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := asInt64(value); ok {
		return parsed
	}
	if text, ok := value.(string); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolSetting(values map[string]any, key string, fallback bool) bool {
	value, ok := values[NormalizeKey(key)]
	if !ok {
		return fallback
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(typed)); err == nil {
			return parsed
		}
	}
	return fallback
}

// durationSetting accepts Go duration strings ("45s", "5m") or plain numbers of seconds.
func durationSetting(values map[string]any, key string, fallback time.Duration) time.Duration {
	value, ok := values[NormalizeKey(key)]
	if !ok {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		text := strings.TrimSpace(typed)
		if parsed, err := time.ParseDuration(text); err == nil {
			return parsed
		}
		if seconds, err := strconv.ParseFloat(text, 64); err == nil {
			return time.Duration(seconds * float64(time.Second))
		}
	case float64:
		return time.Duration(typed * float64(time.Second))
	default:
		if seconds, ok := asInt64(value); ok {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// listSetting accepts an array of strings or a comma-separated string.
func listSetting(values map[string]any, key string) []string {
	value, ok := values[NormalizeKey(key)]
	if !ok {
		return nil
	}
	var items []string
	switch typed := value.(type) {
	case []any:
		for _, item := range typed {
			if text, ok := item.(string); ok {
				items = append(items, text)
			}
		}
	case []string:
		items = append(items, typed...)
	case string:
		items = strings.Split(typed, ",")
	}
	var out []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func asInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case uint64:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	case float64:
		if typed == float64(int64(typed)) {
			return int64(typed), true
		}
	}
	return 0, false
}
