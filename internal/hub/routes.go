package hub

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"benchhub/internal/logging"
	"benchhub/internal/protocol"
	"benchhub/internal/version"
)

const (
	RouteViewer  = "/ws"
	RoutePush    = "/ws/push"
	RouteAgent   = "/ws/agent"
	RouteControl = "/ws/control"

	defaultLogLimit = 200
)

type statusResponse struct {
	Version    string        `json:"version"`
	Build      version.Build `json:"build"`
	Agents     []string      `json:"agents"`
	Viewers    int           `json:"viewers"`
	StartedAt  time.Time     `json:"started_at"`
	UptimeSecs int64         `json:"uptime_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the hub's HTTP surface: the four websocket endpoints, the dashboard,
// status, recent logs and metrics.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+RouteViewer, h.ServeViewer)
	mux.HandleFunc("GET "+RoutePush, h.ServePush)
	mux.HandleFunc("GET "+RouteAgent, h.ServeAgent)
	mux.HandleFunc("GET "+RouteControl, h.ServeControl)
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /api/logs", h.handleLogs)
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("GET /{$}", h.handleDashboard)
	return mux
}

func (h *Hub) handleDashboard(w http.ResponseWriter, r *http.Request) {
	path := h.options.Dashboard
	if strings.TrimSpace(path) == "" {
		path = "index.html"
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, errorResponse{
				Error: path + " not found - make sure the dashboard file is in the hub's working directory",
			})
			return
		}
		h.logger.Error("dashboard read failed", map[string]string{"path": path, "error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "dashboard unavailable"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(content)
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSON(w, http.StatusOK, statusResponse{
		Version:    h.options.Version,
		Build:      version.Current(),
		Agents:     h.registry.IDs(),
		Viewers:    h.viewers.Len(),
		StartedAt:  h.started.UTC(),
		UptimeSecs: int64(now.Sub(h.started) / time.Second),
	})
}

// handleLogs serves recent entries from the log buffer. Query: limit, level.
func (h *Hub) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	minLevel := logging.LevelDebug
	if raw := r.URL.Query().Get("level"); raw != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown level " + strconv.Quote(raw)})
			return
		}
		minLevel = level
	}
	entries := h.logger.Buffer().Tail(limit, minLevel)
	if entries == nil {
		entries = []logging.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// logResult prints the headline numbers of a result frame.
func (h *Hub) logResult(logger *logging.Logger, envelope protocol.Envelope, payload []byte) {
	if !logger.Enabled(logging.LevelInfo) {
		return
	}
	cores, hasCores := protocol.Metric(payload, protocol.CoreKeys...)
	throughput, hasThroughput := protocol.Metric(payload, protocol.ThroughputKeys...)
	if !hasCores && !hasThroughput {
		return
	}
	fields := map[string]string{"machine": envelope.Machine}
	if hasCores {
		fields["cores"] = cores
	}
	if hasThroughput {
		fields["throughput"] = throughput
	}
	logger.Info("result", fields)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func mustMarshal(value any) []byte {
	payload, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return payload
}
