package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connection pools, used as the "pool" label.
const (
	PoolViewer  = "viewer"
	PoolAgent   = "agent"
	PoolPush    = "push"
	PoolControl = "control"
)

// Registry holds the hub collectors. All methods are safe on a nil receiver so
// components can run without metrics.
type Registry struct {
	gatherer prometheus.Gatherer

	connections      *prometheus.GaugeVec
	agentsRegistered prometheus.Gauge
	viewers          prometheus.Gauge
	frames           *prometheus.CounterVec
	broadcasts       *prometheus.CounterVec
	deliveries       prometheus.Counter
	sendFailures     *prometheus.CounterVec
	timeouts         *prometheus.CounterVec
	commands         *prometheus.CounterVec
	dropped          *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Registry {
	return NewWithRegisterer(prometheus.NewRegistry())
}

func NewWithRegisterer(registry *prometheus.Registry) *Registry {
	factory := promauto.With(registry)
	return &Registry{
		gatherer: registry,
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "benchhub_connections",
			Help: "Open websocket connections per pool",
		}, []string{"pool"}),
		agentsRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "benchhub_agents_registered",
			Help: "Agents currently present in the registry",
		}),
		viewers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "benchhub_viewers",
			Help: "Viewers currently subscribed to broadcasts",
		}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "benchhub_frames_received_total",
			Help: "Inbound frames by pool and message kind",
		}, []string{"pool", "kind"}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "benchhub_broadcasts_total",
			Help: "Messages fanned out to the viewer set, by kind",
		}, []string{"kind"}),
		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "benchhub_viewer_deliveries_total",
			Help: "Messages accepted for delivery to individual viewers",
		}),
		sendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "benchhub_send_failures_total",
			Help: "Failed sends per pool",
		}, []string{"pool"}),
		timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "benchhub_receive_timeouts_total",
			Help: "Receive windows that elapsed without a message, per pool",
		}, []string{"pool"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "benchhub_commands_total",
			Help: "Commands dispatched to agents",
		}, []string{"command"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "benchhub_frames_dropped_total",
			Help: "Inbound frames ignored, by reason",
		}, []string{"pool", "reason"}),
	}
}

// Handler serves the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Registry) ConnectionOpened(pool string) {
	if r == nil {
		return
	}
	r.connections.WithLabelValues(pool).Inc()
}

func (r *Registry) ConnectionClosed(pool string) {
	if r == nil {
		return
	}
	r.connections.WithLabelValues(pool).Dec()
}

func (r *Registry) SetAgentsRegistered(count int) {
	if r == nil {
		return
	}
	r.agentsRegistered.Set(float64(count))
}

func (r *Registry) SetViewers(count int) {
	if r == nil {
		return
	}
	r.viewers.Set(float64(count))
}

func (r *Registry) FrameReceived(pool, kind string) {
	if r == nil {
		return
	}
	r.frames.WithLabelValues(pool, kindLabel(kind)).Inc()
}

func (r *Registry) Broadcast(kind string, delivered int) {
	if r == nil {
		return
	}
	r.broadcasts.WithLabelValues(kindLabel(kind)).Inc()
	r.deliveries.Add(float64(delivered))
}

func (r *Registry) SendFailed(pool string) {
	if r == nil {
		return
	}
	r.sendFailures.WithLabelValues(pool).Inc()
}

func (r *Registry) ReceiveTimedOut(pool string) {
	if r == nil {
		return
	}
	r.timeouts.WithLabelValues(pool).Inc()
}

func (r *Registry) CommandSent(command string) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(kindLabel(command)).Inc()
}

func (r *Registry) FrameDropped(pool, reason string) {
	if r == nil {
		return
	}
	r.dropped.WithLabelValues(pool, reason).Inc()
}

// kindLabel keeps label cardinality bounded: result frames have no type and arbitrary
// third-party types collapse to "other".
func kindLabel(kind string) string {
	kind = strings.TrimSpace(kind)
	switch kind {
	case "":
		return "data"
	case "register", "heartbeat", "ping", "pong", "agent_list", "status_response",
		"run_benchmark", "status", "run_all", "run_specific", "get_agents", "status_check":
		return kind
	default:
		return "other"
	}
}
