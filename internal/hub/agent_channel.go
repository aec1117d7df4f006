package hub

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"benchhub/internal/logging"
	"benchhub/internal/metrics"
	benchotel "benchhub/internal/otel"
	"benchhub/internal/protocol"
	"benchhub/internal/wsconn"
)

// Agent connection states.
const (
	AgentConnected  = "connected"
	AgentRegistered = "registered"
	AgentActive     = "active"
	AgentClosed     = "closed"
)

// agentSession is the state owned by one agent connection handler.
type agentSession struct {
	hub    *Hub
	conn   *wsconn.Conn
	logger *logging.Logger
	ctx    context.Context

	state string
	entry *AgentEntry
}

// ServeAgent handles /ws/agent.
func (h *Hub) ServeAgent(w http.ResponseWriter, r *http.Request) {
	ctx, span := startWebSocketSpan(r, RouteAgent)
	defer span.End()

	conn, release, err := h.accept(w, r, metrics.PoolAgent)
	if err != nil {
		h.logger.Warn("agent upgrade failed", map[string]string{"error": err.Error()})
		return
	}
	defer release()

	session := &agentSession{
		hub:    h,
		conn:   conn,
		logger: h.logger.With(map[string]string{"channel": "agent", "conn_id": conn.ID()}),
		ctx:    ctx,
		state:  AgentConnected,
	}
	defer session.finish()
	session.logger.Info("agent connected", map[string]string{"remote": conn.RemoteAddr()})
	session.run()
}

func (s *agentSession) run() {
	h := s.hub
	for {
		payload, err := s.conn.Receive(h.ctx, h.options.AgentTimeout)
		if errors.Is(err, wsconn.ErrTimeout) {
			h.metrics.ReceiveTimedOut(metrics.PoolAgent)
			s.logger.Warn("agent timed out", map[string]string{
				"machine": s.machine(),
				"timeout": h.options.AgentTimeout.String(),
			})
			return
		}
		if err != nil {
			if !wsconn.IsExpectedClose(err) {
				s.logger.Warn("agent receive failed", map[string]string{"machine": s.machine(), "error": err.Error()})
			}
			return
		}
		s.handle(payload)
	}
}

func (s *agentSession) handle(payload []byte) {
	h := s.hub
	if s.entry != nil {
		s.entry.Touch(h.now())
	}

	envelope, err := protocol.Peek(payload)
	if err != nil {
		h.metrics.FrameDropped(metrics.PoolAgent, "malformed")
		s.logger.Warn("agent frame dropped", map[string]string{"machine": s.machine(), "error": err.Error()})
		s.advance()
		return
	}
	h.metrics.FrameReceived(metrics.PoolAgent, envelope.Type)

	if envelope.Type == protocol.TypeRegister && envelope.Machine != "" {
		s.register(envelope)
		return
	}
	if s.state == AgentConnected {
		s.logger.Warn("agent did not register", map[string]string{"type": envelope.Type})
	}
	s.advance()

	switch envelope.Type {
	case protocol.TypeHeartbeat:
		s.logger.Debug("heartbeat", map[string]string{"machine": s.machine()})
	case protocol.TypeStatusResponse, protocol.TypePong:
		h.broadcast(envelope.Type, payload)
	default:
		h.logResult(s.logger, envelope, payload)
		h.broadcast(envelope.Type, payload)
	}
}

func (s *agentSession) register(envelope protocol.Envelope) {
	h := s.hub
	entry := newAgentEntry(envelope.Machine, envelope.Hostname, s.conn, h.now())
	replaced := h.register(entry, s.entry)
	s.entry = entry
	s.state = AgentRegistered

	fields := map[string]string{"machine": entry.Machine, "hostname": entry.Hostname}
	if replaced != nil && replaced != entry {
		fields["replaced_conn"] = replaced.Conn.ID()
	}
	s.logger.Info("agent registered", fields)
	benchotel.RecordHubEvent(s.ctx, "agent.registered", fields)
}

func (s *agentSession) advance() {
	s.state = AgentActive
}

// finish runs once, on every exit path of the handler.
func (s *agentSession) finish() {
	removed := s.hub.unregister(s.entry)
	s.state = AgentClosed
	_ = s.conn.Close()
	s.logger.Info("agent disconnected", map[string]string{
		"machine":    s.machine(),
		"registered": strconv.FormatBool(removed),
	})
}

func (s *agentSession) machine() string {
	if s.entry == nil {
		return ""
	}
	return s.entry.Machine
}
