package hub

import (
	"net/http"
	"strconv"

	"benchhub/internal/logging"
	"benchhub/internal/metrics"
	"benchhub/internal/protocol"
	"benchhub/internal/wsconn"
)

var (
	runBenchmarkPayload = mustMarshal(protocol.NewCommand(protocol.CommandRunBenchmark))
	statusPayload       = mustMarshal(protocol.NewCommand(protocol.CommandStatus))
	pingPayload         = mustMarshal(protocol.NewCommand(protocol.CommandPing))
)

// ServeControl handles /ws/control. Control clients are operator driven, so the loop
// waits without a timeout.
func (h *Hub) ServeControl(w http.ResponseWriter, r *http.Request) {
	_, span := startWebSocketSpan(r, RouteControl)
	defer span.End()

	conn, release, err := h.accept(w, r, metrics.PoolControl)
	if err != nil {
		h.logger.Warn("control upgrade failed", map[string]string{"error": err.Error()})
		return
	}
	defer release()

	logger := h.logger.With(map[string]string{"channel": "control", "conn_id": conn.ID()})
	logger.Info("control client connected", map[string]string{"remote": conn.RemoteAddr()})

	for {
		payload, err := conn.Receive(h.ctx, 0)
		if err != nil {
			if !wsconn.IsExpectedClose(err) {
				logger.Warn("control receive failed", map[string]string{"error": err.Error()})
			}
			logger.Info("control client disconnected", nil)
			return
		}
		envelope, err := protocol.Peek(payload)
		if err != nil {
			h.metrics.FrameDropped(metrics.PoolControl, "malformed")
			logger.Warn("control frame dropped", map[string]string{"error": err.Error()})
			continue
		}
		h.metrics.FrameReceived(metrics.PoolControl, envelope.Command)
		if err := h.dispatchControl(conn, logger, envelope); err != nil {
			logger.Warn("control reply failed", map[string]string{"error": err.Error()})
			return
		}
	}
}

// dispatchControl runs one control request. Only a failed reply to the caller is returned;
// failures toward agents are logged.
func (h *Hub) dispatchControl(caller Peer, logger *logging.Logger, envelope protocol.Envelope) error {
	switch envelope.Command {
	case protocol.CommandRunAll:
		sent := h.sendToAll(logger, protocol.CommandRunBenchmark, runBenchmarkPayload)
		logger.Info("run_all dispatched", map[string]string{"agents": strconv.Itoa(sent)})
	case protocol.CommandRunSpecific:
		sent := 0
		for _, machine := range envelope.Machines {
			entry, ok := h.registry.Lookup(machine)
			if !ok {
				logger.Warn("run_specific target not registered", map[string]string{"machine": machine})
				continue
			}
			if h.sendToAgent(logger, entry, protocol.CommandRunBenchmark, runBenchmarkPayload) {
				sent++
			}
		}
		logger.Info("run_specific dispatched", map[string]string{
			"requested": strconv.Itoa(len(envelope.Machines)),
			"agents":    strconv.Itoa(sent),
		})
	case protocol.CommandGetAgents:
		return Deliver(caller, mustMarshal(protocol.NewAgentList(h.registry.IDs())))
	case protocol.CommandStatusCheck:
		sent := h.sendToAll(logger, protocol.CommandStatus, statusPayload)
		logger.Info("status_check dispatched", map[string]string{"agents": strconv.Itoa(sent)})
	case protocol.CommandPing:
		sent := h.sendToAll(logger, protocol.CommandPing, pingPayload)
		logger.Info("ping dispatched", map[string]string{"agents": strconv.Itoa(sent)})
	default:
		h.metrics.FrameDropped(metrics.PoolControl, "unknown_command")
		logger.Warn("unknown control command", map[string]string{"command": envelope.Command, "type": envelope.Type})
	}
	return nil
}

func (h *Hub) sendToAll(logger *logging.Logger, command string, payload []byte) int {
	sent := 0
	for _, entry := range h.registry.Snapshot() {
		if h.sendToAgent(logger, entry, command, payload) {
			sent++
		}
	}
	return sent
}

func (h *Hub) sendToAgent(logger *logging.Logger, entry *AgentEntry, command string, payload []byte) bool {
	if err := Deliver(entry.Conn, payload); err != nil {
		h.metrics.SendFailed(metrics.PoolAgent)
		logger.Warn("command send failed", map[string]string{
			"machine": entry.Machine,
			"command": command,
			"error":   err.Error(),
		})
		return false
	}
	h.metrics.CommandSent(command)
	return true
}
