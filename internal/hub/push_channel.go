package hub

import (
	"net/http"

	"benchhub/internal/metrics"
	"benchhub/internal/protocol"
	"benchhub/internal/wsconn"
)

// ServePush handles /ws/push: every JSON object a pusher sends goes to all viewers.
func (h *Hub) ServePush(w http.ResponseWriter, r *http.Request) {
	_, span := startWebSocketSpan(r, RoutePush)
	defer span.End()

	conn, release, err := h.accept(w, r, metrics.PoolPush)
	if err != nil {
		h.logger.Warn("push upgrade failed", map[string]string{"error": err.Error()})
		return
	}
	defer release()

	logger := h.logger.With(map[string]string{"channel": "push", "conn_id": conn.ID()})
	logger.Info("push client connected", map[string]string{"remote": conn.RemoteAddr()})

	for {
		payload, err := conn.Receive(h.ctx, 0)
		if err != nil {
			if !wsconn.IsExpectedClose(err) {
				logger.Warn("push receive failed", map[string]string{"error": err.Error()})
			}
			logger.Info("push client disconnected", nil)
			return
		}
		envelope, err := protocol.Peek(payload)
		if err != nil {
			h.metrics.FrameDropped(metrics.PoolPush, "malformed")
			logger.Warn("push frame dropped", map[string]string{"error": err.Error()})
			continue
		}
		h.metrics.FrameReceived(metrics.PoolPush, envelope.Type)
		h.logResult(logger, envelope, payload)
		h.broadcast(envelope.Type, payload)
	}
}
