package hub

import (
	"errors"
	"net/http"

	"benchhub/internal/metrics"
	benchotel "benchhub/internal/otel"
	"benchhub/internal/protocol"
	"benchhub/internal/wsconn"
)

var keepalivePayload = mustMarshal(protocol.NewKeepalive())

// ServeViewer handles /ws. Viewers never need to speak; the receive loop only exists to
// notice a close and to ping idle dashboards.
func (h *Hub) ServeViewer(w http.ResponseWriter, r *http.Request) {
	ctx, span := startWebSocketSpan(r, RouteViewer)
	defer span.End()

	conn, release, err := h.accept(w, r, metrics.PoolViewer)
	if err != nil {
		h.logger.Warn("viewer upgrade failed", map[string]string{"error": err.Error()})
		return
	}
	defer release()

	logger := h.logger.With(map[string]string{"channel": "viewer", "conn_id": conn.ID()})
	viewer := newQueuedPeer(conn, h.options.ViewerQueue)
	defer h.leaveViewer(viewer)

	if err := h.joinViewer(viewer); err != nil {
		logger.Warn("viewer roster send failed", map[string]string{"error": err.Error()})
		return
	}
	logger.Info("viewer connected", map[string]string{"remote": conn.RemoteAddr()})

	for {
		_, err := conn.Receive(h.ctx, h.options.ViewerKeepalive)
		if errors.Is(err, wsconn.ErrTimeout) {
			h.metrics.ReceiveTimedOut(metrics.PoolViewer)
			if err := Deliver(viewer, keepalivePayload); err != nil {
				h.metrics.SendFailed(metrics.PoolViewer)
				logger.Warn("viewer keepalive failed", map[string]string{"error": err.Error()})
				return
			}
			continue
		}
		if err != nil {
			if !wsconn.IsExpectedClose(err) {
				logger.Warn("viewer receive failed", map[string]string{"error": err.Error()})
			}
			logger.Info("viewer disconnected", nil)
			benchotel.RecordHubEvent(ctx, "viewer.disconnected", nil)
			return
		}
		h.metrics.FrameReceived(metrics.PoolViewer, "")
	}
}
