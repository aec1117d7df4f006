// Package hub is the coordination server between benchmark agents, dashboard viewers,
// push clients and the operator control tool.
//
// Every websocket is served by the goroutine of its HTTP handler. Viewers and agents meet
// in two shared collections: the ViewerSet and the agent Registry. Registry changes and
// the roster broadcast that follows them happen under one mutex, and each viewer drains
// its own FIFO queue, so the last agent_list a viewer sees always matches the registry.
package hub

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"benchhub/internal/logging"
	"benchhub/internal/metrics"
	"benchhub/internal/protocol"
	"benchhub/internal/wsconn"
)

const (
	DefaultViewerKeepalive = 30 * time.Second
	DefaultAgentTimeout    = 300 * time.Second
	DefaultViewerQueue     = 256
)

var ErrHubClosed = errors.New("hub closed")

type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry

	// ViewerKeepalive is how long a viewer may stay silent before it is sent a ping.
	ViewerKeepalive time.Duration
	// AgentTimeout is how long an agent may stay silent before it is considered dead.
	AgentTimeout   time.Duration
	WriteTimeout   time.Duration
	ViewerQueue    int
	AllowedOrigins []string

	// Dashboard is the file served at "/".
	Dashboard string
	Version   string
}

type Hub struct {
	logger  *logging.Logger
	metrics *metrics.Registry
	options Options
	started time.Time

	viewers  *ViewerSet
	registry *Registry
	// rosterMu orders registry mutations with the agent_list broadcast that reports them.
	rosterMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.Mutex
	conns  map[string]*wsconn.Conn
	closed bool
	active sync.WaitGroup

	now func() time.Time
}

func New(options Options) *Hub {
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.ViewerKeepalive <= 0 {
		options.ViewerKeepalive = DefaultViewerKeepalive
	}
	if options.AgentTimeout <= 0 {
		options.AgentTimeout = DefaultAgentTimeout
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = wsconn.DefaultWriteTimeout
	}
	if options.ViewerQueue <= 0 {
		options.ViewerQueue = DefaultViewerQueue
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:   options.Logger,
		metrics:  options.Metrics,
		options:  options,
		started:  time.Now(),
		viewers:  NewViewerSet(),
		registry: NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[string]*wsconn.Conn),
		now:      time.Now,
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Viewers() *ViewerSet {
	return h.viewers
}

// Close ends every tracked connection and waits for their handlers to finish, or for
// ctx to expire.
func (h *Hub) Close(ctx context.Context) error {
	h.connMu.Lock()
	if h.closed {
		h.connMu.Unlock()
		return nil
	}
	h.closed = true
	conns := make([]*wsconn.Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.connMu.Unlock()

	h.cancel()
	var closeErr error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}

	finished := make(chan struct{})
	go func() {
		h.active.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		closeErr = errors.Join(closeErr, ctx.Err())
	}
	h.logger.Info("hub closed", map[string]string{"connections": strconv.Itoa(len(conns))})
	return closeErr
}

// accept upgrades the request and tracks the connection until release is called.
func (h *Hub) accept(w http.ResponseWriter, r *http.Request, pool string) (*wsconn.Conn, func(), error) {
	h.connMu.Lock()
	if h.closed {
		h.connMu.Unlock()
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return nil, nil, ErrHubClosed
	}
	h.active.Add(1)
	h.connMu.Unlock()

	conn, err := wsconn.Upgrade(w, r, h.options.AllowedOrigins, h.options.WriteTimeout)
	if err != nil {
		h.active.Done()
		return nil, nil, err
	}

	h.connMu.Lock()
	if h.closed {
		h.connMu.Unlock()
		_ = conn.Close()
		h.active.Done()
		return nil, nil, ErrHubClosed
	}
	h.conns[conn.ID()] = conn
	h.connMu.Unlock()
	h.metrics.ConnectionOpened(pool)

	release := func() {
		_ = conn.Close()
		h.connMu.Lock()
		delete(h.conns, conn.ID())
		h.connMu.Unlock()
		h.metrics.ConnectionClosed(pool)
		h.active.Done()
	}
	return conn, release, nil
}

// broadcast fans payload out to the viewer set. Failures only prune the failing viewers.
func (h *Hub) broadcast(kind string, payload []byte) int {
	delivered, pruned := h.viewers.Broadcast(payload)
	h.metrics.Broadcast(kind, delivered)
	for _, peer := range pruned {
		h.metrics.SendFailed(metrics.PoolViewer)
		h.logger.Warn("viewer dropped after failed send", map[string]string{"viewer": peer.ID()})
	}
	if len(pruned) > 0 {
		h.metrics.SetViewers(h.viewers.Len())
	}
	return delivered
}

// rosterPayload must be called with rosterMu held.
func (h *Hub) rosterPayload() []byte {
	return mustMarshal(protocol.NewAgentList(h.registry.IDs()))
}

// publishRoster must be called with rosterMu held.
func (h *Hub) publishRoster() {
	h.metrics.SetAgentsRegistered(h.registry.Len())
	h.broadcast(protocol.TypeAgentList, h.rosterPayload())
}

func (h *Hub) register(entry *AgentEntry, previous *AgentEntry) *AgentEntry {
	h.rosterMu.Lock()
	defer h.rosterMu.Unlock()
	if previous != nil && previous.Machine != entry.Machine {
		h.registry.RemoveIfCurrent(previous)
	}
	replaced := h.registry.Insert(entry)
	h.publishRoster()
	return replaced
}

func (h *Hub) unregister(entry *AgentEntry) bool {
	h.rosterMu.Lock()
	defer h.rosterMu.Unlock()
	removed := h.registry.RemoveIfCurrent(entry)
	h.publishRoster()
	return removed
}

// joinViewer adds a viewer and queues the current roster for it, ahead of any later
// roster broadcast.
func (h *Hub) joinViewer(peer Peer) error {
	h.rosterMu.Lock()
	defer h.rosterMu.Unlock()
	h.viewers.Add(peer)
	h.metrics.SetViewers(h.viewers.Len())
	return Deliver(peer, h.rosterPayload())
}

func (h *Hub) leaveViewer(peer Peer) {
	if h.viewers.Remove(peer) {
		h.metrics.SetViewers(h.viewers.Len())
	}
	_ = peer.Close()
}
