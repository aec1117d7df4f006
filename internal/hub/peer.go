package hub

import (
	"errors"
	"sync"

	"benchhub/internal/wsconn"
)

var ErrQueueFull = errors.New("viewer queue full")

// Peer is one end of a hub connection. *wsconn.Conn satisfies it.
type Peer interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// Deliver sends payload to peer and returns any failure to the caller.
func Deliver(peer Peer, payload []byte) error {
	if peer == nil {
		return wsconn.ErrClosed
	}
	return peer.Send(payload)
}

// Offer sends payload to peer and swallows any failure. It reports whether the peer
// accepted the message.
func Offer(peer Peer, payload []byte) bool {
	return Deliver(peer, payload) == nil
}

// queuedPeer gives a viewer its own outbound queue and writer goroutine so a slow socket
// only ever delays itself. Send never blocks: a full queue is reported as ErrQueueFull.
type queuedPeer struct {
	peer  Peer
	queue chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newQueuedPeer(peer Peer, size int) *queuedPeer {
	if size <= 0 {
		size = 1
	}
	q := &queuedPeer{
		peer:  peer,
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
	}
	go q.writeLoop()
	return q
}

func (q *queuedPeer) ID() string {
	return q.peer.ID()
}

func (q *queuedPeer) Send(payload []byte) error {
	select {
	case <-q.done:
		return wsconn.ErrClosed
	default:
	}
	select {
	case q.queue <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the writer and closes the underlying peer. Queued messages are discarded.
func (q *queuedPeer) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.done)
		err = q.peer.Close()
	})
	return err
}

func (q *queuedPeer) writeLoop() {
	for {
		select {
		case <-q.done:
			return
		case payload := <-q.queue:
			if err := q.peer.Send(payload); err != nil {
				_ = q.Close()
				return
			}
		}
	}
}
