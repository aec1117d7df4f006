// Package wsconn wraps a gorilla websocket connection with the operations the hub and
// agent loops are written against: receive bounded by a timeout, serialized writes with
// a deadline, and a close that is safe to call any number of times.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	readBufferSize      = 1024
	writeBufferSize     = 1024
	maxMessageSize      = 1 << 20
	inboundBuffer       = 16
	closeGrace          = time.Second
)

var (
	ErrClosed  = errors.New("websocket connection closed")
	ErrTimeout = errors.New("receive timed out")
)

type Conn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	inbound chan []byte
	readErr error

	done      chan struct{}
	closeOnce sync.Once
}

// New takes ownership of ws and starts its read pump.
func New(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	ws.SetReadLimit(maxMessageSize)
	conn := &Conn{
		id:           uuid.NewString(),
		ws:           ws,
		writeTimeout: writeTimeout,
		inbound:      make(chan []byte, inboundBuffer),
		done:         make(chan struct{}),
	}
	go conn.readPump()
	return conn
}

// Upgrade accepts a websocket handshake. An empty allowedOrigins list accepts any origin.
func Upgrade(w http.ResponseWriter, r *http.Request, allowedOrigins []string, writeTimeout time.Duration) (*Conn, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: writeBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		},
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return New(ws, writeTimeout), nil
}

// Dial connects to a websocket endpoint. A nil dialer connects directly, ignoring proxy
// environment variables.
func Dial(ctx context.Context, endpoint string, dialer *websocket.Dialer, writeTimeout time.Duration) (*Conn, error) {
	if dialer == nil {
		dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   readBufferSize,
			WriteBufferSize:  writeBufferSize,
		}
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return New(ws, writeTimeout), nil
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) RemoteAddr() string {
	if c == nil || c.ws == nil {
		return ""
	}
	return c.ws.RemoteAddr().String()
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Receive waits for the next inbound message. A timeout <= 0 waits without bound.
// It returns ErrTimeout when the window elapses, and an error wrapping ErrClosed once
// the peer or the local side has closed the connection.
func (c *Conn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case payload, ok := <-c.inbound:
		if !ok {
			return nil, c.receiveError()
		}
		return payload, nil
	case <-expired:
		return nil, ErrTimeout
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes one text frame and reports any failure. A failed write closes the connection.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		_ = c.Close()
		return errors.Join(ErrClosed, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		_ = c.Close()
		return errors.Join(ErrClosed, err)
	}
	return nil
}

func (c *Conn) SendJSON(value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return c.Send(payload)
}

// Close sends a normal close frame and releases the socket. Later calls are no-ops.
func (c *Conn) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(closeGrace)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		if err := c.ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			closeErr = err
		}
	})
	return closeErr
}

func (c *Conn) readPump() {
	defer close(c.inbound)
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		select {
		case c.inbound <- payload:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) receiveError() error {
	if c.readErr == nil {
		return ErrClosed
	}
	return errors.Join(ErrClosed, c.readErr)
}

// IsExpectedClose reports whether err is an ordinary end of a connection rather than a fault.
func IsExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return true
		}
		return false
	}
	return err == ErrClosed
}

func originAllowed(r *http.Request, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, candidate := range allowed {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}
