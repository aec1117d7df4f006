package wsconn

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newPair starts a server that hands its side of each connection to accepted and
// returns a dialed client connection.
func newPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping websocket test (listener unavailable): %v", err)
	}
	accepted := make(chan *Conn, 1)
	server := &httptest.Server{
		Listener: listener,
		Config: &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := Upgrade(w, r, nil, time.Second)
			if err != nil {
				return
			}
			accepted <- conn
		})},
	}
	server.Start()
	t.Cleanup(server.Close)

	endpoint, err := EndpointURL(server.URL, "/ws")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	client, err := Dial(context.Background(), endpoint, nil, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-accepted:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side")
		return nil, nil
	}
}

func TestSendAndReceive(t *testing.T) {
	serverSide, client := newPair(t)

	if err := client.SendJSON(map[string]string{"type": "heartbeat"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	payload, err := serverSide.Receive(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(payload) != `{"type":"heartbeat"}` {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestReceiveTimeoutKeepsConnectionUsable(t *testing.T) {
	serverSide, client := newPair(t)

	if _, err := serverSide.Receive(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if err := client.Send([]byte(`{"late":true}`)); err != nil {
		t.Fatalf("send after timeout: %v", err)
	}
	payload, err := serverSide.Receive(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("receive after timeout: %v", err)
	}
	if string(payload) != `{"late":true}` {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestReceiveReportsRemoteClose(t *testing.T) {
	serverSide, client := newPair(t)

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := serverSide.Receive(context.Background(), time.Second)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if !IsExpectedClose(err) {
		t.Fatalf("expected a normal close, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	serverSide, _ := newPair(t)

	if err := serverSide.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := serverSide.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := serverSide.Send([]byte(`{}`)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	if _, err := serverSide.Receive(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from receive, got %v", err)
	}
}

func TestReceiveHonorsContext(t *testing.T) {
	serverSide, _ := newPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := serverSide.Receive(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestEndpointURL(t *testing.T) {
	cases := map[string]string{
		"10.0.0.5:8000":             "ws://10.0.0.5:8000/ws/agent",
		"http://hub.local:8000":     "ws://hub.local:8000/ws/agent",
		"https://hub.local/":        "wss://hub.local/ws/agent",
		"ws://hub.local:9000/other": "ws://hub.local:9000/other",
	}
	for input, want := range cases {
		got, err := EndpointURL(input, "/ws/agent")
		if err != nil {
			t.Fatalf("EndpointURL(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("EndpointURL(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := EndpointURL("", "/ws"); err == nil {
		t.Fatal("expected error for empty server")
	}
	if _, err := EndpointURL("ftp://x", "/ws"); err == nil || !strings.Contains(err.Error(), "scheme") {
		t.Fatalf("expected scheme error, got %v", err)
	}
}

func TestOriginAllowed(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/ws", nil)
	request.Header.Set("Origin", "http://dash.local")

	if !originAllowed(request, nil) {
		t.Fatal("expected empty allow list to accept")
	}
	if !originAllowed(request, []string{"http://DASH.local"}) {
		t.Fatal("expected case-insensitive match")
	}
	if originAllowed(request, []string{"http://other"}) {
		t.Fatal("expected mismatch to be rejected")
	}
}
