package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"benchhub/internal/wsconn"
)

func TestParseArgsPositionals(t *testing.T) {
	cfg, err := parseArgs([]string{"--machine", "flag-id", "10.0.0.5:8000", "m7", "cassandra.sh"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Overrides["agent.server"] != "10.0.0.5:8000" || cfg.Overrides["agent.machine"] != "m7" || cfg.Overrides["agent.config"] != "cassandra.sh" {
		t.Fatalf("unexpected overrides %v", cfg.Overrides)
	}
}

func TestParseArgsFlagsOnly(t *testing.T) {
	cfg, err := parseArgs([]string{"--server", "hub:9000", "--use-proxy", "--install-dir", "/opt/bench"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Overrides["agent.server"] != "hub:9000" || cfg.Overrides["agent.use-proxy"] != true {
		t.Fatalf("unexpected overrides %v", cfg.Overrides)
	}
	if _, ok := cfg.Overrides["agent.machine"]; ok {
		t.Fatal("machine should not be overridden")
	}
	if cfg.InstallDir != "/opt/bench" {
		t.Fatalf("unexpected install dir %q", cfg.InstallDir)
	}
}

func TestParseArgsTooMany(t *testing.T) {
	if _, err := parseArgs([]string{"a", "b", "c", "d"}, io.Discard); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseArgsHelp(t *testing.T) {
	var out bytes.Buffer
	if _, err := parseArgs([]string{"-h"}, &out); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
	if !strings.Contains(out.String(), "benchhub-agent [options] [server]") {
		t.Fatalf("unexpected help %q", out.String())
	}
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"--version"}, &out, io.Discard); code != exitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out.String(), "benchhub-agent ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestBuildAgentAppliesSettings(t *testing.T) {
	a, _, err := buildAgent(Config{
		InstallDir: "/opt/bench",
		Overrides:  map[string]any{"agent.server": "hub:9000", "agent.machine": "m7"},
	}, io.Discard)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if a.Machine() != "m7" {
		t.Fatalf("unexpected machine %q", a.Machine())
	}
	if spec := a.Spec(); !strings.HasSuffix(spec.Path, "generic_runner.sh") || spec.Args[1] != "m7" {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestRunAgentRegistersAndStopsOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping: cannot listen on loopback: %v", err)
	}
	frames := make(chan []byte, 4)
	server := &httptest.Server{Listener: listener, Config: &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsconn.Upgrade(w, r, nil, time.Second)
		if err != nil {
			return
		}
		defer conn.Close()
		payload, err := conn.Receive(r.Context(), 2*time.Second)
		if err == nil {
			frames <- payload
		}
		_, _ = conn.Receive(r.Context(), 2*time.Second)
	})}}
	server.Start()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runAgent(ctx, Config{
			InstallDir: t.TempDir(),
			Overrides:  map[string]any{"agent.server": server.URL, "agent.machine": "m1", "log.level": "error"},
		}, io.Discard)
	}()

	select {
	case payload := <-frames:
		if !strings.Contains(string(payload), `"type":"register"`) || !strings.Contains(string(payload), `"machine":"m1"`) {
			t.Fatalf("unexpected registration %s", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("agent did not register")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runAgent returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("agent did not stop")
	}
}
