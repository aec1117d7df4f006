package agent

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	agent, err := New(Options{Server: "localhost:8000", Hostname: "bench-7", InstallDir: "/opt/bench"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if agent.Machine() != "bench-7" {
		t.Fatalf("expected machine to default to hostname, got %q", agent.Machine())
	}
	if agent.endpoint != "ws://localhost:8000/ws/agent" {
		t.Fatalf("unexpected endpoint %q", agent.endpoint)
	}
	spec := agent.Spec()
	if spec.Path != filepath.Join("/opt/bench", DefaultRunner) {
		t.Fatalf("unexpected runner path %q", spec.Path)
	}
	if len(spec.Args) != 2 || spec.Args[0] != filepath.Join("/opt/bench", DefaultConfig) || spec.Args[1] != "bench-7" {
		t.Fatalf("unexpected runner args %q", spec.Args)
	}
	if spec.Dir != "/opt/bench" {
		t.Fatalf("unexpected working dir %q", spec.Dir)
	}
}

func TestNewRequiresServer(t *testing.T) {
	if _, err := New(Options{Machine: "m1"}); err == nil {
		t.Fatal("expected error without server")
	}
	if _, err := New(Options{Server: "ftp://hub", Machine: "m1"}); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestSpecStripsProxyUnlessEnabled(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://proxy.invalid:3128")

	agent, err := New(Options{Server: "hub:8000", Machine: "m1", InstallDir: "/opt/bench"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, entry := range agent.Spec().Env {
		if strings.HasPrefix(entry, "HTTP_PROXY=") {
			t.Fatalf("proxy variable leaked into benchmark env")
		}
	}

	proxied, err := New(Options{Server: "hub:8000", Machine: "m1", InstallDir: "/opt/bench", UseProxy: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if proxied.Spec().Env != nil {
		t.Fatal("expected inherited environment when proxies are allowed")
	}
	if proxied.dialer() == nil || agent.dialer() != nil {
		t.Fatal("expected a proxy-aware dialer only when proxies are allowed")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Fatalf("unexpected %q", got)
	}
}
