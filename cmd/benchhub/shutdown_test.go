package main

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"benchhub/internal/logging"
)

func TestShutdownCoordinatorRunsStepsInOrderOnce(t *testing.T) {
	coordinator := newShutdownCoordinator(logging.Discard())
	order := []string{}
	coordinator.Add(drainStep{name: "websockets", stop: func(context.Context) error {
		order = append(order, "websockets")
		return nil
	}})
	coordinator.Add(drainStep{name: "otel", stop: func(context.Context) error {
		order = append(order, "otel")
		return errors.New("exporter unreachable")
	}})
	coordinator.Add(drainStep{name: "ignored"})

	first := coordinator.Run(context.Background())
	if first == nil || !strings.Contains(first.Error(), "otel: exporter unreachable") {
		t.Fatalf("expected the failing step error, got %v", first)
	}
	if again := coordinator.Run(context.Background()); again != first {
		t.Fatalf("expected second run to return the first result, got %v", again)
	}
	if want := []string{"websockets", "otel"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
}

func TestShutdownCoordinatorBudgetIsPerStep(t *testing.T) {
	buffer := logging.NewLogBuffer(20)
	coordinator := newShutdownCoordinator(logging.NewLoggerWithOutput(buffer, logging.LevelDebug, nil))
	coordinator.Add(drainStep{name: "otel", budget: 20 * time.Millisecond, stop: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	var websocketsErr error
	coordinator.Add(drainStep{name: "websockets", budget: time.Second, stop: func(ctx context.Context) error {
		websocketsErr = ctx.Err()
		return nil
	}})

	err := coordinator.Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the slow step to exceed its budget, got %v", err)
	}
	if websocketsErr != nil {
		t.Fatalf("later step inherited an expired deadline: %v", websocketsErr)
	}
	found := false
	for _, entry := range buffer.List() {
		if entry.Message == "drain step over budget" && entry.Context["step"] == "otel" && entry.Context["budget"] == "20ms" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an over-budget warning, got %+v", buffer.List())
	}
}

func TestShutdownCoordinatorLogsSnapshot(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	coordinator := newShutdownCoordinator(logging.NewLoggerWithOutput(buffer, logging.LevelInfo, nil))
	coordinator.Add(drainStep{
		name:     "websockets",
		stop:     func(context.Context) error { return nil },
		snapshot: func() map[string]string { return map[string]string{"agents": "2", "viewers": "5"} },
	})
	if err := coordinator.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	entries := buffer.List()
	if len(entries) != 1 || entries[0].Message != "draining" || entries[0].Context["agents"] != "2" || entries[0].Context["viewers"] != "5" {
		t.Fatalf("unexpected log entries %+v", entries)
	}
}

func TestWatchShutdownSignalsEscalatesOnSecondSignal(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, nil)
	graceful, cancelGraceful := context.WithCancel(context.Background())
	defer cancelGraceful()
	forced, cancelForced := context.WithCancel(context.Background())
	defer cancelForced()

	signals := make(chan os.Signal, 3)
	stop := watchShutdownSignals(logger, cancelGraceful, cancelForced, signals)
	defer stop()

	signals <- syscall.SIGTERM
	select {
	case <-graceful.Done():
	case <-time.After(time.Second):
		t.Fatal("expected graceful shutdown to start")
	}
	if forced.Err() != nil {
		t.Fatal("first signal must not force the drain")
	}

	signals <- os.Interrupt
	select {
	case <-forced.Done():
	case <-time.After(time.Second):
		t.Fatal("expected second signal to force the drain")
	}
	signals <- os.Interrupt

	deadline := time.Now().Add(time.Second)
	for len(buffer.List()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	entries := buffer.List()
	if len(entries) != 2 || entries[0].Message != "shutdown signal received" || entries[1].Context["signal"] != os.Interrupt.String() {
		t.Fatalf("unexpected log entries %+v", entries)
	}
	stop()
}

func TestWatchShutdownSignalsNilChannel(t *testing.T) {
	stop := watchShutdownSignals(nil, nil, nil, nil)
	stop()
}
