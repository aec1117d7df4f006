package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"benchhub/internal/logging"
	"benchhub/internal/protocol"
	"benchhub/internal/runner"
	"benchhub/internal/wsconn"
)

const (
	pushPath    = "/ws/push"
	stopTimeout = 10 * time.Second
)

// push runs the configured command and forwards each JSON result line to the hub. It fails
// when the hub cannot be reached, a write fails or the command exits unsuccessfully.
func push(ctx context.Context, cfg Config, out io.Writer) error {
	logger := logging.NewLoggerWithOutput(nil, cfg.LogLevel, out).With(map[string]string{"machine": cfg.Machine})

	endpoint, err := wsconn.EndpointURL(cfg.Server, pushPath)
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	conn, err := wsconn.Dial(dialCtx, endpoint, dialer(cfg.UseProxy), cfg.Timeout)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	defer conn.Close()
	logger.Info("connected", map[string]string{"endpoint": endpoint})

	env := os.Environ()
	if !cfg.UseProxy {
		env = runner.WithoutProxy(env)
	}
	process, err := runner.Start(runner.Spec{Path: cfg.Command, Args: cfg.Args, Env: env}, func(line string) {
		logger.Debug("benchmark stderr", map[string]string{"line": line})
	})
	if err != nil {
		return err
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			stop(process)
		case <-stopped:
		}
	}()

	sent := 0
	var sendErr error
	for {
		line, ok := process.Next()
		if !ok {
			break
		}
		payload, ok := protocol.ParseResultLine(line)
		if !ok {
			continue
		}
		tagged, err := protocol.TagOrigin(payload, cfg.Machine)
		if err != nil {
			continue
		}
		if err := conn.Send(tagged); err != nil {
			sendErr = fmt.Errorf("push result: %w", err)
			stop(process)
			break
		}
		sent++
		fields := map[string]string{"sent": strconv.Itoa(sent)}
		if cores, ok := protocol.Metric(tagged, protocol.CoreKeys...); ok {
			fields["cores"] = cores
		}
		logger.Info("result pushed", fields)
	}

	result := process.Wait()
	if sendErr != nil {
		return sendErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Info("benchmark complete", map[string]string{
		"exit_code": strconv.Itoa(result.ExitCode),
		"results":   strconv.Itoa(sent),
		"skipped":   strconv.FormatInt(process.Skipped(), 10),
	})
	if result.ExitCode > 0 {
		return fmt.Errorf("benchmark exited with code %d", result.ExitCode)
	}
	if result.Failed() {
		return fmt.Errorf("benchmark failed: %w", result.Err)
	}
	return nil
}

func dialer(useProxy bool) *websocket.Dialer {
	if !useProxy {
		return nil
	}
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
}

func stop(process *runner.Process) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	_ = process.Stop(ctx)
}
