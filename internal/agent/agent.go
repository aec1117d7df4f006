// Package agent is the benchmark-side client of the hub. An Agent keeps one websocket to
// the hub's agent endpoint, registers its machine id, answers commands, and streams the
// JSON lines of a benchmark run upstream.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"benchhub/internal/logging"
	"benchhub/internal/protocol"
	"benchhub/internal/runner"
	"benchhub/internal/wsconn"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	DefaultRunner            = "generic_runner.sh"
	DefaultConfig            = "benchmark_config.sh"
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultRetryDelay        = 5 * time.Second
	DefaultFlushGrace        = 500 * time.Millisecond
	DefaultStopTimeout       = 10 * time.Second
)

// Process is a started benchmark. *runner.Process satisfies it.
type Process interface {
	Next() (string, bool)
	Wait() runner.Result
	Stop(ctx context.Context) error
	// Skipped counts output lines dropped for exceeding the line length limit.
	Skipped() int64
}

// Launcher starts a benchmark process.
type Launcher func(spec runner.Spec, onStderr func(line string)) (Process, error)

type Options struct {
	// Server is the hub address, either host:port or a URL.
	Server   string
	Machine  string
	Hostname string

	// Runner and Config are resolved against InstallDir when relative.
	Runner     string
	Config     string
	InstallDir string

	HeartbeatInterval time.Duration
	RetryDelay        time.Duration
	FlushGrace        time.Duration
	StopTimeout       time.Duration
	WriteTimeout      time.Duration

	// UseProxy keeps proxy environment variables for both the hub connection and the
	// benchmark process.
	UseProxy bool

	Logger *logging.Logger
	Launch Launcher
}

type Agent struct {
	options  Options
	logger   *logging.Logger
	endpoint string

	mu      sync.Mutex
	current Process
	runs    sync.WaitGroup

	dropLog rate.Sometimes
}

func New(options Options) (*Agent, error) {
	if strings.TrimSpace(options.Server) == "" {
		return nil, errors.New("hub server address is required")
	}
	endpoint, err := wsconn.EndpointURL(options.Server, "/ws/agent")
	if err != nil {
		return nil, err
	}
	if options.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			options.Hostname = host
		}
	}
	if options.Machine == "" {
		options.Machine = options.Hostname
	}
	if options.Machine == "" {
		return nil, errors.New("machine id is required")
	}
	if options.Runner == "" {
		options.Runner = DefaultRunner
	}
	if options.Config == "" {
		options.Config = DefaultConfig
	}
	if options.InstallDir == "" {
		dir, err := runner.InstallDir()
		if err != nil {
			return nil, err
		}
		options.InstallDir = dir
	}
	if options.HeartbeatInterval <= 0 {
		options.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if options.RetryDelay <= 0 {
		options.RetryDelay = DefaultRetryDelay
	}
	if options.FlushGrace < 0 {
		options.FlushGrace = DefaultFlushGrace
	}
	if options.StopTimeout <= 0 {
		options.StopTimeout = DefaultStopTimeout
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.Launch == nil {
		options.Launch = startProcess
	}
	return &Agent{
		options:  options,
		logger:   options.Logger.With(map[string]string{"machine": options.Machine}),
		endpoint: endpoint,
		dropLog:  rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}, nil
}

func (a *Agent) Machine() string {
	return a.options.Machine
}

// Busy reports whether a benchmark process is currently held.
func (a *Agent) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

// Run connects to the hub and serves commands, reconnecting after RetryDelay whenever the
// connection ends. It returns when ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", map[string]string{
		"endpoint": a.endpoint,
		"runner":   runner.Resolve(a.options.InstallDir, a.options.Runner),
	})
	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			a.logger.Info("agent stopped", nil)
			return nil
		}
		fields := map[string]string{"retry_in": a.options.RetryDelay.String()}
		if err != nil {
			fields["error"] = err.Error()
		}
		a.logger.Warn("hub connection lost", fields)

		timer := time.NewTimer(a.options.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("agent stopped", nil)
			return nil
		case <-timer.C:
		}
	}
}

// session serves one hub connection. It does not return until any benchmark started on
// this connection has finished.
func (a *Agent) session(ctx context.Context) error {
	conn, err := wsconn.Dial(ctx, a.endpoint, a.dialer(), a.options.WriteTimeout)
	if err != nil {
		return err
	}
	defer a.runs.Wait()
	defer conn.Close()

	if err := conn.SendJSON(protocol.NewRegister(a.options.Machine, a.options.Hostname)); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	a.logger.Info("registered with hub", map[string]string{"endpoint": a.endpoint, "hostname": a.options.Hostname})

	for {
		payload, err := conn.Receive(ctx, a.options.HeartbeatInterval)
		if errors.Is(err, wsconn.ErrTimeout) {
			if err := conn.SendJSON(protocol.NewHeartbeat(a.options.Machine)); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
			a.logger.Debug("heartbeat sent", nil)
			continue
		}
		if err != nil {
			if wsconn.IsExpectedClose(err) {
				return nil
			}
			return err
		}
		if err := a.dispatch(ctx, conn, payload); err != nil {
			return err
		}
	}
}

// dispatch handles one command frame. Only failures to reply end the session.
func (a *Agent) dispatch(ctx context.Context, conn *wsconn.Conn, payload []byte) error {
	envelope, err := protocol.Peek(payload)
	if err != nil {
		a.logger.Warn("malformed command ignored", map[string]string{"error": err.Error()})
		return nil
	}
	switch envelope.Command {
	case protocol.CommandRunBenchmark:
		if !a.startRun(ctx, conn) {
			a.logger.Warn("benchmark already running", nil)
			return conn.SendJSON(protocol.NewStatusResponse(a.options.Machine, true))
		}
	case protocol.CommandStatus:
		return conn.SendJSON(protocol.NewStatusResponse(a.options.Machine, a.Busy()))
	case protocol.CommandPing:
		return conn.SendJSON(protocol.NewPong(a.options.Machine))
	default:
		a.logger.Warn("unknown command ignored", map[string]string{"command": envelope.Command, "type": envelope.Type})
	}
	return nil
}

func (a *Agent) dialer() *websocket.Dialer {
	if !a.options.UseProxy {
		return nil
	}
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
}

func startProcess(spec runner.Spec, onStderr func(string)) (Process, error) {
	process, err := runner.Start(spec, onStderr)
	if err != nil {
		return nil, err
	}
	return process, nil
}
