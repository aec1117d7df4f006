package agent

import (
	"context"
	"os"
	"strconv"
	"time"

	"benchhub/internal/protocol"
	"benchhub/internal/runner"
	"benchhub/internal/wsconn"
)

// Spec returns the launch parameters for one benchmark run.
func (a *Agent) Spec() runner.Spec {
	dir := a.options.InstallDir
	spec := runner.Spec{
		Path: runner.Resolve(dir, a.options.Runner),
		Args: []string{runner.Resolve(dir, a.options.Config), a.options.Machine},
		Dir:  dir,
	}
	if !a.options.UseProxy {
		spec.Env = runner.WithoutProxy(os.Environ())
	}
	return spec
}

// startRun launches a benchmark in the background. It returns false when one is already
// running.
func (a *Agent) startRun(ctx context.Context, conn *wsconn.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		return false
	}

	spec := a.Spec()
	logger := a.logger
	process, err := a.options.Launch(spec, func(line string) {
		logger.Debug("benchmark stderr", map[string]string{"line": line})
	})
	if err != nil {
		a.logger.Error("benchmark failed to start", map[string]string{"runner": spec.Path, "error": err.Error()})
		if sendErr := conn.SendJSON(protocol.NewRunError(a.options.Machine, err, nil)); sendErr != nil {
			a.logger.Warn("error result send failed", map[string]string{"error": sendErr.Error()})
		}
		return true
	}

	a.current = process
	a.runs.Add(1)
	a.logger.Info("benchmark started", map[string]string{"runner": spec.Path, "config": spec.Args[0]})
	go a.stream(ctx, conn, process)
	return true
}

// stream forwards the JSON lines of process to the hub until the output ends or a send
// fails. A failed send stops the process group.
func (a *Agent) stream(ctx context.Context, conn *wsconn.Conn, process Process) {
	defer a.runs.Done()
	defer a.release(process)

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info("stopping benchmark for shutdown", nil)
			a.stop(process)
		case <-finished:
		}
	}()

	started := time.Now()
	sent, dropped := 0, 0
	aborted := false
	for {
		line, ok := process.Next()
		if !ok {
			break
		}
		payload, ok := protocol.ParseResultLine(line)
		if !ok {
			dropped++
			a.dropLog.Do(func() {
				a.logger.Debug("non-JSON output dropped", map[string]string{"line": truncate(line, 120)})
			})
			continue
		}
		tagged, err := protocol.TagOrigin(payload, a.options.Machine)
		if err != nil {
			dropped++
			continue
		}
		if err := conn.Send(tagged); err != nil {
			a.logger.Warn("result send failed, stopping benchmark", map[string]string{"error": err.Error()})
			aborted = true
			a.stop(process)
			break
		}
		sent++
	}

	result := process.Wait()
	a.flushGrace(ctx)

	fields := map[string]string{
		"sent":      strconv.Itoa(sent),
		"dropped":   strconv.Itoa(dropped + int(process.Skipped())),
		"exit_code": strconv.Itoa(result.ExitCode),
		"duration":  time.Since(started).Round(time.Millisecond).String(),
	}
	if !result.Failed() {
		a.logger.Info("benchmark finished", fields)
		return
	}
	if result.Err != nil {
		fields["error"] = result.Err.Error()
	}
	a.logger.Error("benchmark failed", fields)
	if aborted || ctx.Err() != nil {
		return
	}
	var exitCode *int
	if result.ExitCode > 0 {
		code := result.ExitCode
		exitCode = &code
	}
	if err := conn.SendJSON(protocol.NewRunError(a.options.Machine, result.Err, exitCode)); err != nil {
		a.logger.Warn("error result send failed", map[string]string{"error": err.Error()})
	}
}

func (a *Agent) stop(process Process) {
	ctx, cancel := context.WithTimeout(context.Background(), a.options.StopTimeout)
	defer cancel()
	if err := process.Stop(ctx); err != nil {
		a.logger.Warn("benchmark stop incomplete", map[string]string{"error": err.Error()})
	}
}

func (a *Agent) flushGrace(ctx context.Context) {
	if a.options.FlushGrace <= 0 {
		return
	}
	timer := time.NewTimer(a.options.FlushGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (a *Agent) release(process Process) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == process {
		a.current = nil
	}
}

func truncate(line string, limit int) string {
	if len(line) <= limit {
		return line
	}
	return line[:limit] + "..."
}
