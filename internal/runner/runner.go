// Package runner starts benchmark subprocesses and exposes their output as lines.
//
// Standard output is read by the caller, one line at a time, through Next. Standard
// error is drained on its own goroutine into a callback so a chatty stderr can never
// stall stdout. Lines over the length limit are skipped without ending the stream. Each process runs in its own process group so Stop reaches any
// children the runner script starts.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
)

const (
	readBufferSize = 64 * 1024
	// Longer stdout or stderr lines are skipped whole; reading continues at the next line.
	maxLineBytes = 1024 * 1024
)

var ErrNotStarted = errors.New("process not started")

type Spec struct {
	Path string
	Args []string
	Dir  string
	// Env replaces the child environment when non-nil.
	Env []string
}

type Result struct {
	ExitCode int
	Err      error
}

// Failed reports whether the run should be surfaced as an error result.
func (r Result) Failed() bool {
	return r.Err != nil || r.ExitCode != 0
}

// Process is a started benchmark. A single reaper goroutine owns stdout: it reads lines,
// hands them to Next, and reaps the child only after stdout reaches end of file.
type Process struct {
	cmd     *exec.Cmd
	lines   chan string
	skipped atomic.Int64

	discardOnce sync.Once
	discard     chan struct{}

	result Result
	exited chan struct{}
}

// Start launches spec. onStderr, when set, receives each stderr line.
func Start(spec Spec, onStderr func(line string)) (*Process, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("runner path is required")
	}
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	configureProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	process := &Process{
		cmd:     cmd,
		lines:   make(chan string),
		discard: make(chan struct{}),
		exited:  make(chan struct{}),
	}
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		drainStderr(stderr, onStderr)
	}()
	go process.reap(stdout, stderrDone)
	return process, nil
}

func (p *Process) PID() int {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Next returns the next stdout line. It returns false once output has ended or been
// discarded. It may be called from a different goroutine than Stop.
func (p *Process) Next() (string, bool) {
	if p == nil || p.lines == nil {
		return "", false
	}
	line, ok := <-p.lines
	return line, ok
}

// Skipped reports how many stdout lines were dropped for exceeding the line limit.
func (p *Process) Skipped() int64 {
	if p == nil {
		return 0
	}
	return p.skipped.Load()
}

// Wait discards any unread stdout and blocks until the process has been reaped.
// It is safe to call more than once and from several goroutines.
func (p *Process) Wait() Result {
	if p == nil || p.cmd == nil {
		return Result{ExitCode: -1, Err: ErrNotStarted}
	}
	p.discardOutput()
	<-p.exited
	return p.result
}

// Stop terminates the process group and waits for it to be reaped. When ctx ends first
// the group is killed. Output not yet read is discarded.
func (p *Process) Stop(ctx context.Context) error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := terminate(p.cmd.Process); err != nil {
		return err
	}
	p.discardOutput()
	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
	}
	if err := kill(p.cmd.Process); err != nil {
		return errors.Join(ctx.Err(), err)
	}
	return ctx.Err()
}

func (p *Process) discardOutput() {
	p.discardOnce.Do(func() { close(p.discard) })
}

// reap forwards stdout until end of file, then waits for stderr and the child. cmd.Wait
// closes the pipes, so it must not run before reading is done.
func (p *Process) reap(stdout io.Reader, stderrDone <-chan struct{}) {
	readErr := p.pump(stdout)
	close(p.lines)
	<-stderrDone
	p.result = resultOf(p.cmd.Wait(), readErr)
	close(p.exited)
}

func (p *Process) pump(stdout io.Reader) error {
	reader := bufio.NewReaderSize(stdout, readBufferSize)
	for {
		line, fits, err := readLine(reader)
		if !fits {
			p.skipped.Add(1)
		} else if err == nil || len(line) > 0 {
			select {
			case p.lines <- line:
			case <-p.discard:
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func drainStderr(stderr io.Reader, onStderr func(string)) {
	reader := bufio.NewReaderSize(stderr, readBufferSize)
	for {
		line, fits, err := readLine(reader)
		if fits && (err == nil || len(line) > 0) && onStderr != nil {
			onStderr(line)
		}
		if err != nil {
			return
		}
	}
}

// readLine reads through the next newline. fits is false when the line exceeded
// maxLineBytes; its bytes are consumed and dropped.
func readLine(reader *bufio.Reader) (string, bool, error) {
	var line []byte
	fits := true
	for {
		chunk, err := reader.ReadSlice('\n')
		if fits {
			if len(bytes.TrimRight(chunk, "\r\n"))+len(line) > maxLineBytes {
				fits, line = false, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		return string(line), fits, err
	}
}

func resultOf(waitErr, readErr error) Result {
	if waitErr == nil {
		if readErr != nil {
			return Result{ExitCode: 0, Err: fmt.Errorf("read output: %w", readErr)}
		}
		return Result{}
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		return Result{ExitCode: code, Err: fmt.Errorf("benchmark %s", exitErr.ProcessState.String())}
	}
	return Result{ExitCode: -1, Err: waitErr}
}
