package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"
	"time"

	"benchhub/internal/logging"
)

// drainStep is one stage of hub shutdown. budget bounds the stage on its own; snapshot,
// when set, is logged before the stage runs.
type drainStep struct {
	name     string
	budget   time.Duration
	stop     func(context.Context) error
	snapshot func() map[string]string
}

// shutdownCoordinator runs drain steps in registration order, once. Each step gets its
// own deadline, derived from the ctx passed to Run.
type shutdownCoordinator struct {
	logger *logging.Logger
	once   sync.Once
	steps  []drainStep
	result error
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{logger: logger}
}

func (c *shutdownCoordinator) Add(step drainStep) {
	if c == nil || step.stop == nil {
		return
	}
	c.steps = append(c.steps, step)
}

// Run drains every step under ctx. Cancelling ctx aborts the step in progress and the
// remaining steps run with an already expired deadline.
func (c *shutdownCoordinator) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.once.Do(func() {
		for _, step := range c.steps {
			if err := c.runStep(ctx, step); err != nil {
				c.result = errors.Join(c.result, fmt.Errorf("%s: %w", step.name, err))
			}
		}
	})
	return c.result
}

func (c *shutdownCoordinator) runStep(ctx context.Context, step drainStep) error {
	stepCtx := ctx
	if step.budget > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.budget)
		defer cancel()
	}

	fields := map[string]string{"step": step.name}
	if step.snapshot != nil {
		maps.Copy(fields, step.snapshot())
	}
	c.logger.Info("draining", fields)

	started := time.Now()
	err := step.stop(stepCtx)
	fields = map[string]string{"step": step.name, "took": time.Since(started).Round(time.Millisecond).String()}
	switch {
	case err == nil:
		c.logger.Debug("drained", fields)
	case errors.Is(err, context.DeadlineExceeded):
		fields["budget"] = step.budget.String()
		c.logger.Warn("drain step over budget", fields)
	default:
		fields["error"] = err.Error()
		c.logger.Warn("drain step failed", fields)
	}
	return err
}

// watchShutdownSignals starts a graceful stop on the first signal. A second signal calls
// force, which cuts the websocket drain short. The returned func stops the watcher.
func watchShutdownSignals(logger *logging.Logger, graceful, force context.CancelFunc, signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		received := 0
		for {
			var sig os.Signal
			select {
			case <-done:
				return
			case s, ok := <-signalCh:
				if !ok {
					return
				}
				sig = s
			}
			received++
			fields := map[string]string{}
			if sig != nil {
				fields["signal"] = sig.String()
			}
			switch received {
			case 1:
				logger.Info("shutdown signal received", fields)
				if graceful != nil {
					graceful()
				}
			case 2:
				logger.Warn("second signal, abandoning drain", fields)
				if force != nil {
					force()
				}
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() { close(done) })
	}
}
