package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"benchhub/internal/logging"
)

// runHTTP serves on listener until ctx ends or Serve fails, then drains in-flight requests
// for up to grace. Hijacked websocket connections are not covered by the drain.
func runHTTP(ctx context.Context, logger *logging.Logger, server *http.Server, listener net.Listener, grace time.Duration) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", map[string]string{"error": err.Error()})
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logger.Warn("http drain incomplete", map[string]string{"error": err.Error()})
		}
		return nil
	})
	return group.Wait()
}
