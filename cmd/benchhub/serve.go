package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"benchhub"
	"benchhub/internal/config"
	"benchhub/internal/hub"
	"benchhub/internal/logging"
	"benchhub/internal/metrics"
	benchotel "benchhub/internal/otel"
	"benchhub/internal/version"
)

const (
	httpServerShutdownTimeout = 5 * time.Second
	readHeaderTimeout         = 10 * time.Second
	websocketDrainBudget      = 5 * time.Second
	otelFlushBudget           = 3 * time.Second
)

// onListening is called with the bound address once the listener is up.
var onListening = func(net.Addr) {}

func loadSettings(cfg Config) (config.Settings, error) {
	overrides := config.EnvOverrides(os.Environ())
	for key, value := range cfg.Overrides {
		overrides[key] = value
	}
	return config.Load(cfg.SettingsPath, benchhub.DefaultSettingsTOML, overrides)
}

func serve(ctx context.Context, cfg Config, out io.Writer, signals <-chan os.Signal) error {
	settings, err := loadSettings(cfg)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), settings.Log.Level, out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	drainCtx, forceStop := context.WithCancel(context.Background())
	defer forceStop()
	stopWatching := watchShutdownSignals(logger, cancel, forceStop, signals)
	defer stopWatching()

	otelShutdown, err := benchotel.SetupSDK(ctx, benchotel.SDKOptions{
		Enabled:        settings.OTel.Enabled,
		HTTPEndpoint:   settings.OTel.Endpoint,
		ServiceName:    settings.OTel.ServiceName,
		ServiceVersion: version.Version,
	})
	if err != nil {
		logger.Warn("tracing disabled", map[string]string{"error": err.Error()})
		otelShutdown = func(context.Context) error { return nil }
	}

	h := hub.New(hub.Options{
		Logger:          logger,
		Metrics:         metrics.New(),
		ViewerKeepalive: settings.Hub.ViewerKeepalive,
		AgentTimeout:    settings.Hub.AgentTimeout,
		WriteTimeout:    settings.Hub.WriteTimeout,
		ViewerQueue:     settings.Hub.ViewerQueue,
		AllowedOrigins:  settings.Hub.AllowedOrigins,
		Dashboard:       settings.Hub.Dashboard,
		Version:         version.Version,
	})

	listener, err := net.Listen("tcp", settings.Hub.Addr)
	if err != nil {
		_ = otelShutdown(context.Background())
		return fmt.Errorf("listen on %s: %w", settings.Hub.Addr, err)
	}
	logger.Info("benchhub listening", map[string]string{
		"addr":          listener.Addr().String(),
		"agent_timeout": settings.Hub.AgentTimeout.String(),
		"version":       version.Version,
	})
	onListening(listener.Addr())

	server := &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	coordinator := newShutdownCoordinator(logger)
	coordinator.Add(drainStep{
		name:     "websockets",
		budget:   websocketDrainBudget,
		stop:     h.Close,
		snapshot: hubSnapshot(h),
	})
	coordinator.Add(drainStep{name: "otel", budget: otelFlushBudget, stop: otelShutdown})

	serveErr := runHTTP(ctx, logger, server, listener, httpServerShutdownTimeout)

	shutdownErr := coordinator.Run(drainCtx)
	if serveErr != nil {
		return errors.Join(fmt.Errorf("http server: %w", serveErr), shutdownErr)
	}
	logger.Info("benchhub stopped", nil)
	return shutdownErr
}

// hubSnapshot reports what the websocket drain is about to disconnect.
func hubSnapshot(h *hub.Hub) func() map[string]string {
	return func() map[string]string {
		return map[string]string{
			"agents":  strconv.Itoa(h.Registry().Len()),
			"viewers": strconv.Itoa(h.Viewers().Len()),
		}
	}
}
