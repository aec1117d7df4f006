package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"benchhub"
	"benchhub/internal/agent"
	"benchhub/internal/cli"
	"benchhub/internal/config"
	"benchhub/internal/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	cfg, err := parseArgs(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(errOut, err)
		return exitUsage
	}
	if cfg.ShowVersion {
		cli.PrintVersion(out, "benchhub-agent")
		return exitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runAgent(ctx, cfg, out); err != nil {
		fmt.Fprintln(errOut, err)
		return exitFailure
	}
	return exitOK
}

func buildAgent(cfg Config, out io.Writer) (*agent.Agent, *logging.Logger, error) {
	overrides := config.EnvOverrides(os.Environ())
	for key, value := range cfg.Overrides {
		overrides[key] = value
	}
	settings, err := config.Load(cfg.SettingsPath, benchhub.DefaultSettingsTOML, overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), settings.Log.Level, out)

	a, err := agent.New(agent.Options{
		Server:            settings.Agent.Server,
		Machine:           settings.Agent.Machine,
		Hostname:          settings.Agent.Hostname,
		Runner:            settings.Agent.Runner,
		Config:            settings.Agent.Config,
		InstallDir:        cfg.InstallDir,
		HeartbeatInterval: settings.Agent.HeartbeatInterval,
		RetryDelay:        settings.Agent.RetryDelay,
		FlushGrace:        settings.Agent.FlushGrace,
		StopTimeout:       settings.Agent.StopTimeout,
		WriteTimeout:      settings.Hub.WriteTimeout,
		UseProxy:          settings.Agent.UseProxy,
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func runAgent(ctx context.Context, cfg Config, out io.Writer) error {
	a, logger, err := buildAgent(cfg, out)
	if err != nil {
		return err
	}
	logger.Info("benchmark agent ready", map[string]string{"machine": a.Machine()})
	return a.Run(ctx)
}
