package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"benchhub/internal/cli"
)

const defaultSettingsFile = "benchhub.toml"

type Config struct {
	SettingsPath string
	// Overrides holds settings keys given explicitly on the command line.
	Overrides   map[string]any
	ShowVersion bool
}

func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("benchhub", flag.ContinueOnError)
	fs.SetOutput(errOut)
	settingsPath := fs.String("config", defaultSettingsPath(), "Settings file (TOML or YAML)")
	addr := fs.String("addr", "", "Listen address")
	logLevel := fs.String("log-level", "", "Minimum log level")
	dashboard := fs.String("dashboard", "", "Dashboard file served at /")
	agentTimeout := fs.String("agent-timeout", "", "Agent silence allowed before disconnect")
	helper := cli.AddHelpVersionFlags(fs, "Show this help message", "Print version and exit")
	fs.Usage = func() {
		printHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if helper.Help {
		fs.Usage()
		return Config{}, flag.ErrHelp
	}
	if helper.Version {
		return Config{ShowVersion: true}, nil
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return Config{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	overrides := map[string]any{}
	if cli.FlagWasSet(fs, "addr") {
		overrides["hub.addr"] = strings.TrimSpace(*addr)
	}
	if cli.FlagWasSet(fs, "log-level") {
		overrides["log.level"] = strings.TrimSpace(*logLevel)
	}
	if cli.FlagWasSet(fs, "dashboard") {
		overrides["hub.dashboard"] = strings.TrimSpace(*dashboard)
	}
	if cli.FlagWasSet(fs, "agent-timeout") {
		overrides["hub.agent-timeout"] = strings.TrimSpace(*agentTimeout)
	}
	return Config{
		SettingsPath: strings.TrimSpace(*settingsPath),
		Overrides:    overrides,
	}, nil
}

func defaultSettingsPath() string {
	if path := strings.TrimSpace(os.Getenv("BENCHHUB_CONFIG")); path != "" {
		return path
	}
	return defaultSettingsFile
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: benchhub [options]")
	fmt.Fprintln(out, "       benchhub schema [message]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Run the benchmark coordination hub")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	cli.WriteOption(out, "--config", "Settings file, TOML or YAML (env: BENCHHUB_CONFIG, default: benchhub.toml)")
	cli.WriteOption(out, "--addr", "Listen address (default: :8000)")
	cli.WriteOption(out, "--log-level", "debug, info, warning or error")
	cli.WriteOption(out, "--dashboard", "Dashboard file served at / (default: index.html)")
	cli.WriteOption(out, "--agent-timeout", "Agent silence allowed before disconnect (default: 300s)")
	cli.WriteOption(out, "--help", "Show this help message")
	cli.WriteOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Endpoints:")
	fmt.Fprintln(out, "  /ws /ws/push /ws/agent /ws/control /api/status /api/logs /metrics")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Settings can also be set with BENCHHUB_<SECTION>_<KEY>, for example BENCHHUB_HUB_AGENT_TIMEOUT=600s")
}
