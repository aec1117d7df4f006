package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"benchhub/internal/cli"
)

const (
	defaultServer  = "localhost:8000"
	defaultWait    = 3 * time.Second
	defaultTimeout = 5 * time.Second
)

const (
	actionRunAll = "run-all"
	actionRun    = "run"
	actionAgents = "agents"
	actionStatus = "status"
	actionPing   = "ping"
	actionWatch  = "watch"
)

type Config struct {
	Server      string
	Action      string
	Machines    []string
	Wait        time.Duration
	Timeout     time.Duration
	ShowVersion bool
}

func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("benchhub-ctl", flag.ContinueOnError)
	fs.SetOutput(errOut)
	server := fs.String("server", "", "Hub address (env: BENCHHUB_SERVER)")
	wait := fs.Duration("wait", defaultWait, "How long status and ping collect replies")
	timeout := fs.Duration("timeout", defaultTimeout, "Connect and reply timeout")
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
	if fs.NArg() == 0 {
		fs.Usage()
		return Config{}, fmt.Errorf("command required")
	}
	if *wait <= 0 || *timeout <= 0 {
		return Config{}, fmt.Errorf("--wait and --timeout must be positive")
	}

	cfg := Config{
		Server:  strings.TrimSpace(*server),
		Action:  strings.TrimSpace(fs.Arg(0)),
		Wait:    *wait,
		Timeout: *timeout,
	}
	if cfg.Server == "" {
		cfg.Server = strings.TrimSpace(os.Getenv("BENCHHUB_SERVER"))
	}
	if cfg.Server == "" {
		cfg.Server = defaultServer
	}

	rest := fs.Args()[1:]
	switch cfg.Action {
	case actionRun:
		for _, machine := range rest {
			if machine = strings.TrimSpace(machine); machine != "" {
				cfg.Machines = append(cfg.Machines, machine)
			}
		}
		if len(cfg.Machines) == 0 {
			return Config{}, fmt.Errorf("run requires at least one machine id")
		}
	case actionRunAll, actionAgents, actionStatus, actionPing, actionWatch:
		if len(rest) > 0 {
			return Config{}, fmt.Errorf("%s takes no arguments", cfg.Action)
		}
	default:
		fs.Usage()
		return Config{}, fmt.Errorf("unknown command %q", cfg.Action)
	}
	return cfg, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: benchhub-ctl [options] <command> [machine...]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Send control commands to a benchhub hub")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	cli.WriteOption(out, "run-all", "Start the benchmark on every registered agent")
	cli.WriteOption(out, "run <machine>...", "Start the benchmark on the named agents")
	cli.WriteOption(out, "agents", "List registered agents")
	cli.WriteOption(out, "status", "Ask every agent for its status and print the replies")
	cli.WriteOption(out, "ping", "Ping every agent and print the pongs")
	cli.WriteOption(out, "watch", "Print every frame the hub sends to viewers")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	cli.WriteOption(out, "--server ADDR", "Hub address (env: BENCHHUB_SERVER, default: localhost:8000)")
	cli.WriteOption(out, "--wait DURATION", "Reply collection window for status and ping (default: 3s)")
	cli.WriteOption(out, "--timeout DURATION", "Connect and reply timeout (default: 5s)")
	cli.WriteOption(out, "--help", "Show this help message")
	cli.WriteOption(out, "--version", "Print version and exit")
}
