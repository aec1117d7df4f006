package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"benchhub/internal/cli"
	"benchhub/internal/logging"
)

const (
	defaultCommand = "./mlc.sh"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	Server      string
	Machine     string
	Command     string
	Args        []string
	Timeout     time.Duration
	UseProxy    bool
	LogLevel    logging.Level
	ShowVersion bool
}

// parseArgs accepts "[options] <server> [machine] [-- command args...]". Without an explicit
// command, ./mlc.sh is run with the machine id as its only argument.
func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("benchhub-push", flag.ContinueOnError)
	fs.SetOutput(errOut)
	timeout := fs.Duration("timeout", defaultTimeout, "Connect and write timeout")
	useProxy := fs.Bool("use-proxy", false, "Honour proxy environment variables")
	logLevel := fs.String("log-level", "info", "Minimum log level")
	helper := cli.AddHelpVersionFlags(fs, "Show this help message", "Print version and exit")
	fs.Usage = func() {
		printHelp(fs.Output())
	}

	positional, command := splitCommand(args)
	if err := fs.Parse(positional); err != nil {
		return Config{}, err
	}
	if helper.Help {
		fs.Usage()
		return Config{}, flag.ErrHelp
	}
	if helper.Version {
		return Config{ShowVersion: true}, nil
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return Config{}, fmt.Errorf("expected <server> [machine]")
	}
	if *timeout <= 0 {
		return Config{}, fmt.Errorf("--timeout must be positive")
	}
	level, ok := logging.ParseLevel(*logLevel)
	if !ok {
		return Config{}, fmt.Errorf("unknown log level %q", *logLevel)
	}

	cfg := Config{
		Server:   strings.TrimSpace(fs.Arg(0)),
		Machine:  strings.TrimSpace(fs.Arg(1)),
		Timeout:  *timeout,
		UseProxy: *useProxy,
		LogLevel: level,
	}
	if cfg.Server == "" {
		return Config{}, fmt.Errorf("server address is required")
	}
	if cfg.Machine == "" {
		hostname, err := os.Hostname()
		if err != nil || strings.TrimSpace(hostname) == "" {
			return Config{}, fmt.Errorf("machine id required: hostname unavailable")
		}
		cfg.Machine = strings.TrimSpace(hostname)
	}
	if len(command) > 0 {
		cfg.Command = command[0]
		cfg.Args = command[1:]
	} else {
		cfg.Command = defaultCommand
		cfg.Args = []string{cfg.Machine}
	}
	return cfg, nil
}

// splitCommand separates everything after the first "--" so flags of the pushed command
// are not parsed as our own.
func splitCommand(args []string) ([]string, []string) {
	for i, arg := range args {
		if arg == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: benchhub-push [options] <server> [machine] [-- command args...]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Run a benchmark once and push its JSON result lines to a benchhub hub")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	cli.WriteOption(out, "--timeout DURATION", "Connect and write timeout (default: 10s)")
	cli.WriteOption(out, "--use-proxy", "Keep proxy environment variables")
	cli.WriteOption(out, "--log-level LEVEL", "debug, info, warning or error (default: info)")
	cli.WriteOption(out, "--help", "Show this help message")
	cli.WriteOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Arguments:")
	cli.WriteOption(out, "server", "Hub address, host:port or URL")
	cli.WriteOption(out, "machine", "Machine id stamped on results (default: hostname)")
	cli.WriteOption(out, "command", "Benchmark to run (default: ./mlc.sh <machine>)")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  benchhub-push 10.0.0.5:8000 server-02")
	fmt.Fprintln(out, "  benchhub-push 10.0.0.5:8000 server-02 -- ./stream.sh --threads 8")
}
