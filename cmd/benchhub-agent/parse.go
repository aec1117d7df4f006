package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"benchhub/internal/cli"
)

type Config struct {
	SettingsPath string
	InstallDir   string
	Overrides    map[string]any
	ShowVersion  bool
}

// parseArgs accepts "[options] [server] [machine] [bench-config]". Positional values win
// over the matching flags.
func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("benchhub-agent", flag.ContinueOnError)
	fs.SetOutput(errOut)
	settingsPath := fs.String("config", strings.TrimSpace(os.Getenv("BENCHHUB_CONFIG")), "Settings file (TOML or YAML)")
	server := fs.String("server", "", "Hub address")
	machine := fs.String("machine", "", "Machine id")
	hostname := fs.String("hostname", "", "Hostname reported at registration")
	runnerPath := fs.String("runner", "", "Benchmark runner script")
	benchConfig := fs.String("bench-config", "", "Benchmark configuration passed to the runner")
	installDir := fs.String("install-dir", "", "Directory relative runner paths resolve against")
	useProxy := fs.Bool("use-proxy", false, "Honour proxy environment variables")
	logLevel := fs.String("log-level", "", "Minimum log level")
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
	if fs.NArg() > 3 {
		fs.Usage()
		return Config{}, fmt.Errorf("too many arguments")
	}

	overrides := map[string]any{}
	setString := func(flagName, key, value string) {
		if cli.FlagWasSet(fs, flagName) {
			overrides[key] = strings.TrimSpace(value)
		}
	}
	setString("server", "agent.server", *server)
	setString("machine", "agent.machine", *machine)
	setString("hostname", "agent.hostname", *hostname)
	setString("runner", "agent.runner", *runnerPath)
	setString("bench-config", "agent.config", *benchConfig)
	setString("log-level", "log.level", *logLevel)
	if cli.FlagWasSet(fs, "use-proxy") {
		overrides["agent.use-proxy"] = *useProxy
	}

	positional := []string{"agent.server", "agent.machine", "agent.config"}
	for i, arg := range fs.Args() {
		value := strings.TrimSpace(arg)
		if value == "" {
			fs.Usage()
			return Config{}, fmt.Errorf("empty %s argument", strings.TrimPrefix(positional[i], "agent."))
		}
		overrides[positional[i]] = value
	}

	return Config{
		SettingsPath: strings.TrimSpace(*settingsPath),
		InstallDir:   strings.TrimSpace(*installDir),
		Overrides:    overrides,
	}, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: benchhub-agent [options] [server] [machine] [bench-config]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Connect to a benchhub hub, run benchmarks on command and stream their JSON results")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	cli.WriteOption(out, "--config", "Settings file, TOML or YAML (env: BENCHHUB_CONFIG)")
	cli.WriteOption(out, "--server", "Hub address, host:port or URL (default: localhost:8000)")
	cli.WriteOption(out, "--machine", "Machine id (default: hostname)")
	cli.WriteOption(out, "--hostname", "Hostname reported at registration")
	cli.WriteOption(out, "--runner", "Runner script (default: generic_runner.sh)")
	cli.WriteOption(out, "--bench-config", "Benchmark config (default: benchmark_config.sh)")
	cli.WriteOption(out, "--install-dir", "Base for relative paths (default: executable directory)")
	cli.WriteOption(out, "--use-proxy", "Keep proxy environment variables")
	cli.WriteOption(out, "--log-level", "debug, info, warning or error")
	cli.WriteOption(out, "--help", "Show this help message")
	cli.WriteOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  benchhub-agent 10.0.0.5:8000")
	fmt.Fprintln(out, "  benchhub-agent 10.0.0.5:8000 bench-02 cassandra_config.sh")
}
