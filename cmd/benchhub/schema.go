package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"benchhub/internal/cli"
	"benchhub/internal/protocol"

	"github.com/invopop/jsonschema"
)

// runSchema prints the JSON Schema of one message, or of all messages keyed by name.
func runSchema(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("benchhub schema", flag.ContinueOnError)
	fs.SetOutput(errOut)
	list := fs.Bool("list", false, "List message names")
	helper := cli.AddHelpVersionFlags(fs, "Show this help message", "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: benchhub schema [--list] [message]")
		fmt.Fprintln(fs.Output(), "")
		fmt.Fprintf(fs.Output(), "Messages: %s\n", strings.Join(protocol.SchemaNames(), ", "))
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if helper.Help {
		fs.Usage()
		return exitOK
	}
	if helper.Version {
		cli.PrintVersion(out, "benchhub")
		return exitOK
	}
	if *list {
		for _, name := range protocol.SchemaNames() {
			fmt.Fprintln(out, name)
		}
		return exitOK
	}

	var value any
	switch fs.NArg() {
	case 0:
		all := make(map[string]*jsonschema.Schema)
		for _, name := range protocol.SchemaNames() {
			schema, err := protocol.Schema(name)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitFailure
			}
			all[name] = schema
		}
		value = all
	case 1:
		schema, err := protocol.Schema(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return exitUsage
		}
		value = schema
	default:
		fs.Usage()
		return exitUsage
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		fmt.Fprintln(errOut, err)
		return exitFailure
	}
	return exitOK
}
