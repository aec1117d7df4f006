// Package cli holds the flag and usage helpers shared by the benchhub binaries.
package cli

import (
	"flag"
	"fmt"
	"io"

	"benchhub/internal/version"
)

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

// AddHelpVersionFlags registers -h/--help and -v/--version on fs.
func AddHelpVersionFlags(fs *flag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	if fs == nil {
		return &HelpVersionFlags{}
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	flags := &HelpVersionFlags{}
	fs.BoolVar(&flags.Help, "help", false, helpDesc)
	fs.BoolVar(&flags.Help, "h", false, helpDesc)
	fs.BoolVar(&flags.Version, "version", false, versionDesc)
	fs.BoolVar(&flags.Version, "v", false, versionDesc)
	return flags
}

// PrintVersion writes "<name> version X (commit)", or "<name> dev" for unstamped builds.
func PrintVersion(out io.Writer, name string) {
	build := version.Current()
	if build.Dev() {
		fmt.Fprintf(out, "%s dev\n", name)
		return
	}
	fmt.Fprintf(out, "%s version %s\n", name, build)
}

// WriteOption writes one aligned line of an Options help section.
func WriteOption(out io.Writer, name, desc string) {
	fmt.Fprintf(out, "  %-22s %s\n", name, desc)
}

// FlagWasSet reports whether name was given on the command line.
func FlagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
