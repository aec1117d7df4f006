package cli

import (
	"bytes"
	"flag"
	"io"
	"strings"
	"testing"

	"benchhub/internal/version"
)

func TestAddHelpVersionFlags(t *testing.T) {
	fs := flag.NewFlagSet("benchhub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")
	if err := fs.Parse([]string{"-h", "--version"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Help || !flags.Version {
		t.Fatalf("expected both flags set, got %+v", flags)
	}
	if fs.Lookup("help").Usage != defaultHelpDesc {
		t.Fatalf("expected default help description")
	}
}

func TestAddHelpVersionFlagsNilFlagSet(t *testing.T) {
	if flags := AddHelpVersionFlags(nil, "", ""); flags == nil || flags.Help {
		t.Fatalf("expected empty flags, got %+v", flags)
	}
}

func TestPrintVersion(t *testing.T) {
	previousVersion, previousCommit := version.Version, version.GitCommit
	t.Cleanup(func() { version.Version, version.GitCommit = previousVersion, previousCommit })

	var out bytes.Buffer
	version.Version = "dev"
	PrintVersion(&out, "benchhub")
	version.Version, version.GitCommit = "1.4.0", "abcdef0123"
	PrintVersion(&out, "benchhub")
	if out.String() != "benchhub dev\nbenchhub version 1.4.0 (abcdef0)\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestWriteOptionAligns(t *testing.T) {
	var out bytes.Buffer
	WriteOption(&out, "--addr", "Listen address")
	if !strings.HasPrefix(out.String(), "  --addr ") || !strings.HasSuffix(out.String(), "Listen address\n") {
		t.Fatalf("unexpected option line %q", out.String())
	}
}

func TestFlagWasSet(t *testing.T) {
	fs := flag.NewFlagSet("benchhub", flag.ContinueOnError)
	fs.String("addr", ":8000", "")
	fs.String("config", "", "")
	if err := fs.Parse([]string{"--addr", ":9000"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !FlagWasSet(fs, "addr") || FlagWasSet(fs, "config") {
		t.Fatal("unexpected flag visit result")
	}
}
