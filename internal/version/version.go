// Package version reports build metadata stamped with -ldflags, falling back to what the
// Go toolchain records in the binary.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
)

// Stamped at build time:
//
//	-X benchhub/internal/version.Version=1.4.0 -X benchhub/internal/version.GitCommit=abc1234
var (
	Version   = "dev"
	Major     = "0"
	Minor     = "0"
	Patch     = "0"
	Built     = ""
	GitCommit = ""
)

const shortCommit = 7

// Build is the version block served by /api/status.
type Build struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

func Current() Build {
	b := Build{
		Version:   Version,
		Major:     atoiOrZero(Major),
		Minor:     atoiOrZero(Minor),
		Patch:     atoiOrZero(Patch),
		Built:     Built,
		GitCommit: GitCommit,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	b.GoVersion = info.GoVersion
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && b.GitCommit == "" {
			b.GitCommit = setting.Value
		}
	}
	return b
}

// Dev reports an unstamped build.
func (b Build) Dev() bool {
	return b.Version == "" || b.Version == "dev"
}

// String renders "dev", "1.4.0" or "1.4.0 (abc1234)".
func (b Build) String() string {
	if b.Dev() {
		return "dev"
	}
	if b.GitCommit == "" {
		return b.Version
	}
	commit := b.GitCommit
	if len(commit) > shortCommit {
		commit = commit[:shortCommit]
	}
	return fmt.Sprintf("%s (%s)", b.Version, commit)
}

func atoiOrZero(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
