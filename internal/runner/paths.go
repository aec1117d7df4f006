package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var proxyVariables = map[string]struct{}{
	"http_proxy":  {},
	"https_proxy": {},
	"all_proxy":   {},
	"ftp_proxy":   {},
	"socks_proxy": {},
	"no_proxy":    {},
}

// InstallDir returns the directory holding the running executable, with symlinks resolved.
func InstallDir() (string, error) {
	executable, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}
	return filepath.Dir(executable), nil
}

// Resolve anchors a relative path at base. Absolute paths are returned cleaned.
func Resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// WithoutProxy drops proxy variables, in any letter case, from an environment list.
func WithoutProxy(environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, entry := range environ {
		name, _, _ := strings.Cut(entry, "=")
		if _, ok := proxyVariables[strings.ToLower(name)]; ok {
			continue
		}
		out = append(out, entry)
	}
	return out
}
