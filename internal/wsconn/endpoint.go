package wsconn

import (
	"fmt"
	"net/url"
	"strings"
)

// EndpointURL builds a websocket URL from either a bare host:port or a full URL.
// http and https schemes are mapped to ws and wss. A URL that already carries a path
// other than "/" keeps it.
func EndpointURL(server, path string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", fmt.Errorf("server address is required")
	}
	if !strings.Contains(server, "://") {
		server = "ws://" + server
	}
	parsed, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server address %q: %w", server, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("server address %q has no host", server)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = path
	}
	return parsed.String(), nil
}
