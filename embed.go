package benchhub

import _ "embed"

// DefaultSettingsTOML holds the built-in hub and agent settings.
//
//go:embed config/benchhub.toml
var DefaultSettingsTOML []byte
