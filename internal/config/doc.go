// Package config handles configuration loading for debugkit.
//
// # Overview
//
// Configuration is loaded from a YAML file, or a TOML file when the path ends
// in ".toml", with environment variable expansion, defaults and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. --config flag
//  2. Path from DEBUGKIT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/debugkit/config.yaml
//  4. ~/.config/debugkit/config.yaml
//
// When no file exists the CLI falls back to Default.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${DEBUGKIT_JWT_SECRET}"
//
// Only the ${VAR_NAME} form is expanded. Unset variables expand to "".
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	stream:
//	  keepalive_interval: "15s"
//	dedupe:
//	  ttl: "5m"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"   # default
//	  grpc_addr: "127.0.0.1:50051"  # optional health endpoint
//
//	tailscale:
//	  enabled: false
//	  hostname: "debugkit"
//
//	database:
//	  path: "~/.local/share/debugkit/pushes.db"
//	  driver: "sqlite"               # or "sqlite3" (cgo)
//
//	retention:
//	  storage_days: 0                # 0 keeps the persisted window
//
//	logging:
//	  level: "info"                  # debug, info, warn, error
//	  format: "text"                 # text or json
package config
