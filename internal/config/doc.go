// Package config handles configuration loading for dm-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Files ending in .toml are decoded with BurntSushi/toml, anything
// else with yaml.v3. The package provides defaults and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from DM_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/dm-gateway/gateway.yaml
//  3. ~/.config/dm-gateway/gateway.yaml
//
// A .env file in the working directory is loaded first, so its variables are
// visible to expansion and overrides.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${DM_JWT_SECRET}"
//
// Unset variables expand to the empty string. After parsing, DM_DB_PATH and
// DM_JWT_SECRET override database.path and auth.jwt_secret directly.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  write_timeout: "10s"
//	chat:
//	  dedupe_ttl: "5m"
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  grpc_addr: "0.0.0.0:50051"   # optional gRPC health endpoint
//
//	database:
//	  driver: "sqlite"             # or "sqlite3" for the cgo driver
//	  path: "~/.local/share/dm-gateway/dm.db"
//
//	auth:
//	  jwt_secret: "${DM_JWT_SECRET}"
//
//	chat:
//	  default_page_size: 20
//	  max_page_size: 100
//	  max_content_length: 5000
//
//	logging:
//	  level: "info"                # debug, info, warn, error
//	  format: "text"               # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
