// Package config handles configuration loading for spinwheel.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment
// variable expansion. Fields the file leaves out keep the values from
// Default, and Validate reports the first invalid field.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SPINWHEEL_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/spinwheel/spinwheel.yaml
//  3. ~/.config/spinwheel/spinwheel.yaml
//
// A path ending in .toml is decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	sync:
//	  nats_url: "${NATS_URL}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  reconnect_wait: "2s"
//
// # Sections
//
//	server:   http_addr, allowed_origins
//	storage:  path (SQLite file), origin (storage area name)
//	sync:     backend (local or nats), nats_url, subject, reconnect_wait
//	logging:  level (debug, info, warn, error), format (text or json)
//	metrics:  enabled, path
package config
