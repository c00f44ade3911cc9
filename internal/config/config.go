// ABOUTME: Configuration loading and parsing for spinwheel
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Sync backends.
const (
	SyncLocal = "local"
	SyncNATS  = "nats"
)

// Config represents the complete spinwheel configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Sync    SyncConfig    `yaml:"sync" toml:"sync"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// AllowedOrigins lists CORS origins; empty allows any
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// StorageConfig holds the durable storage area configuration
type StorageConfig struct {
	Path   string `yaml:"path" toml:"path"`
	Origin string `yaml:"origin" toml:"origin"`
}

// SyncConfig selects how storage events travel between shells
type SyncConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	NATSURL string `yaml:"nats_url" toml:"nats_url"`
	Subject string `yaml:"subject" toml:"subject"`

	ReconnectWait time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	ReconnectWaitRaw string `yaml:"reconnect_wait" toml:"reconnect_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:8080",
		},
		Storage: StorageConfig{
			Path:   "spinwheel.db",
			Origin: "local",
		},
		Sync: SyncConfig{
			Backend:          SyncLocal,
			Subject:          "spinwheel.storage",
			ReconnectWait:    2 * time.Second,
			ReconnectWaitRaw: "2s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Unset fields keep the values from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.Origin == "" {
		return fmt.Errorf("storage.origin is required")
	}
	if strings.ContainsAny(c.Storage.Origin, " .*>") {
		return fmt.Errorf("storage.origin %q must not contain spaces, dots, '*' or '>'", c.Storage.Origin)
	}

	switch c.Sync.Backend {
	case SyncLocal:
	case SyncNATS:
		if c.Sync.NATSURL == "" {
			return fmt.Errorf("sync.nats_url is required when sync.backend is %q", SyncNATS)
		}
		if c.Sync.Subject == "" {
			return fmt.Errorf("sync.subject is required when sync.backend is %q", SyncNATS)
		}
	default:
		return fmt.Errorf("sync.backend must be %q or %q, got %q", SyncLocal, SyncNATS, c.Sync.Backend)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Sync.ReconnectWaitRaw != "" {
		d, err := time.ParseDuration(cfg.Sync.ReconnectWaitRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_wait %q: %w", cfg.Sync.ReconnectWaitRaw, err)
		}
		cfg.Sync.ReconnectWait = d
	}
	return nil
}

// Path returns the config file location: $SPINWHEEL_CONFIG, then
// $XDG_CONFIG_HOME/spinwheel/spinwheel.yaml, then ~/.config/spinwheel/spinwheel.yaml.
func Path() string {
	if p := os.Getenv("SPINWHEEL_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "spinwheel", "spinwheel.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "spinwheel.yaml"
	}
	return filepath.Join(home, ".config", "spinwheel", "spinwheel.yaml")
}

// LoadOrDefault loads path, or returns Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Template is the commented YAML written by `spinwheel init`.
const Template = `# spinwheel configuration

server:
  http_addr: "127.0.0.1:8080"
  # allowed_origins: ["http://localhost:5173"]

storage:
  # SQLite file holding every origin's storage area
  path: "${HOME}/.local/share/spinwheel/spinwheel.db"
  origin: "local"

sync:
  # local keeps storage events in this process; nats relays them between processes
  backend: "local"
  nats_url: "nats://127.0.0.1:4222"
  subject: "spinwheel.storage"
  reconnect_wait: "2s"

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text or json

metrics:
  enabled: true
  path: "/metrics"
`
