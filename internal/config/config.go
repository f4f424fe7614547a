package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort     = 8080
	DefaultReadDeadline = 60 * time.Second
	DefaultMaxPayload   = 1 << 20
)

// Config holds the configuration parsed from the `server:` section of
// config.yaml. Unknown top-level keys are ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server settings.
type ServerConfig struct {
	// HTTPPort is the port everything listens on: WebSocket endpoint,
	// broadcast trigger, health and metrics (default 8080).
	HTTPPort int `yaml:"http_port"`

	// ReadDeadline bounds each WebSocket frame read. A connection that
	// sends nothing within the deadline is treated as disconnected.
	// Default: 60s.
	ReadDeadline time.Duration `yaml:"read_deadline"`

	// MaxPayload caps inbound frame payloads, in bytes. Default: 1 MiB.
	MaxPayload int64 `yaml:"max_payload"`

	// LogLevel is one of: debug | info | warn | error. Default: info.
	LogLevel string `yaml:"log_level"`
}

// Level maps the configured log level to a slog.Level.
func (s ServerConfig) Level() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with default values. Running without a
// config file uses exactly this.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     DefaultHTTPPort,
			ReadDeadline: DefaultReadDeadline,
			MaxPayload:   DefaultMaxPayload,
			LogLevel:     "info",
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.ReadDeadline <= 0 {
		return fmt.Errorf("server.read_deadline must be positive")
	}
	if cfg.Server.MaxPayload <= 0 {
		return fmt.Errorf("server.max_payload must be positive")
	}
	switch cfg.Server.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", cfg.Server.LogLevel)
	}
	return nil
}
