// Package config loads zybridge settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zylisp/bridge/protocol"
)

// Environment overrides.
const (
	EnvHost     = "ZYBRIDGE_HOST"
	EnvPort     = "ZYBRIDGE_PORT"
	EnvDialect  = "ZYBRIDGE_DIALECT"
	EnvLogLevel = "ZYBRIDGE_LOG_LEVEL"
)

// Config is the complete bridge configuration.
type Config struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port,omitempty"`
	PortFile     string        `yaml:"port_file"`
	Dialect      string        `yaml:"dialect"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	CloseTimeout time.Duration `yaml:"close_timeout"`
	EvalLog      EvalLogConfig `yaml:"eval_log"`
	Log          *LogConfig    `yaml:"log"`
}

// EvalLogConfig configures the eval log file.
type EvalLogConfig struct {
	Path     string `yaml:"path,omitempty"`
	MaxLines int    `yaml:"max_lines"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	Level string `yaml:"level"`           // debug, info, warn, error
	File  string `yaml:"file,omitempty"`  // also log to this file
	Dated bool   `yaml:"dated,omitempty"` // append .YYYY-MM-DD to File
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:         "127.0.0.1",
		PortFile:     ".nrepl-port",
		Dialect:      "auto",
		ProbeTimeout: 5 * time.Second,
		EvalLog:      EvalLogConfig{MaxLines: 100},
		Log:          DefaultLogConfig(),
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{Level: "info"}
}

// DefaultPath returns ~/.zybridge/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".zybridge", "config.yaml"), nil
}

// Load builds the configuration: defaults, then the file at path if it
// exists, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.Host = getEnv(EnvHost, cfg.Host)
	cfg.Port = getEnv(EnvPort, cfg.Port)
	cfg.Dialect = getEnv(EnvDialect, cfg.Dialect)
	if cfg.Log == nil {
		cfg.Log = DefaultLogConfig()
	}
	cfg.Log.Level = getEnv(EnvLogLevel, cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be fixed up later.
func (c *Config) Validate() error {
	if _, err := protocol.ParseDialect(c.Dialect); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.EvalLog.MaxLines < 0 {
		return fmt.Errorf("eval_log.max_lines must not be negative: %d", c.EvalLog.MaxLines)
	}
	return nil
}

// DialectValue returns the configured dialect, or "" to detect it.
func (c *Config) DialectValue() protocol.Dialect {
	d, _ := protocol.ParseDialect(c.Dialect)
	return d
}

// Addr returns host:port. When no port is configured it is read from
// PortFile, the file nREPL servers write on startup.
func (c *Config) Addr() (string, error) {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		if c.PortFile == "" {
			return "", errors.New("no port given and no port file configured")
		}
		data, err := os.ReadFile(c.PortFile)
		if err != nil {
			return "", fmt.Errorf("no port given and failed to read port file: %w", err)
		}
		port = strings.TrimSpace(string(data))
		if port == "" {
			return "", fmt.Errorf("port file %s is empty", c.PortFile)
		}
	}
	return net.JoinHostPort(c.Host, port), nil
}

// ParseLevel parses debug, info, warn or error, in any case.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

// CreateLogger builds a text logger writing to console and, when File is
// set, to the log file as well. The returned close function closes the file.
func (c *LogConfig) CreateLogger(console io.Writer) (*slog.Logger, func() error, error) {
	if c == nil {
		c = DefaultLogConfig()
	}

	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}

	w := console
	closeFn := func() error { return nil }

	if c.File != "" {
		path := c.File
		if c.Dated {
			path = path + "." + time.Now().Format("2006-01-02")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(console, file)
		closeFn = file.Close
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closeFn, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
