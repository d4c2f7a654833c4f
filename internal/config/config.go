package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Relay   RelayConfig   `yaml:"relay"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains the static/form HTTP server configuration
type HTTPConfig struct {
	Address         string `yaml:"address"`
	Port            int    `yaml:"port"`
	BaseDir         string `yaml:"base_dir"`
	IndexPage       string `yaml:"index_page"`
	MessagePage     string `yaml:"message_page"`
	ErrorPage       string `yaml:"error_page"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// RelayConfig contains the UDP relay configuration shared by the sender
// (HTTP side) and the listener
type RelayConfig struct {
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	BufferSize int    `yaml:"buffer_size"` // bytes, longer datagrams are truncated
}

// StorageConfig selects the submission log backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // json | sqlite
	Path    string `yaml:"path"`
}

// MetricsConfig contains the Prometheus listener configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"

	// maxDatagramSize is the largest UDP payload over IPv4.
	maxDatagramSize = 65507
)

// Default returns the built-in configuration used when no file is given
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:         "0.0.0.0",
			Port:            3000,
			BaseDir:         "web",
			IndexPage:       "index.html",
			MessagePage:     "message.html",
			ErrorPage:       "error.html",
			ShutdownTimeout: 10,
		},
		Relay: RelayConfig{
			Address:    "127.0.0.1",
			Port:       5000,
			BufferSize: 1024,
		},
		Storage: StorageConfig{
			Backend: BackendJSON,
			Path:    "storage/data.json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    9100,
		},
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads a YAML file on top of the defaults. An empty path yields the
// defaults unchanged.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if err := validatePort(h.Port); err != nil {
		return err
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.BaseDir == "" {
		return fmt.Errorf("base_dir cannot be empty")
	}

	if h.IndexPage == "" || h.MessagePage == "" || h.ErrorPage == "" {
		return fmt.Errorf("index_page, message_page and error_page must all be set")
	}

	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}

	return nil
}

// Validate validates relay configuration
func (r *RelayConfig) Validate() error {
	if err := validatePort(r.Port); err != nil {
		return err
	}

	if r.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if r.BufferSize < 1 || r.BufferSize > maxDatagramSize {
		return fmt.Errorf("buffer_size must be between 1 and %d bytes, got %d", maxDatagramSize, r.BufferSize)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("backend must be '%s' or '%s', got '%s'", BackendJSON, BackendSQLite, s.Backend)
	}

	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if err := validatePort(m.Port); err != nil {
		return err
	}

	if m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is treated as a file path.
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ListenAddress returns the host:port the HTTP server binds to
func (h *HTTPConfig) ListenAddress() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// GetShutdownTimeout returns the graceful shutdown timeout as a time.Duration
func (h *HTTPConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

// ListenAddress returns the host:port of the relay listener
func (r *RelayConfig) ListenAddress() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
}

// ListenAddress returns the host:port of the metrics listener
func (m *MetricsConfig) ListenAddress() string {
	return net.JoinHostPort(m.Address, strconv.Itoa(m.Port))
}
