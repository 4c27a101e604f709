// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
)

// EnvVar names the environment variable Load reads the config path
// from.
const EnvVar = "MESH_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the configuration of the GCM daemon and of the processes
// that join it.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Global configures the Global Component Manager.
	Global GlobalConfig `yaml:"global"`

	// Proxy configures the manager and interface proxies.
	Proxy ProxyConfig `yaml:"proxy"`

	// Log configures the slog handler of the binaries.
	Log LogConfig `yaml:"log"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Proxy *ProxyConfig `yaml:"proxy,omitempty"`
	Log   *LogConfig   `yaml:"log,omitempty"`
}

// GlobalConfig configures the Global Component Manager.
type GlobalConfig struct {
	// ListenAddress is where the manager proxy server listens.
	// Default: :10705
	ListenAddress string `yaml:"listen_address"`

	// ConnectConfirmTimeout is how long a connection may stay
	// unconfirmed. Default: 15s
	ConnectConfirmTimeout time.Duration `yaml:"connect_confirm_timeout"`

	// SweepInterval is how often unconfirmed connections are checked.
	// Default: 1s
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ProxyConfig configures the manager and interface proxies.
type ProxyConfig struct {
	// RefreshPeriod drives the heartbeat; clients are pinged every
	// 1.5 refresh periods. Default: 1s
	RefreshPeriod time.Duration `yaml:"refresh_period"`

	// CallTimeout bounds one proxy call. Default: 5s
	CallTimeout time.Duration `yaml:"call_timeout"`

	// DialTimeout bounds connecting to a proxy server. Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// BindHost is the host interface proxy servers listen on.
	// Default: 127.0.0.1
	BindHost string `yaml:"bind_host"`

	// AdvertiseHost is the host published as interface proxy access
	// information. Default: 127.0.0.1
	AdvertiseHost string `yaml:"advertise_host"`

	// Compression is applied to serialized payloads: none, lz4, or
	// zstd. Default: none
	Compression string `yaml:"compression"`

	// CompressionThreshold is the smallest payload compressed.
	// Default: 4096
	CompressionThreshold int `yaml:"compression_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error. Default: info
	Level string `yaml:"level"`

	// Format is text or json. Default: text
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddress serves /metrics. Empty disables the endpoint.
	ListenAddress string `yaml:"listen_address"`
}

// Default returns the default configuration, used as the base the
// config file is loaded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Global: GlobalConfig{
			ListenAddress:         ":10705",
			ConnectConfirmTimeout: 15 * time.Second,
			SweepInterval:         time.Second,
		},
		Proxy: ProxyConfig{
			RefreshPeriod:        time.Second,
			CallTimeout:          5 * time.Second,
			DialTimeout:          5 * time.Second,
			BindHost:             "127.0.0.1",
			AdvertiseHost:        "127.0.0.1",
			Compression:          "none",
			CompressionThreshold: 4096,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the file named by MESH_CONFIG. There is
// no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your mesh config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a YAML file, or from a JSON or
// JSONC file when the extension says so.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is YAML once comments and trailing commas are gone.
		data = jsonc.ToJSON(data)
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: structured logs.
		if overrides == nil {
			overrides = &ConfigOverrides{Log: &LogConfig{Format: "json"}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Proxy != nil {
		if overrides.Proxy.RefreshPeriod != 0 {
			c.Proxy.RefreshPeriod = overrides.Proxy.RefreshPeriod
		}
		if overrides.Proxy.CallTimeout != 0 {
			c.Proxy.CallTimeout = overrides.Proxy.CallTimeout
		}
		if overrides.Proxy.DialTimeout != 0 {
			c.Proxy.DialTimeout = overrides.Proxy.DialTimeout
		}
		if overrides.Proxy.BindHost != "" {
			c.Proxy.BindHost = overrides.Proxy.BindHost
		}
		if overrides.Proxy.AdvertiseHost != "" {
			c.Proxy.AdvertiseHost = overrides.Proxy.AdvertiseHost
		}
		if overrides.Proxy.Compression != "" {
			c.Proxy.Compression = overrides.Proxy.Compression
		}
		if overrides.Proxy.CompressionThreshold != 0 {
			c.Proxy.CompressionThreshold = overrides.Proxy.CompressionThreshold
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// addresses.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOSTNAME": hostname(),
	}
	c.Global.ListenAddress = expandVars(c.Global.ListenAddress, vars)
	c.Proxy.BindHost = expandVars(c.Proxy.BindHost, vars)
	c.Proxy.AdvertiseHost = expandVars(c.Proxy.AdvertiseHost, vars)
	c.Metrics.ListenAddress = expandVars(c.Metrics.ListenAddress, vars)
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if _, _, err := net.SplitHostPort(c.Global.ListenAddress); err != nil {
		errs = append(errs, fmt.Errorf("global.listen_address: %w", err))
	}
	if c.Global.ConnectConfirmTimeout <= 0 {
		errs = append(errs, errors.New("global.connect_confirm_timeout must be positive"))
	}
	if c.Global.SweepInterval <= 0 {
		errs = append(errs, errors.New("global.sweep_interval must be positive"))
	}

	if c.Proxy.RefreshPeriod <= 0 {
		errs = append(errs, errors.New("proxy.refresh_period must be positive"))
	}
	if c.Proxy.CallTimeout <= 0 {
		errs = append(errs, errors.New("proxy.call_timeout must be positive"))
	}
	if c.Proxy.DialTimeout <= 0 {
		errs = append(errs, errors.New("proxy.dial_timeout must be positive"))
	}
	if c.Proxy.BindHost == "" {
		errs = append(errs, errors.New("proxy.bind_host is required"))
	}
	if c.Proxy.AdvertiseHost == "" {
		errs = append(errs, errors.New("proxy.advertise_host is required"))
	}
	if _, err := codec.ParseCompression(c.Proxy.Compression); err != nil {
		errs = append(errs, fmt.Errorf("proxy.compression: %w", err))
	}
	if c.Proxy.CompressionThreshold < 0 {
		errs = append(errs, errors.New("proxy.compression_threshold must not be negative"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if c.Metrics.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.ListenAddress); err != nil {
			errs = append(errs, fmt.Errorf("metrics.listen_address: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Packer returns the payload packer the proxy section describes.
func (p ProxyConfig) Packer() (codec.Packer, error) {
	algorithm, err := codec.ParseCompression(p.Compression)
	if err != nil {
		return codec.Packer{}, err
	}
	return codec.Packer{Algorithm: algorithm, Threshold: p.CompressionThreshold}, nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the slog logger Level and Format describe, writing
// to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("log.format must be text or json, got %q", l.Format)
	}
}
