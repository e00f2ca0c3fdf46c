// Package config handles loading, validating, and writing llmtap's
// configuration from an optional YAML file.
//
// The proxy's host, port, target, and output path can be supplied via CLI
// flags; its timeouts come only from a config file or the defaults. A
// config file lets an operator keep the parts they want stable across
// runs; the proxy command's CLI flags take precedence over file values
// when both are supplied. The viewer command does not read a config file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level llmtap configuration.
type Config struct {
	Proxy  ProxyConfig  `yaml:"proxy"`
	Viewer ViewerConfig `yaml:"viewer"`
}

// ProxyConfig defines how the intercepting proxy binds, where it forwards
// requests, and where it writes the capture log.
type ProxyConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Target string `yaml:"target"`
	Output string `yaml:"output"`

	// ConnectTimeout bounds dialing the upstream.
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	// IdleTimeout bounds how long the proxy waits between upstream bytes
	// once a response has started arriving.
	IdleTimeout time.Duration `yaml:"idleTimeout"`
	// DisconnectGrace bounds how long the proxy keeps draining the
	// upstream response after the client has gone away, so the trace
	// record can still be completed.
	DisconnectGrace time.Duration `yaml:"disconnectGrace"`
}

// ViewerConfig defines where the viewer binds.
type ViewerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads and parses config.yaml from the given path. If the file
// doesn't exist, Load returns defaults — not an error. An empty path also
// returns defaults without touching the filesystem.
func Load(path string) (*Config, error) {
	cfg := applyDefaults()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a default config.yaml with all fields populated and
// a comment header, for operators who want a starting point to edit.
func WriteDefault(path string) error {
	cfg := applyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# llmtap configuration
#
# proxy:
#   host/port: bind address for the intercepting proxy
#   target: upstream LLM API base URL to forward requests to
#   output: capture log path (JSONL, append-only)
#
# viewer:
#   host/port: bind address for the collaborator viewer

`
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

// applyDefaults returns a Config with every field set to its default.
func applyDefaults() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Host:            "127.0.0.1",
			Port:            8787,
			Output:          "capture.jsonl",
			ConnectTimeout:  30 * time.Second,
			IdleTimeout:     5 * time.Minute,
			DisconnectGrace: 10 * time.Second,
		},
		Viewer: ViewerConfig{
			Host: "127.0.0.1",
			Port: 8788,
		},
	}
}

// validate checks the config for logical errors after parsing.
func validate(cfg *Config) error {
	if cfg.Proxy.Host == "" {
		return fmt.Errorf("proxy.host must not be empty")
	}
	if cfg.Proxy.Port < 0 || cfg.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port %d out of range (0-65535)", cfg.Proxy.Port)
	}
	if cfg.Viewer.Port < 0 || cfg.Viewer.Port > 65535 {
		return fmt.Errorf("viewer.port %d out of range (0-65535)", cfg.Viewer.Port)
	}
	if cfg.Proxy.ConnectTimeout < 0 {
		return fmt.Errorf("proxy.connectTimeout must be non-negative")
	}
	if cfg.Proxy.IdleTimeout < 0 {
		return fmt.Errorf("proxy.idleTimeout must be non-negative")
	}
	if cfg.Proxy.DisconnectGrace < 0 {
		return fmt.Errorf("proxy.disconnectGrace must be non-negative")
	}
	return nil
}
