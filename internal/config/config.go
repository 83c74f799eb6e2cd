package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"peerwire/internal/endpoint"
)

// Config drives the wireprobe tool.
type Config struct {
	Endpoint Endpoint `yaml:"endpoint"`
	Options  Options  `yaml:"options"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Endpoint names the replication target to probe.
type Endpoint struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   uint16 `yaml:"port"`
	Path   string `yaml:"path"`
}

// Metrics configures the optional status endpoint.
type Metrics struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
	Pprof  bool   `yaml:"pprof"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Endpoint.Host == "" {
		return fmt.Errorf("endpoint.host is required")
	}
	if c.Endpoint.Scheme == "" {
		c.Endpoint.Scheme = "ws"
	}
	if c.Endpoint.Port == 0 {
		c.Endpoint.Port = 4984
	}
	if c.Endpoint.Path == "" {
		c.Endpoint.Path = "/"
	}
	return nil
}

// Address converts the configured endpoint into the engine's owned form.
func (c *Config) Address() endpoint.Address {
	return endpoint.Address{
		Scheme: c.Endpoint.Scheme,
		Host:   c.Endpoint.Host,
		Port:   c.Endpoint.Port,
		Path:   c.Endpoint.Path,
	}
}
