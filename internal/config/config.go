package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	defaultPath            = "configs/dyndns-switch.yaml"
	defaultMonitorInterval = 60 * time.Second
	defaultProbeTimeout    = 15 * time.Second
	defaultPacketCount     = 4
	defaultRefreshInterval = 5 * time.Minute
	defaultBindAddress     = ":8080"
)

// Config is the complete process configuration.
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
	Hosts     []HostConfig     `yaml:"hosts"`
	Monitor   MonitorConfig    `yaml:"monitor"`
	Refresh   RefreshConfig    `yaml:"refresh"`
	HTTP      HTTPConfig       `yaml:"http"`
}

// HostConfig names a failover host and the DNS name its addresses are
// looked up under at startup.
type HostConfig struct {
	Identity  string `yaml:"identity"`
	Bootstrap string `yaml:"bootstrap"`
}

// MonitorConfig controls host probing.
type MonitorConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
	PacketCount  int           `yaml:"packetCount"`
}

// RefreshConfig controls how often subdomains are re-read from providers.
// An Interval of zero keeps the default; a negative one disables periodic
// refreshes.
type RefreshConfig struct {
	Interval        time.Duration `yaml:"interval"`
	IsolateFailures bool          `yaml:"isolateFailures"`
}

// HTTPConfig controls the operator API listener.
type HTTPConfig struct {
	BindAddress string `yaml:"bindAddress"`

	// AllowedOrigins enables CORS for the listed browser origins.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Load reads the configuration from the path specified by the
// DYNDNS_SWITCH_CONFIG environment variable, defaulting to
// "configs/dyndns-switch.yaml".
func Load() (*Config, string, error) {
	path := os.Getenv("DYNDNS_SWITCH_CONFIG")
	if path == "" {
		path = defaultPath
	}
	cfg, err := LoadFromPath(path)
	return cfg, path, err
}

// LoadFromPath reads, defaults and validates the configuration at path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	for i := range cfg.Providers {
		cfg.Providers[i].expandEnv()
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = defaultMonitorInterval
	}
	if c.Monitor.ProbeTimeout <= 0 {
		c.Monitor.ProbeTimeout = defaultProbeTimeout
	}
	if c.Monitor.PacketCount <= 0 {
		c.Monitor.PacketCount = defaultPacketCount
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = defaultRefreshInterval
	}
	if c.HTTP.BindAddress == "" {
		c.HTTP.BindAddress = defaultBindAddress
	}
	for i := range c.Providers {
		if c.Providers[i].Name == "" {
			c.Providers[i].Name = c.Providers[i].Type
		}
	}
}

// Validate checks that the configuration describes at least one provider and
// one host, and that names are unique.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider is required")
	}
	providerNames := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("config: providers[%d]: %w", i, err)
		}
		if providerNames[p.Name] {
			return fmt.Errorf("config: duplicate provider name %q", p.Name)
		}
		providerNames[p.Name] = true
	}

	if len(c.Hosts) == 0 {
		return fmt.Errorf("config: at least one host is required")
	}
	identities := make(map[string]bool, len(c.Hosts))
	for i, h := range c.Hosts {
		if h.Identity == "" {
			return fmt.Errorf("config: hosts[%d]: missing required field 'identity'", i)
		}
		if h.Bootstrap == "" {
			return fmt.Errorf("config: hosts[%d] (%s): missing required field 'bootstrap'", i, h.Identity)
		}
		if identities[h.Identity] {
			return fmt.Errorf("config: duplicate host identity %q", h.Identity)
		}
		identities[h.Identity] = true
	}

	if c.Monitor.ProbeTimeout > c.Monitor.Interval {
		return fmt.Errorf("config: monitor.probeTimeout (%s) must not exceed monitor.interval (%s)", c.Monitor.ProbeTimeout, c.Monitor.Interval)
	}
	return nil
}
