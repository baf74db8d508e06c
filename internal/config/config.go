package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Routing strategies
const (
	StrategyRing   = "ring"   // neighbours only
	StrategyOracle = "oracle" // fingers resolved from the full live-node set
	StrategyGossip = "gossip" // long links learned from traffic and ROUTING_INFO
)

// Config holds all configuration for a simulation run
type Config struct {
	// Identifier space modulus (ids are in [0, M))
	M uint64 `toml:"m" yaml:"m"`

	// Seed for latency jitter
	Seed int64 `toml:"seed" yaml:"seed"`

	// KeyHash selects the key hasher: sha1, sha256 or xxhash
	KeyHash string `toml:"key_hash" yaml:"key_hash"`

	Latency LatencyConfig `toml:"latency" yaml:"latency"`
	Routing RoutingConfig `toml:"routing" yaml:"routing"`

	// HTTP API, 0 disables it
	HTTPPort int `toml:"http_port" yaml:"http_port"`

	// Logging
	LogLevel  string `toml:"log_level" yaml:"log_level"`   // trace, debug, info, warn, error
	LogFormat string `toml:"log_format" yaml:"log_format"` // json, console
	LogFile   string `toml:"log_file" yaml:"log_file"`     // rotated file output when set
}

// LatencyConfig is the message delay in simulated ticks.
type LatencyConfig struct {
	Base   uint64 `toml:"base" yaml:"base"`
	Jitter uint64 `toml:"jitter" yaml:"jitter"`
}

// RoutingConfig tunes forwarding and long-link maintenance.
type RoutingConfig struct {
	Strategy string `toml:"strategy" yaml:"strategy"`

	// MaxHops bounds ROUTE forwarding
	MaxHops int `toml:"max_hops" yaml:"max_hops"`

	// MaxForwardHops bounds PUT/GET forwarding, 0 means M
	MaxForwardHops int `toml:"max_forward_hops" yaml:"max_forward_hops"`

	StabilizeDelay  uint64 `toml:"stabilize_delay" yaml:"stabilize_delay"`   // ticks after joining before links are built
	RefreshInterval uint64 `toml:"refresh_interval" yaml:"refresh_interval"` // ticks between link refreshes
	LinkTTL         uint64 `toml:"link_ttl" yaml:"link_ttl"`                 // links older than this are pruned
	MaxLinks        int    `toml:"max_links" yaml:"max_links"`               // explicit peer links kept per node
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		M:       100,
		Seed:    1,
		KeyHash: "sha1",
		Latency: LatencyConfig{
			Base:   1,
			Jitter: 2,
		},
		Routing: RoutingConfig{
			Strategy:        StrategyRing,
			MaxHops:         10,
			StabilizeDelay:  10,
			RefreshInterval: 50,
			LinkTTL:         200,
			MaxLinks:        16,
		},
		HTTPPort:  8080,
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// ForwardHopLimit returns the hop bound for PUT and GET forwarding.
func (c *Config) ForwardHopLimit() int {
	if c.Routing.MaxForwardHops > 0 {
		return c.Routing.MaxForwardHops
	}
	return int(c.M)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.M < 2 {
		return fmt.Errorf("M must be at least 2, got %d", c.M)
	}
	switch strings.ToLower(c.KeyHash) {
	case "", "sha1", "sha256", "xxhash":
	default:
		return fmt.Errorf("unknown key hash %q", c.KeyHash)
	}
	switch c.Routing.Strategy {
	case StrategyRing, StrategyOracle, StrategyGossip:
	default:
		return fmt.Errorf("unknown routing strategy %q", c.Routing.Strategy)
	}
	if c.Routing.MaxHops <= 0 {
		return fmt.Errorf("max_hops must be positive, got %d", c.Routing.MaxHops)
	}
	if c.Routing.MaxForwardHops < 0 {
		return fmt.Errorf("max_forward_hops cannot be negative, got %d", c.Routing.MaxForwardHops)
	}
	if c.Routing.Strategy == StrategyGossip {
		if c.Routing.RefreshInterval == 0 {
			return fmt.Errorf("gossip routing needs a refresh interval")
		}
		if c.Routing.LinkTTL < c.Routing.RefreshInterval {
			return fmt.Errorf("link_ttl (%d) must not be shorter than refresh_interval (%d)",
				c.Routing.LinkTTL, c.Routing.RefreshInterval)
		}
		if c.Routing.MaxLinks <= 0 {
			return fmt.Errorf("max_links must be positive, got %d", c.Routing.MaxLinks)
		}
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	return nil
}

// Load reads a TOML or YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
