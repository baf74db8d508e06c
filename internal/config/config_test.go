package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotNil(t, cfg)
	assert.Equal(t, uint64(100), cfg.M)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "M too small", mutate: func(c *Config) { c.M = 1 }, wantErr: true},
		{name: "unknown key hash", mutate: func(c *Config) { c.KeyHash = "md5" }, wantErr: true},
		{name: "key hash is case insensitive", mutate: func(c *Config) { c.KeyHash = "SHA256" }},
		{name: "unknown strategy", mutate: func(c *Config) { c.Routing.Strategy = "flood" }, wantErr: true},
		{name: "oracle strategy", mutate: func(c *Config) { c.Routing.Strategy = StrategyOracle }},
		{name: "zero max hops", mutate: func(c *Config) { c.Routing.MaxHops = 0 }, wantErr: true},
		{name: "negative forward hops", mutate: func(c *Config) { c.Routing.MaxForwardHops = -1 }, wantErr: true},
		{
			name: "gossip without refresh",
			mutate: func(c *Config) {
				c.Routing.Strategy = StrategyGossip
				c.Routing.RefreshInterval = 0
			},
			wantErr: true,
		},
		{
			name: "gossip ttl shorter than refresh",
			mutate: func(c *Config) {
				c.Routing.Strategy = StrategyGossip
				c.Routing.LinkTTL = 10
			},
			wantErr: true,
		},
		{name: "gossip defaults", mutate: func(c *Config) { c.Routing.Strategy = StrategyGossip }},
		{name: "disabled HTTP", mutate: func(c *Config) { c.HTTPPort = 0 }},
		{name: "invalid HTTP port", mutate: func(c *Config) { c.HTTPPort = 70000 }, wantErr: true},
		{name: "invalid log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestForwardHopLimit(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.ForwardHopLimit())

	cfg.M = 64
	assert.Equal(t, 64, cfg.ForwardHopLimit())

	cfg.Routing.MaxForwardHops = 7
	assert.Equal(t, 7, cfg.ForwardHopLimit())
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("toml", func(t *testing.T) {
		path := writeFile(t, "sim.toml", `
m = 64
seed = 9
key_hash = "xxhash"
log_format = "json"

[latency]
base = 2
jitter = 5

[routing]
strategy = "gossip"
max_hops = 12
refresh_interval = 30
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, uint64(64), cfg.M)
		assert.Equal(t, int64(9), cfg.Seed)
		assert.Equal(t, "xxhash", cfg.KeyHash)
		assert.Equal(t, LatencyConfig{Base: 2, Jitter: 5}, cfg.Latency)
		assert.Equal(t, StrategyGossip, cfg.Routing.Strategy)
		assert.Equal(t, 12, cfg.Routing.MaxHops)
		assert.Equal(t, uint64(30), cfg.Routing.RefreshInterval)
		assert.Equal(t, uint64(200), cfg.Routing.LinkTTL, "unset fields keep defaults")
		assert.Equal(t, "json", cfg.LogFormat)
	})

	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, "sim.yaml", `
m: 128
routing:
  strategy: oracle
  max_forward_hops: 20
http_port: 0
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, uint64(128), cfg.M)
		assert.Equal(t, StrategyOracle, cfg.Routing.Strategy)
		assert.Equal(t, 20, cfg.ForwardHopLimit())
		assert.Equal(t, 10, cfg.Routing.MaxHops)
		assert.Zero(t, cfg.HTTPPort)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeFile(t, "bad.yml", "m: 1\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("malformed toml", func(t *testing.T) {
		path := writeFile(t, "bad.toml", "m = = 3")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, "sim.json", "{}")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
}
