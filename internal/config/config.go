// Package config loads splitpay service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// Postgres connection string. Empty selects the in-memory store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Redis URL for event publishing. Empty disables the publisher.
	RedisURL string `yaml:"redis_url"`

	// EventChannel is the Redis pub/sub channel for audit events.
	EventChannel string `yaml:"event_channel"`

	Chain ChainConfig `yaml:"chain"`

	// SweepInterval controls the expiry sweeper cadence.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ChainConfig configures on-chain settlement. An empty RPCURL selects the
// in-process memory ledger.
type ChainConfig struct {
	RPCURL        string            `yaml:"rpc_url"`
	NetworkID     uint32            `yaml:"network_id"`
	EscrowKeyHex  string            `yaml:"escrow_key_hex"`
	CustodialKeys map[string]string `yaml:"custodial_keys"`
}

// RateLimitConfig configures per-caller HTTP throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when no file or overrides are
// present.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		EventChannel:  "splitpay.events",
		SweepInterval: 15 * time.Second,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 25,
			Burst:             50,
		},
	}
}

// Load reads the configuration file at path (skipped when empty or missing)
// and applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.ListenAddr == "" {
		return Config{}, fmt.Errorf("listen_addr is required")
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.Burst <= 0 {
		return Config{}, fmt.Errorf("rate limit must be positive")
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SPLITPAY_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("SPLITPAY_POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("SPLITPAY_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("SPLITPAY_EVENT_CHANNEL"); v != "" {
		c.EventChannel = v
	}
	if v := os.Getenv("SPLITPAY_CHAIN_RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv("SPLITPAY_CHAIN_NETWORK_ID"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Chain.NetworkID = uint32(parsed)
		}
	}
	if v := os.Getenv("SPLITPAY_CHAIN_ESCROW_KEY"); v != "" {
		c.Chain.EscrowKeyHex = v
	}
	if v := os.Getenv("SPLITPAY_SWEEP_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.SweepInterval = parsed
		}
	}
}
