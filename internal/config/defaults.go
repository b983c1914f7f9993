// Package config loads process configuration for the MCP bridge from
// environment variables, as specified for boot-time wiring.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default values, matching the process configuration table.
const (
	DefaultMCPPort             = 3002
	DefaultCacheEnabled        = true
	DefaultCacheStrategy       = "time-based"
	DefaultCacheMaxSize        = 1000
	DefaultCacheMaxAgeSeconds  = 300
	DefaultHeartbeatIntervalMs = 30000
	DefaultDisconnectTimeoutMs = 30000
	DefaultEventBufferSize     = 100
)

// Config is the process-wide configuration loaded at boot.
type Config struct {
	MCPPort int

	CacheEnabled  bool
	CacheStrategy string
	CacheMaxSize  int
	CacheMaxAge   time.Duration

	HeartbeatInterval time.Duration
	DisconnectTimeout time.Duration
	EventBufferSize   int

	UpstreamBaseURL string
}

// Load reads configuration from the environment, falling back to defaults.
// It returns an error if a set variable cannot be parsed, so the caller can
// exit with a non-zero status on a configuration error at boot.
func Load() (*Config, error) {
	cfg := &Config{
		MCPPort:           DefaultMCPPort,
		CacheEnabled:      DefaultCacheEnabled,
		CacheStrategy:     DefaultCacheStrategy,
		CacheMaxSize:      DefaultCacheMaxSize,
		CacheMaxAge:       DefaultCacheMaxAgeSeconds * time.Second,
		HeartbeatInterval: DefaultHeartbeatIntervalMs * time.Millisecond,
		DisconnectTimeout: DefaultDisconnectTimeoutMs * time.Millisecond,
		EventBufferSize:   DefaultEventBufferSize,
	}

	var err error
	if cfg.MCPPort, err = envInt("MCP_PORT", cfg.MCPPort); err != nil {
		return nil, err
	}
	if cfg.CacheEnabled, err = envBool("CACHE_ENABLED", cfg.CacheEnabled); err != nil {
		return nil, err
	}
	if v := os.Getenv("CACHE_STRATEGY"); v != "" {
		if v != "time-based" && v != "lru" {
			return nil, fmt.Errorf("invalid CACHE_STRATEGY %q: must be time-based or lru", v)
		}
		cfg.CacheStrategy = v
	}
	if cfg.CacheMaxSize, err = envInt("CACHE_MAX_SIZE", cfg.CacheMaxSize); err != nil {
		return nil, err
	}

	maxAgeSeconds, err := envInt("CACHE_MAX_AGE", DefaultCacheMaxAgeSeconds)
	if err != nil {
		return nil, err
	}
	cfg.CacheMaxAge = time.Duration(maxAgeSeconds) * time.Second

	heartbeatMs, err := envInt("HEARTBEAT_INTERVAL_MS", DefaultHeartbeatIntervalMs)
	if err != nil {
		return nil, err
	}
	cfg.HeartbeatInterval = time.Duration(heartbeatMs) * time.Millisecond

	disconnectMs, err := envInt("DISCONNECT_TIMEOUT_MS", DefaultDisconnectTimeoutMs)
	if err != nil {
		return nil, err
	}
	cfg.DisconnectTimeout = time.Duration(disconnectMs) * time.Millisecond

	if cfg.EventBufferSize, err = envInt("EVENT_BUFFER_SIZE", cfg.EventBufferSize); err != nil {
		return nil, err
	}

	cfg.UpstreamBaseURL = os.Getenv("MAAS_API_URL")

	return cfg, nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return n, nil
}

func envBool(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return b, nil
}
