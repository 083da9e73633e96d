package ratelimit

import (
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        `mapstructure:"path"`   // Exact path, "/prefix/" or a pattern with * segments
	Method string        `mapstructure:"method"` // HTTP method (GET, POST, etc.)
	Limit  int           `mapstructure:"limit"`  // Maximum requests per window
	Window time.Duration `mapstructure:"window"` // Time window
	Burst  int           `mapstructure:"burst"`  // Burst capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool             `mapstructure:"enabled"`
	DefaultLimit    int              `mapstructure:"default_limit"`
	DefaultWindow   time.Duration    `mapstructure:"default_window"`
	CleanupInterval time.Duration    `mapstructure:"cleanup_interval"`
	Whitelist       []string         `mapstructure:"whitelist"`
	Blacklist       []string         `mapstructure:"blacklist"`
	Endpoints       []EndpointConfig `mapstructure:"endpoints"`
}

// DefaultConfig returns the built-in limits.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		DefaultLimit:    600,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		Endpoints:       DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Scraping three external sites per call
		{Path: "/sessions/*/process", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/sessions/*/process/stream", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},

		// Document rendering
		{Path: "/sessions/*/export", Method: "GET", Limit: 60, Window: time.Minute, Burst: 10},

		// Writes
		{Path: "/sessions", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/sessions/", Method: "PUT", Limit: 300, Window: time.Minute, Burst: 30},
		{Path: "/reconcile", Method: "POST", Limit: 120, Window: time.Minute, Burst: 20},
	}
}
