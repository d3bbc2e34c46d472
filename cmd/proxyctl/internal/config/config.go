// Package config provides proxyctl settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds proxyctl settings, read from PROXYCTL_* variables.
type Config struct {
	// ServerURL is the base URL of a running videoproc server.
	ServerURL string `envconfig:"SERVER" default:"http://localhost:8000"`
	APIKey    string `envconfig:"API_KEY"`

	// ConfigPath is the videoproc config file used for doctor and usage.
	ConfigPath string `envconfig:"CONFIG"`

	Refresh time.Duration `envconfig:"REFRESH" default:"5s"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`

	// Color is auto, always or never.
	Color string `envconfig:"COLOR" default:"auto"`
}

// Load reads configuration from the environment. The server's own API_KEY
// is used when PROXYCTL_API_KEY is unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("PROXYCTL", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("API_KEY")
	}
	if cfg.Refresh <= 0 {
		return nil, fmt.Errorf("PROXYCTL_REFRESH must be positive")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("PROXYCTL_TIMEOUT must be positive")
	}
	switch cfg.Color {
	case "auto", "always", "never":
	default:
		return nil, fmt.Errorf("PROXYCTL_COLOR must be auto, always or never")
	}
	return cfg, nil
}
