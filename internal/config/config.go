// Package config holds the server configuration populated from flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/rul"
)

// Source types
const (
	SourceFleet = "fleet"
	SourceREST  = "rest"
)

// Config holds server configuration
type Config struct {
	// Server settings
	Port int
	Host string

	// Data source settings
	SourceType     string // "fleet" or "rest"
	FleetDirectory string
	WatchFleet     bool
	APIBaseURL     string
	APITimeout     time.Duration

	// History settings
	DBPath string // empty disables history

	// Projection settings
	RefreshInterval   time.Duration
	WarningThreshold  float64
	CriticalThreshold float64
	Step              float64
	MarkerTolerance   float64
	Workers           int

	// Notification settings
	KafkaBrokers string // comma-separated, empty disables publishing
	KafkaTopic   string

	// CORS
	AllowedOrigins string // comma-separated

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Operational settings
	GracefulShutdownTimeout time.Duration
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.SourceType {
	case SourceFleet:
		if c.FleetDirectory == "" {
			return fmt.Errorf("fleet directory is required when source is 'fleet'")
		}
	case SourceREST:
		if c.APIBaseURL == "" {
			return fmt.Errorf("API base URL required when source is 'rest'")
		}
		if c.WatchFleet {
			return fmt.Errorf("watch is only supported for the 'fleet' source")
		}
	default:
		return fmt.Errorf("source type must be 'fleet' or 'rest'")
	}

	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}

	if err := c.Thresholds().Validate(); err != nil {
		return err
	}

	if c.Step <= 0 {
		return fmt.Errorf("step must be positive: %v", c.Step)
	}

	if c.MarkerTolerance <= 0 {
		return fmt.Errorf("marker tolerance must be positive: %v", c.MarkerTolerance)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive: %d", c.Workers)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be 'text' or 'json'")
	}

	return nil
}

// Thresholds returns the configured policy thresholds
func (c *Config) Thresholds() policy.Thresholds {
	return policy.Thresholds{Warning: c.WarningThreshold, Critical: c.CriticalThreshold}
}

// ModelOptions returns the projection options for the configured grid
func (c *Config) ModelOptions() []rul.Option {
	return []rul.Option{rul.WithStep(c.Step), rul.WithMarkerTolerance(c.MarkerTolerance)}
}

// Brokers returns the Kafka broker list
func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// Origins returns the allowed CORS origins
func (c *Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	th := policy.DefaultThresholds()
	return Config{
		Port:                    8080,
		Host:                    "0.0.0.0",
		SourceType:              SourceFleet,
		FleetDirectory:          "fleet",
		APITimeout:              10 * time.Second,
		RefreshInterval:         5 * time.Minute,
		WarningThreshold:        th.Warning,
		CriticalThreshold:       th.Critical,
		Step:                    rul.DefaultStep,
		MarkerTolerance:         rul.DefaultMarkerTolerance,
		Workers:                 4,
		KafkaTopic:              "rul.status-changes",
		AllowedOrigins:          "*",
		LogLevel:                "info",
		LogFormat:               "text",
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
