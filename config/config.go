// Package config loads and validates the YAML configuration for a
// departure board instance.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIKeyHeader   = "Authorization"
	DefaultUpdateInterval = 60 * time.Second
	DefaultDirectionID    = "0"
	DefaultServiceType    = "Service"
	DefaultIcon           = "mdi:bus"
	DefaultNextBusLimit   = 1
)

// Config is the top-level configuration document.
type Config struct {
	TripUpdateURL      string `yaml:"trip_update_url" validate:"required,url"`
	VehiclePositionURL string `yaml:"vehicle_position_url" validate:"omitempty,url"`
	APIKey             string `yaml:"api_key"`
	APIKeyHeader       string `yaml:"api_key_header"`
	RouteDelimiter     string `yaml:"route_delimiter"`

	// Seconds between reconciliation cycles.
	UpdateInterval int `yaml:"update_interval" validate:"omitempty,min=1"`

	StaticGTFSURL        string `yaml:"static_gtfs_url" validate:"omitempty,url"`
	EnableStaticFallback bool   `yaml:"enable_static_fallback"`

	Departures []Departure `yaml:"departures" validate:"required,min=1,dive"`
}

// Departure configures one monitored stop.
type Departure struct {
	Name         string `yaml:"name" validate:"required"`
	StopID       string `yaml:"stopid" validate:"required"`
	Route        string `yaml:"route" validate:"required"`
	DirectionID  string `yaml:"directionid"`
	Icon         string `yaml:"icon"`
	ServiceType  string `yaml:"service_type"`
	NextBusLimit int    `yaml:"next_bus_limit" validate:"omitempty,min=1"`
}

// Interval returns the update interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(body)
}

// Parse parses and validates a configuration document, filling in
// defaults for omitted fields.
func Parse(body []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Static fallback needs an archive to fall back to.
	if cfg.EnableStaticFallback && cfg.StaticGTFSURL == "" {
		return nil, fmt.Errorf("validating config: enable_static_fallback requires static_gtfs_url")
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = DefaultAPIKeyHeader
	}
	if c.UpdateInterval == 0 {
		c.UpdateInterval = int(DefaultUpdateInterval / time.Second)
	}
	for i := range c.Departures {
		dep := &c.Departures[i]
		if dep.DirectionID == "" {
			dep.DirectionID = DefaultDirectionID
		}
		if dep.Icon == "" {
			dep.Icon = DefaultIcon
		}
		if dep.ServiceType == "" {
			dep.ServiceType = DefaultServiceType
		}
		if dep.NextBusLimit == 0 {
			dep.NextBusLimit = DefaultNextBusLimit
		}
	}
}
