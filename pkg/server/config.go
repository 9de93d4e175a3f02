package server

import (
	"fmt"
	"time"

	"github.com/rpcpool/banking-stage-sidecar/pkg/geyser"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage"
	"github.com/rpcpool/banking-stage-sidecar/pkg/tracker"
)

// Config is the main configuration for the sidecar.
type Config struct {
	// MetricsAddr is the address to listen on for metrics.
	MetricsAddr string `yaml:"metricsAddr" default:":9091"`
	// HealthCheckAddr is the address to listen on for healthcheck.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	// PProfAddr is the address to listen on for pprof.
	PProfAddr *string `yaml:"pprofAddr"`
	// LoggingLevel is the logging level to use.
	LoggingLevel string `yaml:"logging" default:"info"`
	// Geyser is the event-source configuration.
	Geyser geyser.Config `yaml:"geyser"`
	// Tracker is the correlation pipeline configuration.
	Tracker tracker.Config `yaml:"tracker"`
	// Storage is the sink configuration.
	Storage storage.Config `yaml:"storage"`
	// ShutdownTimeout bounds the drain sequence on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Geyser.Validate(); err != nil {
		return fmt.Errorf("invalid geyser configuration: %w", err)
	}

	if err := c.Tracker.Validate(); err != nil {
		return fmt.Errorf("invalid tracker configuration: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}

	return nil
}
