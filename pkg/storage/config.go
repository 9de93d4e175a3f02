package storage

import "fmt"

// Supported sink drivers.
const (
	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
)

// Config selects and configures the storage sink.
type Config struct {
	Driver     string           `yaml:"driver" default:"postgres"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// PostgresConfig configures the postgres sink.
type PostgresConfig struct {
	// DSN is the connection string. Falls back to the PG_CONFIG environment
	// variable when unset, so credentials can be supplied out-of-band.
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns" default:"4"`
}

// ClickHouseConfig configures the clickhouse sink.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database" default:"default"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverClickHouse:
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Driver)
	}

	if c.Driver == DriverClickHouse && c.ClickHouse.Addr == "" {
		return fmt.Errorf("clickhouse addr is required")
	}

	return nil
}
