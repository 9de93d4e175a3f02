package tracker

import (
	"fmt"
	"time"
)

// Config holds the correlation pipeline's tuning knobs. The defaults are the
// reference deployment's values; both the hold duration and the lag window
// trade memory bound against correlation completeness, so they are exposed
// rather than hard-coded.
type Config struct {
	// BlockHoldDuration is how long an arrived block waits in the delay
	// queue before processing, giving the error tally time to populate.
	// Notifications arriving after the hold are invisible to that block's
	// record.
	BlockHoldDuration time.Duration `yaml:"blockHoldDuration" default:"30s"`
	// EvictionInterval is the period of the eviction/flush job.
	EvictionInterval time.Duration `yaml:"evictionInterval" default:"60s"`
	// LagWindowSlots is how far behind the watermark an entry's first
	// observed slot must be before it is considered complete and evicted.
	// Events arriving after eviction are silently lost.
	LagWindowSlots uint64 `yaml:"lagWindowSlots" default:"300"`
	// BatchSize is the number of transaction records per persistence batch.
	BatchSize int `yaml:"batchSize" default:"8"`
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.BlockHoldDuration < 0 {
		return fmt.Errorf("blockHoldDuration must not be negative")
	}

	if c.EvictionInterval <= 0 {
		return fmt.Errorf("evictionInterval must be positive")
	}

	if c.LagWindowSlots == 0 {
		return fmt.Errorf("lagWindowSlots must be positive")
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be positive")
	}

	return nil
}
