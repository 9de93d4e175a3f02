package geyser

import "fmt"

// Config holds the event-source connection settings.
type Config struct {
	// Address is the websocket address of the geyser feed.
	Address string `yaml:"address"`
	// XToken is the access token sent on connect, if any.
	XToken string `yaml:"xToken"`
	// BankingAddresses lists upstream banking-stage endpoints. The sidecar
	// does not dial these itself; they are forwarded to the feed boundary.
	BankingAddresses []string `yaml:"bankingAddresses"`
	// Commitment is the commitment level requested for streamed blocks.
	Commitment string `yaml:"commitment" default:"processed"`
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}

	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid commitment level: %q", c.Commitment)
	}

	return nil
}
