package retry

import (
	"encoding/json"
	"errors"
	"time"
)

// Config defines the configuration for the retry mechanism.
type Config struct {
	Attempts  int           `mapstructure:"attempts"`   // Total attempts, including the first one
	DelayBase time.Duration `mapstructure:"delay_base"` // Sleep after attempt n is DelayBase * n
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *Config {
	return &Config{
		Attempts:  3,
		DelayBase: time.Second,
	}
}

// Validate validates the retry configuration.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return nil
	}
	if cfg.Attempts <= 0 {
		return errors.New("attempts must be greater than zero")
	}
	if cfg.DelayBase < 0 {
		return errors.New("delay base cannot be negative")
	}
	return nil
}

// String returns a JSON string representation of the Config.
func (cfg *Config) String() string {
	data, _ := json.Marshal(cfg)
	return string(data)
}
