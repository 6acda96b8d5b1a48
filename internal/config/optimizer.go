package config

import (
	"fmt"
	"math"
)

// OptimizerConfig defines the duration sweep run by -optimize.
type OptimizerConfig struct {
	Enabled   bool      `yaml:"enabled,omitempty" mapstructure:"enabled"`
	Durations []float64 `yaml:"durations,omitempty" mapstructure:"durations"`
}

// Validate ensures every candidate duration is usable.
func (c OptimizerConfig) Validate() error {
	for _, d := range c.Durations {
		if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return fmt.Errorf("optimizer duration must be positive, got %v", d)
		}
	}
	return nil
}
