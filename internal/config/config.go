// Package config defines the data structures related to configuration and
// includes functions for loading and parsing the config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/bess-engine/pkg/cache"
	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/mathutil"
	"github.com/iwvelando/bess-engine/pkg/validation"
	"github.com/spf13/viper"
)

// Collaborator sources.
const (
	SourceBuiltin  = "builtin"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Configuration holds all configuration for bess-engine.
type Configuration struct {
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Output    OutputConfig    `yaml:"output,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty"`
	Pricing   PricingConfig   `yaml:"pricing,omitempty"`
	Catalog   CatalogConfig   `yaml:"catalog,omitempty"`
	Financial FinancialConfig `yaml:"financial,omitempty"`
	Optimizer OptimizerConfig `yaml:"optimizer,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv, json
}

// CacheConfig bounds the calculation cache. An empty redis address keeps the
// cache in process.
type CacheConfig struct {
	TTL        time.Duration      `yaml:"ttl,omitempty"`
	MaxEntries int                `yaml:"maxEntries,omitempty"`
	Redis      cache.RedisOptions `yaml:"redis,omitempty"`
}

// PricingConfig selects the pricing table.
type PricingConfig struct {
	Source           string        `yaml:"source,omitempty"` // builtin, postgres
	DatabaseURL      string        `yaml:"databaseURL,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`
	StaleAfterMonths int           `yaml:"staleAfterMonths,omitempty"`
}

// CatalogConfig selects the use case catalog.
type CatalogConfig struct {
	Source      string        `yaml:"source,omitempty"` // builtin, file, postgres
	File        string        `yaml:"file,omitempty"`
	DatabaseURL string        `yaml:"databaseURL,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// FinancialConfig holds the default lifetime and incentive assumptions.
// Rates are percentages.
type FinancialConfig struct {
	DegradationRatePct   float64 `yaml:"degradationRatePct,omitempty"`
	EscalationRatePct    float64 `yaml:"escalationRatePct,omitempty"`
	DiscountRatePct      float64 `yaml:"discountRatePct,omitempty"`
	ProjectLifetimeYears int     `yaml:"projectLifetimeYears,omitempty"`
	OpexPct              float64 `yaml:"opexPct,omitempty"`
	ITCPct               float64 `yaml:"itcPct,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.maxEntries", cache.DefaultMaxEntries)
	v.SetDefault("cache.redis.prefix", "bess")
	v.SetDefault("pricing.source", SourceBuiltin)
	v.SetDefault("pricing.timeout", 2*time.Second)
	v.SetDefault("pricing.staleAfterMonths", 12)
	v.SetDefault("catalog.source", SourceBuiltin)
	v.SetDefault("catalog.timeout", 2*time.Second)
	v.SetDefault("financial.degradationRatePct", constants.DefaultDegradationRatePct)
	v.SetDefault("financial.escalationRatePct", constants.DefaultEscalationRatePct)
	v.SetDefault("financial.discountRatePct", constants.DefaultDiscountRatePct)
	v.SetDefault("financial.projectLifetimeYears", constants.DefaultProjectLifetimeYears)
	v.SetDefault("financial.opexPct", constants.DefaultOpexPct)
	v.SetDefault("financial.itcPct", 0)
	v.SetDefault("optimizer.durations", []float64{2, 4, 6, 8})
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"pricing.databaseURL":  "DATABASE_URL",
		"catalog.databaseURL":  "DATABASE_URL",
		"cache.redis.address":  "REDIS_ADDR",
		"cache.redis.password": "REDIS_PASSWORD",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. An empty path yields the defaults.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file, %s", err)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// Validate rejects settings that cannot be wired.
func (c *Configuration) Validate() error {
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return err
	}
	switch c.Pricing.Source {
	case SourceBuiltin:
	case SourcePostgres:
		if c.Pricing.DatabaseURL == "" {
			return fmt.Errorf("pricing source %s requires databaseURL or DATABASE_URL", SourcePostgres)
		}
	default:
		return fmt.Errorf("unknown pricing source %q", c.Pricing.Source)
	}
	switch c.Catalog.Source {
	case SourceBuiltin:
	case SourceFile:
		if c.Catalog.File == "" {
			return fmt.Errorf("catalog source %s requires file", SourceFile)
		}
	case SourcePostgres:
		if c.Catalog.DatabaseURL == "" {
			return fmt.Errorf("catalog source %s requires databaseURL or DATABASE_URL", SourcePostgres)
		}
	default:
		return fmt.Errorf("unknown catalog source %q", c.Catalog.Source)
	}
	if c.Cache.TTL < 0 || c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache ttl and maxEntries cannot be negative")
	}
	if c.Financial.OpexPct < 0 || !mathutil.IsFinite(c.Financial.OpexPct) {
		return fmt.Errorf("financial.opexPct must be a non-negative number, got %v", c.Financial.OpexPct)
	}
	if c.Financial.ITCPct < 0 || c.Financial.ITCPct > constants.PercentageMultiplier {
		return fmt.Errorf("financial.itcPct must be between 0 and 100, got %v", c.Financial.ITCPct)
	}
	if c.Financial.ProjectLifetimeYears < 1 {
		return fmt.Errorf("financial.projectLifetimeYears must be positive, got %d", c.Financial.ProjectLifetimeYears)
	}
	return c.Optimizer.Validate()
}
