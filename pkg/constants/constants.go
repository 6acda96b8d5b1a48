// Package constants provides shared constants for the bess-engine application.
package constants

// MonthLayout is the format used for pricing as-of dates and is also the
// output format for those dates.
const MonthLayout = "2006-01"

// Financial constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// DecimalPrecision is the precision for currency rounding (2 decimal places)
	DecimalPrecision = 100

	// CurrencyPlaces is the number of decimal places kept for currency values
	CurrencyPlaces = 2

	// DefaultDegradationRatePct is the default annual capacity fade
	DefaultDegradationRatePct = 2.5

	// DefaultEscalationRatePct is the default annual electricity price escalation
	DefaultEscalationRatePct = 2.0

	// DefaultDiscountRatePct is the default discount rate for NPV
	DefaultDiscountRatePct = 8.0

	// DefaultProjectLifetimeYears is the default analysis horizon
	DefaultProjectLifetimeYears = 25

	// DefaultOpexPct is the default annual O&M cost as a percentage of total project cost
	DefaultOpexPct = 1.5
)

// Sizing constants
const (
	// MinimumPowerMW is the BESS power floor applied unless overridden
	MinimumPowerMW = 0.5

	// BackupGenerationFloorPct is the share of net peak demand recommended as
	// on-site generation for unreliable grids
	BackupGenerationFloorPct = 30.0

	// KWPerMW converts kilowatts to megawatts
	KWPerMW = 1000.0

	// KWhPerMWh converts kilowatt-hours to megawatt-hours
	KWhPerMWh = 1000.0

	// LargeScaleThresholdMW selects the large-scale pricing tier
	LargeScaleThresholdMW = 5.0

	// LargeScaleThresholdMWh selects the large-scale pricing tier by stored energy
	LargeScaleThresholdMWh = 20.0
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultRequestFile is the default quote request file name
	DefaultRequestFile = "quote.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum upload size for YAML requests (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultSubjectPrefix is the default NATS subject prefix
	DefaultSubjectPrefix = "bess"
)

// Validation constants
const (
	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01

	// EnergyToleranceMWh is the tolerance for energy = power x duration checks (1 Wh)
	EnergyToleranceMWh = 1e-6

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0
)
