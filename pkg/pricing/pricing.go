// Package pricing resolves per-unit equipment costs and percentage adders by
// category, scale tier and region.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/datetime"
	"github.com/iwvelando/bess-engine/pkg/provenance"
)

// Category identifies a priced item or percentage adder.
type Category string

// Priced categories. Unit costs are USD per the unit noted.
const (
	Battery             Category = "battery"               // $/kWh
	PCS                 Category = "pcs"                   // $/kW
	Solar               Category = "solar"                 // $/kWp
	Wind                Category = "wind"                  // $/kW
	GeneratorDiesel     Category = "generator-diesel"      // $/kW
	GeneratorNaturalGas Category = "generator-natural-gas" // $/kW
	GeneratorDualFuel   Category = "generator-dual-fuel"   // $/kW
	EVChargerLevel2     Category = "ev-charger-level2"     // $/unit
	EVChargerDCFast150  Category = "ev-charger-dcfast-150" // $/unit
	EVChargerDCFast350  Category = "ev-charger-dcfast-350" // $/unit
	BOSPct              Category = "bos-pct"               // fraction of equipment subtotal
	EPCPct              Category = "epc-pct"               // fraction of subtotal + BOS
	TariffPct           Category = "tariff-pct"            // fraction of imported equipment
	ShippingPerKg       Category = "shipping-per-kg"       // $/kg
)

// ScaleTier selects small- or utility-scale unit costs.
type ScaleTier string

const (
	Small ScaleTier = "small"
	Large ScaleTier = "large"
)

// DefaultRegion is used for any region without its own row.
const DefaultRegion = "default"

// Currency of every builtin price.
const Currency = "USD"

// ErrUnavailable is the sentinel behind every UnavailableError.
var ErrUnavailable = errors.New("pricing data unavailable")

// UnavailableError reports a lookup the table could not satisfy.
type UnavailableError struct {
	Category Category
	Tier     ScaleTier
	Region   string
	Err      error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("pricing data unavailable for %s/%s/%s", e.Category, e.Tier, e.Region)
	if e.Err != nil && !errors.Is(e.Err, ErrUnavailable) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrUnavailable) match.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Price is one resolved unit cost.
type Price struct {
	UnitCost float64           `json:"unitCost" yaml:"unitCost"`
	Currency string            `json:"currency" yaml:"currency"`
	AsOf     time.Time         `json:"asOf" yaml:"asOf"`
	Source   provenance.Source `json:"source" yaml:"source"`
}

// Table looks up prices.
type Table interface {
	Lookup(ctx context.Context, category Category, tier ScaleTier, region string) (Price, error)
}

// NormalizeRegion lower-cases a region code, mapping empty to DefaultRegion.
func NormalizeRegion(region string) string {
	r := strings.ToLower(strings.TrimSpace(region))
	if r == "" {
		return DefaultRegion
	}
	return r
}

// TierFor picks the scale tier from total system size: 5 MW or 20 MWh and
// above prices at the large tier.
func TierFor(energyMWh, powerMW float64) ScaleTier {
	if powerMW >= constants.LargeScaleThresholdMW || energyMWh >= constants.LargeScaleThresholdMWh {
		return Large
	}
	return Small
}

// IsStale reports whether price is older than maxAgeMonths at now. A zero
// AsOf or non-positive maxAgeMonths is never stale.
func IsStale(price Price, now time.Time, maxAgeMonths int) bool {
	if price.AsOf.IsZero() || maxAgeMonths <= 0 {
		return false
	}
	return datetime.MonthsBetween(price.AsOf, now) > maxAgeMonths
}
