// Package cost turns a sizing recommendation and equipment selections into an
// itemized, reconciled project cost.
package cost

import (
	"fmt"

	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/mathutil"
	"github.com/iwvelando/bess-engine/pkg/pricing"
	"github.com/iwvelando/bess-engine/pkg/provenance"
	"github.com/iwvelando/bess-engine/pkg/sizing"
	"github.com/shopspring/decimal"
)

// LineItem is one priced piece of equipment.
type LineItem struct {
	Name     string            `json:"name" yaml:"name"`
	Category pricing.Category  `json:"category" yaml:"category"`
	UnitCost float64           `json:"unitCost" yaml:"unitCost"`
	Quantity float64           `json:"quantity" yaml:"quantity"`
	Unit     string            `json:"unit" yaml:"unit"`
	Subtotal float64           `json:"subtotal" yaml:"subtotal"`
	Imported bool              `json:"imported" yaml:"imported"`
	WeightKg float64           `json:"weightKg" yaml:"weightKg"`
	Source   provenance.Source `json:"source" yaml:"source"`
}

// Breakdown is the full project cost. TotalProjectCost always equals the sum
// of the five components to the cent; Reconcile enforces it.
type Breakdown struct {
	UseCaseSlug       string            `json:"useCaseSlug" yaml:"useCaseSlug"`
	Region            string            `json:"region" yaml:"region"`
	ScaleTier         pricing.ScaleTier `json:"scaleTier" yaml:"scaleTier"`
	Currency          string            `json:"currency" yaml:"currency"`
	Items             []LineItem        `json:"items" yaml:"items"`
	EquipmentSubtotal float64           `json:"equipmentSubtotal" yaml:"equipmentSubtotal"`
	ImportedSubtotal  float64           `json:"importedSubtotal" yaml:"importedSubtotal"`
	TotalWeightKg     float64           `json:"totalWeightKg" yaml:"totalWeightKg"`
	BOSPct            float64           `json:"bosPct" yaml:"bosPct"`
	BOSCost           float64           `json:"bosCost" yaml:"bosCost"`
	EPCPct            float64           `json:"epcPct" yaml:"epcPct"`
	EPCCost           float64           `json:"epcCost" yaml:"epcCost"`
	TariffPct         float64           `json:"tariffPct" yaml:"tariffPct"`
	TariffCost        float64           `json:"tariffCost" yaml:"tariffCost"`
	ShippingPerKg     float64           `json:"shippingPerKg" yaml:"shippingPerKg"`
	ShippingCost      float64           `json:"shippingCost" yaml:"shippingCost"`
	TotalProjectCost  float64           `json:"totalProjectCost" yaml:"totalProjectCost"`
	Source            provenance.Source `json:"source" yaml:"source"`
	Fallbacks         []string          `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
	Warnings          []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Sizing            sizing.Result     `json:"sizing" yaml:"sizing"`
}

// ReconciliationError means a reported cost does not match its recomputation.
// It indicates a defect and must never be swallowed.
type ReconciliationError struct {
	Component string
	Expected  float64
	Actual    float64
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("cost reconciliation failed for %s: expected %.2f, got %.2f", e.Component, e.Expected, e.Actual)
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(constants.CurrencyPlaces)
}

func money(d decimal.Decimal) float64 {
	return d.Round(constants.CurrencyPlaces).InexactFloat64()
}

func check(component string, expected decimal.Decimal, actual float64) error {
	expected = expected.Round(constants.CurrencyPlaces)
	if !expected.Equal(cents(actual)) {
		return &ReconciliationError{Component: component, Expected: expected.InexactFloat64(), Actual: actual}
	}
	return nil
}

// checkSizing ties the battery and PCS quantities to the embedded sizing.
func (b Breakdown) checkSizing() error {
	if !energyMatches(b.Sizing) {
		return &ReconciliationError{Component: "sizing energyMWh", Expected: b.Sizing.PowerMW * b.Sizing.DurationHours, Actual: b.Sizing.EnergyMWh}
	}
	quantities := map[pricing.Category]float64{}
	for _, item := range b.Items {
		quantities[item.Category] += item.Quantity
	}
	expected := []struct {
		component string
		category  pricing.Category
		quantity  float64
	}{
		{"battery quantity", pricing.Battery, b.Sizing.EnergyMWh * constants.KWhPerMWh},
		{"pcs quantity", pricing.PCS, b.Sizing.PowerMW * constants.KWPerMW},
	}
	for _, e := range expected {
		if !mathutil.WithinTolerance(quantities[e.category], e.quantity, constants.EnergyToleranceMWh*constants.KWhPerMWh) {
			return &ReconciliationError{Component: e.component, Expected: e.quantity, Actual: quantities[e.category]}
		}
	}
	return nil
}

// Reconcile recomputes every derived figure from the line items, rates and
// embedded sizing and fails on the first mismatch.
func (b Breakdown) Reconcile() error {
	equipment := decimal.Zero
	imported := decimal.Zero
	weight := decimal.Zero
	for _, item := range b.Items {
		subtotal := decimal.NewFromFloat(item.UnitCost).Mul(decimal.NewFromFloat(item.Quantity))
		if err := check("item "+item.Name, subtotal, item.Subtotal); err != nil {
			return err
		}
		equipment = equipment.Add(cents(item.Subtotal))
		if item.Imported {
			imported = imported.Add(cents(item.Subtotal))
		}
		weight = weight.Add(cents(item.WeightKg))
	}
	if err := b.checkSizing(); err != nil {
		return err
	}
	if err := check("equipmentSubtotal", equipment, b.EquipmentSubtotal); err != nil {
		return err
	}
	if err := check("importedSubtotal", imported, b.ImportedSubtotal); err != nil {
		return err
	}
	if err := check("totalWeightKg", weight, b.TotalWeightKg); err != nil {
		return err
	}

	bos := decimal.NewFromFloat(b.BOSPct).Mul(equipment).Round(constants.CurrencyPlaces)
	if err := check("bosCost", bos, b.BOSCost); err != nil {
		return err
	}
	epc := decimal.NewFromFloat(b.EPCPct).Mul(equipment.Add(bos))
	if err := check("epcCost", epc, b.EPCCost); err != nil {
		return err
	}
	tariff := decimal.NewFromFloat(b.TariffPct).Mul(imported)
	if err := check("tariffCost", tariff, b.TariffCost); err != nil {
		return err
	}
	shipping := decimal.NewFromFloat(b.ShippingPerKg).Mul(decimal.NewFromFloat(b.TotalWeightKg))
	if err := check("shippingCost", shipping, b.ShippingCost); err != nil {
		return err
	}

	total := cents(b.EquipmentSubtotal).
		Add(cents(b.BOSCost)).
		Add(cents(b.EPCCost)).
		Add(cents(b.TariffCost)).
		Add(cents(b.ShippingCost))
	return check("totalProjectCost", total, b.TotalProjectCost)
}
