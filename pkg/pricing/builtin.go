package pricing

import (
	"context"
	"fmt"

	"github.com/iwvelando/bess-engine/pkg/datetime"
	"github.com/iwvelando/bess-engine/pkg/provenance"
)

// BuiltinAsOf is the month the builtin constants were last reviewed.
const BuiltinAsOf = "2025-01"

type tierCost struct {
	small, large float64
}

// Equipment unit costs by tier.
var builtinEquipment = map[Category]tierCost{
	Battery:             {small: 350, large: 250},
	PCS:                 {small: 150, large: 100},
	Solar:               {small: 1200, large: 850},
	Wind:                {small: 2500, large: 1600},
	GeneratorDiesel:     {small: 500, large: 400},
	GeneratorNaturalGas: {small: 700, large: 550},
	GeneratorDualFuel:   {small: 800, large: 650},
	EVChargerLevel2:     {small: 6000, large: 6000},
	EVChargerDCFast150:  {small: 95000, large: 95000},
	EVChargerDCFast350:  {small: 150000, large: 150000},
	BOSPct:              {small: 0.12, large: 0.12},
	EPCPct:              {small: 0.15, large: 0.15},
}

// Region dependent adders.
var builtinTariffPct = map[string]float64{
	"us":          0.25,
	"eu":          0.10,
	"uk":          0.10,
	"au":          0.05,
	DefaultRegion: 0,
}

var builtinShippingPerKg = map[string]float64{
	"us":          0.50,
	"eu":          0.60,
	"uk":          0.65,
	"au":          0.90,
	DefaultRegion: 0.80,
}

// BuiltinTable serves the documented constants above. Every lookup succeeds
// for a known category.
type BuiltinTable struct {
	source provenance.Source
}

// Builtin returns the constant table tagged calculated.
func Builtin() *BuiltinTable {
	return &BuiltinTable{source: provenance.Calculated}
}

// Lookup resolves a builtin price. Unknown regions use the default row.
func (b *BuiltinTable) Lookup(_ context.Context, category Category, tier ScaleTier, region string) (Price, error) {
	cost, err := builtinCost(category, tier, NormalizeRegion(region))
	if err != nil {
		return Price{}, err
	}
	return Price{
		UnitCost: cost,
		Currency: Currency,
		AsOf:     datetime.MustParseMonth(BuiltinAsOf),
		Source:   b.source,
	}, nil
}

func builtinCost(category Category, tier ScaleTier, region string) (float64, error) {
	switch category {
	case TariffPct:
		return regional(builtinTariffPct, region), nil
	case ShippingPerKg:
		return regional(builtinShippingPerKg, region), nil
	}
	costs, ok := builtinEquipment[category]
	if !ok {
		return 0, &UnavailableError{Category: category, Tier: tier, Region: region,
			Err: fmt.Errorf("unknown category %q", category)}
	}
	if tier == Large {
		return costs.large, nil
	}
	return costs.small, nil
}

func regional(table map[string]float64, region string) float64 {
	if v, ok := table[region]; ok {
		return v
	}
	return table[DefaultRegion]
}
