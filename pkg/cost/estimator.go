package cost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/mathutil"
	"github.com/iwvelando/bess-engine/pkg/pricing"
	"github.com/iwvelando/bess-engine/pkg/provenance"
	"github.com/iwvelando/bess-engine/pkg/sizing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnknownEquipment is returned for an unrecognised generator fuel or
// charger type.
var ErrUnknownEquipment = errors.New("unknown equipment type")

// WeightKgPerUnit is the shipping weight per priced unit of each category.
var WeightKgPerUnit = map[pricing.Category]float64{
	pricing.Battery:             6.5,  // per kWh, containerized LFP
	pricing.PCS:                 2.0,  // per kW
	pricing.Solar:               60,   // per kWp incl. racking
	pricing.Wind:                120,  // per kW
	pricing.GeneratorDiesel:     9,    // per kW
	pricing.GeneratorNaturalGas: 11,   // per kW
	pricing.GeneratorDualFuel:   12,   // per kW
	pricing.EVChargerLevel2:     35,   // per unit
	pricing.EVChargerDCFast150:  1400, // per unit
	pricing.EVChargerDCFast350:  2100, // per unit
}

// importedCategories attract the regional tariff.
var importedCategories = map[pricing.Category]bool{
	pricing.Battery:            true,
	pricing.PCS:                true,
	pricing.Solar:              true,
	pricing.EVChargerLevel2:    true,
	pricing.EVChargerDCFast150: true,
	pricing.EVChargerDCFast350: true,
}

var generatorFuels = map[string]pricing.Category{
	"diesel":      pricing.GeneratorDiesel,
	"natural-gas": pricing.GeneratorNaturalGas,
	"gas":         pricing.GeneratorNaturalGas,
	"dual-fuel":   pricing.GeneratorDualFuel,
}

var chargerTypes = map[string]pricing.Category{
	"level2":     pricing.EVChargerLevel2,
	"dcfast-150": pricing.EVChargerDCFast150,
	"dcfast-350": pricing.EVChargerDCFast350,
}

// GeneratorSelection adds on-site generation of one fuel.
type GeneratorSelection struct {
	Fuel       string  `json:"fuel" yaml:"fuel"`
	CapacityMW float64 `json:"capacityMW" yaml:"capacityMW"`
}

// ChargerSelection adds EV chargers of one type.
type ChargerSelection struct {
	Type     string `json:"type" yaml:"type"`
	Quantity int    `json:"quantity" yaml:"quantity"`
}

// EquipmentConfig carries the optional selections priced alongside the BESS.
type EquipmentConfig struct {
	Region                          string               `json:"region,omitempty" yaml:"region,omitempty"`
	SolarMW                         float64              `json:"solarMW,omitempty" yaml:"solarMW,omitempty"`
	WindMW                          float64              `json:"windMW,omitempty" yaml:"windMW,omitempty"`
	Generators                      []GeneratorSelection `json:"generators,omitempty" yaml:"generators,omitempty"`
	EVChargers                      []ChargerSelection   `json:"evChargers,omitempty" yaml:"evChargers,omitempty"`
	IncludeGenerationRecommendation bool                 `json:"includeGenerationRecommendation,omitempty" yaml:"includeGenerationRecommendation,omitempty"`
}

// Options tune an Estimator.
type Options struct {
	// LookupTimeout bounds each pricing lookup.
	LookupTimeout time.Duration
	// StaleAfterMonths flags prices older than this many months; 0 disables.
	StaleAfterMonths int
	// Now is the clock used for staleness checks.
	Now func() time.Time
}

// Estimator prices equipment through a fallback-guarded pricing table.
type Estimator struct {
	table  pricing.Table
	logger *zap.Logger
	opts   Options
}

// NewEstimator wraps table so that every lookup is bounded and falls back to
// builtin constants. A table that is already a *pricing.FallbackTable is used
// as is.
func NewEstimator(logger *zap.Logger, table pricing.Table, opts Options) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, ok := table.(*pricing.FallbackTable); !ok {
		table = pricing.WithFallback(table, opts.LookupTimeout, logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Estimator{table: table, logger: logger, opts: opts}
}

type lineSpec struct {
	name     string
	category pricing.Category
	quantity float64
	unit     string
}

// Estimate produces the reconciled cost breakdown for sz and cfg.
func (e *Estimator) Estimate(ctx context.Context, sz sizing.Result, cfg EquipmentConfig) (Breakdown, error) {
	if err := validate(sz, cfg); err != nil {
		return Breakdown{}, err
	}
	lines, err := lineSpecs(sz, cfg)
	if err != nil {
		return Breakdown{}, err
	}

	out := Breakdown{
		UseCaseSlug: sz.UseCaseSlug,
		Region:      pricing.NormalizeRegion(cfg.Region),
		ScaleTier:   pricing.TierFor(sz.EnergyMWh, sz.PowerMW),
		Currency:    pricing.Currency,
		Source:      provenance.Database,
		Sizing:      sz,
	}

	equipment := decimal.Zero
	imported := decimal.Zero
	weight := decimal.Zero
	for _, line := range lines {
		price, err := e.lookup(ctx, line.category, &out)
		if err != nil {
			return Breakdown{}, err
		}
		quantity := decimal.NewFromFloat(line.quantity)
		subtotal := decimal.NewFromFloat(price.UnitCost).Mul(quantity).Round(constants.CurrencyPlaces)
		itemWeight := decimal.NewFromFloat(WeightKgPerUnit[line.category]).Mul(quantity).Round(constants.CurrencyPlaces)
		item := LineItem{
			Name:     line.name,
			Category: line.category,
			UnitCost: price.UnitCost,
			Quantity: line.quantity,
			Unit:     line.unit,
			Subtotal: money(subtotal),
			Imported: importedCategories[line.category],
			WeightKg: money(itemWeight),
			Source:   price.Source,
		}
		out.Items = append(out.Items, item)
		equipment = equipment.Add(subtotal)
		weight = weight.Add(itemWeight)
		if item.Imported {
			imported = imported.Add(subtotal)
		}
	}

	rates := make(map[pricing.Category]decimal.Decimal, 4)
	for _, category := range []pricing.Category{pricing.BOSPct, pricing.EPCPct, pricing.TariffPct, pricing.ShippingPerKg} {
		price, err := e.lookup(ctx, category, &out)
		if err != nil {
			return Breakdown{}, err
		}
		rates[category] = decimal.NewFromFloat(price.UnitCost)
	}

	bos := rates[pricing.BOSPct].Mul(equipment).Round(constants.CurrencyPlaces)
	epc := rates[pricing.EPCPct].Mul(equipment.Add(bos)).Round(constants.CurrencyPlaces)
	tariff := rates[pricing.TariffPct].Mul(imported).Round(constants.CurrencyPlaces)
	shipping := rates[pricing.ShippingPerKg].Mul(weight).Round(constants.CurrencyPlaces)
	total := equipment.Add(bos).Add(epc).Add(tariff).Add(shipping)

	out.EquipmentSubtotal = money(equipment)
	out.ImportedSubtotal = money(imported)
	out.TotalWeightKg = money(weight)
	out.BOSPct = rates[pricing.BOSPct].InexactFloat64()
	out.BOSCost = money(bos)
	out.EPCPct = rates[pricing.EPCPct].InexactFloat64()
	out.EPCCost = money(epc)
	out.TariffPct = rates[pricing.TariffPct].InexactFloat64()
	out.TariffCost = money(tariff)
	out.ShippingPerKg = rates[pricing.ShippingPerKg].InexactFloat64()
	out.ShippingCost = money(shipping)
	out.TotalProjectCost = money(total)

	if err := out.Reconcile(); err != nil {
		e.logger.Error("cost breakdown failed reconciliation",
			zap.String("op", "cost.Estimate"),
			zap.Error(err),
		)
		return Breakdown{}, err
	}

	e.logger.Debug("estimated equipment cost",
		zap.String("op", "cost.Estimate"),
		zap.String("use_case", out.UseCaseSlug),
		zap.String("tier", string(out.ScaleTier)),
		zap.String("region", out.Region),
		zap.Float64("total", out.TotalProjectCost),
		zap.String("source", string(out.Source)),
	)
	return out, nil
}

// lookup resolves one price, recording fallbacks and stale rows on the
// breakdown. Only unrecoverable failures are returned.
func (e *Estimator) lookup(ctx context.Context, category pricing.Category, out *Breakdown) (pricing.Price, error) {
	price, err := e.table.Lookup(ctx, category, out.ScaleTier, out.Region)
	if err != nil {
		if price.Source != provenance.Fallback {
			return pricing.Price{}, fmt.Errorf("price %s: %w", category, err)
		}
		out.Fallbacks = append(out.Fallbacks, err.Error())
	}
	out.Source = provenance.Worst(out.Source, price.Source)
	if pricing.IsStale(price, e.opts.Now(), e.opts.StaleAfterMonths) {
		warning := fmt.Sprintf("price for %s/%s/%s dated %s is older than %d months",
			category, out.ScaleTier, out.Region, price.AsOf.Format(constants.MonthLayout), e.opts.StaleAfterMonths)
		out.Warnings = append(out.Warnings, warning)
		e.logger.Warn(warning, zap.String("op", "cost.Estimate"))
	}
	return price, nil
}

func lineSpecs(sz sizing.Result, cfg EquipmentConfig) ([]lineSpec, error) {
	lines := []lineSpec{
		{name: "Battery storage", category: pricing.Battery, quantity: sz.EnergyMWh * constants.KWhPerMWh, unit: "kWh"},
		{name: "Power conversion system", category: pricing.PCS, quantity: sz.PowerMW * constants.KWPerMW, unit: "kW"},
	}
	if cfg.SolarMW > 0 {
		lines = append(lines, lineSpec{name: "Solar PV", category: pricing.Solar, quantity: cfg.SolarMW * constants.KWPerMW, unit: "kWp"})
	}
	if cfg.WindMW > 0 {
		lines = append(lines, lineSpec{name: "Wind turbine", category: pricing.Wind, quantity: cfg.WindMW * constants.KWPerMW, unit: "kW"})
	}
	for _, g := range cfg.Generators {
		category, ok := generatorFuels[normalizeKey(g.Fuel)]
		if !ok {
			return nil, fmt.Errorf("%w: generator fuel %q", ErrUnknownEquipment, g.Fuel)
		}
		if g.CapacityMW == 0 {
			continue
		}
		lines = append(lines, lineSpec{
			name:     fmt.Sprintf("Generator (%s)", normalizeKey(g.Fuel)),
			category: category,
			quantity: g.CapacityMW * constants.KWPerMW,
			unit:     "kW",
		})
	}
	if cfg.IncludeGenerationRecommendation && sz.GenerationRecommendedMW != nil && *sz.GenerationRecommendedMW > 0 {
		lines = append(lines, lineSpec{
			name:     "Backup generator (recommended)",
			category: pricing.GeneratorDiesel,
			quantity: *sz.GenerationRecommendedMW * constants.KWPerMW,
			unit:     "kW",
		})
	}
	for _, c := range cfg.EVChargers {
		category, ok := chargerTypes[normalizeKey(c.Type)]
		if !ok {
			return nil, fmt.Errorf("%w: charger type %q", ErrUnknownEquipment, c.Type)
		}
		if c.Quantity == 0 {
			continue
		}
		lines = append(lines, lineSpec{
			name:     fmt.Sprintf("EV charger (%s)", normalizeKey(c.Type)),
			category: category,
			quantity: float64(c.Quantity),
			unit:     "unit",
		})
	}
	return lines, nil
}

type numericField struct {
	name  string
	value float64
}

func validate(sz sizing.Result, cfg EquipmentConfig) error {
	fields := []numericField{
		{"sizing.powerMW", sz.PowerMW},
		{"sizing.durationHours", sz.DurationHours},
		{"sizing.energyMWh", sz.EnergyMWh},
		{"solarMW", cfg.SolarMW},
		{"windMW", cfg.WindMW},
	}
	for i, g := range cfg.Generators {
		fields = append(fields, numericField{fmt.Sprintf("generators[%d].capacityMW", i), g.CapacityMW})
	}
	for i, c := range cfg.EVChargers {
		fields = append(fields, numericField{fmt.Sprintf("evChargers[%d].quantity", i), float64(c.Quantity)})
	}
	for _, f := range fields {
		if !mathutil.IsFinite(f.value) || f.value < 0 {
			return &sizing.InvalidNumericInputError{Field: f.name, Value: f.value}
		}
	}
	if !energyMatches(sz) {
		return &sizing.InvalidNumericInputError{Field: "sizing.energyMWh", Value: sz.EnergyMWh}
	}
	return nil
}

// energyMatches reports whether sz.EnergyMWh equals PowerMW x DurationHours.
func energyMatches(sz sizing.Result) bool {
	return mathutil.WithinTolerance(sz.EnergyMWh, sz.PowerMW*sz.DurationHours, constants.EnergyToleranceMWh)
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	return strings.ReplaceAll(s, " ", "-")
}
