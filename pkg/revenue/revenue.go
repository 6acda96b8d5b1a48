// Package revenue computes the independent annual value streams of a BESS.
package revenue

import (
	"fmt"
	"math"

	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/mathutil"
	"github.com/iwvelando/bess-engine/pkg/sizing"
	"github.com/iwvelando/bess-engine/pkg/usecase"
	"github.com/shopspring/decimal"
)

// Kind names a revenue stream.
type Kind string

const (
	PeakShaving     Kind = "peak-shaving"
	DemandCharge    Kind = "demand-charge"
	GridServices    Kind = "grid-services"
	BackupValue     Kind = "backup-value"
	RenewableOffset Kind = "renewable-offset"
)

// Kinds lists every stream in reporting order.
func Kinds() []Kind {
	return []Kind{PeakShaving, DemandCharge, GridServices, BackupValue, RenewableOffset}
}

// Defaults applied by TariffInput.WithDefaults.
const (
	DefaultCyclesPerYear       = 365
	DefaultRoundTripEfficiency = 0.85
	DefaultSolarCapacityFactor = 1500 // MWh per MW-year
	DefaultWindCapacityFactor  = 2600 // MWh per MW-year
)

// TariffInput carries utility and market rates. Energy rates are $/kWh,
// demand charges $/kW-month, grid services and backup value $/MW-year.
type TariffInput struct {
	PeakRate            float64 `json:"peakRate,omitempty" yaml:"peakRate,omitempty"`
	OffPeakRate         float64 `json:"offPeakRate,omitempty" yaml:"offPeakRate,omitempty"`
	DemandChargeRate    float64 `json:"demandChargeRate,omitempty" yaml:"demandChargeRate,omitempty"`
	CyclesPerYear       float64 `json:"cyclesPerYear,omitempty" yaml:"cyclesPerYear,omitempty"`
	RoundTripEfficiency float64 `json:"roundTripEfficiency,omitempty" yaml:"roundTripEfficiency,omitempty"`
	GridServicesRate    float64 `json:"gridServicesRate,omitempty" yaml:"gridServicesRate,omitempty"`
	BackupValueRate     float64 `json:"backupValueRate,omitempty" yaml:"backupValueRate,omitempty"`
	ElectricityRate     float64 `json:"electricityRate,omitempty" yaml:"electricityRate,omitempty"`
	SolarCapacityFactor float64 `json:"solarCapacityFactor,omitempty" yaml:"solarCapacityFactor,omitempty"`
	WindCapacityFactor  float64 `json:"windCapacityFactor,omitempty" yaml:"windCapacityFactor,omitempty"`
}

// WithDefaults fills zero cycle, efficiency and capacity factor fields.
func (t TariffInput) WithDefaults() TariffInput {
	if t.CyclesPerYear == 0 {
		t.CyclesPerYear = DefaultCyclesPerYear
	}
	if t.RoundTripEfficiency == 0 {
		t.RoundTripEfficiency = DefaultRoundTripEfficiency
	}
	if t.SolarCapacityFactor == 0 {
		t.SolarCapacityFactor = DefaultSolarCapacityFactor
	}
	if t.WindCapacityFactor == 0 {
		t.WindCapacityFactor = DefaultWindCapacityFactor
	}
	return t
}

// Validate rejects negative or non-finite rates and an efficiency above 1.
func (t TariffInput) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"peakRate", t.PeakRate},
		{"offPeakRate", t.OffPeakRate},
		{"demandChargeRate", t.DemandChargeRate},
		{"cyclesPerYear", t.CyclesPerYear},
		{"roundTripEfficiency", t.RoundTripEfficiency},
		{"gridServicesRate", t.GridServicesRate},
		{"backupValueRate", t.BackupValueRate},
		{"electricityRate", t.ElectricityRate},
		{"solarCapacityFactor", t.SolarCapacityFactor},
		{"windCapacityFactor", t.WindCapacityFactor},
	}
	for _, f := range fields {
		if !mathutil.IsFinite(f.value) || f.value < 0 {
			return &sizing.InvalidNumericInputError{Field: "rates." + f.name, Value: f.value}
		}
	}
	if t.RoundTripEfficiency > 1 {
		return &sizing.InvalidNumericInputError{Field: "rates.roundTripEfficiency", Value: t.RoundTripEfficiency}
	}
	return nil
}

// Renewables is the new generation priced alongside the BESS.
type Renewables struct {
	SolarMW float64 `json:"solarMW,omitempty" yaml:"solarMW,omitempty"`
	WindMW  float64 `json:"windMW,omitempty" yaml:"windMW,omitempty"`
}

// Stream is one annual value. Inactive streams carry zero.
type Stream struct {
	Kind        Kind    `json:"kind" yaml:"kind"`
	AnnualValue float64 `json:"annualValue" yaml:"annualValue"`
}

// AnnualRevenue is an immutable snapshot of all streams.
type AnnualRevenue struct {
	Streams []Stream `json:"streams" yaml:"streams"`
	Total   float64  `json:"total" yaml:"total"`
}

// Value returns the annual value of kind, zero if absent.
func (a AnnualRevenue) Value(kind Kind) float64 {
	for _, s := range a.Streams {
		if s.Kind == kind {
			return s.AnnualValue
		}
	}
	return 0
}

// Aggregate computes every stream. When no time-of-use spread is given the
// arbitrage spread is the profile's default savings share of the flat
// electricity rate.
func Aggregate(sz sizing.Result, rates TariffInput, profile usecase.UseCaseProfile, renewables Renewables) (AnnualRevenue, error) {
	rates = rates.WithDefaults()
	if err := rates.Validate(); err != nil {
		return AnnualRevenue{}, err
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"renewables.solarMW", renewables.SolarMW},
		{"renewables.windMW", renewables.WindMW},
		{"sizing.energyMWh", sz.EnergyMWh},
		{"sizing.powerMW", sz.PowerMW},
		{"sizing.netPeakDemandMW", sz.NetPeakDemandMW},
	} {
		if !mathutil.IsFinite(f.value) || f.value < 0 {
			return AnnualRevenue{}, &sizing.InvalidNumericInputError{Field: f.name, Value: f.value}
		}
	}

	sensitivity := profile.FinancialSensitivity
	demandMultiplier := sensitivity.DemandChargeMultiplier
	if demandMultiplier == 0 {
		demandMultiplier = 1
	}
	backupMultiplier := sensitivity.BackupValueMultiplier
	if backupMultiplier == 0 {
		backupMultiplier = 1
		if profile.Critical {
			backupMultiplier = 2
		}
	}

	spread := math.Max(0, rates.PeakRate-rates.OffPeakRate)
	if rates.PeakRate == 0 && rates.OffPeakRate == 0 {
		spread = mathutil.ApplyPercentage(rates.ElectricityRate, sensitivity.DefaultSavingsPct)
	}

	peakShaving := sz.EnergyMWh * rates.CyclesPerYear * spread * constants.KWhPerMWh * rates.RoundTripEfficiency
	demandCharge := sz.NetPeakDemandMW * constants.KWPerMW * constants.MonthsPerYear * rates.DemandChargeRate * demandMultiplier
	renewableMWh := renewables.SolarMW*rates.SolarCapacityFactor + renewables.WindMW*rates.WindCapacityFactor

	values := map[Kind]float64{
		PeakShaving:     peakShaving,
		DemandCharge:    demandCharge,
		GridServices:    sz.PowerMW * rates.GridServicesRate,
		BackupValue:     sz.PowerMW * rates.BackupValueRate * backupMultiplier,
		RenewableOffset: renewableMWh * constants.KWhPerMWh * rates.ElectricityRate,
	}

	out := AnnualRevenue{Streams: make([]Stream, 0, len(values))}
	total := decimal.Zero
	for _, kind := range Kinds() {
		v := mathutil.Round(values[kind])
		if !mathutil.IsFinite(v) {
			return AnnualRevenue{}, fmt.Errorf("revenue stream %s is not finite", kind)
		}
		out.Streams = append(out.Streams, Stream{Kind: kind, AnnualValue: v})
		total = total.Add(decimal.NewFromFloat(v))
	}
	out.Total = total.Round(constants.CurrencyPlaces).InexactFloat64()
	return out, nil
}

// AnnualEnergyDeliveredMWh is the first-year discharge throughput.
func AnnualEnergyDeliveredMWh(sz sizing.Result, rates TariffInput) float64 {
	rates = rates.WithDefaults()
	return sz.EnergyMWh * rates.CyclesPerYear * rates.RoundTripEfficiency
}
