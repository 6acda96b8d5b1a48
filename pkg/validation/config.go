// Package validation provides request validation utilities.
package validation

import (
	"fmt"

	"github.com/iwvelando/bess-engine/pkg/cost"
	"github.com/iwvelando/bess-engine/pkg/revenue"
	"github.com/iwvelando/bess-engine/pkg/sizing"
)

// MinimumMeaningfulLifetimeYears is the shortest analysis horizon that fills
// the 10-year ROI window.
const MinimumMeaningfulLifetimeYears = 10

// ValidateGrid checks that constrained grids carry the capacity the sizing
// rules need.
func ValidateGrid(facility sizing.FacilityInput) []string {
	var warnings []string

	switch facility.GridReliability {
	case sizing.GridLimited, sizing.GridUnreliable, sizing.GridMicrogrid:
		if facility.GridCapacityMW == nil {
			warnings = append(warnings, fmt.Sprintf("Grid '%s' has no gridCapacityMW - grid is assumed to supply nothing at peak",
				facility.GridReliability))
		}
	case sizing.GridOffGrid:
		if facility.GridCapacityMW != nil && *facility.GridCapacityMW > 0 {
			warnings = append(warnings, fmt.Sprintf("Off-grid facility declares %.2f MW of grid capacity - value is ignored",
				*facility.GridCapacityMW))
		}
	}

	return warnings
}

// ValidateRates checks that the tariff can produce arbitrage value.
func ValidateRates(rates revenue.TariffInput, facility sizing.FacilityInput) []string {
	var warnings []string

	flat := rates.ElectricityRate
	if flat == 0 {
		flat = facility.ElectricityRate
	}
	if rates.PeakRate == 0 && rates.OffPeakRate == 0 && flat == 0 {
		warnings = append(warnings, "No electricity rate provided - peak shaving and renewable offset revenue will be zero")
	}
	if rates.PeakRate > 0 && rates.PeakRate < rates.OffPeakRate {
		warnings = append(warnings, fmt.Sprintf("Peak rate below off-peak rate (%.4f < %.4f) - arbitrage spread is zero",
			rates.PeakRate, rates.OffPeakRate))
	}

	return warnings
}

// ValidateLifetime checks the analysis horizon against the ROI windows.
func ValidateLifetime(projectLifetimeYears int) []string {
	if projectLifetimeYears > 0 && projectLifetimeYears < MinimumMeaningfulLifetimeYears {
		return []string{fmt.Sprintf("Project lifetime of %d years is shorter than the %d-year ROI window - ROI is truncated",
			projectLifetimeYears, MinimumMeaningfulLifetimeYears)}
	}
	return nil
}

// RequestValidator collects the advisory checks for one quote request.
type RequestValidator struct {
	Facility             sizing.FacilityInput
	Equipment            cost.EquipmentConfig
	Rates                revenue.TariffInput
	ProjectLifetimeYears int
}

// ValidateAll validates the entire request and returns warnings
func (rv *RequestValidator) ValidateAll() []string {
	var warnings []string

	warnings = append(warnings, ValidateGrid(rv.Facility)...)
	warnings = append(warnings, ValidateRates(rv.Rates, rv.Facility)...)
	warnings = append(warnings, ValidateLifetime(rv.ProjectLifetimeYears)...)

	if rv.Equipment.Region == "" && hasImportedEquipment(rv.Equipment) {
		warnings = append(warnings, "No region provided - default tariff and shipping rates applied")
	}
	if rv.Equipment.IncludeGenerationRecommendation {
		switch rv.Facility.GridReliability {
		case "", sizing.GridReliable, sizing.GridLimited:
			warnings = append(warnings, "Generation recommendation requested on a grid that does not produce one")
		}
	}

	return warnings
}

func hasImportedEquipment(cfg cost.EquipmentConfig) bool {
	return cfg.SolarMW > 0 || len(cfg.EVChargers) > 0
}
