// Package sizing converts a facility description into a recommended BESS
// power, duration and backup-generation size.
package sizing

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/mathutil"
	"github.com/iwvelando/bess-engine/pkg/provenance"
	"github.com/iwvelando/bess-engine/pkg/usecase"
	"go.uber.org/zap"
)

// GridReliability describes the facility's utility connection.
type GridReliability string

const (
	GridReliable   GridReliability = "reliable"
	GridLimited    GridReliability = "limited"
	GridUnreliable GridReliability = "unreliable"
	GridOffGrid    GridReliability = "off-grid"
	GridMicrogrid  GridReliability = "microgrid"
)

// PeakLoadAttribute is the universal attribute carrying a measured peak
// demand in MW. A positive value replaces the scaled estimate.
const PeakLoadAttribute = "peakLoadMW"

// Errors returned by the calculator.
var (
	ErrUnknownUseCase           = errors.New("unknown use case")
	ErrMissingRequiredAttribute = errors.New("missing required attribute")
	ErrUnknownGridReliability   = errors.New("unknown grid reliability")
)

// InvalidNumericInputError rejects negative, NaN or infinite inputs.
type InvalidNumericInputError struct {
	Field string
	Value float64
	Raw   string
}

func (e *InvalidNumericInputError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("invalid numeric input %s=%q: not a number", e.Field, e.Raw)
	}
	return fmt.Sprintf("invalid numeric input %s=%v: must be a finite non-negative number", e.Field, e.Value)
}

// Attributes are the named facility values from the questionnaire. Values are
// numbers or numeric strings.
type Attributes map[string]interface{}

// Overrides replace computed values when set.
type Overrides struct {
	PowerMW       *float64 `json:"powerMW,omitempty" yaml:"powerMW,omitempty"`
	DurationHours *float64 `json:"durationHours,omitempty" yaml:"durationHours,omitempty"`
}

// FacilityInput is one facility description. Treat as a value object.
type FacilityInput struct {
	UseCaseSlug      string          `json:"useCaseSlug" yaml:"useCaseSlug"`
	Attributes       Attributes      `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Location         string          `json:"location,omitempty" yaml:"location,omitempty"`
	GridReliability  GridReliability `json:"gridReliability,omitempty" yaml:"gridReliability,omitempty"`
	GridCapacityMW   *float64        `json:"gridCapacityMW,omitempty" yaml:"gridCapacityMW,omitempty"`
	ElectricityRate  float64         `json:"electricityRate,omitempty" yaml:"electricityRate,omitempty"`
	ExistingSolarMW  float64         `json:"existingSolarMW,omitempty" yaml:"existingSolarMW,omitempty"`
	ExistingEvLoadMW float64         `json:"existingEvLoadMW,omitempty" yaml:"existingEvLoadMW,omitempty"`
	Overrides        Overrides       `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// Result is the sizing recommendation.
type Result struct {
	UseCaseSlug             string            `json:"useCaseSlug" yaml:"useCaseSlug"`
	PowerMW                 float64           `json:"powerMW" yaml:"powerMW"`
	DurationHours           float64           `json:"durationHours" yaml:"durationHours"`
	EnergyMWh               float64           `json:"energyMWh" yaml:"energyMWh"`
	BasePeakDemandMW        float64           `json:"basePeakDemandMW" yaml:"basePeakDemandMW"`
	NetPeakDemandMW         float64           `json:"netPeakDemandMW" yaml:"netPeakDemandMW"`
	GridReliability         GridReliability   `json:"gridReliability" yaml:"gridReliability"`
	DataSource              provenance.Source `json:"dataSource" yaml:"dataSource"`
	GenerationRecommendedMW *float64          `json:"generationRecommendedMW,omitempty" yaml:"generationRecommendedMW,omitempty"`
	GridShortfallMW         *float64          `json:"gridShortfallMW,omitempty" yaml:"gridShortfallMW,omitempty"`
	Warnings                []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Calculator applies use case scaling rules. It holds no mutable state.
type Calculator struct {
	logger *zap.Logger
}

// NewCalculator returns a calculator logging through logger.
func NewCalculator(logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{logger: logger}
}

// Size computes the recommendation for facility under profile.
func (c *Calculator) Size(profile usecase.UseCaseProfile, facility FacilityInput) (Result, error) {
	if profile.Slug == "" {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownUseCase, facility.UseCaseSlug)
	}
	if facility.UseCaseSlug != "" && usecase.NormalizeSlug(facility.UseCaseSlug) != profile.Slug {
		return Result{}, fmt.Errorf("%w: %s (profile %s)", ErrUnknownUseCase, facility.UseCaseSlug, profile.Slug)
	}
	grid, err := normalizeGrid(facility.GridReliability)
	if err != nil {
		return Result{}, err
	}
	if err := validateFacility(facility); err != nil {
		return Result{}, err
	}

	result := Result{
		UseCaseSlug:     profile.Slug,
		GridReliability: grid,
		DataSource:      profile.Source,
	}
	if !result.DataSource.Valid() {
		result.DataSource = provenance.Calculated
	}

	// Peak demand from a measured value, device inventory or scaling ratio.
	measured, hasMeasured, err := attributeValue(facility.Attributes, PeakLoadAttribute)
	if err != nil {
		return Result{}, err
	}
	switch {
	case hasMeasured && measured > 0:
		result.BasePeakDemandMW = measured
	case profile.IsDeviceDriven():
		peak, warnings, err := devicePeakMW(profile, facility.Attributes)
		if err != nil {
			return Result{}, err
		}
		result.BasePeakDemandMW = peak
		if len(warnings) > 0 {
			result.DataSource = provenance.Fallback
			result.Warnings = append(result.Warnings, warnings...)
		}
	default:
		peak, warning, err := ratioPeakMW(profile, facility.Attributes)
		if err != nil {
			return Result{}, err
		}
		result.BasePeakDemandMW = peak
		if warning != "" {
			result.DataSource = provenance.Fallback
			result.Warnings = append(result.Warnings, warning)
		}
	}

	// Power: floor unless overridden.
	if facility.Overrides.PowerMW != nil {
		result.PowerMW = *facility.Overrides.PowerMW
	} else {
		result.PowerMW = math.Max(constants.MinimumPowerMW, result.BasePeakDemandMW)
	}

	result.DurationHours = profile.ScalingRule.ReferenceDurationHours
	if facility.Overrides.DurationHours != nil {
		result.DurationHours = *facility.Overrides.DurationHours
	}
	result.EnergyMWh = result.PowerMW * result.DurationHours

	result.NetPeakDemandMW = math.Max(0, result.BasePeakDemandMW+facility.ExistingEvLoadMW-facility.ExistingSolarMW)

	gridCap := 0.0
	if facility.GridCapacityMW != nil {
		gridCap = *facility.GridCapacityMW
	}
	switch grid {
	case GridUnreliable, GridMicrogrid:
		gap := math.Max(0, result.NetPeakDemandMW-gridCap-result.PowerMW)
		floor := result.NetPeakDemandMW * constants.BackupGenerationFloorPct / constants.PercentageMultiplier
		generation := math.Round(math.Max(gap, floor))
		result.GenerationRecommendedMW = &generation
	case GridOffGrid:
		generation := math.Round(result.NetPeakDemandMW)
		result.GenerationRecommendedMW = &generation
	case GridLimited:
		if facility.GridCapacityMW != nil && result.NetPeakDemandMW > gridCap {
			shortfall := result.NetPeakDemandMW - gridCap
			result.GridShortfallMW = &shortfall
		}
	}

	for _, w := range result.Warnings {
		c.logger.Warn(w,
			zap.String("op", "sizing.Size"),
			zap.String("use_case", profile.Slug),
		)
	}
	c.logger.Debug("sized facility",
		zap.String("op", "sizing.Size"),
		zap.String("use_case", profile.Slug),
		zap.Float64("power_mw", result.PowerMW),
		zap.Float64("duration_h", result.DurationHours),
		zap.Float64("net_peak_mw", result.NetPeakDemandMW),
		zap.String("source", string(result.DataSource)),
	)
	return result, nil
}

func ratioPeakMW(profile usecase.UseCaseProfile, attrs Attributes) (float64, string, error) {
	rule := profile.ScalingRule
	value, ok, err := attributeValue(attrs, rule.AttributeName)
	if err != nil {
		return 0, "", err
	}
	warning := ""
	if !ok {
		value = rule.DefaultAttributeValue
		if value <= 0 {
			value = rule.ReferenceUnit
		}
		warning = fmt.Sprintf("%v: %s not provided, assuming %s", ErrMissingRequiredAttribute,
			rule.AttributeName, strconv.FormatFloat(value, 'f', -1, 64))
	}
	scale := value / rule.ReferenceUnit
	return rule.ReferencePowerMW * scale, warning, nil
}

func devicePeakMW(profile usecase.UseCaseProfile, attrs Attributes) (float64, []string, error) {
	rule := profile.ScalingRule
	totalKW := 0.0
	found := false
	for _, device := range rule.Devices {
		kw, ok := DevicePowerKW[device.DeviceType]
		if !ok {
			return 0, nil, fmt.Errorf("use case %s: unknown device type %q", profile.Slug, device.DeviceType)
		}
		quantity, present, err := attributeValue(attrs, device.Attribute)
		if err != nil {
			return 0, nil, err
		}
		if !present {
			continue
		}
		found = true
		totalKW += kw * quantity
	}
	if !found {
		names := make([]string, 0, len(rule.Devices))
		for _, d := range rule.Devices {
			names = append(names, d.Attribute)
		}
		sort.Strings(names)
		// One scale unit of the first declared device.
		first := rule.Devices[0]
		totalKW = DevicePowerKW[first.DeviceType] * rule.DefaultAttributeValue
		warning := fmt.Sprintf("%v: none of %s provided, assuming %s=%s", ErrMissingRequiredAttribute,
			strings.Join(names, ", "), first.Attribute, strconv.FormatFloat(rule.DefaultAttributeValue, 'f', -1, 64))
		return totalKW * rule.DiversityFactor / constants.KWPerMW, []string{warning}, nil
	}
	return totalKW * rule.DiversityFactor / constants.KWPerMW, nil, nil
}

// attributeValue reads a numeric attribute. Absent, nil and empty-string
// values report ok=false.
func attributeValue(attrs Attributes, name string) (float64, bool, error) {
	if name == "" || attrs == nil {
		return 0, false, nil
	}
	raw, ok := attrs[name]
	if !ok || raw == nil {
		return 0, false, nil
	}
	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case int32:
		value = float64(v)
	case uint:
		value = float64(v)
	case uint64:
		value = float64(v)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, &InvalidNumericInputError{Field: "attributes." + name, Value: math.NaN(), Raw: v}
		}
		value = f
	default:
		return 0, false, fmt.Errorf("attribute %s has unsupported type %T", name, raw)
	}
	if !mathutil.IsFinite(value) || value < 0 {
		return 0, false, &InvalidNumericInputError{Field: "attributes." + name, Value: value}
	}
	return value, true, nil
}

type numericField struct {
	name  string
	value float64
}

func validateFacility(f FacilityInput) error {
	fields := []numericField{
		{"electricityRate", f.ElectricityRate},
		{"existingSolarMW", f.ExistingSolarMW},
		{"existingEvLoadMW", f.ExistingEvLoadMW},
	}
	if f.GridCapacityMW != nil {
		fields = append(fields, numericField{"gridCapacityMW", *f.GridCapacityMW})
	}
	if f.Overrides.PowerMW != nil {
		fields = append(fields, numericField{"overrides.powerMW", *f.Overrides.PowerMW})
	}
	if f.Overrides.DurationHours != nil {
		fields = append(fields, numericField{"overrides.durationHours", *f.Overrides.DurationHours})
	}
	for _, field := range fields {
		if !mathutil.IsFinite(field.value) || field.value < 0 {
			return &InvalidNumericInputError{Field: field.name, Value: field.value}
		}
	}
	if f.Overrides.DurationHours != nil && *f.Overrides.DurationHours == 0 {
		return &InvalidNumericInputError{Field: "overrides.durationHours", Value: 0}
	}

	// Numeric attributes are checked even when the rule does not read them;
	// free-text attributes (e.g. a tier label) are left alone.
	names := make([]string, 0, len(f.Attributes))
	for name, raw := range f.Attributes {
		if _, isString := raw.(string); !isString {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if _, _, err := attributeValue(f.Attributes, name); err != nil {
			return err
		}
	}
	return nil
}

func normalizeGrid(g GridReliability) (GridReliability, error) {
	s := strings.ToLower(strings.TrimSpace(string(g)))
	s = strings.ReplaceAll(s, "_", "-")
	switch GridReliability(s) {
	case "":
		return GridReliable, nil
	case GridReliable, GridLimited, GridUnreliable, GridMicrogrid:
		return GridReliability(s), nil
	case GridOffGrid, "offgrid":
		return GridOffGrid, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGridReliability, g)
}
