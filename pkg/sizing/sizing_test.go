package sizing

import (
	"context"
	"math"
	"testing"

	"github.com/iwvelando/bess-engine/pkg/provenance"
	"github.com/iwvelando/bess-engine/pkg/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func profile(t *testing.T, slug string) usecase.UseCaseProfile {
	t.Helper()
	p, err := usecase.Builtin().Resolve(context.Background(), slug)
	require.NoError(t, err)
	return p
}

func TestSizeHotel(t *testing.T) {
	calc := NewCalculator(nil)
	result, err := calc.Size(profile(t, "hotel"), FacilityInput{
		UseCaseSlug: "hotel",
		Attributes:  Attributes{"roomCount": 500},
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.465, result.PowerMW, 1e-9)
	assert.Equal(t, 4.0, result.DurationHours)
	assert.InDelta(t, 5.86, result.EnergyMWh, 1e-9)
	assert.Equal(t, provenance.Calculated, result.DataSource)
	assert.Equal(t, GridReliable, result.GridReliability)
	assert.Nil(t, result.GenerationRecommendedMW)
	assert.Empty(t, result.Warnings)
}

func TestSizeEVChargingFleet(t *testing.T) {
	result, err := NewCalculator(nil).Size(profile(t, "ev-charging"), FacilityInput{
		UseCaseSlug: "ev-charging",
		Attributes:  Attributes{"dcFastChargers": 50, "level2Chargers": "100"},
	})
	require.NoError(t, err)

	want := ((50*150.0)+(100*19.2))*0.70/1000
	assert.InDelta(t, want, result.PowerMW, 1e-9)
	assert.InDelta(t, 6.594, result.PowerMW, 1e-9)
	assert.Equal(t, 2.0, result.DurationHours)
}

func TestSizeDataCenterUnreliableGrid(t *testing.T) {
	result, err := NewCalculator(nil).Size(profile(t, "data-center"), FacilityInput{
		UseCaseSlug:     "data-center",
		Attributes:      Attributes{"itLoadMW": 250, "tier": "III"},
		GridReliability: GridUnreliable,
		GridCapacityMW:  ptr(50),
		Overrides:       Overrides{PowerMW: ptr(150)},
	})
	require.NoError(t, err)

	assert.Equal(t, 150.0, result.PowerMW)
	assert.Equal(t, 250.0, result.NetPeakDemandMW)
	require.NotNil(t, result.GenerationRecommendedMW)
	// gap = 250 - 50 - 150 = 50; floor = 0.30 * 250 = 75
	assert.Equal(t, 75.0, *result.GenerationRecommendedMW)
}

func TestSizeGenerationGapDominates(t *testing.T) {
	result, err := NewCalculator(nil).Size(profile(t, "data-center"), FacilityInput{
		Attributes:      Attributes{"itLoadMW": 250},
		GridReliability: "Unreliable",
		Overrides:       Overrides{PowerMW: ptr(50)},
	})
	require.NoError(t, err)
	require.NotNil(t, result.GenerationRecommendedMW)
	assert.Equal(t, 200.0, *result.GenerationRecommendedMW)
}

func TestSizeGridVariants(t *testing.T) {
	hotel := profile(t, "hotel")
	calc := NewCalculator(nil)

	offGrid, err := calc.Size(hotel, FacilityInput{Attributes: Attributes{"roomCount": 1000}, GridReliability: "off_grid"})
	require.NoError(t, err)
	require.NotNil(t, offGrid.GenerationRecommendedMW)
	assert.Equal(t, 3.0, *offGrid.GenerationRecommendedMW)

	microgrid, err := calc.Size(hotel, FacilityInput{Attributes: Attributes{"roomCount": 1000}, GridReliability: GridMicrogrid})
	require.NoError(t, err)
	require.NotNil(t, microgrid.GenerationRecommendedMW)
	assert.Equal(t, 1.0, *microgrid.GenerationRecommendedMW)

	limited, err := calc.Size(hotel, FacilityInput{Attributes: Attributes{"roomCount": 1000}, GridReliability: GridLimited, GridCapacityMW: ptr(2)})
	require.NoError(t, err)
	require.NotNil(t, limited.GridShortfallMW)
	assert.InDelta(t, 0.93, *limited.GridShortfallMW, 1e-9)
	assert.Nil(t, limited.GenerationRecommendedMW)

	_, err = calc.Size(hotel, FacilityInput{GridReliability: "sometimes"})
	assert.ErrorIs(t, err, ErrUnknownGridReliability)
}

func TestSizeMissingAttributeFallsBack(t *testing.T) {
	result, err := NewCalculator(nil).Size(profile(t, "office"), FacilityInput{UseCaseSlug: "office"})
	require.NoError(t, err)

	assert.Equal(t, provenance.Fallback, result.DataSource)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "squareFootage")
	assert.Equal(t, 0.5, result.PowerMW)
	assert.Greater(t, result.BasePeakDemandMW, 0.0)

	devices, err := NewCalculator(nil).Size(profile(t, "ev-charging"), FacilityInput{})
	require.NoError(t, err)
	assert.Equal(t, provenance.Fallback, devices.DataSource)
	assert.Greater(t, devices.BasePeakDemandMW, 0.0)
}

func TestSizePeakLoadOverridesScaling(t *testing.T) {
	result, err := NewCalculator(nil).Size(profile(t, "hotel"), FacilityInput{
		Attributes: Attributes{"roomCount": 500, PeakLoadAttribute: 3.2},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.2, result.PowerMW)
	assert.Empty(t, result.Warnings)
}

func TestSizeNetPeakDemandFloorsAtZero(t *testing.T) {
	result, err := NewCalculator(nil).Size(profile(t, "hotel"), FacilityInput{
		Attributes:       Attributes{"roomCount": 100},
		ExistingSolarMW:  5,
		ExistingEvLoadMW: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.NetPeakDemandMW)
}

func TestSizeOverrides(t *testing.T) {
	result, err := NewCalculator(nil).Size(profile(t, "hotel"), FacilityInput{
		Attributes: Attributes{"roomCount": 10},
		Overrides:  Overrides{PowerMW: ptr(0.2), DurationHours: ptr(6)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.2, result.PowerMW)
	assert.Equal(t, 6.0, result.DurationHours)
	assert.InDelta(t, 1.2, result.EnergyMWh, 1e-12)
}

func TestSizeInvariants(t *testing.T) {
	calc := NewCalculator(nil)
	catalog := usecase.Builtin()
	slugs, err := catalog.Slugs(context.Background())
	require.NoError(t, err)

	values := []interface{}{0, 1, 7.5, 120, "2500", 1e6}
	for _, slug := range slugs {
		p := profile(t, slug)
		for _, v := range values {
			attrs := Attributes{}
			if p.IsDeviceDriven() {
				for _, d := range p.ScalingRule.Devices {
					attrs[d.Attribute] = v
				}
			} else {
				attrs[p.ScalingRule.AttributeName] = v
			}
			result, err := calc.Size(p, FacilityInput{Attributes: attrs})
			require.NoError(t, err, "%s %v", slug, v)
			assert.GreaterOrEqual(t, result.PowerMW, 0.5, "%s %v", slug, v)
			assert.Equal(t, result.PowerMW*result.DurationHours, result.EnergyMWh, "%s %v", slug, v)
		}
	}
}

func TestSizeRejectsInvalidInput(t *testing.T) {
	hotel := profile(t, "hotel")
	tests := []struct {
		name     string
		facility FacilityInput
		field    string
	}{
		{"negative attribute", FacilityInput{Attributes: Attributes{"roomCount": -5}}, "attributes.roomCount"},
		{"NaN attribute", FacilityInput{Attributes: Attributes{"roomCount": math.NaN()}}, "attributes.roomCount"},
		{"non-numeric attribute", FacilityInput{Attributes: Attributes{"roomCount": "lots"}}, "attributes.roomCount"},
		{"negative unrelated attribute", FacilityInput{Attributes: Attributes{"roomCount": 10, "floors": -1}}, "attributes.floors"},
		{"infinite rate", FacilityInput{ElectricityRate: math.Inf(1)}, "electricityRate"},
		{"negative solar", FacilityInput{ExistingSolarMW: -1}, "existingSolarMW"},
		{"negative grid capacity", FacilityInput{GridCapacityMW: ptr(-2)}, "gridCapacityMW"},
		{"zero duration override", FacilityInput{Overrides: Overrides{DurationHours: ptr(0)}}, "overrides.durationHours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCalculator(nil).Size(hotel, tt.facility)
			var invalid *InvalidNumericInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestSizeUnknownUseCase(t *testing.T) {
	_, err := NewCalculator(nil).Size(usecase.UseCaseProfile{}, FacilityInput{UseCaseSlug: "spaceport"})
	assert.ErrorIs(t, err, ErrUnknownUseCase)

	_, err = NewCalculator(nil).Size(profile(t, "hotel"), FacilityInput{UseCaseSlug: "office"})
	assert.ErrorIs(t, err, ErrUnknownUseCase)
}

func TestDeviceTableCoversBuiltinCatalog(t *testing.T) {
	catalog := usecase.Builtin()
	slugs, err := catalog.Slugs(context.Background())
	require.NoError(t, err)
	for _, slug := range slugs {
		p := profile(t, slug)
		for _, d := range p.ScalingRule.Devices {
			_, ok := DevicePowerKW[d.DeviceType]
			assert.True(t, ok, "%s references unknown device %s", slug, d.DeviceType)
		}
	}
}
