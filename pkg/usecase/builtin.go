package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/iwvelando/bess-engine/pkg/provenance"
)

// MapCatalog is an in-memory catalog keyed by normalized slug.
type MapCatalog struct {
	profiles map[string]UseCaseProfile
}

// NewMapCatalog validates the profiles and indexes them by slug. Every profile
// is tagged with source.
func NewMapCatalog(profiles []UseCaseProfile, source provenance.Source) (*MapCatalog, error) {
	index := make(map[string]UseCaseProfile, len(profiles))
	for _, p := range profiles {
		p = p.withDefaults()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[p.Slug]; dup {
			return nil, fmt.Errorf("duplicate use case slug %s", p.Slug)
		}
		p.Source = source
		index[p.Slug] = p
	}
	return &MapCatalog{profiles: index}, nil
}

// Resolve returns the profile for slug or ErrNotFound.
func (c *MapCatalog) Resolve(_ context.Context, slug string) (UseCaseProfile, error) {
	p, ok := c.profiles[NormalizeSlug(slug)]
	if !ok {
		return UseCaseProfile{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	return p, nil
}

// Slugs lists all slugs in sorted order.
func (c *MapCatalog) Slugs(context.Context) ([]string, error) {
	slugs := make([]string, 0, len(c.profiles))
	for slug := range c.profiles {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs, nil
}

// Builtin returns the catalog compiled into the binary. Reference powers are
// peak demand per reference unit, e.g. 2.93 kW per hotel room.
func Builtin() *MapCatalog {
	catalog, err := NewMapCatalog(builtinProfiles, provenance.Calculated)
	if err != nil {
		panic(fmt.Sprintf("invalid builtin use case catalog: %v", err))
	}
	return catalog
}

var builtinProfiles = []UseCaseProfile{
	{
		Slug: "hotel", Name: "Hotel", Category: "hospitality",
		ScalingRule:          ScalingRule{AttributeName: "roomCount", ReferenceUnit: 1, ReferencePowerMW: 0.00293, ReferenceDurationHours: 4},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.0, DefaultSavingsPct: 25},
	},
	{
		Slug: "office", Name: "Office Building", Category: "commercial",
		ScalingRule:          ScalingRule{AttributeName: "squareFootage", ReferenceUnit: 1000, ReferencePowerMW: 0.006, ReferenceDurationHours: 4},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.0, DefaultSavingsPct: 22},
	},
	{
		Slug: "hospital", Name: "Hospital", Category: "healthcare", Critical: true,
		ScalingRule:          ScalingRule{AttributeName: "bedCount", ReferenceUnit: 1, ReferencePowerMW: 0.01, ReferenceDurationHours: 8},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.2, DefaultSavingsPct: 20},
	},
	{
		Slug: "manufacturing", Name: "Manufacturing Plant", Category: "industrial",
		ScalingRule:          ScalingRule{AttributeName: "squareFootage", ReferenceUnit: 1000, ReferencePowerMW: 0.015, ReferenceDurationHours: 4},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.3, DefaultSavingsPct: 28},
	},
	{
		Slug: "retail", Name: "Retail Store", Category: "commercial",
		ScalingRule:          ScalingRule{AttributeName: "squareFootage", ReferenceUnit: 1000, ReferencePowerMW: 0.008, ReferenceDurationHours: 4},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.0, DefaultSavingsPct: 20},
	},
	{
		Slug: "warehouse", Name: "Warehouse & Logistics", Category: "industrial",
		ScalingRule:          ScalingRule{AttributeName: "squareFootage", ReferenceUnit: 1000, ReferencePowerMW: 0.004, ReferenceDurationHours: 4},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.1, DefaultSavingsPct: 24},
	},
	{
		Slug: "car-wash", Name: "Car Wash", Category: "commercial",
		ScalingRule:          ScalingRule{AttributeName: "bayCount", ReferenceUnit: 1, ReferencePowerMW: 0.05, ReferenceDurationHours: 2},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.4, DefaultSavingsPct: 30},
	},
	{
		Slug: "college", Name: "College & University", Category: "education",
		ScalingRule:          ScalingRule{AttributeName: "studentCount", ReferenceUnit: 1, ReferencePowerMW: 0.0015, ReferenceDurationHours: 4},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.0, DefaultSavingsPct: 22},
	},
	{
		Slug: "apartment", Name: "Apartment Complex", Category: "residential",
		ScalingRule:          ScalingRule{AttributeName: "unitCount", ReferenceUnit: 1, ReferencePowerMW: 0.0025, ReferenceDurationHours: 4},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 0.9, DefaultSavingsPct: 18},
	},
	{
		Slug: "casino", Name: "Casino & Gaming", Category: "hospitality",
		ScalingRule:          ScalingRule{AttributeName: "gamingFloorSqFt", ReferenceUnit: 1000, ReferencePowerMW: 0.018, ReferenceDurationHours: 4},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.2, DefaultSavingsPct: 25},
	},
	{
		Slug: "airport", Name: "Airport", Category: "transportation", Critical: true,
		ScalingRule:          ScalingRule{AttributeName: "annualPassengersMillions", ReferenceUnit: 1, ReferencePowerMW: 1.5, ReferenceDurationHours: 6},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.2, DefaultSavingsPct: 20},
	},
	{
		Slug: "cold-storage", Name: "Cold Storage", Category: "industrial",
		ScalingRule:          ScalingRule{AttributeName: "squareFootage", ReferenceUnit: 1000, ReferencePowerMW: 0.025, ReferenceDurationHours: 6},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.3, DefaultSavingsPct: 27},
	},
	{
		Slug: "agriculture", Name: "Agricultural Operation", Category: "agriculture",
		ScalingRule:          ScalingRule{AttributeName: "acreage", ReferenceUnit: 100, ReferencePowerMW: 0.05, ReferenceDurationHours: 4},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.0, DefaultSavingsPct: 20},
	},
	{
		Slug: "data-center", Name: "Data Center", Category: "technology", Critical: true,
		ScalingRule: ScalingRule{
			Mode:                   ModeDevices,
			ReferenceDurationHours: 4,
			Devices: []DeviceRule{
				{Attribute: "itLoadKW", DeviceType: "it-load-kw"},
				{Attribute: "itLoadMW", DeviceType: "it-load-mw"},
			},
			DiversityFactor: 1.0,
		},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.2, DefaultSavingsPct: 18},
	},
	{
		Slug: "ev-charging", Name: "EV Charging Hub", Category: "transportation",
		ScalingRule: ScalingRule{
			Mode:                   ModeDevices,
			ReferenceDurationHours: 2,
			Devices: []DeviceRule{
				{Attribute: "level2Chargers", DeviceType: "level2"},
				{Attribute: "dcFastChargers", DeviceType: "dcfast-150"},
				{Attribute: "hpcChargers", DeviceType: "dcfast-350"},
			},
			DiversityFactor: 0.70,
		},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.5, DefaultSavingsPct: 35},
	},
	{
		Slug: "microgrid", Name: "Microgrid", Category: "energy",
		ScalingRule: ScalingRule{
			Mode:                   ModeDevices,
			ReferenceDurationHours: 4,
			Devices: []DeviceRule{
				{Attribute: "siteLoadKW", DeviceType: "site-load-kw"},
			},
			DiversityFactor: 1.0,
		},
		FinancialSensitivity: FinancialSensitivity{DemandChargeMultiplier: 1.0, DefaultSavingsPct: 25},
	},
}
