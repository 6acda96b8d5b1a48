// Package testutil provides common fixtures for testing.
package testutil

import (
	"github.com/iwvelando/bess-engine/pkg/cost"
	"github.com/iwvelando/bess-engine/pkg/pricing"
	"github.com/iwvelando/bess-engine/pkg/revenue"
	"github.com/iwvelando/bess-engine/pkg/sizing"
)

// HotelQuoteJSON is a 500-room US hotel on a reliable grid.
const HotelQuoteJSON = `{
  "facility": {
    "useCaseSlug": "hotel",
    "attributes": {"roomCount": 500},
    "gridReliability": "reliable",
    "electricityRate": 0.15
  },
  "equipment": {"region": "us"},
  "rates": {"peakRate": 0.25, "offPeakRate": 0.10, "demandChargeRate": 15}
}`

// HotelQuoteYAML is HotelQuoteJSON as an uploadable request file.
const HotelQuoteYAML = `facility:
  useCaseSlug: hotel
  attributes:
    roomCount: 500
  gridReliability: reliable
  electricityRate: 0.15
equipment:
  region: us
rates:
  peakRate: 0.25
  offPeakRate: 0.10
  demandChargeRate: 15
`

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}

// HotelFacility is the facility in HotelQuoteJSON.
func HotelFacility() sizing.FacilityInput {
	return sizing.FacilityInput{
		UseCaseSlug:     "hotel",
		Attributes:      sizing.Attributes{"roomCount": 500},
		GridReliability: sizing.GridReliable,
		ElectricityRate: 0.15,
	}
}

// HotelRates are the tariff inputs in HotelQuoteJSON.
func HotelRates() revenue.TariffInput {
	return revenue.TariffInput{PeakRate: 0.25, OffPeakRate: 0.10, DemandChargeRate: 15, ElectricityRate: 0.15}
}

// FindLineItem finds the first line item of category.
// Returns a pointer to the item if found, nil otherwise.
func FindLineItem(items []cost.LineItem, category pricing.Category) *cost.LineItem {
	for i := range items {
		if items[i].Category == category {
			return &items[i]
		}
	}
	return nil
}
