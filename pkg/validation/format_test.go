package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/cost"
	"github.com/iwvelando/bess-engine/pkg/revenue"
	"github.com/iwvelando/bess-engine/pkg/sizing"
	"github.com/iwvelando/bess-engine/pkg/testutil"
)

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		format    string
		expectErr bool
	}{
		{constants.OutputFormatPretty, false},
		{constants.OutputFormatCSV, false},
		{constants.OutputFormatJSON, false},
		{"", true},
		{"JSON", true},
		{" json", true},
		{"yaml", true},
		{"ndjson", true},
	}

	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format)
			if !tt.expectErr {
				if err != nil {
					t.Errorf("ValidateOutputFormat(%q) unexpected error = %v", tt.format, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateOutputFormat(%q) expected error but got none", tt.format)
			}
			msg := err.Error()
			for _, supported := range []string{constants.OutputFormatPretty, constants.OutputFormatCSV, constants.OutputFormatJSON} {
				if !strings.Contains(msg, supported) {
					t.Errorf("error %q does not list %s", msg, supported)
				}
			}
			if !strings.HasSuffix(msg, "got "+tt.format) {
				t.Errorf("error %q does not name the rejected format", msg)
			}
		})
	}
}

type hotelRequest struct {
	Facility  sizing.FacilityInput `json:"facility"`
	Equipment cost.EquipmentConfig `json:"equipment"`
	Rates     revenue.TariffInput  `json:"rates"`
}

// TestHotelRequestChecks runs the checks a quote request passes through
// before it is evaluated: the output format, then the advisory warnings.
func TestHotelRequestChecks(t *testing.T) {
	tests := []struct {
		name         string
		format       string
		lifetime     int
		mutate       func(*hotelRequest)
		expectErr    bool
		wantWarnings []string
	}{
		{
			name:   "fixture as json",
			format: constants.OutputFormatJSON,
			mutate: func(*hotelRequest) {},
		},
		{
			name:     "fixture as csv over a full lifetime",
			format:   constants.OutputFormatCSV,
			lifetime: 20,
			mutate:   func(*hotelRequest) {},
		},
		{
			name:         "short lifetime as json",
			format:       constants.OutputFormatJSON,
			lifetime:     5,
			mutate:       func(*hotelRequest) {},
			wantWarnings: []string{"ROI is truncated"},
		},
		{
			name:   "solar without region",
			format: constants.OutputFormatPretty,
			mutate: func(r *hotelRequest) {
				r.Equipment.Region = ""
				r.Equipment.SolarMW = 0.5
			},
			wantWarnings: []string{"No region provided"},
		},
		{
			name:   "no rates at all",
			format: constants.OutputFormatJSON,
			mutate: func(r *hotelRequest) {
				r.Facility.ElectricityRate = 0
				r.Rates = revenue.TariffInput{}
			},
			wantWarnings: []string{"No electricity rate provided"},
		},
		{
			name:   "unreliable grid with generation",
			format: constants.OutputFormatJSON,
			mutate: func(r *hotelRequest) {
				r.Facility.GridReliability = sizing.GridUnreliable
				r.Equipment.IncludeGenerationRecommendation = true
			},
			wantWarnings: []string{"no gridCapacityMW"},
		},
		{
			name:      "unsupported format",
			format:    "xml",
			mutate:    func(*hotelRequest) {},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req hotelRequest
			if err := json.Unmarshal([]byte(testutil.HotelQuoteJSON), &req); err != nil {
				t.Fatalf("failed to decode fixture: %v", err)
			}
			tt.mutate(&req)

			err := ValidateOutputFormat(tt.format)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected format %q to be rejected", tt.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateOutputFormat(%q) unexpected error = %v", tt.format, err)
			}

			rv := RequestValidator{
				Facility:             req.Facility,
				Equipment:            req.Equipment,
				Rates:                req.Rates,
				ProjectLifetimeYears: tt.lifetime,
			}
			warnings := rv.ValidateAll()
			if len(warnings) != len(tt.wantWarnings) {
				t.Fatalf("expected %d warnings, got %d: %v", len(tt.wantWarnings), len(warnings), warnings)
			}
			for i, want := range tt.wantWarnings {
				if !strings.Contains(warnings[i], want) {
					t.Errorf("warning %d = %q, want it to mention %q", i, warnings[i], want)
				}
			}
		})
	}
}
