package mathutil

import (
	"math"
	"testing"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"Round up at midpoint", 1.235, 1.24},
		{"Round down below midpoint", 1.234, 1.23},
		{"No rounding needed", 1.23, 1.23},
		{"Large number", 12345.678, 12345.68},
		{"Negative number round down", -1.234, -1.23},
		{"Zero", 0.0, 0.0},
		{"Very small positive", 0.001, 0.00},
		{"Nearly two cents", 0.019, 0.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Round(tt.input)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("Round(%v) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRoundTo(t *testing.T) {
	if got := RoundTo(74.96, 1); got != 75.0 {
		t.Errorf("RoundTo(74.96, 1) = %v, expected 75", got)
	}
	if got := RoundTo(1.46549, 3); got != 1.465 {
		t.Errorf("RoundTo(1.46549, 3) = %v, expected 1.465", got)
	}
}

func TestIsFinite(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected bool
	}{
		{"Regular", 12.5, true},
		{"Zero", 0, true},
		{"NaN", math.NaN(), false},
		{"Positive infinity", math.Inf(1), false},
		{"Negative infinity", math.Inf(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFinite(tt.input); got != tt.expected {
				t.Errorf("IsFinite(%v) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPercentHelpers(t *testing.T) {
	if got := PercentToDecimal(8); math.Abs(got-0.08) > 1e-12 {
		t.Errorf("PercentToDecimal(8) = %v, expected 0.08", got)
	}
	if got := ApplyPercentage(1000, 12); math.Abs(got-120) > 1e-9 {
		t.Errorf("ApplyPercentage(1000, 12) = %v, expected 120", got)
	}
	if !WithinTolerance(1.004, 1.0, 0.01) {
		t.Error("expected values within tolerance")
	}
	if IsZero(0.02) {
		t.Error("0.02 should not be treated as zero")
	}
	if !IsPositive(0.02) {
		t.Error("0.02 should be positive")
	}
}
