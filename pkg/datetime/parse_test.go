package datetime

import (
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  time.Time
		expectErr bool
	}{
		{
			name:     "Month layout",
			input:    "2025-06",
			expected: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "Full date truncated",
			input:    "2025-06-17",
			expected: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "Surrounding whitespace",
			input:    " 2024-12 ",
			expected: time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "Empty",
			input:     "",
			expectErr: true,
		},
		{
			name:      "Garbage",
			input:     "June 2025",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonth(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("ParseMonth(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMonth(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("ParseMonth(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name     string
		earlier  string
		later    string
		expected int
	}{
		{"Same month", "2025-01", "2025-01", 0},
		{"Within year", "2025-01", "2025-07", 6},
		{"Across years", "2023-11", "2025-02", 15},
		{"Reversed", "2025-03", "2025-01", -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthsBetween(MustParseMonth(tt.earlier), MustParseMonth(tt.later))
			if got != tt.expected {
				t.Errorf("MonthsBetween(%s, %s) = %d, expected %d", tt.earlier, tt.later, got, tt.expected)
			}
		})
	}
}

func TestMustParseMonthPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for invalid month")
		}
	}()
	MustParseMonth("not-a-month")
}
