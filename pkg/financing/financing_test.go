package financing

import (
	"math"
	"testing"
)

func TestCalculateMonthlyPayment(t *testing.T) {
	tests := []struct {
		name               string
		principal          float64
		annualInterestRate float64
		termMonths         int
		expectedRange      []float64 // [min, max] expected range
	}{
		{
			name:               "10-year project loan",
			principal:          2000000,
			annualInterestRate: 6.0,
			termMonths:         120,
			expectedRange:      []float64{22200, 22210}, // Around $22,204
		},
		{
			name:               "Zero interest loan",
			principal:          12000,
			annualInterestRate: 0.0,
			termMonths:         60,
			expectedRange:      []float64{200, 200},
		},
		{
			name:               "No principal",
			principal:          0,
			annualInterestRate: 5.0,
			termMonths:         60,
			expectedRange:      []float64{0, 0},
		},
		{
			name:               "No term",
			principal:          1000,
			annualInterestRate: 5.0,
			termMonths:         0,
			expectedRange:      []float64{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateMonthlyPayment(tt.principal, tt.annualInterestRate, tt.termMonths)

			if result < tt.expectedRange[0] || result > tt.expectedRange[1] {
				t.Errorf("CalculateMonthlyPayment() = %.2f, expected range [%.2f, %.2f]",
					result, tt.expectedRange[0], tt.expectedRange[1])
			}
		})
	}
}

func TestCalculateInterestPayment(t *testing.T) {
	tests := []struct {
		name               string
		remainingPrincipal float64
		annualInterestRate float64
		expected           float64
	}{
		{
			name:               "Standard interest",
			remainingPrincipal: 200000,
			annualInterestRate: 6.0,
			expected:           1000.0, // 200000 * 0.06 / 12
		},
		{
			name:               "Zero interest",
			remainingPrincipal: 10000,
			annualInterestRate: 0.0,
			expected:           0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateInterestPayment(tt.remainingPrincipal, tt.annualInterestRate)

			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("CalculateInterestPayment() = %.2f, expected %.2f", result, tt.expected)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	schedule, err := Build(4000000, Terms{DebtPct: 50, InterestRatePct: 6, TermYears: 10})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if schedule.Principal != 2000000 || schedule.Equity != 2000000 {
		t.Errorf("Build() principal/equity = %.2f/%.2f, expected 2000000/2000000", schedule.Principal, schedule.Equity)
	}
	if len(schedule.Years) != 10 {
		t.Fatalf("Build() produced %d years, expected 10", len(schedule.Years))
	}
	last := schedule.Years[len(schedule.Years)-1]
	if last.RemainingPrincipal != 0 {
		t.Errorf("final remaining principal = %.2f, expected 0", last.RemainingPrincipal)
	}

	principalPaid := 0.0
	for _, y := range schedule.Years {
		principalPaid += y.Principal
	}
	if math.Abs(principalPaid-schedule.Principal) > 0.05 {
		t.Errorf("principal repaid = %.2f, expected %.2f", principalPaid, schedule.Principal)
	}
	if schedule.TotalInterest <= 0 || schedule.TotalInterest > schedule.Principal {
		t.Errorf("unexpected total interest %.2f", schedule.TotalInterest)
	}
	if math.Abs(schedule.AnnualDebtService-schedule.MonthlyPayment*12) > 0.12 {
		t.Errorf("annual debt service %.2f inconsistent with monthly %.2f", schedule.AnnualDebtService, schedule.MonthlyPayment)
	}
}

func TestBuildAllEquity(t *testing.T) {
	schedule, err := Build(1000000, Terms{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if schedule.Principal != 0 || schedule.Equity != 1000000 || len(schedule.Years) != 0 {
		t.Errorf("unexpected all-equity schedule %+v", schedule)
	}
}

func TestBuildRejectsInvalidTerms(t *testing.T) {
	tests := []struct {
		name  string
		capex float64
		terms Terms
	}{
		{"debt above 100", 1000, Terms{DebtPct: 120, TermYears: 5}},
		{"negative rate", 1000, Terms{DebtPct: 50, InterestRatePct: -1, TermYears: 5}},
		{"missing term", 1000, Terms{DebtPct: 50, InterestRatePct: 5}},
		{"negative capex", -1, Terms{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(tt.capex, tt.terms); err == nil {
				t.Errorf("Build() expected error")
			}
		})
	}
}
