// Package financing provides informational debt-service figures for a
// project's net capital cost. It never alters the canonical financial metrics.
package financing

import (
	"fmt"
	"math"

	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/mathutil"
)

// Terms describe the debt portion of a project.
type Terms struct {
	DebtPct         float64 `json:"debtPct" yaml:"debtPct"`
	InterestRatePct float64 `json:"interestRatePct" yaml:"interestRatePct"`
	TermYears       int     `json:"termYears" yaml:"termYears"`
}

// Payment holds the values for one year of debt service.
type Payment struct {
	Year               int     `json:"year" yaml:"year"`
	Payment            float64 `json:"payment" yaml:"payment"`
	Principal          float64 `json:"principal" yaml:"principal"`
	Interest           float64 `json:"interest" yaml:"interest"`
	RemainingPrincipal float64 `json:"remainingPrincipal" yaml:"remainingPrincipal"`
}

// Schedule summarizes a fully amortizing loan.
type Schedule struct {
	Principal         float64   `json:"principal" yaml:"principal"`
	Equity            float64   `json:"equity" yaml:"equity"`
	MonthlyPayment    float64   `json:"monthlyPayment" yaml:"monthlyPayment"`
	AnnualDebtService float64   `json:"annualDebtService" yaml:"annualDebtService"`
	TotalInterest     float64   `json:"totalInterest" yaml:"totalInterest"`
	Years             []Payment `json:"years,omitempty" yaml:"years,omitempty"`
}

// Validate checks the terms.
func (t Terms) Validate() error {
	if !mathutil.IsFinite(t.DebtPct) || t.DebtPct < 0 || t.DebtPct > constants.PercentageMultiplier {
		return fmt.Errorf("debtPct must be between 0 and 100, got %v", t.DebtPct)
	}
	if !mathutil.IsFinite(t.InterestRatePct) || t.InterestRatePct < 0 {
		return fmt.Errorf("interestRatePct cannot be negative, got %v", t.InterestRatePct)
	}
	if t.DebtPct > 0 && t.TermYears <= 0 {
		return fmt.Errorf("termYears must be positive when debt is used")
	}
	return nil
}

// CalculateMonthlyPayment calculates the monthly payment for a loan using the standard amortization formula.
func CalculateMonthlyPayment(principal, annualInterestRate float64, termMonths int) float64 {
	if termMonths <= 0 {
		return 0
	}
	if annualInterestRate == 0 {
		// For zero interest, simply divide the principal by term
		return principal / float64(termMonths)
	}

	periodicInterestRate := annualInterestRate / (constants.PercentageMultiplier * constants.MonthsPerYear)
	power := math.Pow((1.00 + periodicInterestRate), float64(termMonths))
	discountFactor := (power - 1.00) / power
	return principal * periodicInterestRate / discountFactor
}

// CalculateInterestPayment calculates the interest portion of a payment.
func CalculateInterestPayment(remainingPrincipal, annualInterestRate float64) float64 {
	return remainingPrincipal * annualInterestRate / (constants.PercentageMultiplier * constants.MonthsPerYear)
}

// Build amortizes DebtPct of netCapex monthly and rolls the payments up by
// year. Zero debt yields an all-equity schedule.
func Build(netCapex float64, terms Terms) (Schedule, error) {
	if err := terms.Validate(); err != nil {
		return Schedule{}, err
	}
	if !mathutil.IsFinite(netCapex) || netCapex < 0 {
		return Schedule{}, fmt.Errorf("net capex must be a finite non-negative number, got %v", netCapex)
	}

	principal := mathutil.Round(mathutil.ApplyPercentage(netCapex, terms.DebtPct))
	schedule := Schedule{
		Principal: principal,
		Equity:    mathutil.Round(netCapex - principal),
	}
	if principal == 0 {
		return schedule, nil
	}

	termMonths := terms.TermYears * constants.MonthsPerYear
	monthly := CalculateMonthlyPayment(principal, terms.InterestRatePct, termMonths)
	schedule.MonthlyPayment = mathutil.Round(monthly)
	schedule.AnnualDebtService = mathutil.Round(monthly * constants.MonthsPerYear)

	remaining := principal
	var year Payment
	for month := 1; month <= termMonths; month++ {
		interest := CalculateInterestPayment(remaining, terms.InterestRatePct)
		principalPaid := monthly - interest
		if month == termMonths {
			// Absorb rounding drift on the final payment.
			principalPaid = remaining
		}
		remaining -= principalPaid

		year.Payment += principalPaid + interest
		year.Principal += principalPaid
		year.Interest += interest
		schedule.TotalInterest += interest

		if month%constants.MonthsPerYear == 0 {
			year.Year = month / constants.MonthsPerYear
			year.Payment = mathutil.Round(year.Payment)
			year.Principal = mathutil.Round(year.Principal)
			year.Interest = mathutil.Round(year.Interest)
			year.RemainingPrincipal = mathutil.Round(math.Max(0, remaining))
			schedule.Years = append(schedule.Years, year)
			year = Payment{}
		}
	}
	schedule.TotalInterest = mathutil.Round(schedule.TotalInterest)
	return schedule, nil
}
