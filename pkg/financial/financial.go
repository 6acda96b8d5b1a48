// Package financial is the single producer of NPV, IRR, payback, ROI and
// levelized cost of storage for a BESS project.
package financial

import (
	"errors"
	"fmt"
	"math"

	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/mathutil"
)

// PaybackNever is reported as PaybackYears when the first-year cash flow
// never recovers the investment.
const PaybackNever = 999.0

// IRR search domain and bounds, in fractional rates.
const (
	irrLowerBound    = -0.5
	irrUpperBound    = 2.0
	irrMaxIterations = 200
	irrTolerance     = 1e-10
	maxLifetimeYears = 100
)

// ErrIRRNotConverged is recovered: IRRPct is nil and a warning is recorded.
var ErrIRRNotConverged = errors.New("IRR did not converge")

// InvalidInputError rejects a financial input outside its domain.
type InvalidInputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid financial input %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Input is everything Evaluate needs. Rates are percentages (8 means 8%).
type Input struct {
	NetCapex               float64 `json:"netCapex" yaml:"netCapex"`
	AnnualRevenue          float64 `json:"annualRevenue" yaml:"annualRevenue"`
	AnnualOpex             float64 `json:"annualOpex" yaml:"annualOpex"`
	DegradationRatePct     float64 `json:"degradationRatePct" yaml:"degradationRatePct"`
	PriceEscalationRatePct float64 `json:"priceEscalationRatePct" yaml:"priceEscalationRatePct"`
	DiscountRatePct        float64 `json:"discountRatePct" yaml:"discountRatePct"`
	ProjectLifetimeYears   int     `json:"projectLifetimeYears" yaml:"projectLifetimeYears"`
	// AnnualEnergyMWh is first-year delivered energy; zero leaves LCOS unset.
	AnnualEnergyMWh float64 `json:"annualEnergyMWh,omitempty" yaml:"annualEnergyMWh,omitempty"`
}

// DefaultInput carries the default lifetime assumptions with zero money.
func DefaultInput() Input {
	return Input{
		DegradationRatePct:     constants.DefaultDegradationRatePct,
		PriceEscalationRatePct: constants.DefaultEscalationRatePct,
		DiscountRatePct:        constants.DefaultDiscountRatePct,
		ProjectLifetimeYears:   constants.DefaultProjectLifetimeYears,
	}
}

// LifetimeParams are caller overrides of the lifetime assumptions. Nil
// fields keep the defaults.
type LifetimeParams struct {
	DegradationRatePct     *float64 `json:"degradationRatePct,omitempty" yaml:"degradationRatePct,omitempty"`
	PriceEscalationRatePct *float64 `json:"priceEscalationRatePct,omitempty" yaml:"priceEscalationRatePct,omitempty"`
	DiscountRatePct        *float64 `json:"discountRatePct,omitempty" yaml:"discountRatePct,omitempty"`
	ProjectLifetimeYears   *int     `json:"projectLifetimeYears,omitempty" yaml:"projectLifetimeYears,omitempty"`
}

// Resolve applies p onto defaults.
func (p LifetimeParams) Resolve(defaults Input) Input {
	in := defaults
	if p.DegradationRatePct != nil {
		in.DegradationRatePct = *p.DegradationRatePct
	}
	if p.PriceEscalationRatePct != nil {
		in.PriceEscalationRatePct = *p.PriceEscalationRatePct
	}
	if p.DiscountRatePct != nil {
		in.DiscountRatePct = *p.DiscountRatePct
	}
	if p.ProjectLifetimeYears != nil {
		in.ProjectLifetimeYears = *p.ProjectLifetimeYears
	}
	return in
}

// YearCashFlow is one year of the cash-flow series.
type YearCashFlow struct {
	Year                 int     `json:"year" yaml:"year"`
	DegradationFactor    float64 `json:"degradationFactor" yaml:"degradationFactor"`
	Revenue              float64 `json:"revenue" yaml:"revenue"`
	Opex                 float64 `json:"opex" yaml:"opex"`
	CashFlow             float64 `json:"cashFlow" yaml:"cashFlow"`
	DiscountedCashFlow   float64 `json:"discountedCashFlow" yaml:"discountedCashFlow"`
	CumulativeCashFlow   float64 `json:"cumulativeCashFlow" yaml:"cumulativeCashFlow"`
	CumulativeDiscounted float64 `json:"cumulativeDiscounted" yaml:"cumulativeDiscounted"`
}

// Result holds every metric. It is either fully populated or not returned.
type Result struct {
	PaybackYears           float64        `json:"paybackYears" yaml:"paybackYears"`
	DiscountedPaybackYears *float64       `json:"discountedPaybackYears" yaml:"discountedPaybackYears"`
	ROI10YearPct           float64        `json:"roi10YearPct" yaml:"roi10YearPct"`
	ROI25YearPct           float64        `json:"roi25YearPct" yaml:"roi25YearPct"`
	NPV                    float64        `json:"npv" yaml:"npv"`
	IRRPct                 *float64       `json:"irrPct" yaml:"irrPct"`
	IRRIterations          int            `json:"irrIterations" yaml:"irrIterations"`
	LevelizedCostOfStorage *float64       `json:"levelizedCostOfStorage" yaml:"levelizedCostOfStorage"`
	CashFlows              []YearCashFlow `json:"cashFlows" yaml:"cashFlows"`
	Warnings               []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Validate checks the domain of every field.
func (in Input) Validate() error {
	nonNegative := []struct {
		name  string
		value float64
	}{
		{"netCapex", in.NetCapex},
		{"annualRevenue", in.AnnualRevenue},
		{"annualOpex", in.AnnualOpex},
		{"annualEnergyMWh", in.AnnualEnergyMWh},
		{"degradationRatePct", in.DegradationRatePct},
		{"discountRatePct", in.DiscountRatePct},
	}
	for _, f := range nonNegative {
		if !mathutil.IsFinite(f.value) || f.value < 0 {
			return &InvalidInputError{Field: f.name, Value: f.value, Reason: "must be a finite non-negative number"}
		}
	}
	if in.DegradationRatePct >= constants.PercentageMultiplier {
		return &InvalidInputError{Field: "degradationRatePct", Value: in.DegradationRatePct, Reason: "must be below 100"}
	}
	if !mathutil.IsFinite(in.PriceEscalationRatePct) || in.PriceEscalationRatePct <= -constants.PercentageMultiplier {
		return &InvalidInputError{Field: "priceEscalationRatePct", Value: in.PriceEscalationRatePct, Reason: "must be finite and above -100"}
	}
	if in.ProjectLifetimeYears < 1 || in.ProjectLifetimeYears > maxLifetimeYears {
		return &InvalidInputError{Field: "projectLifetimeYears", Value: float64(in.ProjectLifetimeYears),
			Reason: fmt.Sprintf("must be between 1 and %d", maxLifetimeYears)}
	}
	return nil
}

// DegradationFactor is (1-d)^(year-1) for a degradation rate in percent.
func DegradationFactor(ratePct float64, year int) float64 {
	if year <= 1 {
		return 1
	}
	return math.Pow(1-mathutil.PercentToDecimal(ratePct), float64(year-1))
}

// cashFlows returns the undiscounted cash flow of each year, index 0 = year 1.
func cashFlows(in Input) []float64 {
	flows := make([]float64, in.ProjectLifetimeYears)
	escalation := 1 + mathutil.PercentToDecimal(in.PriceEscalationRatePct)
	for y := 1; y <= in.ProjectLifetimeYears; y++ {
		revenue := in.AnnualRevenue * DegradationFactor(in.DegradationRatePct, y) * math.Pow(escalation, float64(y-1))
		flows[y-1] = revenue - in.AnnualOpex
	}
	return flows
}

func npv(capex float64, flows []float64, rate float64) float64 {
	total := -capex
	discount := 1.0
	for _, cf := range flows {
		discount *= 1 + rate
		total += cf / discount
	}
	return total
}

// NPVAt evaluates the net present value of in at a discount rate in percent.
func NPVAt(in Input, ratePct float64) float64 {
	return npv(in.NetCapex, cashFlows(in), mathutil.PercentToDecimal(ratePct))
}

// irr bisects the NPV curve on the bounded domain. It returns the rate as a
// fraction and the iterations used.
func irr(capex float64, flows []float64) (float64, int, error) {
	lo, hi := irrLowerBound, irrUpperBound
	fLo, fHi := npv(capex, flows, lo), npv(capex, flows, hi)
	if !mathutil.IsFinite(fLo) || !mathutil.IsFinite(fHi) || fLo*fHi > 0 {
		return 0, 0, fmt.Errorf("%w: NPV does not change sign between %.0f%% and %.0f%%",
			ErrIRRNotConverged, irrLowerBound*constants.PercentageMultiplier, irrUpperBound*constants.PercentageMultiplier)
	}
	if fLo == 0 {
		return lo, 0, nil
	}
	if fHi == 0 {
		return hi, 0, nil
	}
	for i := 1; i <= irrMaxIterations; i++ {
		mid := lo + (hi-lo)/2
		fMid := npv(capex, flows, mid)
		if fMid == 0 || hi-lo < irrTolerance {
			return mid, i, nil
		}
		if (fMid > 0) == (fLo > 0) {
			lo, fLo = mid, fMid
		} else {
			hi = mid
		}
	}
	return 0, irrMaxIterations, fmt.Errorf("%w after %d iterations", ErrIRRNotConverged, irrMaxIterations)
}

// Evaluate computes every metric for in.
func Evaluate(in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	rate := mathutil.PercentToDecimal(in.DiscountRatePct)
	flows := cashFlows(in)
	result := Result{CashFlows: make([]YearCashFlow, 0, len(flows))}

	var (
		cumulative, cumulativeDiscounted float64
		discountedOpex, discountedEnergy float64
		sum10, sum25                     float64
	)
	discount := 1.0
	escalation := 1 + mathutil.PercentToDecimal(in.PriceEscalationRatePct)
	for i, cf := range flows {
		year := i + 1
		discount *= 1 + rate
		degradation := DegradationFactor(in.DegradationRatePct, year)
		discounted := cf / discount
		cumulative += cf
		cumulativeDiscounted += discounted
		discountedOpex += in.AnnualOpex / discount
		discountedEnergy += in.AnnualEnergyMWh * degradation / discount
		if year <= 10 {
			sum10 += cf
		}
		if year <= 25 {
			sum25 += cf
		}
		if result.DiscountedPaybackYears == nil && cumulativeDiscounted-in.NetCapex >= 0 {
			y := float64(year)
			result.DiscountedPaybackYears = &y
		}
		result.CashFlows = append(result.CashFlows, YearCashFlow{
			Year:                 year,
			DegradationFactor:    degradation,
			Revenue:              mathutil.Round(in.AnnualRevenue * degradation * math.Pow(escalation, float64(year-1))),
			Opex:                 mathutil.Round(in.AnnualOpex),
			CashFlow:             mathutil.Round(cf),
			DiscountedCashFlow:   mathutil.Round(discounted),
			CumulativeCashFlow:   mathutil.Round(cumulative - in.NetCapex),
			CumulativeDiscounted: mathutil.Round(cumulativeDiscounted - in.NetCapex),
		})
	}

	result.NPV = mathutil.Round(cumulativeDiscounted - in.NetCapex)

	switch {
	case in.NetCapex == 0:
		result.PaybackYears = 0
	case flows[0] <= 0:
		result.PaybackYears = PaybackNever
	default:
		result.PaybackYears = in.NetCapex / flows[0]
	}

	if in.NetCapex > 0 {
		result.ROI10YearPct = (sum10 - in.NetCapex) / in.NetCapex * constants.PercentageMultiplier
		result.ROI25YearPct = (sum25 - in.NetCapex) / in.NetCapex * constants.PercentageMultiplier
	} else {
		result.Warnings = append(result.Warnings, "net capex is zero; ROI and IRR are undefined")
	}

	if in.NetCapex > 0 {
		r, iterations, err := irr(in.NetCapex, flows)
		result.IRRIterations = iterations
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
		} else {
			pct := r * constants.PercentageMultiplier
			result.IRRPct = &pct
		}
	}

	if discountedEnergy > 0 {
		lcos := (in.NetCapex + discountedOpex) / discountedEnergy
		result.LevelizedCostOfStorage = &lcos
	}
	return result, nil
}

// EstimateIRR is a closed-form approximation for previews. It is never a
// substitute for Evaluate's IRR and returns nil when undefined.
func EstimateIRR(in Input) *float64 {
	if in.NetCapex <= 0 || in.ProjectLifetimeYears < 1 {
		return nil
	}
	total := 0.0
	for _, cf := range cashFlows(in) {
		total += cf
	}
	if total <= 0 {
		return nil
	}
	// Multiple-on-capex annualized over the cash-weighted midpoint of the life.
	estimate := (math.Pow(total/in.NetCapex, 2/float64(in.ProjectLifetimeYears+1)) - 1) * constants.PercentageMultiplier
	return &estimate
}
