// Package format renders currency and engineering quantities as display strings.
package format

import (
	"fmt"
	"math"
	"strings"
)

// Currency returns a currency string with a dollar sign and thousands separators (e.g., "-$1,234.56").
func Currency(amount float64) string {
	formatted := groupThousands(math.Abs(amount), 2)
	if amount < 0 {
		return "-$" + formatted
	}
	return "$" + formatted
}

// Power renders megawatts, switching to kilowatts below 1 MW.
func Power(mw float64) string {
	if math.Abs(mw) < 1 {
		return groupThousands(mw*1000, 1) + " kW"
	}
	return groupThousands(mw, 2) + " MW"
}

// Energy renders megawatt-hours, switching to kilowatt-hours below 1 MWh.
func Energy(mwh float64) string {
	if math.Abs(mwh) < 1 {
		return groupThousands(mwh*1000, 1) + " kWh"
	}
	return groupThousands(mwh, 2) + " MWh"
}

// Percent renders a percentage value such as 8.25 as "8.25%".
func Percent(pct float64) string {
	return fmt.Sprintf("%.2f%%", pct)
}

// Years renders a duration in years, using "never" for the payback sentinel.
func Years(years, never float64) string {
	if years >= never {
		return "never"
	}
	return fmt.Sprintf("%.2f yrs", years)
}

func groupThousands(value float64, places int) string {
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	formatted := fmt.Sprintf("%.*f", places, value)
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	if len(parts) == 2 {
		return sign + intPart + "." + parts[1]
	}
	return sign + intPart
}
