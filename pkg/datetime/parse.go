// Package datetime provides date and time utility functions.
package datetime

import (
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/bess-engine/pkg/constants"
)

// MonthLayout is the format used for pricing as-of dates.
const MonthLayout = constants.MonthLayout

// MustParseMonth parses a "2006-01" month and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseMonth(month string) time.Time {
	t, err := ParseMonth(month)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseMonth parses a month string. Full dates ("2006-01-02") are accepted and
// truncated to the month.
func ParseMonth(month string) (time.Time, error) {
	trimmed := strings.TrimSpace(month)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("month cannot be empty")
	}
	if t, err := time.Parse(MonthLayout, trimmed); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse month %q: %w", month, err)
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}

// MonthsBetween returns the number of whole calendar months from earlier to
// later. The result is negative when later precedes earlier.
func MonthsBetween(earlier, later time.Time) int {
	return (later.Year()-earlier.Year())*constants.MonthsPerYear + int(later.Month()) - int(earlier.Month())
}
