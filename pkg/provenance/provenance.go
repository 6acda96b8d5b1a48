// Package provenance tags computed values with the confidence of their inputs.
package provenance

// Source records where a value came from.
type Source string

const (
	// Database marks values backed by a maintained template or price row.
	Database Source = "database"
	// Calculated marks values derived from built-in rules.
	Calculated Source = "calculated"
	// Fallback marks values produced from documented defaults after a lookup failed.
	Fallback Source = "fallback"
)

func (s Source) rank() int {
	switch s {
	case Database:
		return 2
	case Calculated:
		return 1
	default:
		return 0
	}
}

// Worst returns the lower-confidence of the two sources.
func Worst(a, b Source) Source {
	worst := b
	if a.rank() <= b.rank() {
		worst = a
	}
	if !worst.Valid() {
		return Fallback
	}
	return worst
}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	return s == Database || s == Calculated || s == Fallback
}
