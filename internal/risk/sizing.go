package risk

import "math"

// Position sizing limits, in units of the base instrument.
const (
	MinPositionUnits = 1000.0
	MaxPositionUnits = 1e7
)

// PositionSize returns the number of units to trade so that losing the
// full stop distance costs riskPct percent of the current balance.
// Degenerate inputs (zero stop distance, non-positive balance) size at
// the minimum.
func PositionSize(balance, riskPct, entry, stop float64) float64 {
	stopDistance := math.Abs(entry - stop)
	if balance <= 0 || riskPct <= 0 || stopDistance <= 0 {
		return MinPositionUnits
	}
	riskAmount := balance * riskPct / 100
	units := riskAmount / stopDistance
	if units < MinPositionUnits {
		return MinPositionUnits
	}
	if units > MaxPositionUnits {
		return MaxPositionUnits
	}
	return math.Floor(units)
}
