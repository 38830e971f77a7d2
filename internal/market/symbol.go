package market

import "strings"

// JPYQuoted reports whether the symbol is quoted in Japanese yen.
// JPY-quoted pairs use a 0.01 pip and need wider protective buffers.
func JPYQuoted(symbol string) bool {
	return strings.HasSuffix(strings.ToUpper(symbol), "JPY")
}

// PipSize returns the price increment of one pip for the symbol.
func PipSize(symbol string) float64 {
	if JPYQuoted(symbol) {
		return 0.01
	}
	return 0.0001
}

// StopBufferPips returns the protective stop buffer, in pips, applied
// beyond an order block extreme when placing a stop loss.
func StopBufferPips(symbol string) float64 {
	if JPYQuoted(symbol) {
		return 8.0
	}
	return 5.0
}

// ToPips converts a price distance to pips for the symbol.
func ToPips(symbol string, distance float64) float64 {
	return distance / PipSize(symbol)
}
