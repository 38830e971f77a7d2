package risk

import (
	"github.com/markcheno/go-talib"

	"github.com/smclabs/smcrun/internal/market"
)

// DefaultATRPeriod is the Wilder ATR look-back used for stop placement.
const DefaultATRPeriod = 14

// ATRStopDistance returns an ATR-based protective stop distance for the
// latest bar of the series. It is the fallback used when no order block
// anchors the stop. Series shorter than the ATR period fall back to the
// average bar range.
func ATRStopDistance(s *market.Series, period int, multiplier float64) float64 {
	if period < 1 {
		period = DefaultATRPeriod
	}
	if multiplier <= 0 {
		multiplier = 1.5
	}
	if s.Len() <= period {
		return avgBarRange(s) * multiplier
	}
	atr := talib.Atr(s.Highs(), s.Lows(), s.Closes(), period)
	latest := atr[len(atr)-1]
	if latest <= 0 {
		return avgBarRange(s) * multiplier
	}
	return latest * multiplier
}

func avgBarRange(s *market.Series) float64 {
	if s.Len() == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < s.Len(); i++ {
		sum += s.Bar(i).Range()
	}
	return sum / float64(s.Len())
}
