package market

import "time"

// Timeframe identifies the bar interval of a series.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// Duration returns the bar interval. Unknown timeframes default to H1.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M1:
		return time.Minute
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case M30:
		return 30 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// PeriodsPerYear returns how many bars of this timeframe fit in a
// trading year, used to annualize per-bar return statistics.
func (tf Timeframe) PeriodsPerYear() float64 {
	const tradingHoursPerYear = 252 * 24
	return tradingHoursPerYear * float64(time.Hour) / float64(tf.Duration())
}

// Valid reports whether tf is one of the recognized timeframes.
func (tf Timeframe) Valid() bool {
	switch tf {
	case M1, M5, M15, M30, H1, H4, D1:
		return true
	}
	return false
}
