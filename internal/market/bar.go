package market

import (
	"math"
	"time"
)

// Direction labels the side of the market a structure or move belongs to.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Opposite returns the opposing direction.
func (d Direction) Opposite() Direction {
	if d == Bullish {
		return Bearish
	}
	return Bullish
}

// Bar is a single OHLCV price bar. Bars are immutable once ingested.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the bar closed below its open.
func (b Bar) Bearish() bool { return b.Close < b.Open }

// Body returns the absolute open-to-close distance.
func (b Bar) Body() float64 { return math.Abs(b.Close - b.Open) }

// Range returns the high-to-low distance.
func (b Bar) Range() float64 { return b.High - b.Low }

// Direction returns Bullish for an up-close bar, Bearish otherwise.
// Doji bars (open == close) count as bearish so that displacement
// origins are never attributed to a flat bar.
func (b Bar) Direction() Direction {
	if b.Bullish() {
		return Bullish
	}
	return Bearish
}
