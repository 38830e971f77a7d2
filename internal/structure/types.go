package structure

import "github.com/smclabs/smcrun/internal/market"

// TrendDirection classifies the prevailing swing structure.
type TrendDirection string

const (
	TrendUp    TrendDirection = "uptrend"
	TrendDown  TrendDirection = "downtrend"
	TrendRange TrendDirection = "rangebound"
)

// SwingKind distinguishes swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a confirmed local extremum. A swing at Index is only
// confirmed Strength bars later, so structure events always lag by the
// configured swing strength.
type SwingPoint struct {
	Index    int       `json:"index"`
	Price    float64   `json:"price"`
	Kind     SwingKind `json:"kind"`
	Strength int       `json:"strength"`
}

// ConfirmedAt returns the index of the bar at which the swing becomes
// observable.
func (p SwingPoint) ConfirmedAt() int { return p.Index + p.Strength }

// BreakKind distinguishes continuation breaks from reversals.
type BreakKind string

const (
	// BreakBOS confirms trend continuation past a prior swing.
	BreakBOS BreakKind = "bos"
	// BreakCHOCH marks the first break against the prevailing trend.
	BreakCHOCH BreakKind = "choch"
)

// StructureBreak records a close beyond a confirmed swing level.
type StructureBreak struct {
	Index       int              `json:"index"`
	Kind        BreakKind        `json:"kind"`
	Direction   market.Direction `json:"direction"`
	BrokenLevel float64          `json:"broken_level"`
}

// Analysis is the full structural read of a series prefix: confirmed
// swing points, the trend they imply, and the break events in order.
type Analysis struct {
	Swings []SwingPoint     `json:"swings"`
	Trend  TrendDirection   `json:"trend"`
	Breaks []StructureBreak `json:"breaks"`
}

// SwingHighs returns the confirmed swing highs in index order.
func (a *Analysis) SwingHighs() []SwingPoint { return a.byKind(SwingHigh) }

// SwingLows returns the confirmed swing lows in index order.
func (a *Analysis) SwingLows() []SwingPoint { return a.byKind(SwingLow) }

func (a *Analysis) byKind(kind SwingKind) []SwingPoint {
	var out []SwingPoint
	for _, p := range a.Swings {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// LastBreak returns the most recent structure break, or nil.
func (a *Analysis) LastBreak() *StructureBreak {
	if len(a.Breaks) == 0 {
		return nil
	}
	return &a.Breaks[len(a.Breaks)-1]
}
