package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNonMonotonicTimestamps is returned when bar timestamps are not
// strictly increasing. It is a data integrity violation and fatal.
var ErrNonMonotonicTimestamps = errors.New("non-monotonic timestamps")

// Series is an immutable, time-ordered container of OHLCV bars for one
// symbol and timeframe. All detectors read from a Series; prefix views
// share the backing array, so handing a component a prefix makes
// look-ahead structurally impossible.
type Series struct {
	symbol    string
	timeframe Timeframe
	bars      []Bar
}

// NewSeries validates and wraps a bar slice. The input is copied so the
// caller cannot mutate the series afterwards. Timestamps must be
// strictly increasing; violations return ErrNonMonotonicTimestamps.
func NewSeries(symbol string, tf Timeframe, bars []Bar) (*Series, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: bar %d (%s) not after bar %d (%s)",
				ErrNonMonotonicTimestamps, i, bars[i].Timestamp.Format(time.RFC3339),
				i-1, bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	owned := make([]Bar, len(bars))
	copy(owned, bars)
	return &Series{symbol: symbol, timeframe: tf, bars: owned}, nil
}

// Symbol returns the instrument symbol, e.g. "EURUSD".
func (s *Series) Symbol() string { return s.symbol }

// Timeframe returns the bar interval of the series.
func (s *Series) Timeframe() Timeframe { return s.timeframe }

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Bar returns the bar at index i. Panics on out-of-range access, the
// same way a slice would.
func (s *Series) Bar(i int) Bar { return s.bars[i] }

// Last returns the most recent bar. Len must be > 0.
func (s *Series) Last() Bar { return s.bars[len(s.bars)-1] }

// Prefix returns a read-only view of the first n bars. The view shares
// the backing array; no bar beyond index n-1 is reachable through it.
func (s *Series) Prefix(n int) *Series {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	if n < 0 {
		n = 0
	}
	return &Series{symbol: s.symbol, timeframe: s.timeframe, bars: s.bars[:n]}
}

// Before returns the prefix of bars with timestamps at or before ts.
func (s *Series) Before(ts time.Time) *Series {
	n := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].Timestamp.After(ts)
	})
	return s.Prefix(n)
}

// Highs returns a copy of the high prices, oldest first.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.High
	}
	return out
}

// Lows returns a copy of the low prices, oldest first.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Low
	}
	return out
}

// Closes returns a copy of the close prices, oldest first.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Bars returns a copy of the underlying bars.
func (s *Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}
