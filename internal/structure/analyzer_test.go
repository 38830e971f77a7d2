package structure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smclabs/smcrun/internal/market"
)

func seriesFromCloses(t *testing.T, closes []float64) *market.Series {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + 0.0005,
			Low:       c - 0.0005,
			Close:     c,
			Volume:    1000,
		}
	}
	s, err := market.NewSeries("EURUSD", market.H1, bars)
	require.NoError(t, err)
	return s
}

// zigzag produces closes that rise and fall in legs so strict extrema
// exist under a symmetric window.
func zigzag(levels []float64, legLen int) []float64 {
	var closes []float64
	for i := 0; i < len(levels)-1; i++ {
		step := (levels[i+1] - levels[i]) / float64(legLen)
		for j := 0; j < legLen; j++ {
			closes = append(closes, levels[i]+step*float64(j))
		}
	}
	closes = append(closes, levels[len(levels)-1])
	return closes
}

func TestSwingPoints_StrictExtremum(t *testing.T) {
	// One clear peak at index 5 and trough at index 10.
	closes := zigzag([]float64{1.1000, 1.1050, 1.0950, 1.1030}, 5)
	s := seriesFromCloses(t, closes)

	a := NewAnalyzer(3)
	swings := a.SwingPoints(s)
	require.NotEmpty(t, swings)

	var high, low *SwingPoint
	for i := range swings {
		switch swings[i].Kind {
		case SwingHigh:
			if high == nil {
				high = &swings[i]
			}
		case SwingLow:
			if low == nil {
				low = &swings[i]
			}
		}
	}
	require.NotNil(t, high)
	require.NotNil(t, low)
	assert.Equal(t, 5, high.Index)
	assert.Equal(t, 10, low.Index)
	assert.Equal(t, s.Bar(5).High, high.Price)
	assert.Equal(t, s.Bar(10).Low, low.Price)
}

func TestSwingPoints_ConfirmationLag(t *testing.T) {
	closes := zigzag([]float64{1.1000, 1.1050, 1.0950, 1.1030, 1.0900}, 5)
	s := seriesFromCloses(t, closes)

	a := NewAnalyzer(3)
	for _, p := range a.SwingPoints(s) {
		assert.LessOrEqual(t, p.ConfirmedAt(), s.Len()-1,
			"a swing must be confirmable within the series that reported it")
		assert.Equal(t, p.Index+a.Strength(), p.ConfirmedAt())
	}
}

func TestSwingPoints_PrefixAgreement(t *testing.T) {
	closes := zigzag([]float64{1.1000, 1.1050, 1.0950, 1.1030, 1.0900, 1.1010}, 5)
	s := seriesFromCloses(t, closes)
	a := NewAnalyzer(3)

	full := a.SwingPoints(s)
	prefix := a.SwingPoints(s.Prefix(s.Len() - 8))

	// Every swing detected on the prefix must appear identically in the
	// full-series result.
	for _, p := range prefix {
		assert.Contains(t, full, p)
	}
}

func TestAnalyze_BreakOfStructure(t *testing.T) {
	// Rally, pull back, then close above the prior peak: one bullish BOS.
	closes := zigzag([]float64{1.1000, 1.1050, 1.1010, 1.1100}, 6)
	s := seriesFromCloses(t, closes)

	sa := NewAnalyzer(3).Analyze(s)
	require.NotEmpty(t, sa.Breaks)

	br := sa.LastBreak()
	assert.Equal(t, BreakBOS, br.Kind)
	assert.Equal(t, market.Bullish, br.Direction)
	assert.Equal(t, TrendUp, sa.Trend)
	assert.InDelta(t, 1.1050+0.0005, br.BrokenLevel, 1e-9)
}

func TestAnalyze_ChangeOfCharacter(t *testing.T) {
	// Two rising legs establish an uptrend, then price collapses through
	// the last swing low: the first bearish break is a CHOCH.
	closes := zigzag([]float64{1.1000, 1.1060, 1.1030, 1.1100, 1.1070, 1.0950}, 6)
	s := seriesFromCloses(t, closes)

	sa := NewAnalyzer(3).Analyze(s)
	require.NotEmpty(t, sa.Breaks)

	var choch *StructureBreak
	for i := range sa.Breaks {
		if sa.Breaks[i].Kind == BreakCHOCH {
			choch = &sa.Breaks[i]
			break
		}
	}
	require.NotNil(t, choch, "trend reversal must emit a CHOCH")
	assert.Equal(t, market.Bearish, choch.Direction)
	assert.Equal(t, TrendDown, sa.Trend)
}

func TestAnalyze_MonotonicRiseIsUptrend(t *testing.T) {
	// Strictly rising closes never form a swing high or low under a
	// symmetric window, so the trend must come from the slope fallback.
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 1.1000 + float64(i)*0.0010
	}
	s := seriesFromCloses(t, closes)

	sa := NewAnalyzer(5).Analyze(s)
	assert.Empty(t, sa.Swings)
	assert.Empty(t, sa.Breaks)
	assert.Equal(t, TrendUp, sa.Trend)
}

func TestAnalyze_RisingSeriesBreaksStructureUpward(t *testing.T) {
	// 100 bars of monotonically rising closes, with periodic wick spikes
	// so swing highs exist to be broken. Expect an uptrend, at least one
	// BOS and no CHOCH.
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, 100)
	for i := range bars {
		c := 1.1000 + float64(i)*0.0010
		high, low := c+0.0002, c-0.0002
		if i%7 == 3 {
			high = c + 0.0040
		}
		if i%7 == 0 {
			low = c - 0.0040
		}
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c - 0.0001, High: high, Low: low, Close: c,
			Volume: 1000,
		}
	}
	s, err := market.NewSeries("EURUSD", market.H1, bars)
	require.NoError(t, err)

	sa := NewAnalyzer(3).Analyze(s)
	assert.Equal(t, TrendUp, sa.Trend)
	require.NotEmpty(t, sa.Breaks)
	for _, br := range sa.Breaks {
		assert.Equal(t, BreakBOS, br.Kind, "a one-way market never changes character")
		assert.Equal(t, market.Bullish, br.Direction)
	}
}

func TestAnalyze_FlatSeriesIsRangebound(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 1.1000
	}
	s := seriesFromCloses(t, closes)

	sa := NewAnalyzer(5).Analyze(s)
	assert.Equal(t, TrendRange, sa.Trend)
	assert.Empty(t, sa.Breaks)
}
