package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smclabs/smcrun/internal/config"
	"github.com/smclabs/smcrun/internal/market"
	"github.com/smclabs/smcrun/internal/pattern"
	"github.com/smclabs/smcrun/internal/structure"
)

func flatSeries(t *testing.T, n int, lastClose float64) *market.Series {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		c := lastClose - float64(n-1-i)*0.0001
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c + 0.0005, Low: c - 0.0005, Close: c,
			Volume: 1000,
		}
	}
	s, err := market.NewSeries("EURUSD", market.H1, bars)
	require.NoError(t, err)
	return s
}

// buyAnalysis fabricates an uptrend read with an order block, a bullish
// break and a recent sweep of the lows.
func buyAnalysis(t *testing.T) *TimeframeAnalysis {
	s := flatSeries(t, 12, 1.1030)
	return &TimeframeAnalysis{
		Timeframe: market.H1,
		Series:    s,
		Structure: &structure.Analysis{
			Trend: structure.TrendUp,
			Breaks: []structure.StructureBreak{
				{Index: 5, Kind: structure.BreakBOS, Direction: market.Bullish, BrokenLevel: 1.1025},
			},
		},
		Patterns: &pattern.Analysis{
			OrderBlocks: []pattern.OrderBlock{
				{StartIndex: 2, EndIndex: 5, High: 1.1020, Low: 1.1000, Direction: market.Bullish},
			},
			Liquidity: []pattern.LiquidityZone{
				{Price: 1.0985, Kind: structure.SwingLow, Swept: true, SweptIndex: 10, LastIndex: 8, Touches: 2},
				{Price: 1.1055, Kind: structure.SwingHigh, SweptIndex: -1, LastIndex: 6, Touches: 2},
			},
		},
	}
}

func TestGenerate_BuySetup(t *testing.T) {
	gen := NewGenerator(config.Default())
	sig := gen.Generate(buyAnalysis(t), nil)
	require.NotNil(t, sig)

	assert.Equal(t, Buy, sig.Side)
	assert.Equal(t, "EURUSD", sig.Symbol)
	assert.InDelta(t, 1.1010, sig.EntryPrice, 1e-9, "entry at the block equilibrium")
	assert.InDelta(t, 1.0995, sig.StopLoss, 1e-9, "stop below the block low plus the 5-pip buffer")
	assert.InDelta(t, 1.1055, sig.TakeProfit, 1e-9, "target at the unswept highs")
	assert.InDelta(t, 3.0, sig.RiskReward, 1e-9)
	assert.InDelta(t, 3.0, sig.RiskRewardRatio(), 1e-9)

	assert.ElementsMatch(t, []Factor{FactorOrderBlock, FactorStructureBreak, FactorLiquiditySweep}, sig.Factors)
	// (0.30+0.25+0.15) over the 0.90 available without a higher timeframe.
	assert.InDelta(t, 0.7/0.9, sig.Quality, 1e-9)
	assert.Empty(t, sig.Grade, "the generator leaves grading to the quality filter")
}

func TestGenerate_DeterministicID(t *testing.T) {
	gen := NewGenerator(config.Default())
	a := gen.Generate(buyAnalysis(t), nil)
	b := gen.Generate(buyAnalysis(t), nil)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.ID, b.ID, "identical inputs must produce identical signal IDs")
}

func TestGenerate_RangeboundYieldsNothing(t *testing.T) {
	ta := buyAnalysis(t)
	ta.Structure.Trend = structure.TrendRange

	assert.Nil(t, NewGenerator(config.Default()).Generate(ta, nil))
}

func TestGenerate_TooFewFactors(t *testing.T) {
	ta := buyAnalysis(t)
	// Remove the sweep: only the block and the break remain.
	ta.Patterns.Liquidity = ta.Patterns.Liquidity[1:]

	assert.Nil(t, NewGenerator(config.Default()).Generate(ta, nil))
}

func TestGenerate_FallbackTarget(t *testing.T) {
	ta := buyAnalysis(t)
	// Drop the resting highs; keep the swept lows for confluence.
	ta.Patterns.Liquidity = ta.Patterns.Liquidity[:1]

	sig := NewGenerator(config.Default()).Generate(ta, nil)
	require.NotNil(t, sig)
	// Risk is 15 pips, so the fallback target sits at 2R above entry.
	assert.InDelta(t, 1.1010+2*0.0015, sig.TakeProfit, 1e-9)
	assert.InDelta(t, 2.0, sig.RiskReward, 1e-9)
}

func TestGenerate_HigherTimeframeAlignment(t *testing.T) {
	ta := buyAnalysis(t)
	htf := &TimeframeAnalysis{
		Timeframe: market.H4,
		Structure: &structure.Analysis{Trend: structure.TrendUp},
	}

	sig := NewGenerator(config.Default()).Generate(ta, []*TimeframeAnalysis{htf})
	require.NotNil(t, sig)
	assert.Contains(t, sig.Factors, FactorTrendAlignment)
	// All four present factors over the full 1.0 denominator.
	assert.InDelta(t, 0.80, sig.Quality, 1e-9)

	htf.Structure.Trend = structure.TrendDown
	sig = NewGenerator(config.Default()).Generate(ta, []*TimeframeAnalysis{htf})
	require.NotNil(t, sig)
	assert.NotContains(t, sig.Factors, FactorTrendAlignment)
	// Disagreement keeps alignment in the denominator: 0.70 over 1.0.
	assert.InDelta(t, 0.70, sig.Quality, 1e-9)
}

func TestGenerate_GapRefinesEntry(t *testing.T) {
	ta := buyAnalysis(t)
	ta.Patterns.Gaps = []pattern.FairValueGap{
		{StartIndex: 3, EndIndex: 5, Top: 1.1016, Bottom: 1.1004, Direction: market.Bullish},
	}

	sig := NewGenerator(config.Default()).Generate(ta, nil)
	require.NotNil(t, sig)
	assert.Contains(t, sig.Factors, FactorFairValueGap)
	assert.InDelta(t, 1.1010, sig.EntryPrice, 1e-9, "entry at the gap midpoint inside the block")
}
