package signal

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/smclabs/smcrun/internal/config"
	"github.com/smclabs/smcrun/internal/market"
	"github.com/smclabs/smcrun/internal/pattern"
	"github.com/smclabs/smcrun/internal/risk"
	"github.com/smclabs/smcrun/internal/structure"
)

// sweepLookback bounds how far back a liquidity sweep still counts as
// confluence for the current bar.
const sweepLookback = 10

// Generator scores confluence across timeframes and emits trade
// candidates. Rejections return nil rather than an error: a bar with
// no setup is the normal case, not a failure.
type Generator struct {
	cfg *config.Config
}

// NewGenerator builds a Generator. A nil config falls back to defaults.
func NewGenerator(cfg *config.Config) *Generator {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Generator{cfg: cfg}
}

// Generate evaluates the primary timeframe analysis, with zero or more
// higher-timeframe analyses for trend alignment, and returns a candidate
// signal or nil. The returned signal is ungraded; quality filtering
// assigns the grade.
func (g *Generator) Generate(primary *TimeframeAnalysis, higher []*TimeframeAnalysis) *Signal {
	if primary == nil || primary.Series == nil || primary.Series.Len() == 0 {
		return nil
	}

	side, ok := sideForTrend(primary.Structure.Trend)
	if !ok {
		return nil
	}
	dir := side.Direction()
	last := primary.Series.Last()
	symbol := primary.Series.Symbol()

	block := g.pickBlock(primary.Patterns, dir, last.Close)
	gap := g.pickGap(primary.Patterns, dir, block, last.Close)

	var factors []Factor
	if block != nil {
		factors = append(factors, FactorOrderBlock)
	}
	if brokeWith(primary.Structure, dir) {
		factors = append(factors, FactorStructureBreak)
	}
	if gap != nil {
		factors = append(factors, FactorFairValueGap)
	}
	if sweptInto(primary.Patterns, dir, primary.Series.Len()) {
		factors = append(factors, FactorLiquiditySweep)
	}
	mtfAvailable := len(higher) > 0
	if mtfAvailable && aligned(primary.Structure.Trend, higher) {
		factors = append(factors, FactorTrendAlignment)
	}

	if len(factors) < g.cfg.MinConfluenceFactors {
		return nil
	}

	entry := g.entryPrice(block, gap, last.Close)
	stop := g.stopLoss(primary.Series, side, block, entry)
	riskDist := entry - stop
	if side == Sell {
		riskDist = stop - entry
	}
	if riskDist <= 0 {
		return nil
	}

	target, ok := g.takeProfit(primary.Patterns, side, entry, riskDist)
	if !ok {
		return nil
	}
	rewardDist := math.Abs(target - entry)
	rr := rewardDist / riskDist
	if rr+1e-9 < g.cfg.MinRiskReward {
		return nil
	}

	sig := &Signal{
		ID:         signalID(symbol, last.Timestamp, side),
		Timestamp:  last.Timestamp,
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Factors:    factors,
		Quality:    confluenceScore(factors, mtfAvailable),
		RiskReward: rr,
	}
	log.Debug().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("score", sig.Quality).
		Float64("rr", rr).
		Int("factors", len(factors)).
		Msg("signal candidate")
	return sig
}

func sideForTrend(trend structure.TrendDirection) (Side, bool) {
	switch trend {
	case structure.TrendUp:
		return Buy, true
	case structure.TrendDown:
		return Sell, true
	default:
		return "", false
	}
}

// pickBlock selects the unmitigated order block of the trade direction
// nearest to the current close, restricted to blocks price has not
// already traded fully past.
func (g *Generator) pickBlock(pa *pattern.Analysis, dir market.Direction, close float64) *pattern.OrderBlock {
	var best *pattern.OrderBlock
	bestDist := math.MaxFloat64
	for _, ob := range pa.FreshBlocks(dir) {
		ob := ob
		if dir == market.Bullish && close < ob.Low {
			continue
		}
		if dir == market.Bearish && close > ob.High {
			continue
		}
		d := math.Abs(close - ob.Equilibrium())
		if d < bestDist {
			best = &ob
			bestDist = d
		}
	}
	return best
}

// pickGap selects an unfilled gap of the trade direction. With an order
// block chosen the gap must overlap the block; otherwise the current
// close must sit inside the gap.
func (g *Generator) pickGap(pa *pattern.Analysis, dir market.Direction, block *pattern.OrderBlock, close float64) *pattern.FairValueGap {
	gaps := pa.ActiveGaps(dir)
	for i := len(gaps) - 1; i >= 0; i-- {
		fv := gaps[i]
		if block != nil {
			if fv.Bottom <= block.High && fv.Top >= block.Low {
				return &fv
			}
			continue
		}
		if close >= fv.Bottom && close <= fv.Top {
			return &fv
		}
	}
	return nil
}

// brokeWith reports whether the most recent structure break confirms
// the trade direction.
func brokeWith(sa *structure.Analysis, dir market.Direction) bool {
	br := sa.LastBreak()
	return br != nil && br.Direction == dir
}

// sweptInto reports whether liquidity on the counter side was swept
// within the lookback window: a raid on lows fuels longs, a raid on
// highs fuels shorts.
func sweptInto(pa *pattern.Analysis, dir market.Direction, barCount int) bool {
	kind := structure.SwingHigh
	if dir == market.Bullish {
		kind = structure.SwingLow
	}
	minIndex := barCount - 1 - sweepLookback
	if minIndex < 0 {
		minIndex = 0
	}
	return pa.RecentSweep(kind, minIndex) != nil
}

// aligned reports whether every higher timeframe agrees with the
// primary trend.
func aligned(trend structure.TrendDirection, higher []*TimeframeAnalysis) bool {
	for _, h := range higher {
		if h == nil || h.Structure == nil || h.Structure.Trend != trend {
			return false
		}
	}
	return true
}

// confluenceScore renormalizes the present factor weights over the
// weights of the factors that could be evaluated. Trend alignment is
// only in the denominator when a higher timeframe was supplied.
func confluenceScore(present []Factor, mtfAvailable bool) float64 {
	var have, avail float64
	for _, f := range AllFactors() {
		if f == FactorTrendAlignment && !mtfAvailable {
			continue
		}
		avail += f.Weight()
	}
	for _, f := range present {
		have += f.Weight()
	}
	if avail == 0 {
		return 0
	}
	return have / avail
}

// entryPrice prefers the gap midpoint when the gap sits inside the
// chosen block, then the block equilibrium, then the current close.
func (g *Generator) entryPrice(block *pattern.OrderBlock, gap *pattern.FairValueGap, close float64) float64 {
	if block != nil && gap != nil {
		return gap.Midpoint()
	}
	if block != nil {
		return block.Equilibrium()
	}
	return close
}

// stopLoss places the stop beyond the order block extreme plus a
// symbol-specific buffer, or at an ATR distance from entry when no
// block anchors the trade.
func (g *Generator) stopLoss(s *market.Series, side Side, block *pattern.OrderBlock, entry float64) float64 {
	symbol := s.Symbol()
	buffer := market.StopBufferPips(symbol) * market.PipSize(symbol)
	if block != nil {
		if side == Buy {
			return block.Low - buffer
		}
		return block.High + buffer
	}
	dist := risk.ATRStopDistance(s, risk.DefaultATRPeriod, 1.5)
	if side == Buy {
		return entry - dist
	}
	return entry + dist
}

// takeProfit targets the nearest unswept liquidity pool past entry that
// clears the minimum risk:reward; with none available it falls back to
// a fixed multiple of the risk distance.
func (g *Generator) takeProfit(pa *pattern.Analysis, side Side, entry, riskDist float64) (float64, bool) {
	minReward := riskDist * g.cfg.MinRiskReward
	kind := structure.SwingHigh
	if side == Sell {
		kind = structure.SwingLow
	}

	best := math.MaxFloat64
	found := false
	for _, z := range pa.UnsweptZones(kind) {
		var reward float64
		if side == Buy {
			reward = z.Price - entry
		} else {
			reward = entry - z.Price
		}
		if reward < minReward {
			continue
		}
		if reward < best {
			best = reward
			found = true
		}
	}
	if found {
		if side == Buy {
			return entry + best, true
		}
		return entry - best, true
	}
	if side == Buy {
		return entry + minReward, true
	}
	return entry - minReward, true
}
