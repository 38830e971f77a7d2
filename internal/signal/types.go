package signal

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/smclabs/smcrun/internal/market"
	"github.com/smclabs/smcrun/internal/pattern"
	"github.com/smclabs/smcrun/internal/structure"
)

// Side is the proposed trade direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Direction maps the trade side to its market direction.
func (s Side) Direction() market.Direction {
	if s == Buy {
		return market.Bullish
	}
	return market.Bearish
}

// Grade buckets a signal's quality score.
type Grade string

const (
	GradeInstitutional Grade = "institutional"
	GradeProfessional  Grade = "professional"
	GradeStandard      Grade = "standard"
	GradeRejected      Grade = "rejected"
)

// Factor is a closed enumeration of confluence factors. Using a fixed
// type instead of string keys means a typo cannot silently dilute the
// score.
type Factor string

const (
	FactorOrderBlock     Factor = "order_block"
	FactorStructureBreak Factor = "structure_break"
	FactorFairValueGap   Factor = "fair_value_gap"
	FactorLiquiditySweep Factor = "liquidity_sweep"
	FactorTrendAlignment Factor = "trend_alignment"
)

// factorWeights are the canonical confluence weights. They sum to 1.0
// and are renormalized over the available factors when one cannot be
// evaluated (e.g. no higher timeframe loaded).
var factorWeights = map[Factor]float64{
	FactorOrderBlock:     0.30,
	FactorStructureBreak: 0.25,
	FactorFairValueGap:   0.20,
	FactorLiquiditySweep: 0.15,
	FactorTrendAlignment: 0.10,
}

// Weight returns the canonical weight of the factor.
func (f Factor) Weight() float64 { return factorWeights[f] }

// AllFactors returns the factors in canonical order.
func AllFactors() []Factor {
	return []Factor{
		FactorOrderBlock,
		FactorStructureBreak,
		FactorFairValueGap,
		FactorLiquiditySweep,
		FactorTrendAlignment,
	}
}

// Signal is an accepted trade proposal. It is immutable once emitted;
// candidates that fail the factor count, risk:reward or quality gates
// are never materialized, so downstream code cannot observe a rejected
// signal's fields.
type Signal struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Factors    []Factor  `json:"confluence_factors"`
	Quality    float64   `json:"quality_score"`
	Grade      Grade     `json:"grade"`
	RiskReward float64   `json:"risk_reward_ratio"`
}

// RiskRewardRatio recomputes |takeProfit-entry| / |entry-stopLoss| from
// the three prices. It always matches the stored RiskReward to floating
// tolerance.
func (s *Signal) RiskRewardRatio() float64 {
	riskDist := math.Abs(s.EntryPrice - s.StopLoss)
	if riskDist == 0 {
		return 0
	}
	return math.Abs(s.TakeProfit-s.EntryPrice) / riskDist
}

// signalID derives a deterministic UUID for the signal so that
// identical runs produce byte-identical result documents.
func signalID(symbol string, ts time.Time, side Side) string {
	name := symbol + "|" + ts.UTC().Format(time.RFC3339Nano) + "|" + string(side)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// TimeframeAnalysis bundles the structural and pattern read of one
// timeframe prefix, the unit the scorer consumes.
type TimeframeAnalysis struct {
	Timeframe market.Timeframe
	Series    *market.Series
	Structure *structure.Analysis
	Patterns  *pattern.Analysis
}

// Analyze runs the analyzer and detector over a series prefix and
// bundles the result.
func Analyze(s *market.Series, analyzer *structure.Analyzer, detector *pattern.Detector) *TimeframeAnalysis {
	sa := analyzer.Analyze(s)
	return &TimeframeAnalysis{
		Timeframe: s.Timeframe(),
		Series:    s,
		Structure: sa,
		Patterns:  detector.Detect(s, sa),
	}
}
