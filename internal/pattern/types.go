package pattern

import (
	"github.com/smclabs/smcrun/internal/market"
	"github.com/smclabs/smcrun/internal/structure"
)

// OrderBlock is the last opposing-direction bar immediately preceding a
// displacement move. It acts as a support/resistance zone until price
// trades back through its full range, at which point it is mitigated.
type OrderBlock struct {
	StartIndex int              `json:"start_index"`
	EndIndex   int              `json:"end_index"`
	High       float64          `json:"high"`
	Low        float64          `json:"low"`
	Direction  market.Direction `json:"direction"`
	Mitigated  bool             `json:"mitigated"`
}

// Equilibrium returns the 50% level of the block range.
func (ob OrderBlock) Equilibrium() float64 { return (ob.High + ob.Low) / 2 }

// Contains reports whether price lies inside the block range.
func (ob OrderBlock) Contains(price float64) bool {
	return price >= ob.Low && price <= ob.High
}

// FairValueGap is a 3-bar price imbalance: the bars on either side of a
// displacement bar do not overlap. FillPct tracks how much of the gap
// later price action has traded back into.
type FairValueGap struct {
	StartIndex int              `json:"start_index"`
	EndIndex   int              `json:"end_index"`
	Top        float64          `json:"top"`
	Bottom     float64          `json:"bottom"`
	Direction  market.Direction `json:"direction"`
	FillPct    float64          `json:"fill_pct"`
}

// Filled reports whether the gap has been completely traded through.
func (g FairValueGap) Filled() bool { return g.FillPct >= 1.0 }

// Midpoint returns the center price of the gap.
func (g FairValueGap) Midpoint() float64 { return (g.Top + g.Bottom) / 2 }

// LiquidityZone is a cluster of near-equal swing highs or lows where
// resting stop orders are presumed to accumulate. Swept means price
// traded through the level and promptly closed back on the other side.
type LiquidityZone struct {
	Price   float64             `json:"price"`
	Kind    structure.SwingKind `json:"kind"`
	Touches int                 `json:"touches"`
	Swept   bool                `json:"swept"`
	// LastIndex is the bar index of the newest swing in the cluster.
	LastIndex int `json:"last_index"`
	// SweptIndex is the bar index of the sweep, -1 while unswept.
	SweptIndex int `json:"swept_index"`
}

// SupplyDemandZone marks the origin of a multi-bar directional run. It
// is built like an order block but does not require a structure break,
// and is retained while unmitigated.
type SupplyDemandZone struct {
	StartIndex int              `json:"start_index"`
	EndIndex   int              `json:"end_index"`
	High       float64          `json:"high"`
	Low        float64          `json:"low"`
	Direction  market.Direction `json:"direction"`
	Mitigated  bool             `json:"mitigated"`
}

// Analysis aggregates one detection pass over a series prefix.
type Analysis struct {
	OrderBlocks  []OrderBlock       `json:"order_blocks"`
	Gaps         []FairValueGap     `json:"fair_value_gaps"`
	Liquidity    []LiquidityZone    `json:"liquidity_zones"`
	SupplyDemand []SupplyDemandZone `json:"supply_demand_zones"`
}

// FreshBlocks returns the unmitigated order blocks in the given
// direction, oldest first.
func (a *Analysis) FreshBlocks(dir market.Direction) []OrderBlock {
	var out []OrderBlock
	for _, ob := range a.OrderBlocks {
		if !ob.Mitigated && ob.Direction == dir {
			out = append(out, ob)
		}
	}
	return out
}

// ActiveGaps returns the unfilled gaps in the given direction.
func (a *Analysis) ActiveGaps(dir market.Direction) []FairValueGap {
	var out []FairValueGap
	for _, g := range a.Gaps {
		if !g.Filled() && g.Direction == dir {
			out = append(out, g)
		}
	}
	return out
}

// UnsweptZones returns unswept liquidity zones of the given kind.
func (a *Analysis) UnsweptZones(kind structure.SwingKind) []LiquidityZone {
	var out []LiquidityZone
	for _, z := range a.Liquidity {
		if !z.Swept && z.Kind == kind {
			out = append(out, z)
		}
	}
	return out
}

// RecentSweep returns the most recent swept zone of the given kind
// whose sweep happened at or after minIndex, or nil.
func (a *Analysis) RecentSweep(kind structure.SwingKind, minIndex int) *LiquidityZone {
	var found *LiquidityZone
	for i := range a.Liquidity {
		z := &a.Liquidity[i]
		if z.Kind == kind && z.Swept && z.SweptIndex >= minIndex {
			if found == nil || z.SweptIndex > found.SweptIndex {
				found = z
			}
		}
	}
	return found
}
