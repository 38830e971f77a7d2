package pattern

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/smclabs/smcrun/internal/market"
	"github.com/smclabs/smcrun/internal/structure"
)

// Detector derives order blocks, fair value gaps, liquidity zones and
// supply/demand zones from a series prefix plus its structure analysis.
// Every sub-detector is a pure function of the prefix: nothing consults
// bars past the end of the series it is handed.
type Detector struct {
	fvgMinPips   float64
	tolerancePct float64
	lookback     int
}

// NewDetector creates a detector. fvgMinPips is the minimum gap size,
// tolerancePct the clustering tolerance for liquidity levels (percent
// of price).
func NewDetector(fvgMinPips, tolerancePct float64) *Detector {
	return &Detector{
		fvgMinPips:   fvgMinPips,
		tolerancePct: tolerancePct,
		lookback:     20,
	}
}

// Detect runs all four sub-detectors over the prefix.
func (d *Detector) Detect(s *market.Series, sa *structure.Analysis) *Analysis {
	a := &Analysis{
		OrderBlocks:  d.OrderBlocks(s, sa.Breaks),
		Gaps:         d.FairValueGaps(s),
		Liquidity:    d.LiquidityZones(s, sa.Swings),
		SupplyDemand: d.SupplyDemandZones(s),
	}
	log.Debug().Str("symbol", s.Symbol()).Int("bars", s.Len()).
		Int("order_blocks", len(a.OrderBlocks)).Int("gaps", len(a.Gaps)).
		Int("liquidity", len(a.Liquidity)).Int("supply_demand", len(a.SupplyDemand)).
		Msg("Pattern detection complete")
	return a
}

// OrderBlocks finds, for every structure break, the last bar opposing
// the break direction before the break, then tracks mitigation: a block
// is mitigated the first time price trades through its full range.
func (d *Detector) OrderBlocks(s *market.Series, breaks []structure.StructureBreak) []OrderBlock {
	var blocks []OrderBlock
	seen := make(map[int]bool)

	for _, brk := range breaks {
		origin := -1
		stop := brk.Index - d.lookback
		if stop < 0 {
			stop = 0
		}
		for j := brk.Index - 1; j >= stop; j-- {
			if s.Bar(j).Direction() == brk.Direction.Opposite() {
				origin = j
				break
			}
		}
		if origin < 0 || seen[origin] {
			continue
		}
		seen[origin] = true
		bar := s.Bar(origin)
		blocks = append(blocks, OrderBlock{
			StartIndex: origin,
			EndIndex:   brk.Index,
			High:       bar.High,
			Low:        bar.Low,
			Direction:  brk.Direction,
		})
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].StartIndex < blocks[j].StartIndex })

	for i := range blocks {
		ob := &blocks[i]
		for k := ob.EndIndex + 1; k < s.Len(); k++ {
			bar := s.Bar(k)
			if (ob.Direction == market.Bullish && bar.Low < ob.Low) ||
				(ob.Direction == market.Bearish && bar.High > ob.High) {
				ob.Mitigated = true
				break
			}
		}
	}
	return blocks
}

// FairValueGaps slides a 3-bar window over the series and emits a gap
// wherever the flanking bars do not overlap in price and the gap is at
// least fvgMinPips wide. FillPct is the fraction of the gap that later
// price has traded back into; a gap is filled at 1.0.
func (d *Detector) FairValueGaps(s *market.Series) []FairValueGap {
	minSize := d.fvgMinPips * market.PipSize(s.Symbol())
	var gaps []FairValueGap

	for i := 1; i < s.Len()-1; i++ {
		left, right := s.Bar(i-1), s.Bar(i+1)

		if right.Low > left.High && right.Low-left.High >= minSize {
			gaps = append(gaps, d.trackFill(s, FairValueGap{
				StartIndex: i - 1,
				EndIndex:   i + 1,
				Top:        right.Low,
				Bottom:     left.High,
				Direction:  market.Bullish,
			}))
		}
		if left.Low > right.High && left.Low-right.High >= minSize {
			gaps = append(gaps, d.trackFill(s, FairValueGap{
				StartIndex: i - 1,
				EndIndex:   i + 1,
				Top:        left.Low,
				Bottom:     right.High,
				Direction:  market.Bearish,
			}))
		}
	}
	return gaps
}

func (d *Detector) trackFill(s *market.Series, g FairValueGap) FairValueGap {
	height := g.Top - g.Bottom
	if height <= 0 {
		g.FillPct = 1.0
		return g
	}
	filled := 0.0
	for k := g.EndIndex + 1; k < s.Len(); k++ {
		bar := s.Bar(k)
		var reach float64
		if g.Direction == market.Bullish {
			// Price dips into the gap from above.
			if bar.Low >= g.Top {
				continue
			}
			reach = g.Top - bar.Low
		} else {
			// Price rises into the gap from below.
			if bar.High <= g.Bottom {
				continue
			}
			reach = bar.High - g.Bottom
		}
		if reach > filled {
			filled = reach
		}
		if filled >= height {
			break
		}
	}
	g.FillPct = filled / height
	if g.FillPct > 1.0 {
		g.FillPct = 1.0
	}
	return g
}

// LiquidityZones clusters swing highs (resp. lows) whose prices lie
// within the tolerance of each other. A zone is swept when a bar trades
// beyond the level and the same or next bar closes back on the other
// side — the liquidity-sweep reversal signature.
func (d *Detector) LiquidityZones(s *market.Series, swings []structure.SwingPoint) []LiquidityZone {
	var zones []LiquidityZone
	zones = append(zones, d.clusterZones(s, swings, structure.SwingHigh)...)
	zones = append(zones, d.clusterZones(s, swings, structure.SwingLow)...)
	sort.Slice(zones, func(i, j int) bool { return zones[i].LastIndex < zones[j].LastIndex })
	return zones
}

func (d *Detector) clusterZones(s *market.Series, swings []structure.SwingPoint, kind structure.SwingKind) []LiquidityZone {
	var points []structure.SwingPoint
	for _, p := range swings {
		if p.Kind == kind {
			points = append(points, p)
		}
	}

	used := make([]bool, len(points))
	var zones []LiquidityZone
	for i, base := range points {
		if used[i] {
			continue
		}
		cluster := []structure.SwingPoint{base}
		used[i] = true
		for j := i + 1; j < len(points); j++ {
			if used[j] {
				continue
			}
			if relDiff(points[j].Price, base.Price) <= d.tolerancePct/100 {
				cluster = append(cluster, points[j])
				used[j] = true
			}
		}
		if len(cluster) < 2 {
			continue
		}

		level := cluster[0].Price
		last := cluster[0].Index
		for _, p := range cluster[1:] {
			if kind == structure.SwingHigh && p.Price > level {
				level = p.Price
			}
			if kind == structure.SwingLow && p.Price < level {
				level = p.Price
			}
			if p.Index > last {
				last = p.Index
			}
		}

		zone := LiquidityZone{
			Price:      level,
			Kind:       kind,
			Touches:    len(cluster),
			LastIndex:  last,
			SweptIndex: -1,
		}
		d.markSweep(s, &zone)
		zones = append(zones, zone)
	}
	return zones
}

func (d *Detector) markSweep(s *market.Series, z *LiquidityZone) {
	for k := z.LastIndex + 1; k < s.Len(); k++ {
		bar := s.Bar(k)
		if z.Kind == structure.SwingHigh {
			if bar.High <= z.Price {
				continue
			}
			if bar.Close < z.Price {
				z.Swept, z.SweptIndex = true, k
				return
			}
			if k+1 < s.Len() && s.Bar(k+1).Close < z.Price {
				z.Swept, z.SweptIndex = true, k+1
				return
			}
			return // traded through without reversing: breakout, not a sweep
		}
		if bar.Low >= z.Price {
			continue
		}
		if bar.Close > z.Price {
			z.Swept, z.SweptIndex = true, k
			return
		}
		if k+1 < s.Len() && s.Bar(k+1).Close > z.Price {
			z.Swept, z.SweptIndex = true, k+1
			return
		}
		return
	}
}

// SupplyDemandZones finds the origins of multi-bar directional runs: at
// least three same-direction closes whose total travel is a multiple of
// the recent average bar range. The zone is the last opposing bar
// before the run, mitigated the same way as an order block.
func (d *Detector) SupplyDemandZones(s *market.Series) []SupplyDemandZone {
	const (
		minRun        = 3
		rangeMultiple = 2.0
	)
	var zones []SupplyDemandZone

	i := 1
	for i < s.Len() {
		dir := s.Bar(i).Direction()
		run := 0
		j := i
		for j < s.Len() && s.Bar(j).Direction() == dir {
			run++
			j++
		}
		if run >= minRun && s.Bar(i-1).Direction() == dir.Opposite() {
			travel := absDiff(s.Bar(j-1).Close, s.Bar(i).Open)
			if travel >= rangeMultiple*avgRange(s, i) {
				origin := s.Bar(i - 1)
				zone := SupplyDemandZone{
					StartIndex: i - 1,
					EndIndex:   j - 1,
					High:       origin.High,
					Low:        origin.Low,
					Direction:  dir,
				}
				for k := zone.EndIndex + 1; k < s.Len(); k++ {
					bar := s.Bar(k)
					if (dir == market.Bullish && bar.Low < zone.Low) ||
						(dir == market.Bearish && bar.High > zone.High) {
						zone.Mitigated = true
						break
					}
				}
				zones = append(zones, zone)
			}
		}
		i = j
	}
	return zones
}

func avgRange(s *market.Series, end int) float64 {
	start := end - 10
	if start < 0 {
		start = 0
	}
	if end <= start {
		return 0
	}
	sum := 0.0
	for k := start; k < end; k++ {
		sum += s.Bar(k).Range()
	}
	return sum / float64(end-start)
}

func relDiff(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return absDiff(a, b) / b
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
