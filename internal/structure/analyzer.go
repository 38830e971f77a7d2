package structure

import (
	"github.com/rs/zerolog/log"

	"github.com/smclabs/smcrun/internal/market"
)

// Analyzer derives swing points, trend direction and structure-break
// events from a bar series. It is a pure function of the series prefix
// it is given: a swing at index i is confirmed only at bar i+N, so the
// analyzer run on any prefix agrees with the full-series run over the
// bars they share.
type Analyzer struct {
	strength int
}

// NewAnalyzer creates an analyzer with the given swing strength N
// (bars required on each side of a local extremum).
func NewAnalyzer(strength int) *Analyzer {
	if strength < 1 {
		strength = 1
	}
	return &Analyzer{strength: strength}
}

// Strength returns the configured swing strength.
func (a *Analyzer) Strength() int { return a.strength }

// Analyze computes the full structural read of the series.
func (a *Analyzer) Analyze(s *market.Series) *Analysis {
	swings := a.SwingPoints(s)
	breaks, tracked := a.replayBreaks(s, swings)

	trend := tracked
	if trend == TrendRange {
		trend = classifySwingTrend(swings)
	}
	if trend == TrendRange {
		trend = a.closeSlopeTrend(s)
	}

	if s.Len() > 0 {
		log.Debug().Str("symbol", s.Symbol()).Int("bars", s.Len()).
			Int("swings", len(swings)).Int("breaks", len(breaks)).
			Str("trend", string(trend)).Msg("Structure analysis complete")
	}
	return &Analysis{Swings: swings, Trend: trend, Breaks: breaks}
}

// SwingPoints scans for strict local extrema using a symmetric window
// of N bars on each side. The last N bars can never hold a confirmed
// swing, which is the documented detection lag.
func (a *Analyzer) SwingPoints(s *market.Series) []SwingPoint {
	n := a.strength
	var swings []SwingPoint
	for i := n; i < s.Len()-n; i++ {
		bar := s.Bar(i)
		isHigh, isLow := true, true
		for j := i - n; j <= i+n; j++ {
			if j == i {
				continue
			}
			other := s.Bar(j)
			if other.High >= bar.High {
				isHigh = false
			}
			if other.Low <= bar.Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			swings = append(swings, SwingPoint{Index: i, Price: bar.High, Kind: SwingHigh, Strength: n})
		}
		if isLow {
			swings = append(swings, SwingPoint{Index: i, Price: bar.Low, Kind: SwingLow, Strength: n})
		}
	}
	return swings
}

// replayBreaks walks the series bar by bar, tracking the most recent
// confirmed swing on each side, and emits a break whenever a close
// crosses one. A break with the tracked trend (or from a rangebound
// state) is a BOS; a break against it is a CHOCH and flips the state.
func (a *Analyzer) replayBreaks(s *market.Series, swings []SwingPoint) ([]StructureBreak, TrendDirection) {
	highs := filterKind(swings, SwingHigh)
	lows := filterKind(swings, SwingLow)

	var (
		breaks     []StructureBreak
		tracked    = TrendRange
		nh, nl     int
		curHigh    *SwingPoint
		curLow     *SwingPoint
		highBroken bool
		lowBroken  bool
	)

	for j := 0; j < s.Len(); j++ {
		for nh < len(highs) && highs[nh].ConfirmedAt() <= j {
			curHigh = &highs[nh]
			highBroken = false
			nh++
		}
		for nl < len(lows) && lows[nl].ConfirmedAt() <= j {
			curLow = &lows[nl]
			lowBroken = false
			nl++
		}

		closePrice := s.Bar(j).Close
		if curHigh != nil && !highBroken && closePrice > curHigh.Price {
			kind := BreakBOS
			if tracked == TrendDown {
				kind = BreakCHOCH
			}
			breaks = append(breaks, StructureBreak{Index: j, Kind: kind, Direction: market.Bullish, BrokenLevel: curHigh.Price})
			tracked = TrendUp
			highBroken = true
		}
		if curLow != nil && !lowBroken && closePrice < curLow.Price {
			kind := BreakBOS
			if tracked == TrendUp {
				kind = BreakCHOCH
			}
			breaks = append(breaks, StructureBreak{Index: j, Kind: kind, Direction: market.Bearish, BrokenLevel: curLow.Price})
			tracked = TrendDown
			lowBroken = true
		}
	}
	return breaks, tracked
}

// classifySwingTrend applies the higher-highs/higher-lows test over the
// last three swings of each kind: uptrend needs at least one rising
// step in both highs and lows, downtrend the inverse.
func classifySwingTrend(swings []SwingPoint) TrendDirection {
	highs := filterKind(swings, SwingHigh)
	lows := filterKind(swings, SwingLow)
	if len(highs) < 3 || len(lows) < 3 {
		return TrendRange
	}
	h, l := highs[len(highs)-3:], lows[len(lows)-3:]

	hh := countRising(h[0].Price, h[1].Price, h[2].Price)
	hl := countRising(l[0].Price, l[1].Price, l[2].Price)
	if hh >= 1 && hl >= 1 {
		return TrendUp
	}

	lh := countFalling(h[0].Price, h[1].Price, h[2].Price)
	ll := countFalling(l[0].Price, l[1].Price, l[2].Price)
	if lh >= 1 && ll >= 1 {
		return TrendDown
	}
	return TrendRange
}

// closeSlopeTrend is the fallback trend read for series too young (or
// too one-directional) to have three confirmed swings per side: a
// strong majority of rising or falling closes decides the direction.
func (a *Analyzer) closeSlopeTrend(s *market.Series) TrendDirection {
	window := 2 * a.strength
	if window < 10 {
		window = 10
	}
	start := s.Len() - window
	if start < 1 {
		start = 1
	}
	if s.Len() < 3 {
		return TrendRange
	}
	rises, falls, total := 0, 0, 0
	for i := start; i < s.Len(); i++ {
		total++
		switch {
		case s.Bar(i).Close > s.Bar(i-1).Close:
			rises++
		case s.Bar(i).Close < s.Bar(i-1).Close:
			falls++
		}
	}
	switch {
	case total > 0 && float64(rises)/float64(total) >= 0.8:
		return TrendUp
	case total > 0 && float64(falls)/float64(total) >= 0.8:
		return TrendDown
	default:
		return TrendRange
	}
}

func filterKind(swings []SwingPoint, kind SwingKind) []SwingPoint {
	var out []SwingPoint
	for _, p := range swings {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func countRising(vals ...float64) int {
	n := 0
	for i := 1; i < len(vals); i++ {
		if vals[i] > vals[i-1] {
			n++
		}
	}
	return n
}

func countFalling(vals ...float64) int {
	n := 0
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[i-1] {
			n++
		}
	}
	return n
}
