package backtest

import (
	"math"
	"strconv"
	"time"

	"github.com/smclabs/smcrun/internal/market"
)

// Float is a float64 that survives JSON round-trips for the
// non-finite values performance metrics legitimately produce: a run
// with no losing trades has profit factor +Inf, and a flat equity
// curve has an undefined Sharpe ratio. encoding/json rejects those, so
// Float writes them as the strings "Infinity", "-Infinity" and "NaN".
type Float float64

// MarshalJSON renders finite values as numbers and non-finite values
// as quoted strings.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// UnmarshalJSON accepts both the numeric and the quoted non-finite
// forms.
func (f *Float) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"Infinity"`:
		*f = Float(math.Inf(1))
		return nil
	case `"-Infinity"`:
		*f = Float(math.Inf(-1))
		return nil
	case `"NaN"`:
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// PerformanceMetrics aggregates the closed trades and equity curve of
// one run. Win rate is a fraction in [0,1], not a percentage.
type PerformanceMetrics struct {
	TotalTrades int `json:"total_trades"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Breakevens  int `json:"breakevens"`

	WinRate        Float `json:"win_rate"`
	NetProfit      Float `json:"net_profit"`
	GrossProfit    Float `json:"gross_profit"`
	GrossLoss      Float `json:"gross_loss"`
	ProfitFactor   Float `json:"profit_factor"`
	ExpectedPayoff Float `json:"expected_payoff"`

	AverageWin  Float `json:"average_win"`
	AverageLoss Float `json:"average_loss"`
	LargestWin  Float `json:"largest_win"`
	LargestLoss Float `json:"largest_loss"`

	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	MaxDrawdown    Float `json:"max_drawdown"`
	MaxDrawdownPct Float `json:"max_drawdown_pct"`
	RecoveryFactor Float `json:"recovery_factor"`
	SharpeRatio    Float `json:"sharpe_ratio"`

	TotalCommission  Float   `json:"total_commission"`
	AvgTradeDuration float64 `json:"avg_trade_duration_hours"`
}

// ComputeMetrics derives the full metric set from closed trades and the
// equity curve. The timeframe sets the annualization factor for the
// Sharpe ratio.
func ComputeMetrics(trades []Trade, curve []EquityCurvePoint, tf market.Timeframe) *PerformanceMetrics {
	m := &PerformanceMetrics{}
	var (
		grossProfit, grossLoss float64
		largestWin             float64
		largestLoss            float64
		commission             float64
		heldTotal              time.Duration
		winStreak, lossStreak  int
	)
	for _, t := range trades {
		if t.CloseTime.IsZero() {
			continue
		}
		m.TotalTrades++
		commission += t.Commission
		heldTotal += t.Duration()
		switch t.Outcome {
		case OutcomeWin:
			m.Wins++
			grossProfit += t.PnL
			if t.PnL > largestWin {
				largestWin = t.PnL
			}
			winStreak++
			lossStreak = 0
			if winStreak > m.MaxConsecutiveWins {
				m.MaxConsecutiveWins = winStreak
			}
		case OutcomeLoss:
			m.Losses++
			grossLoss += -t.PnL
			if t.PnL < largestLoss {
				largestLoss = t.PnL
			}
			lossStreak++
			winStreak = 0
			if lossStreak > m.MaxConsecutiveLosses {
				m.MaxConsecutiveLosses = lossStreak
			}
		default:
			m.Breakevens++
			winStreak = 0
			lossStreak = 0
		}
	}

	net := grossProfit - grossLoss - commission
	m.NetProfit = Float(net)
	m.GrossProfit = Float(grossProfit)
	m.GrossLoss = Float(grossLoss)
	m.TotalCommission = Float(commission)
	m.LargestWin = Float(largestWin)
	m.LargestLoss = Float(largestLoss)
	m.ProfitFactor = Float(profitFactor(grossProfit, grossLoss))

	if m.TotalTrades > 0 {
		m.WinRate = Float(float64(m.Wins) / float64(m.TotalTrades))
		m.ExpectedPayoff = Float(net / float64(m.TotalTrades))
		m.AvgTradeDuration = heldTotal.Hours() / float64(m.TotalTrades)
	}
	if m.Wins > 0 {
		m.AverageWin = Float(grossProfit / float64(m.Wins))
	}
	if m.Losses > 0 {
		m.AverageLoss = Float(-grossLoss / float64(m.Losses))
	}

	dd, ddPct := maxDrawdown(curve)
	m.MaxDrawdown = Float(dd)
	m.MaxDrawdownPct = Float(ddPct)
	// Recovery factor relates the percentage return to the percentage
	// drawdown it rode through.
	if ddPct > 0 && len(curve) > 0 && curve[0].Balance > 0 {
		totalReturnPct := net / curve[0].Balance * 100
		m.RecoveryFactor = Float(totalReturnPct / ddPct)
	}
	m.SharpeRatio = Float(sharpe(curve, tf))
	return m
}

// profitFactor is gross profit over gross loss. With profits and no
// losses it is +Inf; with no profits it collapses to zero.
func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// maxDrawdown walks the equity curve tracking the running peak and
// returns the deepest absolute drop and its percentage of the peak.
func maxDrawdown(curve []EquityCurvePoint) (abs, pct float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		drop := peak - p.Equity
		if drop > abs {
			abs = drop
			if peak > 0 {
				pct = drop / peak * 100
			}
		}
	}
	return abs, pct
}

// sharpe computes the annualized Sharpe ratio of per-bar equity
// returns, assuming a zero risk-free rate. A constant equity curve has
// zero return variance, which makes the ratio undefined: NaN, not zero,
// so a flat run cannot masquerade as risk-free outperformance.
func sharpe(curve []EquityCurvePoint, tf market.Timeframe) float64 {
	if len(curve) < 2 {
		return math.NaN()
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return math.NaN()
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return math.NaN()
	}
	return mean / math.Sqrt(variance) * math.Sqrt(tf.PeriodsPerYear())
}
