package backtest

import (
	"time"

	"github.com/smclabs/smcrun/internal/config"
	"github.com/smclabs/smcrun/internal/signal"
)

// Outcome classifies a closed trade by its realized profit.
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeLoss      Outcome = "loss"
	OutcomeBreakeven Outcome = "breakeven"
)

// ExitReason records what closed the trade.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitEndOfData  ExitReason = "end_of_data"
)

// Trade is one simulated position from open to close. Open trades have
// a zero CloseTime and empty Outcome.
type Trade struct {
	ID         string         `json:"id"`
	Signal     *signal.Signal `json:"signal"`
	OpenTime   time.Time      `json:"open_time"`
	CloseTime  time.Time      `json:"close_time"`
	ClosePrice float64        `json:"close_price"`
	Size       float64        `json:"size"`
	PnL        float64        `json:"pnl"`
	PnLPips    float64        `json:"pnl_pips"`
	Commission float64        `json:"commission"`
	Outcome    Outcome        `json:"outcome"`
	ExitReason ExitReason     `json:"exit_reason"`
}

// Duration returns the held time of a closed trade.
func (t *Trade) Duration() time.Duration {
	if t.CloseTime.IsZero() {
		return 0
	}
	return t.CloseTime.Sub(t.OpenTime)
}

// EquityCurvePoint snapshots account state after one replay bar.
// Balance counts only realized profit; Equity marks open positions to
// the bar close.
type EquityCurvePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
	Equity    float64   `json:"equity"`
}

// ResultDocument is the full serializable output of one backtest run.
// The top-level key names are a published contract consumed by report
// exporters and dashboards; do not rename them.
type ResultDocument struct {
	Config         *config.Config      `json:"config"`
	Metrics        *PerformanceMetrics `json:"metrics"`
	Trades         []Trade             `json:"trades"`
	EquityCurve    []EquityCurvePoint  `json:"equityCurve"`
	TotalReturnPct Float               `json:"totalReturnPct"`
	FinalBalance   float64             `json:"finalBalance"`
	DataStart      time.Time           `json:"dataStart"`
	DataEnd        time.Time           `json:"dataEnd"`
}
