package backtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smclabs/smcrun/internal/config"
	"github.com/smclabs/smcrun/internal/market"
	"github.com/smclabs/smcrun/internal/signal"
)

var testStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// quietSupplier serves n calm bars around 1.1000 with an optional
// override per index.
func quietSupplier(t *testing.T, n int, override map[int]market.Bar) (*market.MemorySupplier, time.Time, time.Time) {
	t.Helper()
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Timestamp: testStart.Add(time.Duration(i) * time.Hour),
			Open:      1.1000, High: 1.1005, Low: 1.0995, Close: 1.1000,
			Volume: 1000,
		}
		if b, ok := override[i]; ok {
			b.Timestamp = bars[i].Timestamp
			b.Volume = 1000
			bars[i] = b
		}
	}
	s, err := market.NewSeries("EURUSD", market.H1, bars)
	require.NoError(t, err)
	sup := market.NewMemorySupplier("EURUSD")
	sup.Put(s)
	return sup, bars[0].Timestamp, bars[n-1].Timestamp
}

func noSignals(*market.Series, []*market.Series) *signal.Signal { return nil }

// buyAt emits one fixed buy signal the first time the prefix reaches
// the given length.
func buyAt(prefixLen int, entry, sl, tp float64) SignalFunc {
	fired := false
	return func(primary *market.Series, _ []*market.Series) *signal.Signal {
		if fired || primary.Len() != prefixLen {
			return nil
		}
		fired = true
		return &signal.Signal{
			ID:         "test-signal",
			Timestamp:  primary.Last().Timestamp,
			Symbol:     primary.Symbol(),
			Side:       signal.Buy,
			EntryPrice: entry,
			StopLoss:   sl,
			TakeProfit: tp,
			Factors:    []signal.Factor{signal.FactorOrderBlock, signal.FactorStructureBreak, signal.FactorLiquiditySweep},
			Quality:    0.78,
			Grade:      signal.GradeProfessional,
			RiskReward: 3.0,
		}
	}
}

func TestEngine_InsufficientData(t *testing.T) {
	cfg := config.Default() // needs 20 bars
	sup, from, to := quietSupplier(t, 10, nil)

	e := New(cfg, sup)
	err := e.Load(context.Background(), from, to)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEngine_Lifecycle(t *testing.T) {
	cfg := config.Default()
	sup, from, to := quietSupplier(t, 30, nil)

	e := New(cfg, sup, WithSignalFunc(noSignals))
	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, e.Load(context.Background(), from, to))
	assert.Error(t, e.Load(context.Background(), from, to), "double load is rejected")

	doc, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, doc)

	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrEngineClosed)

	got, err := e.Result()
	require.NoError(t, err)
	assert.Same(t, doc, got)
}

func TestEngine_NoSignalsIsAFlatRun(t *testing.T) {
	cfg := config.Default()
	sup, from, to := quietSupplier(t, 30, nil)

	doc, err := Run(context.Background(), cfg, sup, from, to, WithSignalFunc(noSignals))
	require.NoError(t, err)

	assert.Empty(t, doc.Trades)
	assert.Equal(t, cfg.InitialBalance, doc.FinalBalance)
	assert.Zero(t, float64(doc.TotalReturnPct))
	assert.Equal(t, 0, doc.Metrics.TotalTrades)
	assert.Len(t, doc.EquityCurve, 30-cfg.RequiredBars())
	for _, p := range doc.EquityCurve {
		assert.Equal(t, cfg.InitialBalance, p.Equity)
	}
}

func TestEngine_StopBeforeTargetOnTheSameBar(t *testing.T) {
	cfg := config.Default()
	// Bar 26 spans both the stop and the target.
	sup, from, to := quietSupplier(t, 30, map[int]market.Bar{
		26: {Open: 1.1000, High: 1.1200, Low: 1.0900, Close: 1.1000},
	})

	doc, err := Run(context.Background(), cfg, sup, from, to,
		WithSignalFunc(buyAt(25, 1.1000, 1.0950, 1.1150)))
	require.NoError(t, err)
	require.Len(t, doc.Trades, 1)

	tr := doc.Trades[0]
	assert.Equal(t, ExitStopLoss, tr.ExitReason, "ambiguous bars resolve pessimistically to the stop")
	assert.Equal(t, OutcomeLoss, tr.Outcome)
	assert.InDelta(t, 1.0950, tr.ClosePrice, 1e-9)
	assert.InDelta(t, -50.0, tr.PnLPips, 1e-9)

	// 1% of 10000 over a 50-pip stop sizes 20000 units; the stop costs
	// the risked 100.
	assert.InDelta(t, 20000, tr.Size, 1e-9)
	assert.InDelta(t, -100, tr.PnL, 1e-9)
	assert.InDelta(t, cfg.InitialBalance-100, doc.FinalBalance, 1e-9)
}

func TestEngine_TakeProfitExit(t *testing.T) {
	cfg := config.Default()
	sup, from, to := quietSupplier(t, 30, map[int]market.Bar{
		27: {Open: 1.1000, High: 1.1160, Low: 1.0990, Close: 1.1150},
	})

	doc, err := Run(context.Background(), cfg, sup, from, to,
		WithSignalFunc(buyAt(25, 1.1000, 1.0950, 1.1150)))
	require.NoError(t, err)
	require.Len(t, doc.Trades, 1)

	tr := doc.Trades[0]
	assert.Equal(t, ExitTakeProfit, tr.ExitReason)
	assert.Equal(t, OutcomeWin, tr.Outcome)
	assert.InDelta(t, 150.0, tr.PnLPips, 1e-9)
	assert.InDelta(t, 300.0, tr.PnL, 1e-9)
	assert.InDelta(t, cfg.InitialBalance+300, doc.FinalBalance, 1e-9)
}

func TestEngine_OpenTradeClosedAtEndOfData(t *testing.T) {
	cfg := config.Default()
	sup, from, to := quietSupplier(t, 30, nil)

	// Neither exit is reachable in quiet bars.
	doc, err := Run(context.Background(), cfg, sup, from, to,
		WithSignalFunc(buyAt(25, 1.1000, 1.0900, 1.1200)))
	require.NoError(t, err)
	require.Len(t, doc.Trades, 1)

	tr := doc.Trades[0]
	assert.Equal(t, ExitEndOfData, tr.ExitReason)
	assert.Equal(t, OutcomeBreakeven, tr.Outcome, "closing at the entry price realizes nothing")
	assert.InDelta(t, 1.1000, tr.ClosePrice, 1e-9)
	assert.Equal(t, doc.FinalBalance, doc.EquityCurve[len(doc.EquityCurve)-1].Balance)
}

func TestEngine_Cancellation(t *testing.T) {
	cfg := config.Default()
	sup, from, to := quietSupplier(t, 30, nil)

	e := New(cfg, sup, WithSignalFunc(noSignals))
	require.NoError(t, e.Load(context.Background(), from, to))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// State computed before the cancellation point stays readable.
	doc, err := e.Result()
	require.NoError(t, err)
	assert.Empty(t, doc.Trades)
	assert.Empty(t, doc.EquityCurve)
	assert.Equal(t, cfg.InitialBalance, doc.FinalBalance)

	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrEngineClosed, "a cancelled engine stays closed")
}

func TestEngine_DeterministicResultDocument(t *testing.T) {
	cfg := config.Default()

	runOnce := func() []byte {
		sup, from, to := quietSupplier(t, 40, map[int]market.Bar{
			27: {Open: 1.1000, High: 1.1160, Low: 1.0990, Close: 1.1150},
		})
		doc, err := Run(context.Background(), cfg, sup, from, to,
			WithSignalFunc(buyAt(25, 1.1000, 1.0950, 1.1150)))
		require.NoError(t, err)
		raw, err := json.Marshal(doc)
		require.NoError(t, err)
		return raw
	}

	assert.Equal(t, string(runOnce()), string(runOnce()),
		"identical data and config must serialize to identical documents")
}

func TestEngine_HigherTimeframesLoadAndSort(t *testing.T) {
	cfg := config.Default()
	sup, from, to := quietSupplier(t, 30, nil)

	// The H4 feed is derived from the same bars.
	primary, err := sup.Get(context.Background(), market.H1, from, to)
	require.NoError(t, err)
	h4, err := market.Resample(primary, market.H4)
	require.NoError(t, err)
	d1, err := market.Resample(primary, market.D1)
	require.NoError(t, err)
	sup.Put(h4)
	sup.Put(d1)

	var sawHigher int
	fn := func(_ *market.Series, higher []*market.Series) *signal.Signal {
		sawHigher = len(higher)
		return nil
	}
	_, err = Run(context.Background(), cfg, sup, from, to,
		WithSignalFunc(fn), WithHigherTimeframes(market.D1, market.H4))
	require.NoError(t, err)
	assert.Equal(t, 2, sawHigher)
}

func TestEngine_PrefixViewsNeverReachAhead(t *testing.T) {
	cfg := config.Default()
	sup, from, to := quietSupplier(t, 30, nil)

	var lens []int
	fn := func(primary *market.Series, _ []*market.Series) *signal.Signal {
		lens = append(lens, primary.Len())
		return nil
	}
	_, err := Run(context.Background(), cfg, sup, from, to, WithSignalFunc(fn))
	require.NoError(t, err)

	// The prefix grows one bar per step, starting past the warmup
	// window; the final view covers the full series and nothing beyond.
	require.Len(t, lens, 30-cfg.RequiredBars())
	for i, n := range lens {
		assert.Equal(t, cfg.RequiredBars()+i+1, n)
	}
	assert.Equal(t, 30, lens[len(lens)-1])
}

func TestEngine_HigherTimeframeLoadFailure(t *testing.T) {
	cfg := config.Default()
	sup, from, to := quietSupplier(t, 30, nil)

	e := New(cfg, sup, WithSignalFunc(noSignals), WithHigherTimeframes(market.H4))
	err := e.Load(context.Background(), from, to)
	require.Error(t, err, "a higher timeframe the supplier cannot serve fails the load")
	assert.Contains(t, err.Error(), "H4")
}
