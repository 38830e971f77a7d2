package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smclabs/smcrun/internal/config"
	"github.com/smclabs/smcrun/internal/market"
	"github.com/smclabs/smcrun/internal/pattern"
	"github.com/smclabs/smcrun/internal/risk"
	"github.com/smclabs/smcrun/internal/signal"
	"github.com/smclabs/smcrun/internal/structure"
	"github.com/smclabs/smcrun/internal/telemetry"
)

var (
	// ErrInsufficientData means the loaded series is shorter than the
	// warmup window the configured swing strength requires.
	ErrInsufficientData = errors.New("backtest: insufficient bars for configured warmup window")
	// ErrEngineClosed means the engine already ran; build a new one.
	ErrEngineClosed = errors.New("backtest: engine is closed")
	// ErrNotLoaded means Run was called before Load.
	ErrNotLoaded = errors.New("backtest: no data loaded")
)

// engineState is the replay lifecycle. Transitions only move forward.
type engineState int

const (
	stateIdle engineState = iota
	stateLoaded
	stateClosed
)

// SignalFunc produces a candidate for the current bar from the visible
// prefix of each timeframe. Implementations must only read the series
// they are handed; prefix views make later bars unreachable.
type SignalFunc func(primary *market.Series, higher []*market.Series) *signal.Signal

// Engine replays a historical series bar by bar, feeding each prefix to
// the signal pipeline and simulating the resulting trades. An Engine is
// single-shot: after Run completes it is closed and only Result remains
// usable.
type Engine struct {
	cfg       *config.Config
	supplier  market.Supplier
	higherTFs []market.Timeframe
	signalFn  SignalFunc
	collector *telemetry.Collector

	mu      sync.Mutex
	state   engineState
	primary *market.Series
	higher  []*market.Series
	result  *ResultDocument
}

// Option configures an Engine.
type Option func(*Engine)

// WithSignalFunc replaces the default confluence pipeline, mainly for
// tests that need scripted signals.
func WithSignalFunc(fn SignalFunc) Option {
	return func(e *Engine) { e.signalFn = fn }
}

// WithTelemetry attaches a Prometheus collector. A nil collector is a
// no-op.
func WithTelemetry(c *telemetry.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithHigherTimeframes adds higher timeframes for trend alignment. They
// are loaded alongside the primary and replayed in lockstep, ordered
// shortest first regardless of the order given.
func WithHigherTimeframes(tfs ...market.Timeframe) Option {
	return func(e *Engine) {
		e.higherTFs = append([]market.Timeframe(nil), tfs...)
		sortTimeframes(e.higherTFs)
	}
}

// New builds an Engine over a supplier. A nil config falls back to
// defaults.
func New(cfg *config.Config, supplier market.Supplier, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{cfg: cfg, supplier: supplier}
	for _, opt := range opts {
		opt(e)
	}
	if e.signalFn == nil {
		e.signalFn = e.defaultSignalFunc()
	}
	return e
}

// defaultSignalFunc wires the analyzer, detector, generator and quality
// filter from the engine's config.
func (e *Engine) defaultSignalFunc() SignalFunc {
	cfg := e.cfg
	analyzer := structure.NewAnalyzer(cfg.SwingStrength)
	detector := pattern.NewDetector(cfg.FVGMinPips, cfg.LiquidityTolerancePct)
	gen := signal.NewGenerator(cfg)
	filter := signal.NewQualityFilter(cfg.QualityAcceptThreshold)
	return func(primary *market.Series, higher []*market.Series) *signal.Signal {
		pa := signal.Analyze(primary, analyzer, detector)
		has := make([]*signal.TimeframeAnalysis, 0, len(higher))
		for _, h := range higher {
			if h != nil && h.Len() > 0 {
				has = append(has, signal.Analyze(h, analyzer, detector))
			}
		}
		candidate := gen.Generate(pa, has)
		accepted := filter.Apply(candidate)
		if candidate != nil && accepted == nil {
			e.collector.SignalRejected()
		}
		return accepted
	}
}

// Load fetches the primary and higher timeframe series for the window.
// Timeframes load concurrently; the first error wins. Load may be
// called once.
func (e *Engine) Load(ctx context.Context, from, to time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case stateClosed:
		return ErrEngineClosed
	case stateLoaded:
		return errors.New("backtest: data already loaded")
	}

	tfs := append([]market.Timeframe{e.cfg.PrimaryTimeframe}, e.higherTFs...)
	series := make([]*market.Series, len(tfs))
	errs := make([]error, len(tfs))
	var wg sync.WaitGroup
	for i, tf := range tfs {
		wg.Add(1)
		go func(i int, tf market.Timeframe) {
			defer wg.Done()
			s, err := e.supplier.Get(ctx, tf, from, to)
			if err != nil {
				errs[i] = fmt.Errorf("load %s: %w", tf, err)
				return
			}
			series[i] = s
		}(i, tf)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if series[0] == nil || series[0].Len() < e.cfg.RequiredBars() {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, seriesLen(series[0]), e.cfg.RequiredBars())
	}
	e.primary = series[0]
	e.higher = series[1:]
	e.state = stateLoaded
	log.Info().
		Str("symbol", e.cfg.Symbol).
		Str("timeframe", string(e.cfg.PrimaryTimeframe)).
		Int("bars", e.primary.Len()).
		Int("higher_timeframes", len(e.higher)).
		Msg("backtest data loaded")
	return nil
}

func seriesLen(s *market.Series) int {
	if s == nil {
		return 0
	}
	return s.Len()
}

// Run replays the loaded series and closes the engine. The context is
// checked once per bar; on cancellation Run returns ctx.Err() while the
// state computed so far stays retrievable through Result.
func (e *Engine) Run(ctx context.Context) (*ResultDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case stateClosed:
		return nil, ErrEngineClosed
	case stateIdle:
		return nil, ErrNotLoaded
	}
	e.state = stateClosed

	started := time.Now()
	doc, err := e.replay(ctx)
	e.result = doc
	if err != nil {
		log.Warn().Err(err).Int("trades", len(doc.Trades)).Msg("backtest run aborted")
		return nil, err
	}
	e.collector.RunCompleted(time.Since(started).Seconds())
	log.Info().
		Int("trades", len(doc.Trades)).
		Float64("final_balance", doc.FinalBalance).
		Msg("backtest run complete")
	return doc, nil
}

// Result returns the finished run's document, or an error if the run
// has not completed.
func (e *Engine) Result() (*ResultDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil, errors.New("backtest: no result available")
	}
	return e.result, nil
}

func (e *Engine) replay(ctx context.Context) (*ResultDocument, error) {
	var (
		balance  = e.cfg.InitialBalance
		trades   []Trade
		curve    []EquityCurvePoint
		open     *Trade
		canceled error
		lastIdx  = -1
	)
	symbol := e.primary.Symbol()

	for i := e.cfg.RequiredBars(); i < e.primary.Len(); i++ {
		if err := ctx.Err(); err != nil {
			canceled = err
			break
		}
		lastIdx = i
		bar := e.primary.Bar(i)

		if open != nil {
			if closed := e.tryClose(open, bar); closed {
				balance += open.PnL - open.Commission
				e.collector.TradeClosed(string(open.Outcome))
				trades = append(trades, *open)
				open = nil
			}
		}

		if open == nil {
			prefix := e.primary.Prefix(i + 1)
			higher := make([]*market.Series, 0, len(e.higher))
			for _, h := range e.higher {
				// Only higher bars that fully closed before this bar
				// opened are visible.
				cutoff := bar.Timestamp.Add(-h.Timeframe().Duration())
				higher = append(higher, h.Before(cutoff))
			}
			if sig := e.signalFn(prefix, higher); sig != nil {
				e.collector.SignalGraded(string(sig.Grade))
				open = e.openTrade(sig, balance)
				if open != nil {
					e.collector.TradeOpened()
				}
			}
		}

		equity := balance
		if open != nil {
			equity += markToMarket(open, bar.Close)
		}
		curve = append(curve, EquityCurvePoint{Timestamp: bar.Timestamp, Balance: balance, Equity: equity})
	}

	if open != nil && lastIdx >= 0 {
		lastBar := e.primary.Bar(lastIdx)
		closeTrade(open, lastBar.Timestamp, lastBar.Close, ExitEndOfData, symbol)
		balance += open.PnL - open.Commission
		e.collector.TradeClosed(string(open.Outcome))
		trades = append(trades, *open)
		if n := len(curve); n > 0 {
			curve[n-1].Balance = balance
			curve[n-1].Equity = balance
		}
	}

	doc := &ResultDocument{
		Config:       e.cfg,
		Metrics:      ComputeMetrics(trades, curve, e.cfg.PrimaryTimeframe),
		Trades:       trades,
		EquityCurve:  curve,
		FinalBalance: balance,
		DataStart:    e.primary.Bar(0).Timestamp,
		DataEnd:      e.primary.Last().Timestamp,
	}
	if e.cfg.InitialBalance != 0 {
		doc.TotalReturnPct = Float((balance - e.cfg.InitialBalance) / e.cfg.InitialBalance * 100)
	}
	if doc.Trades == nil {
		doc.Trades = []Trade{}
	}
	if doc.EquityCurve == nil {
		doc.EquityCurve = []EquityCurvePoint{}
	}
	return doc, canceled
}

// openTrade sizes a position off the signal's stop distance. A stop at
// entry cannot be sized and yields no trade.
func (e *Engine) openTrade(sig *signal.Signal, balance float64) *Trade {
	if math.Abs(sig.EntryPrice-sig.StopLoss) < 1e-12 {
		return nil
	}
	size := risk.PositionSize(balance, e.cfg.RiskPerTradePct, sig.EntryPrice, sig.StopLoss)
	return &Trade{
		ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte("trade|"+sig.ID)).String(),
		Signal:     sig,
		OpenTime:   sig.Timestamp,
		Size:       size,
		Commission: e.cfg.CommissionPerTrade,
	}
}

// tryClose tests the bar against the open trade's exits. When a single
// bar spans both the stop and the target, the stop wins: intra-bar
// ordering is unknown, and the pessimistic reading keeps results
// honest.
func (e *Engine) tryClose(t *Trade, bar market.Bar) bool {
	sig := t.Signal
	symbol := sig.Symbol
	if sig.Side == signal.Buy {
		if bar.Low <= sig.StopLoss {
			closeTrade(t, bar.Timestamp, sig.StopLoss, ExitStopLoss, symbol)
			return true
		}
		if bar.High >= sig.TakeProfit {
			closeTrade(t, bar.Timestamp, sig.TakeProfit, ExitTakeProfit, symbol)
			return true
		}
		return false
	}
	if bar.High >= sig.StopLoss {
		closeTrade(t, bar.Timestamp, sig.StopLoss, ExitStopLoss, symbol)
		return true
	}
	if bar.Low <= sig.TakeProfit {
		closeTrade(t, bar.Timestamp, sig.TakeProfit, ExitTakeProfit, symbol)
		return true
	}
	return false
}

func closeTrade(t *Trade, ts time.Time, price float64, reason ExitReason, symbol string) {
	t.CloseTime = ts
	t.ClosePrice = price
	t.ExitReason = reason
	t.PnL = markToMarket(t, price)
	t.PnLPips = signedPips(t, price, symbol)
	switch {
	case t.PnL > 1e-9:
		t.Outcome = OutcomeWin
	case t.PnL < -1e-9:
		t.Outcome = OutcomeLoss
	default:
		t.Outcome = OutcomeBreakeven
		t.PnL = 0
	}
}

// markToMarket values the open trade at a price.
func markToMarket(t *Trade, price float64) float64 {
	diff := price - t.Signal.EntryPrice
	if t.Signal.Side == signal.Sell {
		diff = -diff
	}
	return diff * t.Size
}

func signedPips(t *Trade, price float64, symbol string) float64 {
	diff := price - t.Signal.EntryPrice
	if t.Signal.Side == signal.Sell {
		diff = -diff
	}
	pips := market.ToPips(symbol, math.Abs(diff))
	if diff < 0 {
		return -pips
	}
	return pips
}

// Run is the one-call convenience wrapper: build, load, replay.
func Run(ctx context.Context, cfg *config.Config, supplier market.Supplier, from, to time.Time, opts ...Option) (*ResultDocument, error) {
	e := New(cfg, supplier, opts...)
	if err := e.Load(ctx, from, to); err != nil {
		return nil, err
	}
	return e.Run(ctx)
}

// sortTimeframes orders timeframes shortest first so map-derived lists
// replay deterministically.
func sortTimeframes(tfs []market.Timeframe) {
	sort.Slice(tfs, func(i, j int) bool {
		return tfs[i].Duration() < tfs[j].Duration()
	})
}
