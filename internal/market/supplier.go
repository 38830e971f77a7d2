package market

import (
	"context"
	"fmt"
	"time"
)

// Supplier is the input contract of the engine: something that can
// produce an ordered bar series for a timeframe and window. The core
// never calls a broker or network layer directly; callers hand it a
// Supplier backed by whatever storage they have.
type Supplier interface {
	Get(ctx context.Context, tf Timeframe, from, to time.Time) (*Series, error)
}

// MemorySupplier serves pre-materialized series from memory. It is the
// supplier used for historical replays, where all data is loaded before
// the run starts.
type MemorySupplier struct {
	symbol string
	series map[Timeframe]*Series
}

// NewMemorySupplier creates an empty in-memory supplier for one symbol.
func NewMemorySupplier(symbol string) *MemorySupplier {
	return &MemorySupplier{symbol: symbol, series: make(map[Timeframe]*Series)}
}

// Put registers a series under its timeframe, replacing any previous one.
func (m *MemorySupplier) Put(s *Series) {
	m.series[s.Timeframe()] = s
}

// Get returns the bars of the requested timeframe restricted to
// [from, to]. Fails when the timeframe was never loaded.
func (m *MemorySupplier) Get(_ context.Context, tf Timeframe, from, to time.Time) (*Series, error) {
	s, ok := m.series[tf]
	if !ok {
		return nil, fmt.Errorf("no %s series loaded for %s", tf, m.symbol)
	}
	bars := make([]Bar, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		b := s.Bar(i)
		if b.Timestamp.Before(from) || b.Timestamp.After(to) {
			continue
		}
		bars = append(bars, b)
	}
	return NewSeries(s.Symbol(), tf, bars)
}
