package market

import (
	"fmt"
	"time"
)

// Resample aggregates a series into a higher timeframe by bucketing
// bars on the target duration: first open, max high, min low, last
// close, summed volume. Buckets align to the Unix epoch, so an H1
// series resampled to H4 buckets at 00:00, 04:00, 08:00 and so on.
func Resample(s *Series, target Timeframe) (*Series, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("resample: unknown timeframe %q", target)
	}
	src := s.Timeframe().Duration()
	dst := target.Duration()
	if dst <= src {
		return nil, fmt.Errorf("resample: %s is not above %s", target, s.Timeframe())
	}

	var (
		out    []Bar
		cur    Bar
		bucket time.Time
		open   bool
	)
	flush := func() {
		if open {
			out = append(out, cur)
			open = false
		}
	}
	for i := 0; i < s.Len(); i++ {
		b := s.Bar(i)
		bs := b.Timestamp.Truncate(dst)
		if !open || !bs.Equal(bucket) {
			flush()
			bucket = bs
			cur = Bar{Timestamp: bs, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
			open = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	flush()
	return NewSeries(s.Symbol(), target, out)
}
