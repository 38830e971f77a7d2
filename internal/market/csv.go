package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// LoadCSV reads an OHLCV series from a CSV file with the header
// timestamp,open,high,low,close,volume. Timestamps are RFC3339 or
// "2006-01-02 15:04:05". The volume column is optional.
func LoadCSV(path, symbol string, tf Timeframe) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bars file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) < 5 {
		return nil, fmt.Errorf("CSV header needs at least timestamp,open,high,low,close: got %d columns", len(header))
	}

	var bars []Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		bar, err := parseBarRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}

	series, err := NewSeries(symbol, tf, bars)
	if err != nil {
		return nil, err
	}
	log.Info().Str("symbol", symbol).Str("timeframe", string(tf)).
		Int("bars", series.Len()).Str("path", path).Msg("Loaded bar series")
	return series, nil
}

func parseBarRecord(rec []string) (Bar, error) {
	if len(rec) < 5 {
		return Bar{}, fmt.Errorf("expected at least 5 fields, got %d", len(rec))
	}
	ts, err := parseTimestamp(rec[0])
	if err != nil {
		return Bar{}, err
	}
	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad price field %q: %w", rec[i+1], err)
		}
		vals[i] = v
	}
	volume := 0.0
	if len(rec) > 5 && rec[5] != "" {
		if volume, err = strconv.ParseFloat(rec[5], 64); err != nil {
			return Bar{}, fmt.Errorf("bad volume field %q: %w", rec[5], err)
		}
	}
	return Bar{Timestamp: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: volume}, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
