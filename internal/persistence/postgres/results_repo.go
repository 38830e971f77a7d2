// Package postgres persists backtest result documents for later
// comparison across runs.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/smclabs/smcrun/internal/backtest"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
    id          BIGSERIAL PRIMARY KEY,
    symbol      TEXT        NOT NULL,
    timeframe   TEXT        NOT NULL,
    data_start  TIMESTAMPTZ NOT NULL,
    data_end    TIMESTAMPTZ NOT NULL,
    document    JSONB       NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_backtest_results_symbol
    ON backtest_results (symbol, timeframe, created_at DESC);
`

// ResultsRepo stores result documents in Postgres as JSONB rows keyed
// by symbol and timeframe.
type ResultsRepo struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*ResultsRepo, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &ResultsRepo{db: db}, nil
}

// NewResultsRepo wraps an existing connection, mainly for tests.
func NewResultsRepo(db *sqlx.DB) *ResultsRepo {
	return &ResultsRepo{db: db}
}

// EnsureSchema creates the results table if it does not exist.
func (r *ResultsRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure results schema: %w", err)
	}
	return nil
}

// Save inserts one result document and returns its row id.
func (r *ResultsRepo) Save(ctx context.Context, doc *backtest.ResultDocument) (int64, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshal result document: %w", err)
	}
	var id int64
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO backtest_results (symbol, timeframe, data_start, data_end, document)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		doc.Config.Symbol, string(doc.Config.PrimaryTimeframe), doc.DataStart, doc.DataEnd, payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert result document: %w", err)
	}
	log.Info().Int64("result_id", id).Str("symbol", doc.Config.Symbol).Msg("backtest result saved")
	return id, nil
}

// Latest fetches the most recent stored document for a symbol and
// timeframe, or nil when none exists.
func (r *ResultsRepo) Latest(ctx context.Context, symbol, timeframe string) (*backtest.ResultDocument, error) {
	var payload []byte
	err := r.db.QueryRowxContext(ctx,
		`SELECT document FROM backtest_results
		 WHERE symbol = $1 AND timeframe = $2
		 ORDER BY created_at DESC LIMIT 1`,
		symbol, timeframe,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest result: %w", err)
	}
	var doc backtest.ResultDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode result document: %w", err)
	}
	return &doc, nil
}

// Close releases the connection pool.
func (r *ResultsRepo) Close() error { return r.db.Close() }
