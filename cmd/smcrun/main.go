package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smclabs/smcrun/internal/backtest"
	"github.com/smclabs/smcrun/internal/config"
	"github.com/smclabs/smcrun/internal/market"
	"github.com/smclabs/smcrun/internal/persistence/postgres"
	"github.com/smclabs/smcrun/internal/telemetry"
)

const (
	appName = "smcrun"
	version = "v0.3.0"
)

type backtestFlags struct {
	configPath string
	dataPath   string
	outPath    string
	higherTFs  []string
	redisAddr  string
	pgDSN      string
	verbose    bool
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	// .env is optional; flags and config files win over it.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Smart-money-concepts backtest runner",
		Version: version,
		Long: `smcrun replays historical price data bar by bar, detects
smart-money structures (order blocks, fair value gaps, liquidity pools),
scores confluence into graded signals and reports trade performance.`,
	}

	flags := &backtestFlags{}
	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a bar-by-bar replay over a CSV data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd.Context(), flags)
		},
	}
	backtestCmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file (defaults apply when omitted)")
	backtestCmd.Flags().StringVarP(&flags.dataPath, "data", "d", "", "CSV file with timestamp,open,high,low,close,volume")
	backtestCmd.Flags().StringVarP(&flags.outPath, "out", "o", "", "write the result document JSON here (default stdout)")
	backtestCmd.Flags().StringSliceVar(&flags.higherTFs, "higher-tf", nil, "higher timeframes for trend alignment (e.g. H4,D1)")
	backtestCmd.Flags().StringVar(&flags.redisAddr, "redis-addr", os.Getenv("SMCRUN_REDIS_ADDR"), "redis address for the series cache")
	backtestCmd.Flags().StringVar(&flags.pgDSN, "pg-dsn", os.Getenv("SMCRUN_PG_DSN"), "postgres DSN to persist the result document")
	backtestCmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	_ = backtestCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(backtestCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runBacktest(ctx context.Context, flags *backtestFlags) error {
	if flags.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	supplier, window, err := buildSupplier(cfg, flags)
	if err != nil {
		return err
	}

	opts := []backtest.Option{
		backtest.WithTelemetry(telemetry.NewCollector(prometheus.DefaultRegisterer)),
	}
	if len(flags.higherTFs) > 0 {
		tfs := make([]market.Timeframe, 0, len(flags.higherTFs))
		for _, raw := range flags.higherTFs {
			tf := market.Timeframe(raw)
			if !tf.Valid() {
				return fmt.Errorf("unknown timeframe %q", raw)
			}
			tfs = append(tfs, tf)
		}
		opts = append(opts, backtest.WithHigherTimeframes(tfs...))
	}

	doc, err := backtest.Run(ctx, cfg, supplier, window.from, window.to, opts...)
	if err != nil {
		return err
	}

	if flags.pgDSN != "" {
		if err := persistResult(ctx, flags.pgDSN, doc); err != nil {
			log.Error().Err(err).Msg("persisting result failed")
		}
	}
	return writeResult(doc, flags.outPath)
}

type dataWindow struct {
	from, to time.Time
}

// buildSupplier loads the CSV into a memory supplier, optionally
// wrapped in the redis read-through cache, and returns the full data
// window.
func buildSupplier(cfg *config.Config, flags *backtestFlags) (market.Supplier, dataWindow, error) {
	series, err := market.LoadCSV(flags.dataPath, cfg.Symbol, cfg.PrimaryTimeframe)
	if err != nil {
		return nil, dataWindow{}, err
	}
	mem := market.NewMemorySupplier(cfg.Symbol)
	mem.Put(series)
	for _, raw := range flags.higherTFs {
		tf := market.Timeframe(raw)
		if !tf.Valid() {
			return nil, dataWindow{}, fmt.Errorf("unknown timeframe %q", raw)
		}
		resampled, err := market.Resample(series, tf)
		if err != nil {
			return nil, dataWindow{}, err
		}
		mem.Put(resampled)
	}

	window := dataWindow{
		from: series.Bar(0).Timestamp,
		to:   series.Last().Timestamp.Add(time.Second),
	}
	if flags.redisAddr == "" {
		return mem, window, nil
	}
	cache := market.NewSeriesCache(flags.redisAddr, 0, time.Hour)
	return market.NewCachedSupplier(cfg.Symbol, mem, cache), window, nil
}

func persistResult(ctx context.Context, dsn string, doc *backtest.ResultDocument) error {
	repo, err := postgres.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err = repo.Save(ctx, doc)
	return err
}

func writeResult(doc *backtest.ResultDocument, path string) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result document: %w", err)
	}
	payload = append(payload, '\n')
	if path == "" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write result document: %w", err)
	}
	log.Info().Str("path", path).Msg("result document written")
	return nil
}
