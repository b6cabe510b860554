package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Alias1177/PaperTrader/internal/api/binance"
	"github.com/Alias1177/PaperTrader/internal/config"
	"github.com/Alias1177/PaperTrader/internal/features"
	"github.com/Alias1177/PaperTrader/internal/trading/backtest"
	"github.com/Alias1177/PaperTrader/models"
)

var (
	backtestSymbols []string
	backtestDays    int
	backtestSource  string
	backtestVerbose bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical candles through the trading pipeline",
	Long: `Replay historical candles through the same strategies, risk gate and ledger
used for live trading, then print performance metrics.

Examples:
  papertrader backtest --days 30
  papertrader backtest --symbols BTCUSDT,ETHUSDT --source rest`,
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringSliceVar(&backtestSymbols, "symbols", nil, "Symbols to replay (default: configured symbols)")
	backtestCmd.Flags().IntVar(&backtestDays, "days", 30, "Number of days to replay")
	backtestCmd.Flags().StringVar(&backtestSource, "source", "auto", "Candle source: auto, db or rest")
	backtestCmd.Flags().BoolVar(&backtestVerbose, "verbose", false, "Log every decision")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if backtestDays <= 0 {
		return fmt.Errorf("days must be positive, got %d", backtestDays)
	}
	if !backtestVerbose && zerolog.GlobalLevel() < zerolog.WarnLevel {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
	symbols := cfg.Symbols
	if len(backtestSymbols) > 0 {
		symbols = backtestSymbols
	}

	ctx := cmd.Context()
	source, closeSource, err := backtestCandleSource(ctx, cfg, backtestSource)
	if err != nil {
		return err
	}
	defer closeSource()

	registry, err := strategyRegistry(cfg)
	if err != nil {
		return err
	}

	engine := backtest.NewEngine(source, registry, forecaster(cfg, httpClient(cfg)), backtest.Config{
		Symbols:    symbols,
		Interval:   cfg.Interval,
		WindowSize: cfg.WindowSize,
		MinRows:    cfg.MinRows,
		Quorum:     cfg.ConsensusQuorum,
		Features:   features.DefaultParams(),
		Ledger:     ledgerConfig(cfg),
		Risk:       riskConfig(cfg),
	})

	to := time.Now().UTC()
	from := to.Add(-time.Duration(backtestDays) * 24 * time.Hour)
	results, err := engine.Run(ctx, from, to)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	fmt.Println(results.Format())
	return nil
}

// backtestCandleSource picks the stored market data or the Binance REST history.
func backtestCandleSource(ctx context.Context, cfg *config.Config, kind string) (backtest.Source, func(), error) {
	kind = strings.ToLower(kind)
	switch kind {
	case "auto", "db":
		if kind == "auto" && !cfg.DatabaseEnabled() {
			break
		}
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if db == nil {
			return nil, nil, fmt.Errorf("database source requested but DB_HOST/DB_NAME are not set")
		}
		return db, func() { db.Close() }, nil
	case "rest":
	default:
		return nil, nil, fmt.Errorf("unknown candle source %q", kind)
	}

	client := binance.NewClient(cfg.BinanceRESTURL, httpClient(cfg))
	source := backtest.SourceFunc(func(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
		return client.GetHistoricalCandles(ctx, symbol, cfg.Interval, from, to)
	})
	return source, func() {}, nil
}
