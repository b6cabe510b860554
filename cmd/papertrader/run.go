package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alias1177/PaperTrader/internal/api/binance"
	"github.com/Alias1177/PaperTrader/internal/bot"
	"github.com/Alias1177/PaperTrader/internal/config"
	"github.com/Alias1177/PaperTrader/internal/features"
	"github.com/Alias1177/PaperTrader/internal/recorder"
	"github.com/Alias1177/PaperTrader/internal/trading/execution"
	"github.com/Alias1177/PaperTrader/internal/trading/ledger"
	"github.com/Alias1177/PaperTrader/internal/trading/risk"
	"github.com/Alias1177/PaperTrader/models"
)

var (
	runResume          bool
	runShutdownTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trade live candles on the paper account",
	Long: `Subscribe to the Binance kline stream for every configured symbol and trade
closed candles on the paper account. Trades and executed signals are persisted
to PostgreSQL, mirrored to Redis and announced on Telegram when configured.

Examples:
  papertrader run
  SYMBOLS=BTCUSDT,ETHUSDT INTERVAL=5m papertrader run --resume`,
	RunE: runBot,
}

func init() {
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Start from the persisted balance and open positions")
	runCmd.Flags().DurationVar(&runShutdownTimeout, "shutdown-timeout", 10*time.Second, "Time allowed to flush pending records")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	var (
		sinks []recorder.Sink
		store bot.CandleStore
	)
	if db != nil {
		defer db.Close()
		sinks = append(sinks, db)
		store = db
	}
	if mirror, client := openMirror(ctx, cfg); mirror != nil {
		defer client.Close()
		sinks = append(sinks, mirror)
	}
	if tg := openTelegram(cfg); tg != nil {
		sinks = append(sinks, tg)
	}

	accountCfg := ledgerConfig(cfg)
	var openPositions []models.Position
	if runResume && db != nil {
		balance, ok, err := db.LatestBalance(ctx)
		if err != nil {
			return err
		}
		if ok {
			log.Info().Float64("balance", balance).Msg("Resuming from persisted balance")
			accountCfg.StartingBalance = balance
		}
		if openPositions, err = db.OpenPositions(ctx); err != nil {
			return err
		}
	}

	registry, err := strategyRegistry(cfg)
	if err != nil {
		return err
	}

	rec := recorder.New(recorder.Options{QueueSize: cfg.RecorderQueue}, sinks...)
	account := ledger.NewAccount(accountCfg)
	if len(openPositions) > 0 {
		account.RestorePositions(openPositions)
		log.Info().Int("positions", len(openPositions)).Msg("Restored open positions")
	}
	coordinator := execution.NewCoordinator(account, risk.NewGate(riskConfig(cfg)), rec)

	client := httpClient(cfg)
	pipeline := bot.NewPipeline(features.DefaultParams(), registry, cfg.ConsensusQuorum, forecaster(cfg, client), coordinator)
	b := bot.New(bot.Options{
		Symbols:    cfg.Symbols,
		Interval:   cfg.Interval,
		WindowSize: cfg.WindowSize,
		MinRows:    cfg.MinRows,
	}, binance.NewStream(cfg.BinanceWSURL), binance.NewClient(cfg.BinanceRESTURL, client), store, pipeline)

	metricsSrv := serveMetrics(cfg)
	logger := log.With().Str("component", "summary").Logger()
	go recorder.RunSummaries(ctx, account, cfg.PnLLogInterval, logger)

	log.Info().
		Strs("symbols", cfg.Symbols).
		Str("interval", cfg.Interval).
		Strs("strategies", registry.Names()).
		Int("sinks", len(sinks)).
		Float64("balance", account.Balance()).
		Msg("Paper trader started")

	runErr := b.Run(ctx)
	if runErr != nil {
		log.Error().Err(runErr).Msg("Runners stopped with errors")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), runShutdownTimeout)
	defer cancel()
	if err := rec.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Recorder did not drain before shutdown")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	recorder.LogSummary(logger, recorder.SummarizeAccount(account))

	return runErr
}

func serveMetrics(cfg *config.Config) *http.Server {
	if cfg.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server failed")
		}
	}()
	log.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
	return srv
}
