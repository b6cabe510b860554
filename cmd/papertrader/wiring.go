package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/PaperTrader/internal/bot"
	"github.com/Alias1177/PaperTrader/internal/cache"
	"github.com/Alias1177/PaperTrader/internal/config"
	"github.com/Alias1177/PaperTrader/internal/database"
	"github.com/Alias1177/PaperTrader/internal/forecast"
	"github.com/Alias1177/PaperTrader/internal/notify"
	platformhttp "github.com/Alias1177/PaperTrader/internal/platform/http"
	"github.com/Alias1177/PaperTrader/internal/strategy"
	"github.com/Alias1177/PaperTrader/internal/trading/ledger"
	"github.com/Alias1177/PaperTrader/internal/trading/risk"
)

func ledgerConfig(cfg *config.Config) ledger.Config {
	return ledger.Config{
		StartingBalance: cfg.StartingBalance,
		FeeRate:         cfg.FeeRate,
		PositionRiskPct: cfg.PositionRiskPct,
	}
}

func riskConfig(cfg *config.Config) risk.Config {
	return risk.Config{
		MaxTradesPerDay: cfg.MaxTradesPerDay,
		MaxDrawdownPct:  cfg.MaxDrawdownPct,
		StopLossPct:     cfg.StopLossPct,
		TakeProfitPct:   cfg.TakeProfitPct,
		MinGainPct:      cfg.MinGainPct,
		FixedRiskPct:    cfg.FixedRiskPct,
		MinNotional:     cfg.MinNotional,
	}
}

func strategyRegistry(cfg *config.Config) (*strategy.Registry, error) {
	return strategy.Builtin(cfg.Strategies, strategy.Options{
		RSIBuyBelow:          cfg.RSIBuyBelow,
		RSISellAbove:         cfg.RSISellAbove,
		ForecastBuyThreshold: cfg.ForecastBuyThreshold,
	})
}

func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.RequestTimeout) * time.Second
}

func httpClient(cfg *config.Config) *platformhttp.Client {
	return platformhttp.NewClient(platformhttp.ClientOptions{
		Timeout:         requestTimeout(cfg),
		RequestsPerSec:  10,
		MaxRetries:      3,
		MaxRetryTimeout: 30 * time.Second,
	})
}

// forecaster returns nil when no model sidecar is configured.
func forecaster(cfg *config.Config, client *platformhttp.Client) bot.Forecaster {
	if cfg.ForecastURL == "" {
		return nil
	}
	return forecast.NewClient(cfg.ForecastURL, client)
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	if !cfg.DatabaseEnabled() {
		return nil, nil
	}
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Timeout:  requestTimeout(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// openMirror returns nil when no Redis address is configured. An unreachable Redis is only
// logged; the recorder breaker takes over from there.
func openMirror(ctx context.Context, cfg *config.Config) (*cache.Mirror, *redis.Client) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable at startup")
	}
	return cache.NewMirror(client, cfg.RedisPrefix), client
}

func openTelegram(cfg *config.Config) *notify.Telegram {
	if !cfg.TelegramEnabled() {
		return nil
	}
	tg, err := notify.New(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		log.Warn().Err(err).Msg("Telegram notifications disabled")
		return nil
	}
	return tg
}
