package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/PaperTrader/internal/config"
)

func TestConfigMapping(t *testing.T) {
	cfg := config.Default()
	cfg.StopLossPct = 0.02
	cfg.PositionRiskPct = 0.25

	assert.Equal(t, 0.25, ledgerConfig(cfg).PositionRiskPct)
	assert.Equal(t, cfg.StartingBalance, ledgerConfig(cfg).StartingBalance)
	assert.Equal(t, 0.02, riskConfig(cfg).StopLossPct)
	assert.Equal(t, cfg.MaxTradesPerDay, riskConfig(cfg).MaxTradesPerDay)

	registry, err := strategyRegistry(cfg)
	require.NoError(t, err)
	assert.Len(t, registry.Names(), len(cfg.Strategies))
}

func TestForecasterOptional(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, forecaster(cfg, httpClient(cfg)))

	cfg.ForecastURL = "http://localhost:8000"
	assert.NotNil(t, forecaster(cfg, httpClient(cfg)))
}

func TestSummarySince(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), summarySince(now, 1))
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), summarySince(now, 7))
	assert.Equal(t, summarySince(now, 1), summarySince(now, 0))
}

func TestBacktestCandleSource(t *testing.T) {
	cfg := config.Default()

	source, closeFn, err := backtestCandleSource(context.Background(), cfg, "auto")
	require.NoError(t, err)
	assert.NotNil(t, source, "falls back to REST without a database")
	closeFn()

	_, _, err = backtestCandleSource(context.Background(), cfg, "db")
	assert.ErrorContains(t, err, "database source requested")

	_, _, err = backtestCandleSource(context.Background(), cfg, "csv")
	assert.ErrorContains(t, err, "unknown candle source")
}

func TestSetupLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	setupLogger("debug", "json")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	setupLogger("nonsense", "console")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
