package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/PaperTrader/internal/features"
	"github.com/Alias1177/PaperTrader/internal/strategy"
	"github.com/Alias1177/PaperTrader/internal/trading/ledger"
	"github.com/Alias1177/PaperTrader/internal/trading/risk"
	"github.com/Alias1177/PaperTrader/models"
)

var start = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func series(symbol string, closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return out
}

func memSource(data map[string][]models.Candle) Source {
	return SourceFunc(func(_ context.Context, symbol string, _, _ time.Time) ([]models.Candle, error) {
		candles, ok := data[symbol]
		if !ok {
			return nil, errors.New("no data")
		}
		return candles, nil
	})
}

func priceRule(name string) strategy.Evaluator {
	return strategy.Func{StrategyName: name, Fn: func(row models.FeatureRow, _ *models.FeatureRow) (*models.Signal, error) {
		switch row.Close {
		case 110:
			return &models.Signal{Strategy: name, Action: models.ActionBuy, Reason: "entry"}, nil
		case 120, 104:
			return &models.Signal{Strategy: name, Action: models.ActionSell, Reason: "exit"}, nil
		}
		return nil, nil
	}}
}

func testConfig(symbols ...string) Config {
	return Config{
		Symbols:    symbols,
		Interval:   "1h",
		WindowSize: 10,
		MinRows:    1,
		Quorum:     2,
		Features:   features.DefaultParams(),
		Ledger:     ledger.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
	}
}

func TestRunReplaysTrades(t *testing.T) {
	source := memSource(map[string][]models.Candle{
		"BTCUSDT": series("BTCUSDT", 100, 110, 115, 120, 100, 110, 104),
	})
	engine := NewEngine(source, strategy.NewRegistry(priceRule("a"), priceRule("b")), nil, testConfig("BTCUSDT"))

	res, err := engine.Run(context.Background(), start, start.Add(7*time.Hour))
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, risk.ReasonTakeProfit, res.Trades[0].Reason)
	assert.Equal(t, risk.ReasonStopLoss, res.Trades[1].Reason)

	assert.Equal(t, 2, res.TotalTrades)
	assert.Equal(t, 1, res.WinningTrades)
	assert.Equal(t, 1, res.LosingTrades)
	assert.Equal(t, 50.0, res.WinPercentage)
	assert.Equal(t, 1, res.MaxConsecutive.Wins)
	assert.Equal(t, 1, res.MaxConsecutive.Losses)
	assert.Greater(t, res.ProfitFactor, 0.0)
	assert.Equal(t, 0, res.OpenPositions)
	assert.Equal(t, 4, res.Decisions)

	assert.InDelta(t, res.Trades[0].NetPnL+res.Trades[1].NetPnL, res.TotalPnL, 1e-9)
	assert.InDelta(t, res.StartingBalance+res.TotalPnL, res.FinalBalance, 1e-9)
	require.Len(t, res.EquityCurve, 7)
	assert.InDelta(t, res.FinalBalance, res.EquityCurve[6].Equity, 1e-9)
	assert.Contains(t, res.MonthlyReturns, "2024-03")

	out := res.Format()
	assert.Contains(t, out, "BACKTEST RESULTS")
	assert.Contains(t, out, "2024-03")
}

func TestRunMarksOpenPositions(t *testing.T) {
	source := memSource(map[string][]models.Candle{
		"BTCUSDT": series("BTCUSDT", 100, 110, 115),
		"ETHUSDT": series("ETHUSDT", 100, 100, 100),
	})
	engine := NewEngine(source, strategy.NewRegistry(priceRule("a"), priceRule("b")), nil, testConfig("BTCUSDT", "ETHUSDT"))

	res, err := engine.Run(context.Background(), start, start.Add(3*time.Hour))
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	assert.Equal(t, 1, res.OpenPositions)
	require.Len(t, res.EquityCurve, 3, "one point per timestamp across symbols")
	assert.Greater(t, res.EquityCurve[2].Equity, res.StartingBalance, "unrealized gain is marked")
	assert.Equal(t, res.StartingBalance, res.FinalBalance)
}

func TestRunSourceErrors(t *testing.T) {
	engine := NewEngine(memSource(nil), strategy.NewRegistry(), nil, testConfig("BTCUSDT"))
	_, err := engine.Run(context.Background(), start, start.Add(time.Hour))
	assert.ErrorContains(t, err, "failed to fetch historical data for BTCUSDT")

	short := memSource(map[string][]models.Candle{"BTCUSDT": series("BTCUSDT", 100)})
	cfg := testConfig("BTCUSDT")
	cfg.MinRows = 5
	_, err = NewEngine(short, strategy.NewRegistry(), nil, cfg).Run(context.Background(), start, start.Add(time.Hour))
	assert.ErrorContains(t, err, "insufficient historical data")
}

func TestRunCancelled(t *testing.T) {
	source := memSource(map[string][]models.Candle{"BTCUSDT": series("BTCUSDT", 100, 101)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(source, strategy.NewRegistry(), nil, testConfig("BTCUSDT")).Run(ctx, start, start.Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaxDrawdown(t *testing.T) {
	curve := []EquityPoint{{Equity: 100}, {Equity: 120}, {Equity: 90}, {Equity: 110}}
	assert.InDelta(t, 25.0, maxDrawdown(curve), 1e-9)
	assert.Zero(t, maxDrawdown([]EquityPoint{{Equity: 100}, {Equity: 101}}))
}

func TestSharpeRatio(t *testing.T) {
	assert.Zero(t, sharpeRatio([]float64{0.01, 0.01, 0.01}, 252), "no volatility")
	assert.Zero(t, sharpeRatio([]float64{0.01}, 252))
	assert.Greater(t, sharpeRatio([]float64{0.02, -0.01, 0.03}, 252), 0.0)
	assert.Less(t, sharpeRatio([]float64{-0.02, 0.01, -0.03}, 252), 0.0)
}

func TestFormatNil(t *testing.T) {
	var r *Results
	assert.Equal(t, "No backtest results available", r.Format())
}
