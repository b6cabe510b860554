package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/PaperTrader/internal/metrics"
	"github.com/Alias1177/PaperTrader/models"
)

var t0 = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestOpenLeavesBalanceUntouched(t *testing.T) {
	acct := NewAccount(DefaultConfig())

	pos, err := acct.Open("BTCUSDT", 100, t0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, t0, pos.EntryTime)
	assert.Equal(t, 50000.0, acct.Balance())

	_, err = acct.Open("BTCUSDT", 105, t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	got := acct.Position("BTCUSDT")
	require.NotNil(t, got)
	assert.Equal(t, 100.0, got.EntryPrice, "second open must not replace the position")
}

func TestOpenRejectsNonPositivePrice(t *testing.T) {
	acct := NewAccount(DefaultConfig())
	_, err := acct.Open("BTCUSDT", 0, t0)
	assert.ErrorIs(t, err, ErrCorruptPosition)
	assert.Nil(t, acct.Position("BTCUSDT"))
}

func TestCloseEconomics(t *testing.T) {
	acct := NewAccount(DefaultConfig())
	_, err := acct.Open("BTCUSDT", 100, t0)
	require.NoError(t, err)

	trade, err := acct.Close("BTCUSDT", CloseParams{
		Price:    101,
		Time:     t0.Add(time.Hour),
		Strategy: "RSI+MACD",
		Reason:   "pass",
	})
	require.NoError(t, err)

	assert.InDelta(t, 50.0, trade.PositionSize, 1e-9)
	assert.InDelta(t, 3.75+3.7875, trade.Fees, 1e-9)
	assert.InDelta(t, 50.0, trade.GrossPnL, 1e-9)
	assert.InDelta(t, 42.4625, trade.NetPnL, 1e-9)
	assert.InDelta(t, 50042.4625, trade.BalanceAfter, 1e-9)
	assert.InDelta(t, 50042.4625, acct.Balance(), 1e-9)
	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, t0, trade.EntryTime)
	assert.Equal(t, "RSI+MACD", trade.Strategy)
	assert.Nil(t, acct.Position("BTCUSDT"))
	assert.Len(t, acct.ClosedTrades(), 1)
}

func TestCloseWithoutPosition(t *testing.T) {
	acct := NewAccount(DefaultConfig())
	_, err := acct.Close("BTCUSDT", CloseParams{Price: 100, Time: t0})
	assert.ErrorIs(t, err, ErrNoPosition)
	assert.Equal(t, 50000.0, acct.Balance())
	assert.Empty(t, acct.ClosedTrades())
}

func TestCloseUsesBalanceAtExit(t *testing.T) {
	acct := NewAccount(DefaultConfig())
	_, err := acct.Open("ETHUSDT", 100, t0)
	require.NoError(t, err)
	_, err = acct.Open("BTCUSDT", 100, t0)
	require.NoError(t, err)

	first, err := acct.Close("ETHUSDT", CloseParams{Price: 110, Time: t0})
	require.NoError(t, err)

	second, err := acct.Close("BTCUSDT", CloseParams{Price: 110, Time: t0})
	require.NoError(t, err)

	assert.InDelta(t, first.BalanceAfter*0.10/100, second.PositionSize, 1e-9)
}

func TestTradeRecordRoundTrip(t *testing.T) {
	prices := []struct{ entry, exit float64 }{
		{100, 101}, {100, 95}, {64, 68}, {30000, 29999.5}, {0.25, 0.3},
	}
	acct := NewAccount(DefaultConfig())
	for i, p := range prices {
		symbol := fmt.Sprintf("S%d", i)
		_, err := acct.Open(symbol, p.entry, t0)
		require.NoError(t, err)
		before := acct.Balance()

		trade, err := acct.Close(symbol, CloseParams{Price: p.exit, Time: t0})
		require.NoError(t, err)

		assert.InDelta(t, trade.GrossPnL-trade.Fees, trade.NetPnL, 1e-9)
		assert.InDelta(t, (trade.ExitPrice-trade.EntryPrice)*trade.PositionSize, trade.GrossPnL, 1e-9)
		assert.InDelta(t, before+trade.NetPnL, acct.Balance(), 1e-9)
	}
}

func TestConcurrentCloses(t *testing.T) {
	acct := NewAccount(DefaultConfig())
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}
	for _, s := range symbols {
		_, err := acct.Open(s, 100, t0)
		require.NoError(t, err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		netSum float64
	)
	for _, s := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			trade, err := acct.Close(symbol, CloseParams{Price: 102, Time: t0})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			netSum += trade.NetPnL
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	assert.InDelta(t, 50000+netSum, acct.Balance(), 1e-6)
	assert.Len(t, acct.ClosedTrades(), len(symbols))
	assert.Empty(t, acct.Positions())
}

func TestUnrealized(t *testing.T) {
	acct := NewAccount(DefaultConfig())
	assert.Zero(t, acct.Unrealized("BTCUSDT", 100))

	_, err := acct.Open("BTCUSDT", 100, t0)
	require.NoError(t, err)
	assert.InDelta(t, 42.4625, acct.Unrealized("BTCUSDT", 101), 1e-9)
	assert.Equal(t, 50000.0, acct.Balance())
}

func TestRestorePositions(t *testing.T) {
	acct := NewAccount(DefaultConfig())
	_, err := acct.Open("ETHUSDT", 3000, t0)
	require.NoError(t, err)

	acct.RestorePositions([]models.Position{
		{Symbol: "BTCUSDT", EntryPrice: 64000, EntryTime: t0},
		{Symbol: "ETHUSDT", EntryPrice: 3100, EntryTime: t0.Add(time.Minute)},
	})

	require.Len(t, acct.Positions(), 2)
	assert.Equal(t, 3100.0, acct.Position("ETHUSDT").EntryPrice, "restored entry replaces the open one")
	assert.Equal(t, 50000.0, acct.Balance())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.OpenPositions))

	acct.RestorePositions([]models.Position{{Symbol: "SOLUSDT", EntryPrice: 0, EntryTime: t0}})
	_, err = acct.Close("SOLUSDT", CloseParams{Price: 100, Time: t0})
	assert.ErrorIs(t, err, ErrCorruptPosition)
	assert.Equal(t, 50000.0, acct.Balance())
}

func TestBalanceGaugeFollowsLastClose(t *testing.T) {
	acct := NewAccount(DefaultConfig())
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}

	var wg sync.WaitGroup
	for i, s := range symbols {
		wg.Add(1)
		go func(symbol string, exit float64) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				_, err := acct.Open(symbol, 100, t0)
				assert.NoError(t, err)
				_, err = acct.Close(symbol, CloseParams{Price: exit, Time: t0})
				assert.NoError(t, err)
			}
		}(s, 95+float64(i)*5)
	}
	wg.Wait()

	assert.Equal(t, acct.Balance(), testutil.ToFloat64(metrics.Balance))
	assert.Zero(t, testutil.ToFloat64(metrics.OpenPositions))
}
