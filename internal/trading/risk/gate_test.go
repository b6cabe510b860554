package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/PaperTrader/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestGate(cfg Config) (*Gate, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewGate(cfg, WithClock(clock.Now)), clock
}

var (
	buy  = models.Decision{Action: models.ActionBuy, Sources: []string{"RSI", "MACD"}}
	sell = models.Decision{Action: models.ActionSell, Sources: []string{"RSI", "MACD"}}
)

func TestCheckSellThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopLossPct = 0.0625
	cfg.TakeProfitPct = 0.125
	cfg.MinGainPct = 0.0625

	position := &models.Position{Symbol: "BTCUSDT", EntryPrice: 64, EntryTime: time.Now()}

	tests := []struct {
		name       string
		price      float64
		wantOK     bool
		wantForced bool
		wantReason string
	}{
		{name: "stop loss exactly at threshold is forced", price: 60, wantOK: true, wantForced: true, wantReason: ReasonStopLoss},
		{name: "deeper loss is forced", price: 50, wantOK: true, wantForced: true, wantReason: ReasonStopLoss},
		{name: "small loss is below min gain", price: 63, wantReason: ReasonBelowMinGain},
		{name: "gain just below min", price: 67.9, wantReason: ReasonBelowMinGain},
		{name: "gain exactly at min passes", price: 68, wantOK: true, wantReason: ReasonPass},
		{name: "take profit exactly at threshold is forced", price: 72, wantOK: true, wantForced: true, wantReason: ReasonTakeProfit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, _ := newTestGate(cfg)
			v := gate.Check("BTCUSDT", sell, tt.price, position, 50000)
			assert.Equal(t, tt.wantOK, v.Approved)
			assert.Equal(t, tt.wantForced, v.Forced)
			assert.Equal(t, tt.wantReason, v.Reason)
		})
	}
}

func TestCheckBuyIgnoresSellThresholds(t *testing.T) {
	gate, _ := newTestGate(DefaultConfig())
	position := &models.Position{Symbol: "BTCUSDT", EntryPrice: 100}

	v := gate.Check("BTCUSDT", buy, 100.1, position, 50000)
	assert.True(t, v.Approved)
	assert.False(t, v.Forced)
	assert.Equal(t, ReasonPass, v.Reason)

	v = gate.Check("BTCUSDT", sell, 100.1, nil, 50000)
	assert.True(t, v.Approved, "sell without a position is left to the ledger")
}

func TestCheckMaxTradesRejectsAnyAction(t *testing.T) {
	gate, _ := newTestGate(DefaultConfig())
	for i := 0; i < 30; i++ {
		gate.Register("X", models.ActionSell, "RSI+MACD", 10)
	}

	position := &models.Position{Symbol: "X", EntryPrice: 100}
	for _, tc := range []struct {
		decision models.Decision
		price    float64
		position *models.Position
	}{
		{decision: buy, price: 100},
		{decision: sell, price: 90, position: position},  // would be a forced stop loss
		{decision: sell, price: 110, position: position}, // would be a forced take profit
	} {
		v := gate.Check("X", tc.decision, tc.price, tc.position, 50000)
		assert.False(t, v.Approved)
		assert.Equal(t, ReasonMaxTrades, v.Reason)
	}

	v := gate.Check("Y", buy, 100, nil, 50000)
	assert.True(t, v.Approved, "other symbols keep their own window")
}

func TestCheckDrawdown(t *testing.T) {
	gate, _ := newTestGate(DefaultConfig())
	gate.Register("BTCUSDT", models.ActionSell, "RSI+MACD", -301)

	v := gate.Check("BTCUSDT", buy, 100, nil, 1000)
	assert.False(t, v.Approved)
	assert.Equal(t, ReasonDrawdown, v.Reason)

	position := &models.Position{Symbol: "BTCUSDT", EntryPrice: 100}
	v = gate.Check("BTCUSDT", sell, 90, position, 1000)
	assert.False(t, v.Approved, "forced exits do not bypass the drawdown limit")
	assert.Equal(t, ReasonDrawdown, v.Reason)

	v = gate.Check("BTCUSDT", buy, 100, nil, 2000)
	assert.True(t, v.Approved, "limit scales with balance")
}

func TestCheckDateRollover(t *testing.T) {
	gate, clock := newTestGate(DefaultConfig())
	clock.t = time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		gate.Register("BTCUSDT", models.ActionSell, "RSI+MACD", -1000)
	}
	assert.Equal(t, ReasonMaxTrades, gate.Check("BTCUSDT", buy, 100, nil, 50000).Reason)

	clock.t = time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC)
	v := gate.Check("BTCUSDT", buy, 100, nil, 50000)
	assert.True(t, v.Approved)
	assert.Equal(t, 0, gate.TradesToday("BTCUSDT"))
	assert.Zero(t, gate.NetPnLToday("BTCUSDT"))
}

func TestCheckIsIdempotent(t *testing.T) {
	gate, _ := newTestGate(DefaultConfig())
	gate.Register("BTCUSDT", models.ActionSell, "RSI+MACD", 12)
	position := &models.Position{Symbol: "BTCUSDT", EntryPrice: 100}

	first := gate.Check("BTCUSDT", sell, 100.2, position, 50000)
	second := gate.Check("BTCUSDT", sell, 100.2, position, 50000)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, gate.TradesToday("BTCUSDT"))
}

func TestRegisterStampsCurrentTime(t *testing.T) {
	gate, clock := newTestGate(DefaultConfig())
	gate.Register("BTCUSDT", models.ActionSell, "RSI+MACD", 42.5)

	entries := gate.Entries("BTCUSDT")
	require.Len(t, entries, 1)
	assert.Equal(t, clock.t, entries[0].Timestamp)
	assert.Equal(t, models.ActionSell, entries[0].Action)
	assert.Equal(t, "RSI+MACD", entries[0].Strategy)
	assert.Equal(t, 42.5, gate.NetPnLToday("BTCUSDT"))
}

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		price   float64
		riskPct float64
		minUSD  float64
		want    float64
	}{
		{name: "full balance", balance: 50000, price: 100, riskPct: 1.0, minUSD: 100, want: 500},
		{name: "floored at min notional", balance: 50, price: 100, riskPct: 1.0, minUSD: 100, want: 1},
		{name: "fractional risk", balance: 10000, price: 50, riskPct: 0.1, minUSD: 100, want: 20},
		{name: "invalid price", balance: 10000, price: 0, riskPct: 0.1, minUSD: 100, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PositionSize(tt.balance, tt.price, tt.riskPct, tt.minUSD), 1e-9)
		})
	}
}
