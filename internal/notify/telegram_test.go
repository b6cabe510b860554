package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/PaperTrader/internal/recorder"
	"github.com/Alias1177/PaperTrader/models"
)

type fakeSender struct {
	err  error
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func trade(net float64) models.TradeRecord {
	entry := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	return models.TradeRecord{
		ID: "abc", Symbol: "BTCUSDT", Strategy: "RSI+MACD", Reason: "take profit",
		EntryTime: entry, ExitTime: entry.Add(90 * time.Minute), EntryPrice: 100, ExitPrice: 104,
		PositionSize: 50, Fees: 7.65, NetPnL: net, BalanceAfter: 50000 + net,
	}
}

func TestPersistTrade(t *testing.T) {
	sender := &fakeSender{}
	n := NewWithSender(sender, 42)

	require.NoError(t, n.PersistTrade(context.Background(), trade(192.35)))
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.Contains(t, msg.Text, "✅ *BTCUSDT* closed (take profit)")
	assert.Contains(t, msg.Text, "Net PnL: +192.35 USD")
	assert.Contains(t, msg.Text, "Held: 1h30m0s")
}

func TestPersistTradeError(t *testing.T) {
	n := NewWithSender(&fakeSender{err: errors.New("too many requests")}, 42)
	err := n.PersistTrade(context.Background(), trade(-5))
	assert.ErrorContains(t, err, "too many requests")
}

func TestPersistSignalOnlyAnnouncesEntries(t *testing.T) {
	sender := &fakeSender{}
	n := NewWithSender(sender, 42)

	require.NoError(t, n.PersistSignal(context.Background(), models.SignalRecord{Symbol: "ETHUSDT", Action: models.ActionSell}))
	assert.Empty(t, sender.sent)

	require.NoError(t, n.PersistSignal(context.Background(), models.SignalRecord{Symbol: "ETHUSDT", Action: models.ActionBuy, Price: 3000, Strategy: "RSI+MACD"}))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "*ETHUSDT* opened at 3000.0000")
}

func TestFormatTradeLoss(t *testing.T) {
	text := FormatTrade(trade(-12.5))
	assert.Contains(t, text, "🔻")
	assert.Contains(t, text, "Net PnL: -12.50 USD")
}

func TestSendSummary(t *testing.T) {
	sender := &fakeSender{}
	n := NewWithSender(sender, 42)
	s := recorder.Summarize(50180, 1, []models.TradeRecord{trade(200), trade(-20)}, time.Time{})

	require.NoError(t, n.SendSummary(context.Background(), "Daily PnL", s))
	require.Len(t, sender.sent, 1)
	text := sender.sent[0].Text
	assert.Contains(t, text, "📊 *Daily PnL*")
	assert.Contains(t, text, "Trades: 2 (win rate 50.0%)")
	assert.Contains(t, text, "Net PnL: +180.00 USD")
	assert.Contains(t, text, "Open positions: 1")
	assert.Contains(t, text, "Balance: 50180.00")
}
