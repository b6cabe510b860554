// Package notify sends trade notifications to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Alias1177/PaperTrader/internal/recorder"
	"github.com/Alias1177/PaperTrader/models"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts opened positions, closed trades and summaries to one chat.
type Telegram struct {
	sender Sender
	chatID int64
}

// New creates a notifier backed by the Telegram bot API.
func New(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	return NewWithSender(bot, chatID), nil
}

// NewWithSender wraps any Sender.
func NewWithSender(sender Sender, chatID int64) *Telegram {
	return &Telegram{sender: sender, chatID: chatID}
}

// Name identifies the notifier in recorder logs.
func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.sender.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

// PersistTrade announces a closed trade.
func (t *Telegram) PersistTrade(ctx context.Context, trade models.TradeRecord) error {
	return t.send(ctx, FormatTrade(trade))
}

// PersistSignal announces opened positions. Closing signals are covered by PersistTrade.
func (t *Telegram) PersistSignal(ctx context.Context, s models.SignalRecord) error {
	if s.Action != models.ActionBuy {
		return nil
	}
	return t.send(ctx, fmt.Sprintf("📥 *%s* opened at %.4f\nStrategy: %s", s.Symbol, s.Price, s.Strategy))
}

// SendSummary posts a PnL summary.
func (t *Telegram) SendSummary(ctx context.Context, title string, s recorder.Summary) error {
	return t.send(ctx, FormatSummary(title, s))
}

// FormatTrade renders a closed trade as a Markdown message.
func FormatTrade(trade models.TradeRecord) string {
	icon := "✅"
	if trade.NetPnL <= 0 {
		icon = "🔻"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* closed (%s)\n", icon, trade.Symbol, trade.Reason)
	fmt.Fprintf(&b, "Entry: %.4f → Exit: %.4f\n", trade.EntryPrice, trade.ExitPrice)
	fmt.Fprintf(&b, "Size: %.6f\n", trade.PositionSize)
	fmt.Fprintf(&b, "Net PnL: %+.2f USD (%+.2f%%), fees %.2f\n", trade.NetPnL, trade.PnLPct(), trade.Fees)
	fmt.Fprintf(&b, "Balance: %.2f\n", trade.BalanceAfter)
	fmt.Fprintf(&b, "Held: %s | Strategy: %s", trade.ExitTime.Sub(trade.EntryTime).Round(time.Second), trade.Strategy)
	return b.String()
}

// FormatSummary renders a summary as a Markdown message.
func FormatSummary(title string, s recorder.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *%s*\n\n", title)
	for _, t := range s.Trades {
		fmt.Fprintf(&b, "• %s %.4f → %.4f: %+.2f\n", t.Symbol, t.EntryPrice, t.ExitPrice, t.NetPnL)
	}
	if len(s.Trades) > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Trades: %d (win rate %.1f%%)\n", len(s.Trades), s.WinRate())
	fmt.Fprintf(&b, "Net PnL: %+.2f USD, fees %.2f\n", s.NetPnL, s.Fees)
	fmt.Fprintf(&b, "Open positions: %d\n", s.OpenPositions)
	fmt.Fprintf(&b, "Balance: %.2f", s.Balance)
	return b.String()
}
