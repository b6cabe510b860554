package recorder

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/PaperTrader/models"
)

// AccountView is the read side of the ledger.
type AccountView interface {
	Balance() float64
	Positions() []models.Position
	ClosedTrades() []models.TradeRecord
}

// Summary is a PnL snapshot of closed trades.
type Summary struct {
	Balance       float64
	NetPnL        float64
	Fees          float64
	Wins          int
	Losses        int
	OpenPositions int
	Trades        []models.TradeRecord
}

// WinRate is the share of winning trades in percent.
func (s Summary) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(total) * 100
}

// Summarize aggregates trades closed at or after since. A zero since includes everything.
func Summarize(balance float64, openPositions int, trades []models.TradeRecord, since time.Time) Summary {
	s := Summary{Balance: balance, OpenPositions: openPositions}
	for _, t := range trades {
		if !since.IsZero() && t.ExitTime.Before(since) {
			continue
		}
		s.Trades = append(s.Trades, t)
		s.NetPnL += t.NetPnL
		s.Fees += t.Fees
		if t.NetPnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	return s
}

// SummarizeAccount summarizes everything the account has closed.
func SummarizeAccount(view AccountView) Summary {
	return Summarize(view.Balance(), len(view.Positions()), view.ClosedTrades(), time.Time{})
}

// LogSummary writes one line per closed trade followed by the totals.
func LogSummary(logger zerolog.Logger, s Summary) {
	for _, t := range s.Trades {
		logger.Info().
			Str("symbol", t.Symbol).
			Str("strategy", t.Strategy).
			Float64("entry", t.EntryPrice).
			Float64("exit", t.ExitPrice).
			Float64("pnl", t.NetPnL).
			Float64("pnl_pct", t.PnLPct()).
			Msg("Closed trade")
	}
	logger.Info().
		Int("trades", len(s.Trades)).
		Int("open_positions", s.OpenPositions).
		Float64("net_pnl", s.NetPnL).
		Float64("win_rate", s.WinRate()).
		Float64("balance", s.Balance).
		Msg("PnL summary")
}

// RunSummaries logs an account summary every interval until ctx is done.
func RunSummaries(ctx context.Context, view AccountView, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			LogSummary(logger, SummarizeAccount(view))
		}
	}
}
