package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alias1177/PaperTrader/internal/cache"
	"github.com/Alias1177/PaperTrader/internal/recorder"
	"github.com/Alias1177/PaperTrader/models"
)

var summaryDays int

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Report the PnL of recently closed trades",
	Long: `Read closed trades from PostgreSQL, or from the Redis mirror when no database
is configured, log the PnL summary and send it to Telegram when enabled.

Examples:
  papertrader summary
  papertrader summary --days 7`,
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().IntVar(&summaryDays, "days", 1, "Number of UTC days to include, today counts as one")
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	since := summarySince(time.Now(), summaryDays)

	var (
		trades  []models.TradeRecord
		balance = cfg.StartingBalance
	)
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if trades, err = db.TradesSince(ctx, since); err != nil {
			return err
		}
		if b, ok, err := db.LatestBalance(ctx); err != nil {
			return err
		} else if ok {
			balance = b
		}
	} else {
		mirror, client := openMirror(ctx, cfg)
		if mirror == nil {
			return fmt.Errorf("summary needs PostgreSQL or Redis to read trades from")
		}
		defer client.Close()
		if trades, err = mirror.RecentTrades(ctx, cache.MaxTrades); err != nil {
			return err
		}
		if b, ok, err := mirror.Balance(ctx); err != nil {
			return err
		} else if ok {
			balance = b
		}
	}

	summary := recorder.Summarize(balance, 0, trades, since)
	recorder.LogSummary(log.With().Str("component", "summary").Logger(), summary)

	if tg := openTelegram(cfg); tg != nil {
		title := fmt.Sprintf("PnL since %s", since.Format("2006-01-02"))
		if err := tg.SendSummary(ctx, title, summary); err != nil {
			return fmt.Errorf("sending summary: %w", err)
		}
	}
	return nil
}

// summarySince returns UTC midnight of the first day in a window of days ending today.
func summarySince(now time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
}
