// Package backtest replays historical candles through the live decision pipeline.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/PaperTrader/internal/bot"
	"github.com/Alias1177/PaperTrader/internal/features"
	"github.com/Alias1177/PaperTrader/internal/strategy"
	"github.com/Alias1177/PaperTrader/internal/trading/execution"
	"github.com/Alias1177/PaperTrader/internal/trading/ledger"
	"github.com/Alias1177/PaperTrader/internal/trading/risk"
	"github.com/Alias1177/PaperTrader/models"
)

// Source provides historical candles, oldest first.
type Source interface {
	Candles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)

func (f SourceFunc) Candles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	return f(ctx, symbol, from, to)
}

// Config describes one backtest run.
type Config struct {
	Symbols    []string
	Interval   string
	WindowSize int
	MinRows    int
	Quorum     int
	Features   features.Params
	Ledger     ledger.Config
	Risk       risk.Config
}

// Engine handles backtesting operations
type Engine struct {
	source     Source
	registry   *strategy.Registry
	forecaster bot.Forecaster
	config     Config
	logger     zerolog.Logger
}

// NewEngine creates a new backtesting engine. forecaster may be nil.
func NewEngine(source Source, registry *strategy.Registry, forecaster bot.Forecaster, cfg Config) *Engine {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.MinRows <= 0 {
		cfg.MinRows = 30
	}
	return &Engine{
		source:     source,
		registry:   registry,
		forecaster: forecaster,
		config:     cfg,
		logger:     log.With().Str("component", "backtest").Logger(),
	}
}

// Run executes a backtest over [from, to)
func (e *Engine) Run(ctx context.Context, from, to time.Time) (*Results, error) {
	var candles []models.Candle
	for _, symbol := range e.config.Symbols {
		series, err := e.source.Candles(ctx, symbol, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch historical data for %s: %w", symbol, err)
		}
		if len(series) < e.config.MinRows {
			return nil, fmt.Errorf("insufficient historical data for %s, got %d candles", symbol, len(series))
		}
		e.logger.Info().Str("symbol", symbol).Int("candles", len(series)).Msg("Loaded history")
		candles = append(candles, series...)
	}
	sort.SliceStable(candles, func(i, j int) bool {
		if candles[i].Timestamp.Equal(candles[j].Timestamp) {
			return candles[i].Symbol < candles[j].Symbol
		}
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	// The risk window follows candle time, so daily limits reset on the replayed calendar.
	var clock time.Time
	account := ledger.NewAccount(e.config.Ledger)
	gate := risk.NewGate(e.config.Risk, risk.WithClock(func() time.Time { return clock }))
	pipeline := bot.NewPipeline(e.config.Features, e.registry, e.config.Quorum, e.forecaster,
		execution.NewCoordinator(account, gate, nil))

	results := &Results{
		Symbols:          e.config.Symbols,
		Interval:         e.config.Interval,
		StartingBalance:  e.config.Ledger.StartingBalance,
		RejectionReasons: make(map[string]int),
		MonthlyReturns:   make(map[string]float64),
	}

	windows := make(map[string][]models.Candle)
	lastClose := make(map[string]float64)

	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clock = c.Timestamp

		w := append(windows[c.Symbol], c)
		if len(w) > e.config.WindowSize {
			w = w[len(w)-e.config.WindowSize:]
		}
		windows[c.Symbol] = w
		lastClose[c.Symbol] = c.Close

		if len(w) >= e.config.MinRows {
			res, err := pipeline.Step(ctx, c.Symbol, w)
			if err != nil {
				return nil, fmt.Errorf("replaying %s at %s: %w", c.Symbol, c.Timestamp.Format(time.RFC3339), err)
			}
			if res != nil {
				results.Decisions++
				if !res.Executed {
					results.RejectionReasons[res.Reason]++
				}
			}
		}

		// One equity point per distinct timestamp, after every symbol traded on it.
		if i == len(candles)-1 || !candles[i+1].Timestamp.Equal(c.Timestamp) {
			results.EquityCurve = append(results.EquityCurve, EquityPoint{
				Time:   c.Timestamp,
				Equity: markToMarket(account, lastClose),
			})
		}
	}

	results.Trades = account.ClosedTrades()
	results.OpenPositions = len(account.Positions())
	results.FinalBalance = account.Balance()
	calculateMetrics(results, models.PeriodsPerYear(e.config.Interval))

	return results, nil
}

func markToMarket(account *ledger.Account, lastClose map[string]float64) float64 {
	equity := account.Balance()
	for _, p := range account.Positions() {
		equity += account.Unrealized(p.Symbol, lastClose[p.Symbol])
	}
	return equity
}

// Format creates a human-readable summary of backtest results
func (r *Results) Format() string {
	if r == nil {
		return "No backtest results available"
	}

	var b strings.Builder
	b.WriteString("\n===== BACKTEST RESULTS =====\n")
	fmt.Fprintf(&b, "Symbols: %s (%s)\n", strings.Join(r.Symbols, ", "), r.Interval)
	fmt.Fprintf(&b, "Decisions: %d, executed trades: %d, open positions: %d\n", r.Decisions, r.TotalTrades, r.OpenPositions)
	fmt.Fprintf(&b, "Winning trades: %d (%.2f%%)\n", r.WinningTrades, r.WinPercentage)
	fmt.Fprintf(&b, "Total PnL: %.2f USD (fees %.2f)\n", r.TotalPnL, r.TotalFees)
	fmt.Fprintf(&b, "Balance: %.2f → %.2f\n", r.StartingBalance, r.FinalBalance)
	fmt.Fprintf(&b, "Average gain: %.2f USD, average loss: %.2f USD\n", r.AverageGain, r.AverageLoss)
	fmt.Fprintf(&b, "Profit factor: %.2f\n", r.ProfitFactor)
	fmt.Fprintf(&b, "Sharpe ratio: %.2f\n", r.SharpeRatio)
	fmt.Fprintf(&b, "Maximum drawdown: %.2f%%\n", r.MaxDrawdown)
	fmt.Fprintf(&b, "Max consecutive wins: %d\n", r.MaxConsecutive.Wins)
	fmt.Fprintf(&b, "Max consecutive losses: %d\n", r.MaxConsecutive.Losses)

	if len(r.RejectionReasons) > 0 {
		b.WriteString("\nRejected decisions:\n")
		reasons := make([]string, 0, len(r.RejectionReasons))
		for reason := range r.RejectionReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(&b, "- %s: %d\n", reason, r.RejectionReasons[reason])
		}
	}

	if len(r.MonthlyReturns) > 0 {
		b.WriteString("\nMonthly returns:\n")

		// Sort months for chronological display
		months := make([]string, 0, len(r.MonthlyReturns))
		for month := range r.MonthlyReturns {
			months = append(months, month)
		}
		sort.Strings(months)

		for _, month := range months {
			fmt.Fprintf(&b, "- %s: %+.2f%%\n", month, r.MonthlyReturns[month])
		}
	}

	fmt.Fprintf(&b, "\nTotal equity growth: %.2f%%\n", r.EquityGrowthPercent)
	return b.String()
}
