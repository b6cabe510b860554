// Package execution turns approved decisions into ledger transitions.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/PaperTrader/internal/metrics"
	"github.com/Alias1177/PaperTrader/internal/trading/ledger"
	"github.com/Alias1177/PaperTrader/internal/trading/risk"
	"github.com/Alias1177/PaperTrader/models"
)

// Rejection reasons set by the coordinator itself. Risk reasons come from the risk package.
const (
	ReasonNoPosition    = "no position"
	ReasonAlreadyOpen   = "already in position"
	ReasonUnknownAction = "unknown action"
	ReasonInvalidPrice  = "invalid price"
)

// Recorder receives executed outcomes. Implementations must not block; the coordinator calls
// them after all trading locks are released.
type Recorder interface {
	RecordTrade(trade models.TradeRecord)
	RecordSignal(signal models.SignalRecord)
}

type nopRecorder struct{}

func (nopRecorder) RecordTrade(models.TradeRecord)   {}
func (nopRecorder) RecordSignal(models.SignalRecord) {}

// Coordinator runs check, apply and register for a symbol as one serialized step.
type Coordinator struct {
	account  *ledger.Account
	gate     *risk.Gate
	recorder Recorder
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCoordinator wires the ledger and the gate. A nil recorder discards records.
func NewCoordinator(account *ledger.Account, gate *risk.Gate, recorder Recorder) *Coordinator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Coordinator{
		account:  account,
		gate:     gate,
		recorder: recorder,
		logger:   log.With().Str("component", "execution").Logger(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Account exposes the ledger for read-only reporting.
func (c *Coordinator) Account() *ledger.Account {
	return c.account
}

func (c *Coordinator) lock(symbol string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		c.locks[symbol] = l
	}
	return l
}

// Execute applies decision for symbol at price. Business rejections, including a non-positive or
// non-finite price, are reported in the result; the error is reserved for ledger invariant
// violations, after which the symbol should stop trading.
func (c *Coordinator) Execute(ctx context.Context, symbol string, decision models.Decision, price float64, ts time.Time) (models.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ExecutionResult{}, err
	}

	result, trade, err := c.apply(symbol, decision, price, ts)
	if err != nil {
		c.logger.Error().Err(err).Str("symbol", symbol).Str("action", string(decision.Action)).Msg("Ledger invariant violated")
		return result, err
	}

	c.observe(symbol, decision, price, result)

	// Persistence happens outside the symbol lock.
	if result.Executed {
		c.recorder.RecordSignal(models.SignalRecord{
			Timestamp: ts,
			Symbol:    symbol,
			Strategy:  decision.Strategy(),
			Action:    decision.Action,
			Price:     price,
			Reason:    result.Reason,
			Executed:  true,
		})
	}
	if trade != nil {
		c.recorder.RecordTrade(*trade)
	}
	return result, nil
}

func (c *Coordinator) apply(symbol string, decision models.Decision, price float64, ts time.Time) (models.ExecutionResult, *models.TradeRecord, error) {
	l := c.lock(symbol)
	l.Lock()
	defer l.Unlock()

	if !decision.Action.Valid() {
		return models.ExecutionResult{Reason: ReasonUnknownAction}, nil, nil
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return models.ExecutionResult{Reason: ReasonInvalidPrice}, nil, nil
	}

	position := c.account.Position(symbol)
	if position != nil && position.EntryPrice <= 0 {
		return models.ExecutionResult{}, nil, fmt.Errorf("%s entry price %.8f: %w", symbol, position.EntryPrice, ledger.ErrCorruptPosition)
	}

	verdict := c.gate.Check(symbol, decision, price, position, c.account.Balance())
	if !verdict.Approved {
		return models.ExecutionResult{Reason: verdict.Reason, RiskSize: verdict.Size}, nil, nil
	}

	switch decision.Action {
	case models.ActionBuy:
		if position != nil {
			return models.ExecutionResult{Reason: ReasonAlreadyOpen, RiskSize: verdict.Size}, nil, nil
		}
		if _, err := c.account.Open(symbol, price, ts); err != nil {
			if errors.Is(err, ledger.ErrAlreadyOpen) {
				return models.ExecutionResult{Reason: ReasonAlreadyOpen, RiskSize: verdict.Size}, nil, nil
			}
			return models.ExecutionResult{}, nil, err
		}
		return models.ExecutionResult{Executed: true, Reason: verdict.Reason, RiskSize: verdict.Size}, nil, nil

	default: // SELL
		if position == nil {
			return models.ExecutionResult{Reason: ReasonNoPosition, RiskSize: verdict.Size}, nil, nil
		}
		trade, err := c.account.Close(symbol, ledger.CloseParams{
			Price:    price,
			Time:     ts,
			Strategy: decision.Strategy(),
			Reason:   verdict.Reason,
			Forced:   verdict.Forced,
		})
		if err != nil {
			if errors.Is(err, ledger.ErrNoPosition) {
				return models.ExecutionResult{Reason: ReasonNoPosition, RiskSize: verdict.Size}, nil, nil
			}
			return models.ExecutionResult{}, nil, err
		}
		c.gate.Register(symbol, models.ActionSell, trade.Strategy, trade.NetPnL)
		return models.ExecutionResult{
			Executed: true,
			Reason:   verdict.Reason,
			Forced:   verdict.Forced,
			RiskSize: verdict.Size,
			Trade:    &trade,
		}, &trade, nil
	}
}

func (c *Coordinator) observe(symbol string, decision models.Decision, price float64, result models.ExecutionResult) {
	outcome := "rejected"
	if result.Executed {
		outcome = "executed"
	} else {
		metrics.Rejections.WithLabelValues(result.Reason).Inc()
	}
	metrics.Decisions.WithLabelValues(symbol, string(decision.Action), outcome).Inc()

	event := c.logger.Info().
		Str("symbol", symbol).
		Str("action", string(decision.Action)).
		Str("strategy", decision.Strategy()).
		Float64("price", price).
		Str("outcome", outcome).
		Str("reason", result.Reason)
	if result.Forced {
		event = event.Bool("forced", true)
	}
	if t := result.Trade; t != nil {
		metrics.Trades.WithLabelValues(symbol, metrics.TradeResult(t.NetPnL)).Inc()
		event = event.
			Float64("entry_price", t.EntryPrice).
			Float64("size", t.PositionSize).
			Float64("net_pnl", t.NetPnL).
			Float64("balance", t.BalanceAfter).
			Int("trades_today", c.gate.TradesToday(symbol)).
			Float64("day_pnl", c.gate.NetPnLToday(symbol))
	}
	event.Msg("Decision processed")
}
