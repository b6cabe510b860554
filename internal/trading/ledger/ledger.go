// Package ledger keeps the paper account: the virtual balance, one open position per symbol
// and the history of closed trades.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alias1177/PaperTrader/internal/metrics"
	"github.com/Alias1177/PaperTrader/models"
)

var (
	// ErrCorruptPosition means a position exists with an entry price that cannot be traded against.
	ErrCorruptPosition = errors.New("corrupt position")
	ErrNoPosition      = errors.New("no position")
	ErrAlreadyOpen     = errors.New("already in position")
)

// Config holds the trade economics. Rates are fractions.
type Config struct {
	StartingBalance float64
	FeeRate         float64
	PositionRiskPct float64
}

// DefaultConfig mirrors the defaults in internal/config.
func DefaultConfig() Config {
	return Config{
		StartingBalance: 50000,
		FeeRate:         0.00075,
		PositionRiskPct: 0.10,
	}
}

// Economics is the result of closing a position.
type Economics struct {
	Notional float64
	Size     float64
	EntryFee float64
	ExitFee  float64
	GrossPnL float64
	NetPnL   float64
}

// Fees is the total fee paid on both legs.
func (e Economics) Fees() float64 {
	return e.EntryFee + e.ExitFee
}

// Compute sizes a round trip from the balance at exit time. Capital is never reserved on entry,
// so the notional is always a fraction of the balance when the position is closed.
func Compute(balance, entryPrice, exitPrice float64, cfg Config) Economics {
	notional := balance * cfg.PositionRiskPct
	size := notional / entryPrice
	e := Economics{
		Notional: notional,
		Size:     size,
		EntryFee: entryPrice * size * cfg.FeeRate,
		ExitFee:  exitPrice * size * cfg.FeeRate,
		GrossPnL: (exitPrice - entryPrice) * size,
	}
	e.NetPnL = e.GrossPnL - e.EntryFee - e.ExitFee
	return e
}

// Account is safe for concurrent use. All balance reads and writes go through mu.
type Account struct {
	cfg Config

	mu        sync.Mutex
	balance   float64
	positions map[string]models.Position
	closed    []models.TradeRecord
}

// NewAccount creates a flat account holding the starting balance.
func NewAccount(cfg Config) *Account {
	return &Account{
		cfg:       cfg,
		balance:   cfg.StartingBalance,
		positions: make(map[string]models.Position),
	}
}

// Config returns the economics the account trades with.
func (a *Account) Config() Config {
	return a.cfg
}

// Balance returns the current balance.
func (a *Account) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Position returns a copy of the open position for symbol, or nil when flat.
func (a *Account) Position(symbol string) *models.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[symbol]
	if !ok {
		return nil
	}
	return &p
}

// Positions returns all open positions ordered by symbol.
func (a *Account) Positions() []models.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ClosedTrades returns a copy of the closed trade history in execution order.
func (a *Account) ClosedTrades() []models.TradeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.TradeRecord, len(a.closed))
	copy(out, a.closed)
	return out
}

// Open records a new position. The balance is untouched.
func (a *Account) Open(symbol string, price float64, ts time.Time) (models.Position, error) {
	if price <= 0 {
		return models.Position{}, fmt.Errorf("open %s at %.8f: %w", symbol, price, ErrCorruptPosition)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.positions[symbol]; ok {
		return models.Position{}, ErrAlreadyOpen
	}
	p := models.Position{Symbol: symbol, EntryPrice: price, EntryTime: ts}
	a.positions[symbol] = p
	a.publish()
	return p, nil
}

// RestorePositions loads positions persisted by an earlier run, replacing any open position for
// the same symbol. Entries are taken as stored; a non-positive entry price surfaces as
// ErrCorruptPosition on the next trade of that symbol.
func (a *Account) RestorePositions(positions []models.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range positions {
		a.positions[p.Symbol] = p
	}
	a.publish()
}

// publish exports the balance and open positions. Callers hold mu so gauge updates follow the
// order of ledger transitions.
func (a *Account) publish() {
	metrics.Balance.Set(a.balance)
	metrics.OpenPositions.Set(float64(len(a.positions)))
}

// CloseParams describes why and where a position is closed.
type CloseParams struct {
	Price    float64
	Time     time.Time
	Strategy string
	Reason   string
	Forced   bool
}

// Close settles the open position for symbol. Sizing, fees, the balance update, the history
// append and clearing the position happen under one lock.
func (a *Account) Close(symbol string, p CloseParams) (models.TradeRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.positions[symbol]
	if !ok {
		return models.TradeRecord{}, ErrNoPosition
	}
	if pos.EntryPrice <= 0 {
		return models.TradeRecord{}, fmt.Errorf("close %s: entry price %.8f: %w", symbol, pos.EntryPrice, ErrCorruptPosition)
	}

	e := Compute(a.balance, pos.EntryPrice, p.Price, a.cfg)
	a.balance += e.NetPnL

	trade := models.TradeRecord{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Strategy:     p.Strategy,
		Reason:       p.Reason,
		EntryTime:    pos.EntryTime,
		ExitTime:     p.Time,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    p.Price,
		PositionSize: e.Size,
		GrossPnL:     e.GrossPnL,
		Fees:         e.Fees(),
		NetPnL:       e.NetPnL,
		BalanceAfter: a.balance,
		Forced:       p.Forced,
	}
	a.closed = append(a.closed, trade)
	delete(a.positions, symbol)
	a.publish()
	return trade, nil
}

// Unrealized marks the open position for symbol to price using the current balance, the same
// way Close would settle it. It returns zero when flat.
func (a *Account) Unrealized(symbol string, price float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[symbol]
	if !ok || pos.EntryPrice <= 0 {
		return 0
	}
	return Compute(a.balance, pos.EntryPrice, price, a.cfg).NetPnL
}
