// Package risk implements the per-symbol risk gate that approves, blocks or forces trades
// based on today's trade count, stop-loss/take-profit thresholds and drawdown.
package risk

import (
	"sync"
	"time"

	"github.com/Alias1177/PaperTrader/models"
)

// Verdict reasons.
const (
	ReasonMaxTrades    = "max trades reached"
	ReasonStopLoss     = "stop loss"
	ReasonTakeProfit   = "take profit"
	ReasonBelowMinGain = "gain below threshold"
	ReasonDrawdown     = "drawdown exceeded"
	ReasonPass         = "pass"
)

// Config holds the risk limits. Percentages are fractions (0.05 == 5%).
type Config struct {
	MaxTradesPerDay int
	MaxDrawdownPct  float64
	StopLossPct     float64
	TakeProfitPct   float64
	MinGainPct      float64
	FixedRiskPct    float64
	MinNotional     float64
}

// DefaultConfig returns the limits the bot runs with when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxTradesPerDay: 30,
		MaxDrawdownPct:  0.30,
		StopLossPct:     0.05,
		TakeProfitPct:   0.04,
		MinGainPct:      0.0045,
		FixedRiskPct:    1.0,
		MinNotional:     100,
	}
}

// Entry is one executed trade in a symbol's daily window.
type Entry struct {
	Timestamp time.Time     `json:"timestamp"`
	Action    models.Action `json:"action"`
	Strategy  string        `json:"strategy"`
	NetPnL    float64       `json:"net_pnl"`
}

// Verdict is the outcome of a risk check. Size is the hypothetical position size for the trade.
type Verdict struct {
	Approved bool
	Forced   bool
	Reason   string
	Size     float64
}

type window struct {
	mu      sync.Mutex
	entries []Entry
}

// prune drops entries not dated today. Caller holds w.mu.
func (w *window) prune(now time.Time) {
	kept := w.entries[:0]
	for _, e := range w.entries {
		if models.SameUTCDate(e.Timestamp, now) {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(w.entries); i++ {
		w.entries[i] = Entry{}
	}
	w.entries = kept
}

func (w *window) netPnL() float64 {
	var sum float64
	for _, e := range w.entries {
		sum += e.NetPnL
	}
	return sum
}

// Gate owns one RiskWindow per symbol. Windows are locked independently.
type Gate struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now, e.g. for backtests replaying historical candles.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a gate with empty windows.
func NewGate(cfg Config, opts ...Option) *Gate {
	g := &Gate{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) window(symbol string) *window {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.windows[symbol]
	if !ok {
		w = &window{}
		g.windows[symbol] = w
	}
	return w
}

// Check evaluates decision for symbol at price. position is the symbol's open position or nil.
// Rejections fire in order: daily trade cap, minimum gain on a non-forced SELL, drawdown.
// A stop-loss or take-profit SELL skips the minimum gain rule but not the others.
func (g *Gate) Check(symbol string, decision models.Decision, price float64, position *models.Position, balance float64) Verdict {
	now := g.now().UTC()
	w := g.window(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)

	if len(w.entries) >= g.cfg.MaxTradesPerDay {
		return Verdict{Reason: ReasonMaxTrades}
	}

	size := PositionSize(balance, price, g.cfg.FixedRiskPct, g.cfg.MinNotional)

	forced := false
	reason := ReasonPass
	if decision.Action == models.ActionSell && position != nil {
		change := ChangePct(position.EntryPrice, price)
		switch {
		case change <= -g.cfg.StopLossPct:
			forced, reason = true, ReasonStopLoss
		case change >= g.cfg.TakeProfitPct:
			forced, reason = true, ReasonTakeProfit
		case change < g.cfg.MinGainPct:
			return Verdict{Reason: ReasonBelowMinGain, Size: size}
		}
	}

	if w.netPnL() < -balance*g.cfg.MaxDrawdownPct {
		return Verdict{Reason: ReasonDrawdown, Size: size}
	}

	return Verdict{Approved: true, Forced: forced, Reason: reason, Size: size}
}

// Register records an executed SELL in the symbol's window, stamped with the current time.
func (g *Gate) Register(symbol string, action models.Action, strategy string, netPnL float64) {
	now := g.now().UTC()
	w := g.window(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	w.entries = append(w.entries, Entry{
		Timestamp: now,
		Action:    action,
		Strategy:  strategy,
		NetPnL:    netPnL,
	})
}

// Entries returns a copy of today's window for symbol.
func (g *Gate) Entries(symbol string) []Entry {
	now := g.now().UTC()
	w := g.window(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// TradesToday is the number of trades registered for symbol today.
func (g *Gate) TradesToday(symbol string) int {
	return len(g.Entries(symbol))
}

// NetPnLToday sums today's net PnL for symbol.
func (g *Gate) NetPnLToday(symbol string) float64 {
	var sum float64
	for _, e := range g.Entries(symbol) {
		sum += e.NetPnL
	}
	return sum
}
