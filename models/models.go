package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Action is the direction of a signal or decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// ParseAction normalizes s and rejects anything that is not BUY or SELL.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionBuy, ActionSell:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Candle represents a single closed price candle
type Candle struct {
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    float64   `json:"volume" db:"volume"`
}

// FeatureRow is one candle enriched with indicator values.
// Any indicator may be NaN when there is not enough history for it.
type FeatureRow struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	RSI        float64   `json:"rsi"`
	EMAFast    float64   `json:"ema_fast"`
	EMASlow    float64   `json:"ema_slow"`
	MACD       float64   `json:"macd"`
	MACDSignal float64   `json:"macd_signal"`
	BBUpper    float64   `json:"bb_upper"`
	BBMiddle   float64   `json:"bb_middle"`
	BBLower    float64   `json:"bb_lower"`

	// PredictedReturn is the forecast next-bar return in percent, NaN if no forecaster ran.
	PredictedReturn float64 `json:"predicted_return"`
}

// EmptyFeatureRow returns a row for the candle with every indicator unset.
func EmptyFeatureRow(c Candle) FeatureRow {
	nan := math.NaN()
	return FeatureRow{
		Symbol:          c.Symbol,
		Timestamp:       c.Timestamp,
		Close:           c.Close,
		Volume:          c.Volume,
		RSI:             nan,
		EMAFast:         nan,
		EMASlow:         nan,
		MACD:            nan,
		MACDSignal:      nan,
		BBUpper:         nan,
		BBMiddle:        nan,
		BBLower:         nan,
		PredictedReturn: nan,
	}
}

// Signal is one strategy's opinion for the current bar.
type Signal struct {
	Strategy string `json:"strategy"`
	Action   Action `json:"action"`
	Reason   string `json:"reason"`
}

// Decision is the reconciled outcome of the strategy vote.
type Decision struct {
	Action  Action   `json:"action"`
	Sources []string `json:"sources"`
	Reason  string   `json:"reason"`
}

// Strategy returns the contributing strategies as a single label.
func (d Decision) Strategy() string {
	if len(d.Sources) == 0 {
		return "N/A"
	}
	return strings.Join(d.Sources, "+")
}

// Position is the open exposure for one symbol.
type Position struct {
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
}

// TradeRecord holds the economics of a closed trade. It is never modified after creation.
type TradeRecord struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Strategy     string    `json:"strategy"`
	Reason       string    `json:"reason"`
	EntryTime    time.Time `json:"entry_time"`
	ExitTime     time.Time `json:"exit_time"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	PositionSize float64   `json:"position_size"`
	GrossPnL     float64   `json:"gross_pnl"`
	Fees         float64   `json:"fees"`
	NetPnL       float64   `json:"net_pnl"`
	BalanceAfter float64   `json:"balance_after"`
	Forced       bool      `json:"forced"`
}

// PnLPct is the net result relative to the entry notional, in percent.
func (t TradeRecord) PnLPct() float64 {
	notional := t.EntryPrice * t.PositionSize
	if notional == 0 {
		return 0
	}
	return t.NetPnL / notional * 100
}

// SignalRecord is an executed decision as written to the signals table.
type SignalRecord struct {
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Strategy  string    `json:"strategy" db:"strategy"`
	Action    Action    `json:"action" db:"action"`
	Price     float64   `json:"price" db:"price"`
	Reason    string    `json:"reason" db:"reason"`
	Executed  bool      `json:"executed" db:"executed"`
}

// ExecutionResult is the outcome of one decision passed through risk and the ledger.
type ExecutionResult struct {
	Executed bool         `json:"executed"`
	Reason   string       `json:"reason"`
	Forced   bool         `json:"forced,omitempty"`
	RiskSize float64      `json:"risk_size,omitempty"`
	Trade    *TradeRecord `json:"trade,omitempty"`
}
