// Package strategy holds the signal evaluators and the consensus vote that turns their
// independent opinions into a single trading decision.
package strategy

import (
	"fmt"
	"math"

	"github.com/Alias1177/PaperTrader/models"
)

// Strategy names as they appear in logs and the signals table.
const (
	NameRSI       = "RSI"
	NameEMA       = "EMA Crossover"
	NameMACD      = "MACD"
	NameBollinger = "Bollinger Bands"
	NameForecast  = "ML Strategy"
)

// Evaluator produces at most one opinion for the newest feature row.
// prev is nil on the first row of a window. A nil Signal with a nil error means no opinion.
type Evaluator interface {
	Name() string
	Evaluate(row models.FeatureRow, prev *models.FeatureRow) (*models.Signal, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func struct {
	StrategyName string
	Fn           func(row models.FeatureRow, prev *models.FeatureRow) (*models.Signal, error)
}

func (f Func) Name() string { return f.StrategyName }

func (f Func) Evaluate(row models.FeatureRow, prev *models.FeatureRow) (*models.Signal, error) {
	return f.Fn(row, prev)
}

func opinion(name string, action models.Action, reason string) *models.Signal {
	return &models.Signal{Strategy: name, Action: action, Reason: reason}
}

func anyNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// RSI votes BUY when oversold and SELL when overbought.
type RSI struct {
	BuyBelow  float64
	SellAbove float64
}

func (s RSI) Name() string { return NameRSI }

func (s RSI) Evaluate(row models.FeatureRow, _ *models.FeatureRow) (*models.Signal, error) {
	if anyNaN(row.RSI) {
		return nil, nil
	}
	switch {
	case row.RSI < s.BuyBelow:
		return opinion(s.Name(), models.ActionBuy, fmt.Sprintf("RSI %.2f below %.0f (oversold)", row.RSI, s.BuyBelow)), nil
	case row.RSI > s.SellAbove:
		return opinion(s.Name(), models.ActionSell, fmt.Sprintf("RSI %.2f above %.0f (overbought)", row.RSI, s.SellAbove)), nil
	}
	return nil, nil
}

// EMACrossover follows the fast/slow EMA regime.
type EMACrossover struct{}

func (EMACrossover) Name() string { return NameEMA }

func (s EMACrossover) Evaluate(row models.FeatureRow, _ *models.FeatureRow) (*models.Signal, error) {
	if anyNaN(row.EMAFast, row.EMASlow) {
		return nil, nil
	}
	switch {
	case row.EMAFast > row.EMASlow:
		return opinion(s.Name(), models.ActionBuy, "EMA fast above EMA slow"), nil
	case row.EMAFast < row.EMASlow:
		return opinion(s.Name(), models.ActionSell, "EMA fast below EMA slow"), nil
	}
	return nil, nil
}

// MACD compares the MACD line with its signal line.
type MACD struct{}

func (MACD) Name() string { return NameMACD }

func (s MACD) Evaluate(row models.FeatureRow, _ *models.FeatureRow) (*models.Signal, error) {
	if anyNaN(row.MACD, row.MACDSignal) {
		return nil, nil
	}
	switch {
	case row.MACD > row.MACDSignal:
		return opinion(s.Name(), models.ActionBuy, "MACD above signal line"), nil
	case row.MACD < row.MACDSignal:
		return opinion(s.Name(), models.ActionSell, "MACD below signal line"), nil
	}
	return nil, nil
}

// Bollinger trades reversion back inside the bands; it needs the previous row.
type Bollinger struct{}

func (Bollinger) Name() string { return NameBollinger }

func (s Bollinger) Evaluate(row models.FeatureRow, prev *models.FeatureRow) (*models.Signal, error) {
	if prev == nil || anyNaN(row.Close, row.BBUpper, row.BBLower, prev.Close, prev.BBUpper, prev.BBLower) {
		return nil, nil
	}
	switch {
	case prev.Close < prev.BBLower && row.Close > row.BBLower:
		return opinion(s.Name(), models.ActionBuy, "price bounced above lower Bollinger Band (reversion)"), nil
	case prev.Close > prev.BBUpper && row.Close < row.BBUpper:
		return opinion(s.Name(), models.ActionSell, "price dropped below upper Bollinger Band (reversion)"), nil
	}
	return nil, nil
}

// Forecast votes BUY when the external model expects a large enough next-bar return.
type Forecast struct {
	BuyThreshold float64 // percent
}

func (Forecast) Name() string { return NameForecast }

func (s Forecast) Evaluate(row models.FeatureRow, _ *models.FeatureRow) (*models.Signal, error) {
	if anyNaN(row.PredictedReturn) {
		return nil, nil
	}
	if row.PredictedReturn >= s.BuyThreshold {
		return opinion(s.Name(), models.ActionBuy, fmt.Sprintf("ML expects +%.2f%%", row.PredictedReturn)), nil
	}
	return nil, nil
}
