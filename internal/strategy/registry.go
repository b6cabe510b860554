package strategy

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/PaperTrader/models"
)

// EvalError reports a strategy that failed on a row. It never aborts the vote.
type EvalError struct {
	Strategy string
	Err      error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Strategy, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// Options configures the built-in evaluators.
type Options struct {
	RSIBuyBelow          float64
	RSISellAbove         float64
	ForecastBuyThreshold float64
}

// Registry runs a fixed, ordered set of evaluators.
type Registry struct {
	evaluators []Evaluator
	logger     zerolog.Logger
}

// NewRegistry creates a registry from explicit evaluators, in vote order.
func NewRegistry(evaluators ...Evaluator) *Registry {
	return &Registry{
		evaluators: evaluators,
		logger:     log.With().Str("component", "strategy").Logger(),
	}
}

// Builtin resolves strategy names to the built-in evaluators, preserving the given order.
func Builtin(names []string, opts Options) (*Registry, error) {
	var evaluators []Evaluator
	seen := make(map[string]bool)
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if seen[key] {
			continue
		}
		seen[key] = true

		switch key {
		case "rsi":
			evaluators = append(evaluators, RSI{BuyBelow: opts.RSIBuyBelow, SellAbove: opts.RSISellAbove})
		case "ema", "ema crossover":
			evaluators = append(evaluators, EMACrossover{})
		case "macd":
			evaluators = append(evaluators, MACD{})
		case "bb", "bollinger", "bollinger bands":
			evaluators = append(evaluators, Bollinger{})
		case "ml", "ml strategy", "forecast":
			evaluators = append(evaluators, Forecast{BuyThreshold: opts.ForecastBuyThreshold})
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	if len(evaluators) == 0 {
		return nil, fmt.Errorf("no strategies configured")
	}
	return NewRegistry(evaluators...), nil
}

// Names lists the registered strategies in vote order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.evaluators))
	for i, e := range r.evaluators {
		names[i] = e.Name()
	}
	return names
}

// Evaluate asks every strategy for an opinion on row. Failing or malformed strategies are
// reported in errs and contribute nothing to signals.
func (r *Registry) Evaluate(row models.FeatureRow, prev *models.FeatureRow) (signals []models.Signal, errs []*EvalError) {
	for _, e := range r.evaluators {
		sig, err := safeEvaluate(e, row, prev)
		if err != nil {
			evalErr := &EvalError{Strategy: e.Name(), Err: err}
			r.logger.Warn().Err(err).Str("symbol", row.Symbol).Str("strategy", e.Name()).Msg("Strategy evaluation failed")
			errs = append(errs, evalErr)
			continue
		}
		if sig == nil {
			r.logger.Debug().Str("symbol", row.Symbol).Str("strategy", e.Name()).Msg("No signal")
			continue
		}
		r.logger.Debug().
			Str("symbol", row.Symbol).
			Str("strategy", sig.Strategy).
			Str("action", string(sig.Action)).
			Str("reason", sig.Reason).
			Msg("Signal")
		signals = append(signals, *sig)
	}
	return signals, errs
}

// safeEvaluate validates the evaluator's output and turns a panic into an error.
func safeEvaluate(e Evaluator, row models.FeatureRow, prev *models.FeatureRow) (sig *models.Signal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			sig = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	sig, err = e.Evaluate(row, prev)
	if err != nil || sig == nil {
		return nil, err
	}

	action, parseErr := models.ParseAction(string(sig.Action))
	if parseErr != nil {
		return nil, fmt.Errorf("malformed signal: %w", parseErr)
	}
	out := *sig
	out.Action = action
	if out.Strategy == "" {
		out.Strategy = e.Name()
	}
	return &out, nil
}
