package bot

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/PaperTrader/internal/features"
	"github.com/Alias1177/PaperTrader/internal/metrics"
	"github.com/Alias1177/PaperTrader/internal/strategy"
	"github.com/Alias1177/PaperTrader/internal/trading/execution"
	"github.com/Alias1177/PaperTrader/models"
)

// Forecaster predicts the next-bar return of a feature row, in percent.
type Forecaster interface {
	Predict(ctx context.Context, row models.FeatureRow) (float64, error)
}

// Pipeline evaluates one candle window: features, strategy vote and execution.
type Pipeline struct {
	features    features.Params
	registry    *strategy.Registry
	quorum      int
	forecaster  Forecaster
	coordinator *execution.Coordinator
	logger      zerolog.Logger
}

// NewPipeline wires the decision path. forecaster may be nil.
func NewPipeline(params features.Params, registry *strategy.Registry, quorum int, forecaster Forecaster, coordinator *execution.Coordinator) *Pipeline {
	return &Pipeline{
		features:    params,
		registry:    registry,
		quorum:      quorum,
		forecaster:  forecaster,
		coordinator: coordinator,
		logger:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Coordinator returns the execution coordinator the pipeline trades through.
func (p *Pipeline) Coordinator() *execution.Coordinator {
	return p.coordinator
}

// Step decides on the newest candle of window, oldest first. It returns nil when the strategies
// reach no consensus. The error is only set for ledger invariant violations or cancellation.
func (p *Pipeline) Step(ctx context.Context, symbol string, window []models.Candle) (*models.ExecutionResult, error) {
	row, prev, ok := features.Latest(window, p.features)
	if !ok {
		return nil, nil
	}

	if p.forecaster != nil {
		predicted, err := p.forecaster.Predict(ctx, row)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			p.logger.Warn().Err(err).Str("symbol", symbol).Msg("Forecast unavailable, strategy abstains")
		} else {
			row.PredictedReturn = predicted
		}
	}

	signals, errs := p.registry.Evaluate(row, prev)
	for _, e := range errs {
		metrics.StrategyErrors.WithLabelValues(e.Strategy).Inc()
	}

	decision, ok := strategy.Reconcile(signals, p.quorum)
	if !ok {
		buys, sells := countVotes(signals)
		p.logger.Info().
			Str("symbol", symbol).
			Time("candle", row.Timestamp).
			Float64("price", row.Close).
			Int("buy_votes", buys).
			Int("sell_votes", sells).
			Msg("No consensus")
		return nil, nil
	}

	result, err := p.coordinator.Execute(ctx, symbol, decision, row.Close, row.Timestamp)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func countVotes(signals []models.Signal) (buys, sells int) {
	for _, s := range signals {
		switch s.Action {
		case models.ActionBuy:
			buys++
		case models.ActionSell:
			sells++
		}
	}
	return buys, sells
}
