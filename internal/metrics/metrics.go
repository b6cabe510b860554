// Package metrics exposes the bot's Prometheus collectors.
//
//   - papertrader_decisions_total{symbol,action,outcome}  decisions after the risk gate (executed|rejected)
//   - papertrader_rejections_total{reason}                rejection reasons
//   - papertrader_trades_total{symbol,result}             closed trades (win|loss)
//   - papertrader_balance_usd                             current paper balance
//   - papertrader_open_positions                          open positions across symbols
//   - papertrader_strategy_errors_total{strategy}         isolated evaluator failures
//   - papertrader_storage_errors_total{sink,op}           failed persistence attempts
//   - papertrader_recorder_dropped_total                  records dropped on a full queue
//   - papertrader_candles_total{symbol}                   closed candles consumed
//
// Collectors are registered in init() and served at /metrics by the run command.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_decisions_total",
			Help: "Consensus decisions split by outcome",
		},
		[]string{"symbol", "action", "outcome"},
	)

	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_rejections_total",
			Help: "Rejected decisions split by reason",
		},
		[]string{"reason"},
	)

	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_trades_total",
			Help: "Closed trades split by result",
		},
		[]string{"symbol", "result"},
	)

	Balance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "papertrader_balance_usd",
			Help: "Paper account balance in USD",
		},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "papertrader_open_positions",
			Help: "Number of open positions",
		},
	)

	StrategyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_strategy_errors_total",
			Help: "Strategy evaluations that failed and were excluded from the vote",
		},
		[]string{"strategy"},
	)

	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_storage_errors_total",
			Help: "Persistence failures per sink and operation",
		},
		[]string{"sink", "op"},
	)

	RecorderDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papertrader_recorder_dropped_total",
			Help: "Records dropped because the recorder queue was full",
		},
	)

	Candles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrader_candles_total",
			Help: "Closed candles consumed",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		Decisions,
		Rejections,
		Trades,
		Balance,
		OpenPositions,
		StrategyErrors,
		StorageErrors,
		RecorderDropped,
		Candles,
	)
}

// TradeResult labels a closed trade by its net outcome.
func TradeResult(netPnL float64) string {
	if netPnL > 0 {
		return "win"
	}
	return "loss"
}
