package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsrl_orders_submitted_total",
			Help: "Total number of paper orders submitted (by side).",
		},
		[]string{"side"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotsrl_equity",
			Help: "Current equity of the paper executor.",
		},
	)

	StrategyVotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsrl_strategy_votes_total",
			Help: "Votes cast by each strategy, by direction.",
		},
		[]string{"strategy", "direction"},
	)

	EnsembleDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsrl_ensemble_decisions_total",
			Help: "Ensemble decisions by final direction.",
		},
		[]string{"direction"},
	)

	EnsembleConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gotsrl_ensemble_confidence",
			Help:    "Confidence of directional ensemble decisions.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	SizingActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsrl_sizing_actions_total",
			Help: "Sizing actions selected, by action index and mode.",
		},
		[]string{"action", "mode"},
	)

	QUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gotsrl_q_updates_total",
			Help: "Number of Q-value updates applied.",
		},
	)

	TradeReward = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gotsrl_trade_reward",
			Help:    "Shaped reward of closed trades.",
			Buckets: []float64{-20, -10, -5, -2, -1, 0, 1, 2, 5, 10, 20},
		},
	)

	QTableStates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotsrl_qtable_states",
			Help: "Number of discrete states held in the Q-table.",
		},
	)

	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsrl_store_errors_total",
			Help: "Durable store failures, by operation.",
		},
		[]string{"op"},
	)

	TradesOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotsrl_trades_open",
			Help: "Trades opened by the engine and not yet closed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted, EquityGauge,
		StrategyVotes, EnsembleDecisions, EnsembleConfidence,
		SizingActions, QUpdates, TradeReward, QTableStates,
		StoreErrors, TradesOpen,
	)
}
