// Package metrics exposes Prometheus metrics updated by the strategy loop:
//   - bot_ticks_total{result}            – ticks processed (quoting|exiting|skipped)
//   - bot_orders_total{side,action}      – orders placed (buy|sell, open|close)
//   - bot_orders_canceled_total          – cancellations issued
//   - bot_proposal_orders_total{stage}   – proposal sizes after each pipeline stage
//   - bot_budget_rejections_total{side}  – orders rejected by the budget constraint
//   - bot_exits_total{reason,side}       – position exits split by reason
//   - bot_active_orders                  – currently resting orders (gauge)
//   - bot_available_balance              – quote collateral snapshot (gauge)
//
// Registered in init() and served at /metrics by the status server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Ticks processed",
		},
		[]string{"result"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders placed",
		},
		[]string{"side", "action"},
	)

	OrdersCanceled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_orders_canceled_total",
			Help: "Order cancellations issued",
		},
	)

	ProposalOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_proposal_orders_total",
			Help: "Proposal entries surviving each pipeline stage",
		},
		[]string{"stage"},
	)

	BudgetRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_budget_rejections_total",
			Help: "Orders rejected by the budget constraint",
		},
		[]string{"side"},
	)

	// Exit reasons: take_profit, trailing_stop, stop_loss.
	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exits_total",
			Help: "Position exits split by reason and side",
		},
		[]string{"reason", "side"},
	)

	ActiveOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_active_orders",
			Help: "Currently resting orders",
		},
	)

	AvailableBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_available_balance",
			Help: "Available quote collateral",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Ticks,
		Orders,
		OrdersCanceled,
		ProposalOrders,
		BudgetRejections,
		Exits,
		ActiveOrders,
		AvailableBalance,
	)
}
