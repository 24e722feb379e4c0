package metrics

import "github.com/prometheus/client_golang/prometheus"

// 指标在 init() 中注册，由 server.go 暴露在 /metrics。
var (
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_cycles_total",
			Help: "Trade cycles by outcome (skipped|denied|completed|failed)",
		},
		[]string{"outcome"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_orders_total",
			Help: "Order legs by side and result (filled|timeout|error)",
		},
		[]string{"side", "result"},
	)

	Reconcile = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_reconcile_total",
			Help: "Stale order sweep actions (canceled|already_closed|skipped|error)",
		},
		[]string{"action"},
	)

	CapitalReserved = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scalper_capital_reserved",
			Help: "Quote currency currently reserved per pair",
		},
		[]string{"pair"},
	)

	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scalper_realized_pnl",
			Help: "Realized PnL (rebates included) since process start",
		},
	)
)

func init() {
	prometheus.MustRegister(Cycles, Orders, Reconcile, CapitalReserved, RealizedPnL)
}

// IncCycle 记录一轮交易的结果
func IncCycle(outcome string) { Cycles.WithLabelValues(outcome).Inc() }

// IncOrder 记录一条订单腿的结果
func IncOrder(side, result string) { Orders.WithLabelValues(side, result).Inc() }

// IncReconcile 记录一次清理动作
func IncReconcile(action string) { Reconcile.WithLabelValues(action).Inc() }

// SetReserved 更新某交易对的占用资金
func SetReserved(pair string, v float64) { CapitalReserved.WithLabelValues(pair).Set(v) }

// AddPnL 累加已实现盈亏
func AddPnL(v float64) { RealizedPnL.Add(v) }
