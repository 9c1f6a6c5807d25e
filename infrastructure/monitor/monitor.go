package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// tick 指标
	ticksProcessed prometheus.Counter
	ticksSkipped   prometheus.Counter
	degradedTicks  prometheus.Counter

	// 交易所调用
	retries   *prometheus.CounterVec
	exhausted *prometheus.CounterVec

	// 订单指标
	ordersPlaced    prometheus.Counter
	ordersRejected  prometheus.Counter
	ordersFilled    prometheus.Counter
	ordersCancelled prometheus.Counter
	transactions    prometheus.Counter
	openOrders      prometheus.Gauge

	// 对账耗时
	reconcileLatency prometheus.Histogram

	// 组合
	portfolioValue prometheus.Gauge
	cash           prometheus.Gauge

	// 风控、绩效
	controlViolations *prometheus.CounterVec
	snapshotFailures  prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "live",
		Subsystem: "trader",
	}
}

// New 创建新的Monitor实例，指标注册在独立的 registry 上
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &Monitor{
		registry: reg,

		ticksProcessed: counter("ticks_processed_total", "已处理的 tick 数"),
		ticksSkipped:   counter("ticks_skipped_total", "停止后被跳过的 tick 数"),
		degradedTicks:  counter("ticks_degraded_total", "组合同步与对账均降级的 tick 数"),

		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connector_retries_total",
				Help:      "交易所调用重试次数",
			},
			[]string{"op"},
		),
		exhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connector_exhausted_total",
				Help:      "重试预算用尽次数",
			},
			[]string{"op"},
		),

		ordersPlaced:    counter("orders_placed_total", "下单总数"),
		ordersRejected:  counter("orders_rejected_total", "下单被拒总数"),
		ordersFilled:    counter("orders_filled_total", "成交订单总数"),
		ordersCancelled: counter("orders_cancelled_total", "撤销订单总数"),
		transactions:    counter("transactions_total", "成交记录总数"),
		openOrders:      gauge("open_orders", "当前挂单数"),

		reconcileLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "reconcile_latency_seconds",
			Help:      "挂单对账耗时（秒）",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		portfolioValue: gauge("portfolio_value", "组合净值"),
		cash:           gauge("cash", "可用现金"),

		controlViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "control_violations_total",
				Help:      "风控校验失败次数",
			},
			[]string{"kind"},
		),
		snapshotFailures: counter("snapshot_failures_total", "绩效快照失败次数"),
	}
}

func (m *Monitor) RecordTick()         { m.ticksProcessed.Inc() }
func (m *Monitor) RecordTickSkipped()  { m.ticksSkipped.Inc() }
func (m *Monitor) RecordDegradedTick() { m.degradedTicks.Inc() }

// OnRetry 实现 retry.Observer
func (m *Monitor) OnRetry(op string, _ int) {
	m.retries.WithLabelValues(op).Inc()
}

// OnExhausted 实现 retry.Observer
func (m *Monitor) OnExhausted(op string, _ int) {
	m.exhausted.WithLabelValues(op).Inc()
}

// 订单相关方法
func (m *Monitor) RecordOrderPlaced()    { m.ordersPlaced.Inc() }
func (m *Monitor) RecordOrderRejected()  { m.ordersRejected.Inc() }
func (m *Monitor) RecordOrderFilled()    { m.ordersFilled.Inc() }
func (m *Monitor) RecordOrderCancelled() { m.ordersCancelled.Inc() }
func (m *Monitor) RecordTransaction()    { m.transactions.Inc() }

func (m *Monitor) UpdateOpenOrders(n int) {
	m.openOrders.Set(float64(n))
}

func (m *Monitor) RecordReconcileLatency(seconds float64) {
	m.reconcileLatency.Observe(seconds)
}

func (m *Monitor) UpdatePortfolio(value, cash float64) {
	m.portfolioValue.Set(value)
	m.cash.Set(cash)
}

// RecordControlViolation kind 为 trading 或 account
func (m *Monitor) RecordControlViolation(kind string) {
	m.controlViolations.WithLabelValues(kind).Inc()
}

func (m *Monitor) RecordSnapshotFailure() { m.snapshotFailures.Inc() }

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
