// Package perf 记录成交与订单，生成每个 tick 的绩效快照与最终报告。
package perf

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"live-trader-go/order"
	"live-trader-go/portfolio"
)

// DefaultAnnualization 默认年化因子，按日线 bar 计（交易日数）。
// 分钟 bar 需通过 SetAnnualization 换成每年的 bar 数。
const DefaultAnnualization = 252

// Period 一段区间的账户表现。
type Period struct {
	Open           time.Time
	Close          time.Time
	StartingValue  decimal.Decimal
	EndingValue    decimal.Decimal
	EndingCash     decimal.Decimal
	PositionsValue decimal.Decimal
	CapitalUsed    decimal.Decimal
	PnL            decimal.Decimal
	Returns        float64
	Transactions   []order.Transaction
	Orders         []*order.Order
}

// Risk 累计风险指标。
type Risk struct {
	TradingPeriods  int
	AlgoVolatility  float64
	Sharpe          float64
	MaxDrawdown     float64
	MaxLeverage     float64
	ExcessReturn    float64
	CumulativeValue float64
}

// Snapshot 一个 tick 的记录：本区间表现与累计表现、累计风险指标合并为一条。
type Snapshot struct {
	PeriodClose time.Time
	Minute      Period
	Cumulative  Period
	Risk        Risk
}

// Tracker 绩效收集器，只由执行循环调用。
type Tracker struct {
	annualization float64

	mu           sync.Mutex
	started      bool
	start        time.Time
	startValue   decimal.Decimal
	periodOpen   time.Time
	periodValue  decimal.Decimal
	transactions []order.Transaction
	orders       []*order.Order
	allTxns      int
	allOrders    int
	returns      []float64
	peak         float64
	maxDrawdown  float64
	maxLeverage  float64
}

func NewTracker() *Tracker {
	return &Tracker{annualization: DefaultAnnualization}
}

// SetAnnualization 调整波动率与 Sharpe 的年化因子。
func (t *Tracker) SetAnnualization(periods float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if periods > 0 {
		t.annualization = periods
	}
}

func (t *Tracker) Annualization() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.annualization
}

func (t *Tracker) RecordTransaction(tx order.Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transactions = append(t.transactions, tx)
	t.allTxns++
}

func (t *Tracker) RecordOrder(o *order.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders = append(t.orders, o.Clone())
	t.allOrders++
}

// ErrUnsynced 组合尚未完成首次同步，无法计算收益率。
var ErrUnsynced = errors.New("portfolio not synced")

// Snapshot 结束当前区间并返回合并记录，随后开始新区间。
func (t *Tracker) Snapshot(dt time.Time, p *portfolio.Portfolio) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !p.Synced() {
		return Snapshot{}, ErrUnsynced
	}
	if !t.started {
		t.started = true
		t.start = p.StartDate
		if t.start.IsZero() || t.start.After(dt) {
			t.start = dt
		}
		t.startValue = p.StartingCash
		t.periodOpen = t.start
		t.periodValue = p.StartingCash
	}

	value := p.PortfolioValue
	periodReturn := ratio(value.Sub(t.periodValue), t.periodValue)
	t.returns = append(t.returns, periodReturn)

	cumulative := ratio(value.Sub(t.startValue), t.startValue)
	growth := 1 + cumulative
	if growth > t.peak {
		t.peak = growth
	}
	if t.peak > 0 {
		if dd := (growth - t.peak) / t.peak; dd < t.maxDrawdown {
			t.maxDrawdown = dd
		}
	}
	if lev, _ := p.Leverage().Float64(); lev > t.maxLeverage {
		t.maxLeverage = lev
	}

	snap := Snapshot{
		PeriodClose: dt,
		Minute: Period{
			Open:           t.periodOpen,
			Close:          dt,
			StartingValue:  t.periodValue,
			EndingValue:    value,
			EndingCash:     p.Cash,
			PositionsValue: p.PositionsValue,
			CapitalUsed:    p.CapitalUsed,
			PnL:            value.Sub(t.periodValue),
			Returns:        periodReturn,
			Transactions:   t.transactions,
			Orders:         t.orders,
		},
		Cumulative: Period{
			Open:           t.start,
			Close:          dt,
			StartingValue:  t.startValue,
			EndingValue:    value,
			EndingCash:     p.Cash,
			PositionsValue: p.PositionsValue,
			CapitalUsed:    p.CapitalUsed,
			PnL:            value.Sub(t.startValue),
			Returns:        cumulative,
		},
		Risk: t.risk(cumulative),
	}

	t.periodOpen = dt
	t.periodValue = value
	t.transactions = nil
	t.orders = nil
	return snap, nil
}

func (t *Tracker) risk(cumulative float64) Risk {
	r := Risk{
		TradingPeriods:  len(t.returns),
		MaxDrawdown:     t.maxDrawdown,
		MaxLeverage:     t.maxLeverage,
		ExcessReturn:    cumulative,
		CumulativeValue: 1 + cumulative,
	}
	if len(t.returns) < 2 {
		return r
	}
	data := stats.Float64Data(t.returns)
	std, err := stats.StandardDeviationSample(data)
	if err != nil || std == 0 || math.IsNaN(std) {
		return r
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return r
	}
	r.AlgoVolatility = std * math.Sqrt(t.annualization)
	r.Sharpe = mean / std * math.Sqrt(t.annualization)
	return r
}

// Counts 已记录的成交与订单总数。
func (t *Tracker) Counts() (transactions, orders int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allTxns, t.allOrders
}

func ratio(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	f, _ := num.Div(den).Float64()
	return f
}
