package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
	"live-trader-go/exchange"
	"live-trader-go/infrastructure/logger"
	"live-trader-go/order"
	"live-trader-go/portfolio"
	"live-trader-go/retry"
)

// API 策略回调可以使用的入口。Portfolio 与 Account 只读。
type API interface {
	Order(a asset.Asset, amount decimal.Decimal, limit, stop decimal.NullDecimal, style *order.Style) (*order.Order, error)
	CancelOrder(id string) error
	GetOpenOrders(a *asset.Asset) ([]*order.Order, error)
	GetOrder(id string) (*order.Order, error)
	Symbol(symbol string) (asset.Asset, error)
	Portfolio() *portfolio.Portfolio
	Account() portfolio.Account
	Now() time.Time
	Logger() *logger.Logger
}

var _ API = (*Algorithm)(nil)

// Strategy 用户策略。同一时刻只会有一个回调在执行。
type Strategy interface {
	Initialize(api API) error
	HandleData(api API, data *BarData) error
}

// BeforeTradingStarter 可选：在盘前 tick 调用，期间不允许下单。
type BeforeTradingStarter interface {
	BeforeTradingStart(api API, data *BarData) error
}

// BarData 当前 tick 的行情视图。
type BarData struct {
	algo *Algorithm
	dt   time.Time
	freq exchange.Frequency
}

func (d *BarData) Time() time.Time { return d.dt }

// Current 当前 bar 的字段值；重试用尽时返回空结果。
func (d *BarData) Current(assets []asset.Asset, field exchange.Field) (map[int64]exchange.Value, error) {
	a := d.algo
	values, _, err := retry.Read(a.callCtx, a.retrier, exchange.OpCandles, a.policy(exchange.OpCandles), map[int64]exchange.Value{},
		func(ctx context.Context) (map[int64]exchange.Value, error) {
			return a.conn.SpotValue(ctx, assets, field, d.dt, d.freq)
		})
	if err != nil {
		return nil, err
	}
	if field == exchange.FieldPrice || field == exchange.FieldClose {
		for id, v := range values {
			if v.Price.IsPositive() {
				a.prices[id] = v.Price
			}
		}
	}
	return values, nil
}

// Price 单个资产的最新价，取不到时 ok=false。
func (d *BarData) Price(as asset.Asset) (decimal.Decimal, bool) {
	values, err := d.Current([]asset.Asset{as}, exchange.FieldPrice)
	if err != nil {
		return decimal.Zero, false
	}
	v, ok := values[as.ID]
	if !ok || !v.Price.IsPositive() {
		return decimal.Zero, false
	}
	return v.Price, true
}

// History 截止当前 tick 的 barCount 根历史数据。
func (d *BarData) History(assets []asset.Asset, barCount int, field exchange.Field) (map[int64][]exchange.Value, error) {
	a := d.algo
	values, _, err := retry.Read(a.callCtx, a.retrier, exchange.OpCandles, a.policy(exchange.OpCandles), map[int64][]exchange.Value{},
		func(ctx context.Context) (map[int64][]exchange.Value, error) {
			return a.conn.HistoryWindow(ctx, assets, d.dt, barCount, d.freq, field)
		})
	return values, err
}

// CanTrade 资产在当前时刻处于上线区间内。
func (d *BarData) CanTrade(as asset.Asset) bool {
	if !as.StartDate.IsZero() && d.dt.Before(as.StartDate) {
		return false
	}
	return as.EndDate.IsZero() || d.dt.Before(as.EndDate)
}
