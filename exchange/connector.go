// Package exchange 定义交易所适配器必须实现的能力集合，以及行情值类型和错误分类。
//
// 适配器只负责协议转换；挂单对账等共享逻辑由执行循环完成。
// 任何调用都可能返回 *RequestError（瞬时，可重试）、*ProtocolError（响应异常）
// 或 ErrOrderNotFound 等语义错误。
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
	"live-trader-go/order"
	"live-trader-go/portfolio"
)

// 操作名，用于日志、指标标签和重试预算归类。
const (
	OpUpdatePortfolio = "update_portfolio"
	OpPlaceOrder      = "order"
	OpGetOrder        = "get_order"
	OpGetOpenOrders   = "get_open_orders"
	OpCancelOrder     = "cancel_order"
	OpAccount         = "account"
	OpTickers         = "tickers"
	OpCandles         = "candles"
)

// Trading 下单与账户相关能力。
type Trading interface {
	// PlaceOrder 提交订单并返回交易所分配的 ID。
	PlaceOrder(ctx context.Context, a asset.Asset, amount decimal.Decimal, style order.Style) (string, error)
	// GetOpenOrders 返回挂单；a 为 nil 时返回全部交易对的挂单。
	GetOpenOrders(ctx context.Context, a *asset.Asset) ([]*order.Order, error)
	// GetOrder 查询订单，交易所不认识时返回 ErrOrderNotFound。
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	// CancelOrder 撤单。对已终结的订单撤单不报错。
	CancelOrder(ctx context.Context, id string) error
	// UpdatePortfolio 用交易所数据刷新现金与持仓估值。
	UpdatePortfolio(ctx context.Context, p *portfolio.Portfolio) error
	// Account 账户级指标，不支持的字段保持空。
	Account(ctx context.Context, p *portfolio.Portfolio) (portfolio.Account, error)
}

// MarketData 行情读取能力。
type MarketData interface {
	SpotValue(ctx context.Context, assets []asset.Asset, field Field, dt time.Time, freq Frequency) (map[int64]Value, error)
	HistoryWindow(ctx context.Context, assets []asset.Asset, end time.Time, barCount int, freq Frequency, field Field) (map[int64][]Value, error)
	Tickers(ctx context.Context, assets []asset.Asset) ([]Ticker, error)
}

// Connector 一个具体交易所适配器。
type Connector interface {
	Trading
	MarketData

	Name() string
	Assets() *asset.Registry
	// TimeSkew 本地时钟与交易所时钟的差值（交易所 - 本地）。
	TimeSkew() time.Duration
}

// Quotes 把 ticker 转换为组合估值输入。
func Quotes(tickers []Ticker) []portfolio.Quote {
	quotes := make([]portfolio.Quote, 0, len(tickers))
	for _, t := range tickers {
		quotes = append(quotes, portfolio.Quote{
			AssetID:   t.Asset.ID,
			LastPrice: t.LastPrice,
			Timestamp: t.Timestamp,
		})
	}
	return quotes
}
