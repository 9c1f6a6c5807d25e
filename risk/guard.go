// Package risk 提供下单时的交易控制与每个 tick 的账户控制。
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
	"live-trader-go/portfolio"
)

// OrderRequest 待校验的下单请求。Price 为参考价，未知时为零，按金额的限制随之跳过。
type OrderRequest struct {
	Asset  asset.Asset
	Amount decimal.Decimal
	Price  decimal.Decimal
	Time   time.Time
}

// TradingControl 在 order() 内、提交前执行。
type TradingControl interface {
	Validate(req OrderRequest, p *portfolio.Portfolio) error
}

// PlacementRecorder 可选：订单成功提交后回调，用于需要计数的控制项。
type PlacementRecorder interface {
	RecordPlaced(req OrderRequest)
}

// AccountControl 每个 tick 执行，与策略是否下单无关。
type AccountControl interface {
	Validate(p *portfolio.Portfolio, acct portfolio.Account) error
}

// TradingControls 顺序执行，只要有一个返回错误则中止。
type TradingControls []TradingControl

func (m TradingControls) Validate(req OrderRequest, p *portfolio.Portfolio) error {
	for _, g := range m {
		if g == nil {
			continue
		}
		if err := g.Validate(req, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordPlaced 通知所有实现了 PlacementRecorder 的控制项。
func (m TradingControls) RecordPlaced(req OrderRequest) {
	for _, g := range m {
		if r, ok := g.(PlacementRecorder); ok {
			r.RecordPlaced(req)
		}
	}
}

// AccountControls 顺序执行，只要有一个返回错误则中止。
type AccountControls []AccountControl

func (m AccountControls) Validate(p *portfolio.Portfolio, acct portfolio.Account) error {
	for _, g := range m {
		if g == nil {
			continue
		}
		if err := g.Validate(p, acct); err != nil {
			return err
		}
	}
	return nil
}

// Limits 配置，零值表示不限制。
type Limits struct {
	MaxOrderSize     float64 `yaml:"maxOrderSize"`
	MaxOrderNotional float64 `yaml:"maxOrderNotional"`
	MaxPositionSize  float64 `yaml:"maxPositionSize"`
	MaxOrdersPerDay  int     `yaml:"maxOrdersPerDay"`
	LongOnly         bool    `yaml:"longOnly"`
	MaxLeverage      float64 `yaml:"maxLeverage"`
	MinCash          float64 `yaml:"minCash"`
	MaxDrawdown      float64 `yaml:"maxDrawdown"` // 相对净值高点的回撤比例，例如 0.2
}

// Build 按配置组装控制项。
func (l Limits) Build() (TradingControls, AccountControls) {
	var trading TradingControls
	if l.MaxOrderSize > 0 || l.MaxOrderNotional > 0 {
		trading = append(trading, &MaxOrderSize{
			MaxAmount:   decimal.NewFromFloat(l.MaxOrderSize),
			MaxNotional: decimal.NewFromFloat(l.MaxOrderNotional),
		})
	}
	if l.MaxPositionSize > 0 {
		trading = append(trading, &MaxPositionSize{MaxAmount: decimal.NewFromFloat(l.MaxPositionSize)})
	}
	if l.MaxOrdersPerDay > 0 {
		trading = append(trading, NewMaxOrderCount(l.MaxOrdersPerDay))
	}
	if l.LongOnly {
		trading = append(trading, LongOnly{})
	}

	var account AccountControls
	if l.MaxLeverage > 0 {
		account = append(account, MaxLeverage{Max: decimal.NewFromFloat(l.MaxLeverage)})
	}
	if l.MinCash != 0 {
		account = append(account, MinCash{Min: decimal.NewFromFloat(l.MinCash)})
	}
	if l.MaxDrawdown > 0 {
		account = append(account, &MaxDrawdown{Max: decimal.NewFromFloat(l.MaxDrawdown)})
	}
	return trading, account
}
