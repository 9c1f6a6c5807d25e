package order

import (
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
)

// Status represents order lifecycle.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Order 本地订单视图；ID 由交易所分配。
// Amount 为带符号数量：正数买入/平空，负数卖出/开空。
type Order struct {
	ID            string
	Asset         asset.Asset
	Amount        decimal.Decimal
	Filled        decimal.Decimal
	Style         Style
	Status        Status
	Created       time.Time
	ExecutedPrice decimal.Decimal // 仅 FILLED 有效
	Commission    decimal.Decimal // 仅 FILLED 有效
}

// LimitPrice 返回限价（若有）。
func (o *Order) LimitPrice() decimal.NullDecimal { return o.Style.Limit }

// StopPrice 返回止损触发价（若有）。
func (o *Order) StopPrice() decimal.NullDecimal { return o.Style.Stop }

// IsBuy 数量为正即买单。
func (o *Order) IsBuy() bool { return o.Amount.IsPositive() }

// Open 订单是否仍在挂单中。
func (o *Order) Open() bool { return o.Status == StatusOpen }

// Clone 返回值拷贝，避免调用方修改共享状态。
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
