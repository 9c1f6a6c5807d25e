package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
)

// Transaction 由 FILLED 订单派生的成交记录，创建后不再修改。
type Transaction struct {
	Asset      asset.Asset
	Amount     decimal.Decimal
	DT         time.Time
	Price      decimal.Decimal
	OrderID    string
	Commission decimal.Decimal
}

// NewTransaction 从已成交订单构造成交记录。
func NewTransaction(o *Order, dt time.Time) (Transaction, error) {
	if o.Status != StatusFilled {
		return Transaction{}, fmt.Errorf("order %s is %s, not %s", o.ID, o.Status, StatusFilled)
	}
	return Transaction{
		Asset:      o.Asset,
		Amount:     o.Amount,
		DT:         dt,
		Price:      o.ExecutedPrice,
		OrderID:    o.ID,
		Commission: o.Commission,
	}, nil
}

// Notional 成交金额（不含手续费）。
func (t Transaction) Notional() decimal.Decimal {
	return t.Amount.Mul(t.Price)
}
