package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
	"live-trader-go/order"
)

// Position 单个交易对的净持仓。
type Position struct {
	Asset         asset.Asset
	Amount        decimal.Decimal
	CostBasis     decimal.Decimal
	LastSalePrice decimal.Decimal
	LastSaleDate  time.Time
}

// Apply 根据成交调整仓位：同向加仓按加权平均更新成本，
// 减仓不改成本，反手以成交价为新成本，归零则成本清零。
func (p *Position) Apply(tx order.Transaction) {
	prev := p.Amount
	next := prev.Add(tx.Amount)

	switch {
	case next.IsZero():
		p.CostBasis = decimal.Zero
	case prev.IsZero() || prev.Sign() != next.Sign():
		p.CostBasis = tx.Price
	case prev.Sign() == tx.Amount.Sign():
		total := p.CostBasis.Mul(prev.Abs()).Add(tx.Price.Mul(tx.Amount.Abs()))
		p.CostBasis = total.Div(next.Abs())
	}
	p.Amount = next
}

// MarketValue 按最新成交价计算的持仓价值。
func (p *Position) MarketValue() decimal.Decimal {
	return p.Amount.Mul(p.LastSalePrice)
}

// UnrealizedPnL 未实现盈亏。
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p.LastSalePrice.IsZero() {
		return decimal.Zero
	}
	return p.LastSalePrice.Sub(p.CostBasis).Mul(p.Amount)
}
