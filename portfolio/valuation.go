package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote 单个交易对的最新价。
type Quote struct {
	AssetID   int64
	LastPrice decimal.Decimal
	Timestamp time.Time
}

// Revalue 基于最新价重新估值持仓并刷新组合价值、盈亏与收益率。
func (p *Portfolio) Revalue(quotes []Quote) {
	for _, q := range quotes {
		pos, ok := p.positions[q.AssetID]
		if !ok {
			continue
		}
		pos.LastSalePrice = q.LastPrice
		pos.LastSaleDate = q.Timestamp
	}
	p.recompute()
}

func (p *Portfolio) recompute() {
	total := decimal.Zero
	for _, pos := range p.positions {
		total = total.Add(pos.MarketValue())
	}
	p.PositionsValue = total
	p.PortfolioValue = total.Add(p.Cash)
	p.PnL = p.PortfolioValue.Sub(p.StartingCash)
	if p.StartingCash.IsZero() {
		p.Returns = decimal.Zero
		return
	}
	p.Returns = p.PnL.Div(p.StartingCash)
}

// Leverage 总敞口 / 组合净值。
func (p *Portfolio) Leverage() decimal.Decimal {
	if !p.PortfolioValue.IsPositive() {
		return decimal.Zero
	}
	gross := decimal.Zero
	for _, pos := range p.positions {
		gross = gross.Add(pos.MarketValue().Abs())
	}
	return gross.Div(p.PortfolioValue)
}
