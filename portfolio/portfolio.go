// Package portfolio 维护本地持仓、现金与挂单视图。
//
// Portfolio 只由执行循环写入；策略回调在自己的回合内只读访问，
// 下单/撤单必须经由执行循环的入口。
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
	"live-trader-go/order"
)

// Portfolio 现金、持仓与挂单。
type Portfolio struct {
	StartDate      time.Time
	StartingCash   decimal.Decimal
	Cash           decimal.Decimal
	CapitalUsed    decimal.Decimal
	PositionsValue decimal.Decimal
	PortfolioValue decimal.Decimal
	PnL            decimal.Decimal
	Returns        decimal.Decimal

	positions  map[int64]*Position
	OpenOrders *order.Book

	synced bool
}

func New(startDate time.Time, startingCash decimal.Decimal) *Portfolio {
	return &Portfolio{
		StartDate:      startDate,
		StartingCash:   startingCash,
		Cash:           startingCash,
		PortfolioValue: startingCash,
		positions:      make(map[int64]*Position),
		OpenOrders:     order.NewBook(),
	}
}

// SetCash 写入交易所回报的可用现金。首次同步时同时确定起始资金。
func (p *Portfolio) SetCash(cash decimal.Decimal) {
	p.Cash = cash
	if !p.synced {
		p.synced = true
		p.StartingCash = cash
	}
}

// Synced 是否已完成过至少一次远端同步。
func (p *Portfolio) Synced() bool { return p.synced }

// Position 返回指定交易对的持仓（拷贝）。
func (p *Portfolio) Position(assetID int64) (Position, bool) {
	pos, ok := p.positions[assetID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions 返回全部非空持仓（拷贝，按 asset ID 排序）。
func (p *Portfolio) Positions() []Position {
	res := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		res = append(res, *pos)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Asset.ID < res[j].Asset.ID })
	return res
}

// HeldAssets 返回有持仓记录的交易对。
func (p *Portfolio) HeldAssets() []asset.Asset {
	res := make([]asset.Asset, 0, len(p.positions))
	for _, pos := range p.Positions() {
		res = append(res, pos.Asset)
	}
	return res
}

// CreateOrder 登记新挂单。
func (p *Portfolio) CreateOrder(o *order.Order) error {
	if o.ID == "" {
		return fmt.Errorf("order without id")
	}
	if o.Status != order.StatusOpen {
		return fmt.Errorf("order %s is %s, only %s orders can be tracked", o.ID, o.Status, order.StatusOpen)
	}
	p.OpenOrders.Set(o)
	return nil
}

// ExecuteOrder 应用成交：移出挂单集合并更新持仓与已用资金，两步在同一次调用内完成。
func (p *Portfolio) ExecuteOrder(tx order.Transaction) error {
	if !p.OpenOrders.Delete(tx.OrderID) {
		return fmt.Errorf("execute order %s: not an open order", tx.OrderID)
	}
	pos, ok := p.positions[tx.Asset.ID]
	if !ok {
		pos = &Position{Asset: tx.Asset}
		p.positions[tx.Asset.ID] = pos
	}
	pos.Apply(tx)
	if pos.LastSalePrice.IsZero() {
		pos.LastSalePrice = tx.Price
		pos.LastSaleDate = tx.DT
	}
	p.CapitalUsed = p.CapitalUsed.Add(tx.Notional())
	p.recompute()
	return nil
}

// RemoveOrder 移除已撤销/拒绝的挂单，不影响持仓。
func (p *Portfolio) RemoveOrder(orderID string) error {
	if !p.OpenOrders.Delete(orderID) {
		return fmt.Errorf("remove order %s: not an open order", orderID)
	}
	return nil
}
