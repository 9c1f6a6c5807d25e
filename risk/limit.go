package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/portfolio"
)

// MaxOrderSize 单笔数量与金额上限。
type MaxOrderSize struct {
	MaxAmount   decimal.Decimal
	MaxNotional decimal.Decimal
}

func (c *MaxOrderSize) Validate(req OrderRequest, _ *portfolio.Portfolio) error {
	qty := req.Amount.Abs()
	if c.MaxAmount.IsPositive() && qty.GreaterThan(c.MaxAmount) {
		return fmt.Errorf("%w: %w: %s %s > %s", ErrTradingControl, ErrMaxOrderSize, qty, req.Asset.Symbol, c.MaxAmount)
	}
	if c.MaxNotional.IsPositive() && req.Price.IsPositive() {
		notional := qty.Mul(req.Price)
		if notional.GreaterThan(c.MaxNotional) {
			return fmt.Errorf("%w: %w: notional %s > %s", ErrTradingControl, ErrMaxOrderSize, notional, c.MaxNotional)
		}
	}
	return nil
}

// MaxPositionSize 成交后净持仓数量上限。
type MaxPositionSize struct {
	MaxAmount decimal.Decimal
}

func (c *MaxPositionSize) Validate(req OrderRequest, p *portfolio.Portfolio) error {
	current := decimal.Zero
	if pos, ok := p.Position(req.Asset.ID); ok {
		current = pos.Amount
	}
	next := current.Add(req.Amount)
	if next.Abs().GreaterThan(c.MaxAmount) {
		return fmt.Errorf("%w: %w: %s %s > %s", ErrTradingControl, ErrMaxPositionSize, next, req.Asset.Symbol, c.MaxAmount)
	}
	return nil
}

// MaxOrderCount 每个自然日（UTC）的下单次数上限，只统计成功提交的订单。
type MaxOrderCount struct {
	max   int
	day   string
	count int
	mu    sync.Mutex
}

func NewMaxOrderCount(max int) *MaxOrderCount {
	return &MaxOrderCount{max: max}
}

func (c *MaxOrderCount) Validate(req OrderRequest, _ *portfolio.Portfolio) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	day := c.roll(req.Time)
	if c.count >= c.max {
		return fmt.Errorf("%w: %w: %d orders on %s", ErrTradingControl, ErrMaxOrderCount, c.count, day)
	}
	return nil
}

func (c *MaxOrderCount) RecordPlaced(req OrderRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(req.Time)
	c.count++
}

func (c *MaxOrderCount) roll(t time.Time) string {
	day := t.UTC().Format("2006-01-02")
	if day != c.day {
		c.day = day
		c.count = 0
	}
	return day
}

// LongOnly 成交后持仓不能为负。
type LongOnly struct{}

func (LongOnly) Validate(req OrderRequest, p *portfolio.Portfolio) error {
	current := decimal.Zero
	if pos, ok := p.Position(req.Asset.ID); ok {
		current = pos.Amount
	}
	// 在途卖单也计入，避免多笔卖单叠加后变成空头
	for _, o := range p.OpenOrders.ByAsset(req.Asset.ID) {
		if o.Amount.IsNegative() {
			current = current.Add(o.Amount)
		}
	}
	if current.Add(req.Amount).IsNegative() {
		return fmt.Errorf("%w: %w: %s would go short", ErrTradingControl, ErrLongOnly, req.Asset.Symbol)
	}
	return nil
}

// MaxLeverage 总敞口 / 组合净值上限。
type MaxLeverage struct {
	Max decimal.Decimal
}

func (c MaxLeverage) Validate(p *portfolio.Portfolio, acct portfolio.Account) error {
	lev := p.Leverage()
	if acct.Leverage.Valid {
		lev = acct.Leverage.Decimal
	}
	if lev.GreaterThan(c.Max) {
		return fmt.Errorf("%w: %w: %s > %s", ErrAccountControl, ErrMaxLeverage, lev.StringFixed(4), c.Max)
	}
	return nil
}

// MinCash 可用现金下限。
type MinCash struct {
	Min decimal.Decimal
}

func (c MinCash) Validate(p *portfolio.Portfolio, _ portfolio.Account) error {
	if p.Cash.LessThan(c.Min) {
		return fmt.Errorf("%w: %w: %s < %s", ErrAccountControl, ErrMinCash, p.Cash, c.Min)
	}
	return nil
}
