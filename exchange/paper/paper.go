// Package paper 提供内存撮合的模拟交易所，用于测试和 --paper 运行。
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"live-trader-go/asset"
	"live-trader-go/exchange"
	"live-trader-go/order"
	"live-trader-go/portfolio"
)

// ErrSimulated 注入的瞬时故障。
var ErrSimulated = errors.New("simulated connector failure")

// Connector 模拟交易所：维护现金、订单与价格，按最新价撮合挂单。
type Connector struct {
	mu sync.RWMutex

	name         string
	registry     *asset.Registry
	baseCurrency string
	skew         time.Duration
	now          func() time.Time
	newID        func() string

	cash           decimal.Decimal
	commissionRate decimal.Decimal
	holdings       map[int64]decimal.Decimal
	orders         map[string]*order.Order
	prices         map[int64]decimal.Decimal
	candles        map[int64][]exchange.Candle

	// 故障注入与调用统计
	failures map[string]int
	calls    map[string]int
}

// Name 模拟交易所名称。
const Name = "paper"

var _ exchange.Connector = (*Connector)(nil)

// New 创建模拟交易所，cash 为计价币种的初始余额。
func New(registry *asset.Registry, baseCurrency string, cash decimal.Decimal) *Connector {
	return &Connector{
		name:         Name,
		registry:     registry,
		baseCurrency: strings.ToLower(baseCurrency),
		now:          time.Now,
		newID:        uuid.NewString,
		cash:         cash,
		holdings:     make(map[int64]decimal.Decimal),
		orders:       make(map[string]*order.Order),
		prices:       make(map[int64]decimal.Decimal),
		candles:      make(map[int64][]exchange.Candle),
		failures:     make(map[string]int),
		calls:        make(map[string]int),
	}
}

// SetClock 替换时钟。
func (c *Connector) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// SetIDGenerator 替换订单 ID 生成器。
func (c *Connector) SetIDGenerator(gen func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newID = gen
}

// SetTimeSkew 设置报告的时钟偏差。
func (c *Connector) SetTimeSkew(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skew = d
}

// SetCommissionRate 按成交额收取的手续费率。
func (c *Connector) SetCommissionRate(rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commissionRate = rate
}

// FailNext 让接下来 n 次 op 调用返回 *exchange.RequestError。
func (c *Connector) FailNext(op string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = n
}

// Calls 返回 op 的调用次数（含注入失败的调用）。
func (c *Connector) Calls(op string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[op]
}

// Cash 当前模拟余额。
func (c *Connector) Cash() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cash
}

func (c *Connector) Name() string            { return c.name }
func (c *Connector) Assets() *asset.Registry { return c.registry }

func (c *Connector) TimeSkew() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.skew
}

// enter 记录调用并消耗一次注入故障，调用方需持有写锁。
func (c *Connector) enter(op string) error {
	c.calls[op]++
	if c.failures[op] > 0 {
		c.failures[op]--
		return &exchange.RequestError{Op: op, Err: ErrSimulated}
	}
	return nil
}

func (c *Connector) PlaceOrder(ctx context.Context, a asset.Asset, amount decimal.Decimal, style order.Style) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(exchange.OpPlaceOrder); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &exchange.RequestError{Op: exchange.OpPlaceOrder, Err: err}
	}
	if c.baseCurrency != "" && a.Base() != c.baseCurrency {
		return "", fmt.Errorf("%w: %s", exchange.ErrUnsupportedPair, a.Symbol)
	}
	if amount.IsZero() {
		return "", fmt.Errorf("order amount must not be zero")
	}
	if err := style.Validate(); err != nil {
		return "", err
	}
	o := &order.Order{
		ID:      c.newID(),
		Asset:   a,
		Amount:  amount,
		Style:   style,
		Status:  order.StatusOpen,
		Created: c.now(),
	}
	c.orders[o.ID] = o
	if px, ok := c.prices[a.ID]; ok {
		c.match(o, px)
	}
	return o.ID, nil
}

func (c *Connector) GetOpenOrders(ctx context.Context, a *asset.Asset) ([]*order.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(exchange.OpGetOpenOrders); err != nil {
		return nil, err
	}
	res := make([]*order.Order, 0)
	for _, o := range c.orders {
		if !o.Open() {
			continue
		}
		if a != nil && o.Asset.ID != a.ID {
			continue
		}
		res = append(res, o.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Created.Before(res[j].Created) })
	return res, nil
}

func (c *Connector) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(exchange.OpGetOrder); err != nil {
		return nil, err
	}
	o, ok := c.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

func (c *Connector) CancelOrder(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(exchange.OpCancelOrder); err != nil {
		return err
	}
	o, ok := c.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, id)
	}
	if o.Open() {
		o.Status = order.StatusCancelled
	}
	return nil
}

func (c *Connector) UpdatePortfolio(ctx context.Context, p *portfolio.Portfolio) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(exchange.OpUpdatePortfolio); err != nil {
		return err
	}
	p.SetCash(c.cash)
	quotes := make([]portfolio.Quote, 0, len(c.prices))
	ts := c.now()
	for _, a := range p.HeldAssets() {
		if px, ok := c.prices[a.ID]; ok {
			quotes = append(quotes, portfolio.Quote{AssetID: a.ID, LastPrice: px, Timestamp: ts})
		}
	}
	p.Revalue(quotes)
	return nil
}

func (c *Connector) Account(ctx context.Context, p *portfolio.Portfolio) (portfolio.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(exchange.OpAccount); err != nil {
		return portfolio.Account{}, err
	}
	return portfolio.DeriveAccount(p), nil
}

// Holding 模拟交易所记录的持仓数量。
func (c *Connector) Holding(assetID int64) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holdings[assetID]
}
