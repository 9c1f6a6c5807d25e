package paper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
	"live-trader-go/exchange"
	"live-trader-go/order"
)

// SetPrice 更新最新价并撮合该交易对的挂单。
func (c *Connector) SetPrice(assetID int64, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[assetID] = price
	for _, o := range c.sortedOrders() {
		if o.Open() && o.Asset.ID == assetID {
			c.match(o, price)
		}
	}
}

// AddCandles 追加 K 线并以最后一根收盘价作为最新价。
func (c *Connector) AddCandles(assetID int64, candles ...exchange.Candle) {
	if len(candles) == 0 {
		return
	}
	c.mu.Lock()
	series := append(c.candles[assetID], candles...)
	sort.Slice(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	c.candles[assetID] = series
	c.mu.Unlock()
	c.SetPrice(assetID, series[len(series)-1].Close)
}

// Fill 以指定价格强制成交一个挂单。
func (c *Connector) Fill(id string, price, commission decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, id)
	}
	if !o.Open() {
		return fmt.Errorf("order %s is %s", id, o.Status)
	}
	c.execute(o, price, commission)
	return nil
}

// Reject 把挂单标记为交易所拒绝。
func (c *Connector) Reject(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, id)
	}
	if o.Open() {
		o.Status = order.StatusRejected
	}
	return nil
}

func (c *Connector) sortedOrders() []*order.Order {
	res := make([]*order.Order, 0, len(c.orders))
	for _, o := range c.orders {
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// match 按执行方式判断最新价是否触发成交，调用方需持有写锁。
func (c *Connector) match(o *order.Order, price decimal.Decimal) {
	buy := o.IsBuy()
	switch o.Style.Kind {
	case order.StyleMarket:
		c.execute(o, price, c.commission(o, price))
	case order.StyleLimit:
		limit := o.Style.Limit.Decimal
		if (buy && price.LessThanOrEqual(limit)) || (!buy && price.GreaterThanOrEqual(limit)) {
			c.execute(o, limit, c.commission(o, limit))
		}
	case order.StyleStop:
		if stopTriggered(buy, price, o.Style.Stop.Decimal) {
			c.execute(o, price, c.commission(o, price))
		}
	case order.StyleStopLimit:
		limit := o.Style.Limit.Decimal
		if !stopTriggered(buy, price, o.Style.Stop.Decimal) {
			return
		}
		if (buy && price.LessThanOrEqual(limit)) || (!buy && price.GreaterThanOrEqual(limit)) {
			c.execute(o, limit, c.commission(o, limit))
		}
	}
}

func stopTriggered(buy bool, price, stop decimal.Decimal) bool {
	if buy {
		return price.GreaterThanOrEqual(stop)
	}
	return price.LessThanOrEqual(stop)
}

func (c *Connector) commission(o *order.Order, price decimal.Decimal) decimal.Decimal {
	return o.Amount.Abs().Mul(price).Mul(c.commissionRate)
}

func (c *Connector) execute(o *order.Order, price, commission decimal.Decimal) {
	o.Status = order.StatusFilled
	o.Filled = o.Amount
	o.ExecutedPrice = price
	o.Commission = commission
	c.cash = c.cash.Sub(o.Amount.Mul(price)).Sub(commission)
	c.holdings[o.Asset.ID] = c.holdings[o.Asset.ID].Add(o.Amount)
}

func (c *Connector) Tickers(ctx context.Context, assets []asset.Asset) ([]exchange.Ticker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(exchange.OpTickers); err != nil {
		return nil, err
	}
	ts := c.now()
	res := make([]exchange.Ticker, 0, len(assets))
	for _, a := range assets {
		px, ok := c.prices[a.ID]
		if !ok {
			continue
		}
		t := exchange.Ticker{Asset: a, Timestamp: ts, Bid: px, Ask: px, LastPrice: px, Low: px, High: px}
		if series := c.candles[a.ID]; len(series) > 0 {
			last := series[len(series)-1]
			t.Low, t.High, t.Volume = last.Low, last.High, last.Volume
		}
		res = append(res, t)
	}
	return res, nil
}

func (c *Connector) SpotValue(ctx context.Context, assets []asset.Asset, field exchange.Field, dt time.Time, freq exchange.Frequency) (map[int64]exchange.Value, error) {
	windows, err := c.HistoryWindow(ctx, assets, dt, 1, freq, field)
	if err != nil {
		return nil, err
	}
	res := make(map[int64]exchange.Value, len(windows))
	for id, values := range windows {
		if len(values) > 0 {
			res[id] = values[len(values)-1]
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range assets {
		if _, ok := res[a.ID]; ok {
			continue
		}
		if px, ok := c.prices[a.ID]; ok {
			res[a.ID] = exchange.Candle{Time: dt, Open: px, High: px, Low: px, Close: px}.Value(field)
		}
	}
	return res, nil
}

func (c *Connector) HistoryWindow(ctx context.Context, assets []asset.Asset, end time.Time, barCount int, freq exchange.Frequency, field exchange.Field) (map[int64][]exchange.Value, error) {
	if freq != exchange.Minute && freq != exchange.Daily {
		return nil, fmt.Errorf("%w: %s", exchange.ErrInvalidHistoryFrequency, freq)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(exchange.OpCandles); err != nil {
		return nil, err
	}
	res := make(map[int64][]exchange.Value, len(assets))
	for _, a := range assets {
		series := c.candles[a.ID]
		n := sort.Search(len(series), func(i int) bool { return series[i].Time.After(end) })
		start := n - barCount
		if start < 0 {
			start = 0
		}
		values := make([]exchange.Value, 0, n-start)
		for _, candle := range series[start:n] {
			values = append(values, candle.Value(field))
		}
		res[a.ID] = values
	}
	return res, nil
}
