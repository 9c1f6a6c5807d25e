package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"live-trader-go/asset"
	"live-trader-go/exchange"
	"live-trader-go/order"
	"live-trader-go/retry"
	"live-trader-go/risk"
)

// Order 下单入口。amount 带符号，正数买入；limit/stop 与 style 二选一。
// amount 为 0 时不下单，返回 nil。Initialize 期间返回 ErrOrderDuringInitialize，
// 盘前阶段返回 ErrPrematureOrder。
// 提交失败（含重试预算用尽）返回 *exchange.OrderRejectedError。
func (a *Algorithm) Order(as asset.Asset, amount decimal.Decimal, limit, stop decimal.NullDecimal, style *order.Style) (*order.Order, error) {
	if a.initializing {
		return nil, exchange.ErrOrderDuringInitialize
	}
	if a.preSession {
		return nil, exchange.ErrPrematureOrder
	}
	if amount.IsZero() {
		a.log.Warn("skipping order with zero amount", zap.String("symbol", as.Symbol))
		return nil, nil
	}
	st, err := order.ResolveStyle(limit, stop, style)
	if err != nil {
		return nil, err
	}

	req := risk.OrderRequest{Asset: as, Amount: amount, Price: a.referencePrice(as, st), Time: a.now}
	if err := a.cfg.TradingControls.Validate(req, a.portfolio); err != nil {
		a.monitor.RecordControlViolation("trading")
		a.log.LogControl("trading_control_violated", map[string]interface{}{
			"symbol": as.Symbol,
			"amount": amount.String(),
			"error":  err.Error(),
		})
		return nil, err
	}

	id, err := retry.Do(a.callCtx, a.retrier, exchange.OpPlaceOrder, a.policy(exchange.OpPlaceOrder),
		func(ctx context.Context) (string, error) {
			return a.conn.PlaceOrder(ctx, as, amount, st)
		})
	if err != nil {
		a.monitor.RecordOrderRejected()
		fields := map[string]interface{}{
			"op":     exchange.OpPlaceOrder,
			"symbol": as.Symbol,
			"amount": amount.String(),
		}
		a.log.LogError(err, fields)
		fields["error"] = err.Error()
		a.alert(a.alerter.SendError, "order rejected", fields)
		return nil, &exchange.OrderRejectedError{Symbol: as.Symbol, Amount: amount, Err: err}
	}
	a.cfg.TradingControls.RecordPlaced(req)

	if err := a.portfolio.CreateOrder(&order.Order{
		ID:      id,
		Asset:   as,
		Amount:  amount,
		Style:   st,
		Status:  order.StatusOpen,
		Created: a.now,
	}); err != nil {
		return nil, fmt.Errorf("track order %s: %w", id, err)
	}
	o, ok := a.portfolio.OpenOrders.Get(id)
	if !ok {
		return nil, fmt.Errorf("order %s missing from open orders", id)
	}
	a.tracker.RecordOrder(o)
	a.monitor.RecordOrderPlaced()
	a.log.LogOrder("order_placed", id, map[string]interface{}{
		"symbol": as.Symbol,
		"amount": amount.String(),
		"style":  st.String(),
	})
	return o.Clone(), nil
}

// referencePrice 风控用参考价：限价、止损价、最近成交价，都没有时为 0。
func (a *Algorithm) referencePrice(as asset.Asset, st order.Style) decimal.Decimal {
	switch {
	case st.Limit.Valid:
		return st.Limit.Decimal
	case st.Stop.Valid:
		return st.Stop.Decimal
	}
	if px, ok := a.prices[as.ID]; ok {
		return px
	}
	if pos, ok := a.portfolio.Position(as.ID); ok {
		return pos.LastSalePrice
	}
	return decimal.Zero
}

// CancelOrder 撤单。挂单集合由下一次对账在看到 CANCELLED 后移除。
func (a *Algorithm) CancelOrder(id string) error {
	err := retry.Exec(a.callCtx, a.retrier, exchange.OpCancelOrder, a.policy(exchange.OpCancelOrder),
		func(ctx context.Context) error {
			return a.conn.CancelOrder(ctx, id)
		})
	if err != nil {
		// 本地已不跟踪且交易所也不认识，视为已终结
		if _, tracked := a.portfolio.OpenOrders.Get(id); !tracked && errors.Is(err, exchange.ErrOrderNotFound) {
			a.log.Info("cancel of unknown order ignored", zap.String("order_id", id))
			return nil
		}
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	a.log.LogOrder("cancel_requested", id, nil)
	return nil
}

// GetOpenOrders 从交易所读取挂单；重试用尽时返回空列表。
func (a *Algorithm) GetOpenOrders(as *asset.Asset) ([]*order.Order, error) {
	orders, _, err := retry.Read(a.callCtx, a.retrier, exchange.OpGetOpenOrders, a.policy(exchange.OpGetOpenOrders), []*order.Order{},
		func(ctx context.Context) ([]*order.Order, error) {
			return a.conn.GetOpenOrders(ctx, as)
		})
	return orders, err
}

// GetOrder 查询订单；重试用尽时退回本地视图。
func (a *Algorithm) GetOrder(id string) (*order.Order, error) {
	o, err := retry.Do(a.callCtx, a.retrier, exchange.OpGetOrder, a.policy(exchange.OpGetOrder),
		func(ctx context.Context) (*order.Order, error) {
			return a.conn.GetOrder(ctx, id)
		})
	var exhausted *exchange.TooManyAttemptsError
	if errors.As(err, &exhausted) {
		if local, ok := a.portfolio.OpenOrders.Get(id); ok {
			return local.Clone(), nil
		}
	}
	return o, err
}

// Symbol 按交易对名称查找资产。
func (a *Algorithm) Symbol(symbol string) (asset.Asset, error) {
	return a.conn.Assets().Lookup(symbol)
}
