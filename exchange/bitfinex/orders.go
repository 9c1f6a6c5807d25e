package bitfinex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/exchange"
	"live-trader-go/order"
)

// orderStatus v1 order/status 与 orders 的单条记录。
type orderStatus struct {
	ID                int64           `json:"id"`
	Symbol            string          `json:"symbol"`
	Price             decimal.Decimal `json:"price"`
	AvgExecutionPrice decimal.Decimal `json:"avg_execution_price"`
	Side              string          `json:"side"`
	Type              string          `json:"type"`
	Timestamp         decimal.Decimal `json:"timestamp"`
	IsLive            bool            `json:"is_live"`
	IsCancelled       bool            `json:"is_cancelled"`
	OriginalAmount    decimal.Decimal `json:"original_amount"`
	ExecutedAmount    decimal.Decimal `json:"executed_amount"`
}

type newOrderResp struct {
	ID int64 `json:"id"`
}

type balance struct {
	Type      string          `json:"type"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Available decimal.Decimal `json:"available"`
}

// status 映射远端状态：已撤销 => CANCELLED，不再活跃 => FILLED，否则 OPEN。
func (s orderStatus) status() order.Status {
	switch {
	case s.IsCancelled:
		return order.StatusCancelled
	case !s.IsLive:
		return order.StatusFilled
	default:
		return order.StatusOpen
	}
}

func (s orderStatus) style() order.Style {
	switch {
	case strings.HasSuffix(s.Type, "stop"):
		return order.StopOrder(s.Price)
	case strings.HasSuffix(s.Type, "limit"):
		return order.LimitOrder(s.Price)
	default:
		return order.MarketOrder()
	}
}

func (c *Connector) toOrder(s orderStatus) (*order.Order, error) {
	a, err := c.registry.ByExchangeSymbol(s.Symbol)
	if err != nil {
		return nil, &exchange.ProtocolError{Op: exchange.OpGetOrder, Err: fmt.Errorf("order %d: %w", s.ID, err)}
	}
	amount := s.OriginalAmount.Abs()
	filled := s.ExecutedAmount.Abs()
	if strings.EqualFold(s.Side, "sell") {
		amount = amount.Neg()
		filled = filled.Neg()
	}
	sec := s.Timestamp.IntPart()
	nsec := s.Timestamp.Sub(decimal.NewFromInt(sec)).Shift(9).IntPart()
	return &order.Order{
		ID:            strconv.FormatInt(s.ID, 10),
		Asset:         a,
		Amount:        amount,
		Filled:        filled,
		Style:         s.style(),
		Status:        s.status(),
		Created:       time.Unix(sec, nsec).UTC(),
		ExecutedPrice: s.AvgExecutionPrice,
		// 接口不返回手续费
		Commission: decimal.Zero,
	}, nil
}

func decodeOrder(op string, data []byte) (orderStatus, error) {
	var s orderStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return s, &exchange.ProtocolError{Op: op, Err: err}
	}
	return s, nil
}

// orderType 转换执行方式。交易所不支持止损限价单，按限价单提交。
func orderType(style order.Style) (kind string, price decimal.Decimal, degraded bool, err error) {
	switch style.Kind {
	case order.StyleMarket:
		// 市价单也要求 price 字段，取任意正数
		return "exchange market", decimal.NewFromInt(1), false, nil
	case order.StyleLimit:
		return "exchange limit", style.Limit.Decimal, false, nil
	case order.StyleStop:
		return "exchange stop", style.Stop.Decimal, false, nil
	case order.StyleStopLimit:
		return "exchange limit", style.Limit.Decimal, true, nil
	}
	return "", decimal.Zero, false, fmt.Errorf("%s orders not available", style.Kind)
}
