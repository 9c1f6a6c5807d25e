package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrConflictingStyle 同时传入 style 和 limit/stop 价格。
var ErrConflictingStyle = errors.New("style cannot be combined with limit or stop price")

// StyleKind 执行方式。
type StyleKind string

const (
	StyleMarket    StyleKind = "MARKET"
	StyleLimit     StyleKind = "LIMIT"
	StyleStop      StyleKind = "STOP"
	StyleStopLimit StyleKind = "STOP_LIMIT"
)

// Style 执行方式及其价格参数。
type Style struct {
	Kind  StyleKind
	Limit decimal.NullDecimal
	Stop  decimal.NullDecimal
}

func MarketOrder() Style { return Style{Kind: StyleMarket} }

func LimitOrder(limit decimal.Decimal) Style {
	return Style{Kind: StyleLimit, Limit: decimal.NewNullDecimal(limit)}
}

func StopOrder(stop decimal.Decimal) Style {
	return Style{Kind: StyleStop, Stop: decimal.NewNullDecimal(stop)}
}

func StopLimitOrder(limit, stop decimal.Decimal) Style {
	return Style{
		Kind:  StyleStopLimit,
		Limit: decimal.NewNullDecimal(limit),
		Stop:  decimal.NewNullDecimal(stop),
	}
}

// ResolveStyle 把 limit/stop 简写转换为 Style：
// 只给 limit 即限价单，只给 stop 即止损单，两者都给即止损限价单，都不给则为市价单。
func ResolveStyle(limit, stop decimal.NullDecimal, style *Style) (Style, error) {
	if style != nil {
		if limit.Valid || stop.Valid {
			return Style{}, ErrConflictingStyle
		}
		if err := style.Validate(); err != nil {
			return Style{}, err
		}
		return *style, nil
	}
	switch {
	case limit.Valid && stop.Valid:
		return StopLimitOrder(limit.Decimal, stop.Decimal), nil
	case limit.Valid:
		return LimitOrder(limit.Decimal), nil
	case stop.Valid:
		return StopOrder(stop.Decimal), nil
	default:
		return MarketOrder(), nil
	}
}

// Validate 检查价格参数与执行方式是否匹配。
func (s Style) Validate() error {
	needLimit := s.Kind == StyleLimit || s.Kind == StyleStopLimit
	needStop := s.Kind == StyleStop || s.Kind == StyleStopLimit
	switch s.Kind {
	case StyleMarket, StyleLimit, StyleStop, StyleStopLimit:
	default:
		return fmt.Errorf("unknown execution style %q", s.Kind)
	}
	if needLimit && (!s.Limit.Valid || !s.Limit.Decimal.IsPositive()) {
		return fmt.Errorf("%s order requires a positive limit price", s.Kind)
	}
	if needStop && (!s.Stop.Valid || !s.Stop.Decimal.IsPositive()) {
		return fmt.Errorf("%s order requires a positive stop price", s.Kind)
	}
	return nil
}

func (s Style) String() string { return string(s.Kind) }
