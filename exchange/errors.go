package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrOrderNotFound 交易所不认识该订单。
	ErrOrderNotFound = errors.New("order not found")
	// ErrPrematureOrder 盘前准备阶段不允许下单。
	ErrPrematureOrder = errors.New("orders cannot be placed before trading starts")
	// ErrOrderDuringInitialize 策略初始化期间不允许下单。
	ErrOrderDuringInitialize = errors.New("orders cannot be placed during initialize")
	// ErrInvalidHistoryFrequency 交易所不支持该 K 线周期。
	ErrInvalidHistoryFrequency = errors.New("invalid history frequency")
	// ErrUnsupportedPair 交易对计价币种与账户计价币种不一致。
	ErrUnsupportedPair = errors.New("currency pair must share the exchange base currency")
)

// RequestError 网络、超时、限流等瞬时错误，可以重试。
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request error: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ProtocolError 响应格式不符合预期，不重试。
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TooManyAttemptsError 写路径用尽重试预算。
type TooManyAttemptsError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TooManyAttemptsError) Unwrap() error { return e.Err }

// OrderRejectedError 下单最终失败。
type OrderRejectedError struct {
	Symbol string
	Amount decimal.Decimal
	Err    error
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order %s %s rejected: %v", e.Amount, e.Symbol, e.Err)
}

func (e *OrderRejectedError) Unwrap() error { return e.Err }

// IsRetryable 仅 RequestError 链可以重试；已经用尽预算的错误不再重试。
func IsRetryable(err error) bool {
	var exhausted *TooManyAttemptsError
	if errors.As(err, &exhausted) {
		return false
	}
	var re *RequestError
	return errors.As(err, &re)
}
