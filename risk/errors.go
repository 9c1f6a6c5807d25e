package risk

import "errors"

var (
	// ErrTradingControl 下单时的交易控制被触发，订单不会提交。
	ErrTradingControl = errors.New("trading control violated")
	// ErrAccountControl 每个 tick 校验的账户控制被触发。
	ErrAccountControl = errors.New("account control violated")

	ErrMaxOrderSize    = errors.New("order size exceed")
	ErrMaxPositionSize = errors.New("position size exceed")
	ErrMaxOrderCount   = errors.New("daily order count exceed")
	ErrLongOnly        = errors.New("short position not allowed")
	ErrMaxLeverage     = errors.New("leverage exceed")
	ErrMinCash         = errors.New("cash below minimum")
	ErrMaxDrawdown     = errors.New("drawdown exceed")
)
