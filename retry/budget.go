package retry

import (
	"fmt"
	"time"

	"live-trader-go/exchange"
)

// Budget 各类操作的重试预算。
type Budget struct {
	UpdatePortfolio int           `yaml:"updatePortfolio"`
	CheckOpenOrders int           `yaml:"checkOpenOrders"`
	GetOpenOrders   int           `yaml:"getOpenOrders"`
	Order           int           `yaml:"order"`
	Delay           time.Duration `yaml:"delay"`
}

// DefaultBudget 下单只重试一次，重复提交可能造成重复订单。
func DefaultBudget() Budget {
	return Budget{
		UpdatePortfolio: 5,
		CheckOpenOrders: 5,
		GetOpenOrders:   5,
		Order:           1,
		Delay:           5 * time.Second,
	}
}

func (b Budget) Validate() error {
	for name, v := range map[string]int{
		"updatePortfolio": b.UpdatePortfolio,
		"checkOpenOrders": b.CheckOpenOrders,
		"getOpenOrders":   b.GetOpenOrders,
		"order":           b.Order,
	} {
		if v < 0 {
			return fmt.Errorf("retry.%s must be >= 0, got %d", name, v)
		}
	}
	if b.Delay < 0 {
		return fmt.Errorf("retry.delay must be >= 0, got %s", b.Delay)
	}
	return nil
}

// Policy 返回操作对应的重试参数。撤单、账户与行情读取沿用对账预算。
func (b Budget) Policy(op string) Policy {
	n := b.CheckOpenOrders
	switch op {
	case exchange.OpUpdatePortfolio:
		n = b.UpdatePortfolio
	case exchange.OpGetOpenOrders:
		n = b.GetOpenOrders
	case exchange.OpPlaceOrder:
		n = b.Order
	}
	return Policy{Retries: n, Delay: b.Delay}
}
