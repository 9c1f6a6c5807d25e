package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"live-trader-go/portfolio"
)

// MaxDrawdown 组合净值相对运行期间高点的回撤上限。
// 高点在每次校验时更新，组合尚未同步或净值非正时跳过。
type MaxDrawdown struct {
	Max decimal.Decimal

	peak decimal.Decimal
}

func (c *MaxDrawdown) Validate(p *portfolio.Portfolio, _ portfolio.Account) error {
	value := p.PortfolioValue
	if !p.Synced() || !value.IsPositive() {
		return nil
	}
	if value.GreaterThan(c.peak) {
		c.peak = value
		return nil
	}
	dd := c.peak.Sub(value).Div(c.peak)
	if dd.GreaterThan(c.Max) {
		return fmt.Errorf("%w: %w: %s > %s (peak %s)", ErrAccountControl, ErrMaxDrawdown, dd.StringFixed(4), c.Max, c.peak)
	}
	return nil
}

// Peak 已观察到的净值高点
func (c *MaxDrawdown) Peak() decimal.Decimal { return c.peak }
