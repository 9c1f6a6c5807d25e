package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"live-trader-go/portfolio"
)

func TestMaxDrawdown(t *testing.T) {
	c := &MaxDrawdown{Max: d("0.1")}
	p := portfolio.New(time.Now(), decimal.Zero)

	// 未同步时不校验
	assert.NoError(t, c.Validate(p, portfolio.Account{}))
	assert.True(t, c.Peak().IsZero())

	p.SetCash(d("1000"))
	p.PortfolioValue = d("1000")
	assert.NoError(t, c.Validate(p, portfolio.Account{}))
	p.PortfolioValue = d("1200")
	assert.NoError(t, c.Validate(p, portfolio.Account{}))
	assert.True(t, c.Peak().Equal(d("1200")))

	p.PortfolioValue = d("1080")
	assert.NoError(t, c.Validate(p, portfolio.Account{}))

	p.PortfolioValue = d("1000")
	err := c.Validate(p, portfolio.Account{})
	assert.True(t, errors.Is(err, ErrMaxDrawdown))
	assert.True(t, errors.Is(err, ErrAccountControl))
	assert.Contains(t, err.Error(), "0.1667")
}

func TestLimitsBuildDrawdown(t *testing.T) {
	_, account := Limits{MaxDrawdown: 0.2}.Build()
	assert.Len(t, account, 1)
	_, ok := account[0].(*MaxDrawdown)
	assert.True(t, ok)
}
