package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-trader-go/asset"
	"live-trader-go/order"
	"live-trader-go/portfolio"
)

var btc = asset.Asset{ID: 1, Symbol: "btc_usd"}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func holding(t *testing.T, amount, price string) *portfolio.Portfolio {
	t.Helper()
	p := portfolio.New(time.Now(), decimal.Zero)
	p.SetCash(d("1000"))
	if amount == "0" {
		return p
	}
	require.NoError(t, p.CreateOrder(&order.Order{ID: "seed", Asset: btc, Amount: d(amount), Status: order.StatusOpen}))
	require.NoError(t, p.ExecuteOrder(order.Transaction{Asset: btc, Amount: d(amount), Price: d(price), OrderID: "seed"}))
	return p
}

func req(amount, price string) OrderRequest {
	return OrderRequest{Asset: btc, Amount: d(amount), Price: d(price), Time: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func TestMaxOrderSize(t *testing.T) {
	c := &MaxOrderSize{MaxAmount: d("5"), MaxNotional: d("1000")}
	p := holding(t, "0", "0")
	assert.NoError(t, c.Validate(req("5", "100"), p))

	err := c.Validate(req("-6", "1"), p)
	assert.ErrorIs(t, err, ErrTradingControl)
	assert.ErrorIs(t, err, ErrMaxOrderSize)

	assert.ErrorIs(t, c.Validate(req("4", "300"), p), ErrMaxOrderSize)
	// 参考价未知时不校验金额
	assert.NoError(t, c.Validate(req("4", "0"), p))
}

func TestMaxPositionSize(t *testing.T) {
	c := &MaxPositionSize{MaxAmount: d("3")}
	p := holding(t, "2", "100")
	assert.NoError(t, c.Validate(req("1", "100"), p))
	assert.ErrorIs(t, c.Validate(req("2", "100"), p), ErrMaxPositionSize)
	assert.NoError(t, c.Validate(req("-5", "100"), p))
	assert.ErrorIs(t, c.Validate(req("-6", "100"), p), ErrMaxPositionSize)
}

func TestMaxOrderCountResetsDaily(t *testing.T) {
	c := NewMaxOrderCount(2)
	p := holding(t, "0", "0")
	r := req("1", "1")
	for i := 0; i < 2; i++ {
		require.NoError(t, c.Validate(r, p))
		c.RecordPlaced(r)
	}
	assert.ErrorIs(t, c.Validate(r, p), ErrMaxOrderCount)

	r.Time = r.Time.Add(24 * time.Hour)
	assert.NoError(t, c.Validate(r, p))
}

func TestMaxOrderCountIgnoresRejectedOrders(t *testing.T) {
	trading, _ := Limits{MaxOrdersPerDay: 1, LongOnly: true}.Build()
	p := holding(t, "0", "0")

	// 被 LongOnly 拒绝的卖单不占用次数
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, trading.Validate(req("-1", "1"), p), ErrLongOnly)
	}
	require.NoError(t, trading.Validate(req("1", "1"), p))
	// 校验通过但未提交成功，同样不计数
	require.NoError(t, trading.Validate(req("1", "1"), p))

	trading.RecordPlaced(req("1", "1"))
	assert.ErrorIs(t, trading.Validate(req("1", "1"), p), ErrMaxOrderCount)
}

func TestLongOnly(t *testing.T) {
	p := holding(t, "2", "100")
	assert.NoError(t, LongOnly{}.Validate(req("-2", "100"), p))
	assert.ErrorIs(t, LongOnly{}.Validate(req("-3", "100"), p), ErrLongOnly)

	require.NoError(t, p.CreateOrder(&order.Order{ID: "pending", Asset: btc, Amount: d("-1"), Status: order.StatusOpen}))
	assert.ErrorIs(t, LongOnly{}.Validate(req("-2", "100"), p), ErrLongOnly)
}

func TestAccountControls(t *testing.T) {
	p := holding(t, "2", "100")
	p.SetCash(d("100"))
	p.Revalue([]portfolio.Quote{{AssetID: btc.ID, LastPrice: d("100")}})
	// 敞口 200 / 净值 300
	controls := AccountControls{MaxLeverage{Max: d("1")}, MinCash{Min: d("50")}}
	assert.NoError(t, controls.Validate(p, portfolio.Account{}))

	err := MaxLeverage{Max: d("0.5")}.Validate(p, portfolio.Account{})
	assert.ErrorIs(t, err, ErrAccountControl)
	assert.ErrorIs(t, err, ErrMaxLeverage)

	// 交易所回报的杠杆优先
	acct := portfolio.Account{Leverage: decimal.NewNullDecimal(d("3"))}
	assert.ErrorIs(t, MaxLeverage{Max: d("2")}.Validate(p, acct), ErrMaxLeverage)

	assert.ErrorIs(t, MinCash{Min: d("150")}.Validate(p, portfolio.Account{}), ErrMinCash)
}

func TestLimitsBuild(t *testing.T) {
	trading, account := Limits{
		MaxOrderSize:    1,
		MaxPositionSize: 2,
		MaxOrdersPerDay: 3,
		LongOnly:        true,
		MaxLeverage:     2,
		MinCash:         10,
	}.Build()
	assert.Len(t, trading, 4)
	assert.Len(t, account, 2)

	p := holding(t, "0", "0")
	err := trading.Validate(req("-0.5", "1"), p)
	assert.True(t, errors.Is(err, ErrLongOnly))

	none, noneAcct := Limits{}.Build()
	assert.NoError(t, none.Validate(req("-100", "1"), p))
	assert.NoError(t, noneAcct.Validate(p, portfolio.Account{}))
}
