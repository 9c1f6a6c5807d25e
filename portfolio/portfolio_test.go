package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-trader-go/asset"
	"live-trader-go/order"
)

var btc = asset.Asset{ID: 1, Symbol: "btc_usd"}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fill(id string, amount, price string) order.Transaction {
	return order.Transaction{
		Asset:   btc,
		Amount:  d(amount),
		Price:   d(price),
		OrderID: id,
		DT:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func openOrder(id, amount string) *order.Order {
	return &order.Order{ID: id, Asset: btc, Amount: d(amount), Status: order.StatusOpen}
}

func TestSetCashCapturesStartingCash(t *testing.T) {
	p := New(time.Now(), decimal.Zero)
	p.SetCash(d("1000"))
	p.SetCash(d("900"))
	assert.True(t, p.StartingCash.Equal(d("1000")))
	assert.True(t, p.Cash.Equal(d("900")))
	assert.True(t, p.Synced())
}

func TestExecuteOrderUpdatesPosition(t *testing.T) {
	p := New(time.Now(), d("1000"))
	require.NoError(t, p.CreateOrder(openOrder("O1", "2")))
	require.Equal(t, 1, p.OpenOrders.Len())

	require.NoError(t, p.ExecuteOrder(fill("O1", "2", "100.5")))
	assert.Equal(t, 0, p.OpenOrders.Len())

	pos, ok := p.Position(btc.ID)
	require.True(t, ok)
	assert.True(t, pos.Amount.Equal(d("2")))
	assert.True(t, pos.CostBasis.Equal(d("100.5")))
	assert.True(t, p.CapitalUsed.Equal(d("201")))

	// 同一笔成交不能重复应用
	assert.Error(t, p.ExecuteOrder(fill("O1", "2", "100.5")))
}

func TestCreateOrderRejectsNonOpen(t *testing.T) {
	p := New(time.Now(), d("1000"))
	o := openOrder("O1", "1")
	o.Status = order.StatusFilled
	assert.Error(t, p.CreateOrder(o))
	assert.Error(t, p.CreateOrder(&order.Order{Status: order.StatusOpen}))
}

func TestRemoveOrderKeepsPosition(t *testing.T) {
	p := New(time.Now(), d("1000"))
	require.NoError(t, p.CreateOrder(openOrder("O1", "1")))
	require.NoError(t, p.RemoveOrder("O1"))
	_, ok := p.Position(btc.ID)
	assert.False(t, ok)
	assert.Error(t, p.RemoveOrder("O1"))
}

func TestPositionCostBasis(t *testing.T) {
	cases := []struct {
		name     string
		fills    [][2]string
		amount   string
		costBase string
	}{
		{"weighted average on add", [][2]string{{"1", "100"}, {"3", "200"}}, "4", "175"},
		{"reduce keeps cost", [][2]string{{"2", "100"}, {"-1", "150"}}, "1", "100"},
		{"flat resets cost", [][2]string{{"2", "100"}, {"-2", "150"}}, "0", "0"},
		{"flip takes fill price", [][2]string{{"2", "100"}, {"-3", "150"}}, "-1", "150"},
		{"short add averages", [][2]string{{"-1", "100"}, {"-1", "110"}}, "-2", "105"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pos := Position{Asset: btc}
			for _, f := range tc.fills {
				pos.Apply(order.Transaction{Asset: btc, Amount: d(f[0]), Price: d(f[1])})
			}
			assert.Truef(t, pos.Amount.Equal(d(tc.amount)), "amount %s", pos.Amount)
			assert.Truef(t, pos.CostBasis.Equal(d(tc.costBase)), "cost %s", pos.CostBasis)
		})
	}
}

func TestRevalue(t *testing.T) {
	p := New(time.Now(), decimal.Zero)
	p.SetCash(d("1000"))
	require.NoError(t, p.CreateOrder(openOrder("O1", "2")))
	require.NoError(t, p.ExecuteOrder(fill("O1", "2", "100")))
	p.SetCash(d("800"))

	ts := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	p.Revalue([]Quote{{AssetID: btc.ID, LastPrice: d("110"), Timestamp: ts}, {AssetID: 99, LastPrice: d("1")}})

	assert.True(t, p.PositionsValue.Equal(d("220")))
	assert.True(t, p.PortfolioValue.Equal(d("1020")))
	assert.True(t, p.PnL.Equal(d("20")))
	assert.True(t, p.Returns.Equal(d("0.02")))

	pos, _ := p.Position(btc.ID)
	assert.Equal(t, ts, pos.LastSaleDate)
	assert.True(t, pos.UnrealizedPnL().Equal(d("20")))

	lev := p.Leverage()
	assert.True(t, lev.GreaterThan(decimal.Zero))

	acct := DeriveAccount(p)
	assert.True(t, acct.NetLiquidation.Valid)
	assert.True(t, acct.NetLiquidation.Decimal.Equal(d("1020")))
	assert.False(t, acct.RegTMargin.Valid)
}
