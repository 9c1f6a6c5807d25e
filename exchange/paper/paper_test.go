package paper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-trader-go/asset"
	"live-trader-go/exchange"
	"live-trader-go/order"
	"live-trader-go/portfolio"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestConnector(t *testing.T) (*Connector, asset.Asset) {
	t.Helper()
	reg, err := asset.Load("paper", []byte(`{
		"btcusd": {"symbol": "btc_usd", "start_date": "2015-01-01"},
		"ethbtc": {"symbol": "eth_btc", "start_date": "2015-01-01"}
	}`))
	require.NoError(t, err)
	btc, err := reg.Lookup("BTC_USD")
	require.NoError(t, err)

	c := New(reg, "usd", d("1000"))
	seq := 0
	c.SetIDGenerator(func() string {
		seq++
		return fmt.Sprintf("O%d", seq)
	})
	c.SetClock(func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) })
	return c, btc
}

func TestPlaceAndFill(t *testing.T) {
	c, btc := newTestConnector(t)
	ctx := context.Background()

	id, err := c.PlaceOrder(ctx, btc, d("2"), order.LimitOrder(d("100")))
	require.NoError(t, err)
	assert.Equal(t, "O1", id)

	open, err := c.GetOpenOrders(ctx, &btc)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, c.Fill(id, d("100.5"), d("0.1")))
	o, err := c.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, o.Status)
	assert.True(t, o.ExecutedPrice.Equal(d("100.5")))
	assert.True(t, o.Commission.Equal(d("0.1")))
	assert.True(t, c.Cash().Equal(d("798.9")))
	assert.True(t, c.Holding(btc.ID).Equal(d("2")))

	open, err = c.GetOpenOrders(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestLimitMatchesOnPrice(t *testing.T) {
	c, btc := newTestConnector(t)
	ctx := context.Background()
	c.SetPrice(btc.ID, d("110"))

	id, err := c.PlaceOrder(ctx, btc, d("1"), order.LimitOrder(d("100")))
	require.NoError(t, err)
	o, _ := c.GetOrder(ctx, id)
	assert.True(t, o.Open())

	c.SetPrice(btc.ID, d("99"))
	o, _ = c.GetOrder(ctx, id)
	assert.Equal(t, order.StatusFilled, o.Status)
	assert.True(t, o.ExecutedPrice.Equal(d("100")))
}

func TestMarketOrderFillsAtLastPrice(t *testing.T) {
	c, btc := newTestConnector(t)
	ctx := context.Background()
	c.SetPrice(btc.ID, d("50"))
	c.SetCommissionRate(d("0.001"))

	id, err := c.PlaceOrder(ctx, btc, d("-1"), order.MarketOrder())
	require.NoError(t, err)
	o, _ := c.GetOrder(ctx, id)
	assert.Equal(t, order.StatusFilled, o.Status)
	assert.True(t, o.Commission.Equal(d("0.05")))
}

func TestCancelIsIdempotent(t *testing.T) {
	c, btc := newTestConnector(t)
	ctx := context.Background()
	id, err := c.PlaceOrder(ctx, btc, d("1"), order.LimitOrder(d("10")))
	require.NoError(t, err)

	require.NoError(t, c.CancelOrder(ctx, id))
	require.NoError(t, c.CancelOrder(ctx, id))
	o, _ := c.GetOrder(ctx, id)
	assert.Equal(t, order.StatusCancelled, o.Status)

	assert.ErrorIs(t, c.CancelOrder(ctx, "missing"), exchange.ErrOrderNotFound)
}

func TestPlaceOrderRejectsForeignBase(t *testing.T) {
	c, _ := newTestConnector(t)
	eth, err := c.Assets().Lookup("eth_btc")
	require.NoError(t, err)
	_, err = c.PlaceOrder(context.Background(), eth, d("1"), order.MarketOrder())
	assert.ErrorIs(t, err, exchange.ErrUnsupportedPair)
}

func TestFailNext(t *testing.T) {
	c, _ := newTestConnector(t)
	ctx := context.Background()
	p := portfolio.New(time.Time{}, decimal.Zero)

	c.FailNext(exchange.OpUpdatePortfolio, 2)
	for i := 0; i < 2; i++ {
		err := c.UpdatePortfolio(ctx, p)
		require.Error(t, err)
		assert.True(t, exchange.IsRetryable(err))
	}
	require.NoError(t, c.UpdatePortfolio(ctx, p))
	assert.Equal(t, 3, c.Calls(exchange.OpUpdatePortfolio))
	assert.True(t, p.StartingCash.Equal(d("1000")))
}

func TestHistoryWindow(t *testing.T) {
	c, btc := newTestConnector(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		px := decimal.NewFromInt(int64(100 + i))
		c.AddCandles(btc.ID, exchange.Candle{Time: base.Add(time.Duration(i) * time.Minute), Open: px, High: px, Low: px, Close: px, Volume: d("3")})
	}

	window, err := c.HistoryWindow(ctx, []asset.Asset{btc}, base.Add(3*time.Minute), 2, exchange.Minute, exchange.FieldClose)
	require.NoError(t, err)
	require.Len(t, window[btc.ID], 2)
	assert.True(t, window[btc.ID][0].Price.Equal(d("102")))
	assert.True(t, window[btc.ID][1].Price.Equal(d("103")))

	spot, err := c.SpotValue(ctx, []asset.Asset{btc}, exchange.FieldVolume, base.Add(10*time.Minute), exchange.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), spot[btc.ID].Volume)

	_, err = c.HistoryWindow(ctx, []asset.Asset{btc}, base, 1, exchange.Frequency("5m"), exchange.FieldClose)
	assert.ErrorIs(t, err, exchange.ErrInvalidHistoryFrequency)

	tickers, err := c.Tickers(ctx, []asset.Asset{btc})
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.True(t, tickers[0].LastPrice.Equal(d("104")))
}
