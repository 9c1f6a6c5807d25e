package exchange

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	timeout := errors.New("i/o timeout")
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"request", &RequestError{Op: "orders", Err: timeout}, true},
		{"wrapped request", fmt.Errorf("tick: %w", &RequestError{Op: "orders", Err: timeout}), true},
		{"protocol", &ProtocolError{Op: "tickers", Err: timeout}, false},
		{"not found", ErrOrderNotFound, false},
		{"exhausted", &TooManyAttemptsError{Op: "order", Attempts: 2, Err: &RequestError{Op: "order", Err: timeout}}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestErrorChains(t *testing.T) {
	cause := &RequestError{Op: "order/new", Err: errors.New("503")}
	exhausted := &TooManyAttemptsError{Op: "order/new", Attempts: 2, Err: cause}
	rejected := &OrderRejectedError{Symbol: "btc_usd", Amount: decimal.NewFromInt(1), Err: exhausted}

	var tma *TooManyAttemptsError
	require.ErrorAs(t, rejected, &tma)
	assert.Equal(t, 2, tma.Attempts)
	var re *RequestError
	assert.ErrorAs(t, rejected, &re)
	assert.Contains(t, rejected.Error(), "btc_usd")
}

func TestParseFrequency(t *testing.T) {
	f, err := ParseFrequency("minute")
	require.NoError(t, err)
	assert.Equal(t, Minute, f)
	f, err = ParseFrequency("1D")
	require.NoError(t, err)
	assert.Equal(t, Daily, f)
	assert.Equal(t, 24*time.Hour, f.Duration())

	_, err = ParseFrequency("5m")
	assert.ErrorIs(t, err, ErrInvalidHistoryFrequency)
}

func TestCandleValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Candle{
		Time:   ts,
		Open:   decimal.NewFromInt(10),
		High:   decimal.NewFromInt(12),
		Low:    decimal.NewFromInt(9),
		Close:  decimal.NewFromInt(11),
		Volume: decimal.RequireFromString("42.7"),
	}
	assert.True(t, c.Value(FieldPrice).Price.Equal(decimal.NewFromInt(11)))
	assert.True(t, c.Value(FieldHigh).Price.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, int64(42), c.Value(FieldVolume).Volume)
	assert.Equal(t, ts, c.Value(FieldLastTraded).LastTraded)

	_, err := ParseField("vwap")
	assert.Error(t, err)
}
