package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-trader-go/exchange"
)

type recorder struct {
	retries   []int
	exhausted int
	sleeps    []time.Duration
}

func (r *recorder) OnRetry(op string, attempt int)      { r.retries = append(r.retries, attempt) }
func (r *recorder) OnExhausted(op string, attempts int) { r.exhausted = attempts }

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return nil
}

func newTestRetrier() (*Retrier, *recorder) {
	rec := &recorder{}
	return New(nil, WithSleeper(rec.sleep), WithObserver(rec)), rec
}

// failing 前 n 次返回瞬时错误，之后成功。
func failing(n int) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(context.Context) (string, error) {
		calls++
		if calls <= n {
			return "", &exchange.RequestError{Op: "test", Err: errors.New("timeout")}
		}
		return "ok", nil
	}, &calls
}

func TestDoSucceedsWithinBudget(t *testing.T) {
	for budget := 0; budget <= 3; budget++ {
		for n := 0; n <= 5; n++ {
			t.Run(fmt.Sprintf("B=%d/N=%d", budget, n), func(t *testing.T) {
				r, rec := newTestRetrier()
				fn, calls := failing(n)
				v, err := Do(context.Background(), r, exchange.OpPlaceOrder, Policy{Retries: budget, Delay: time.Second}, fn)
				if n <= budget {
					require.NoError(t, err)
					assert.Equal(t, "ok", v)
					assert.Equal(t, n+1, *calls)
					assert.Len(t, rec.sleeps, n)
					return
				}
				var tma *exchange.TooManyAttemptsError
				require.ErrorAs(t, err, &tma)
				assert.Equal(t, budget+1, tma.Attempts)
				assert.Equal(t, budget+1, *calls)
				assert.Equal(t, budget+1, rec.exhausted)
				assert.Empty(t, v)
			})
		}
	}
}

func TestReadDegradesToNeutral(t *testing.T) {
	r, _ := newTestRetrier()
	fn, _ := failing(3)
	v, degraded, err := Read(context.Background(), r, exchange.OpGetOpenOrders, Policy{Retries: 2}, "neutral", fn)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, "neutral", v)

	fn, _ = failing(2)
	v, degraded, err = Read(context.Background(), r, exchange.OpGetOpenOrders, Policy{Retries: 2}, "neutral", fn)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "ok", v)
}

func TestNonRetryableReturnsImmediately(t *testing.T) {
	r, rec := newTestRetrier()
	calls := 0
	_, degraded, err := Read(context.Background(), r, exchange.OpGetOrder, Policy{Retries: 5}, 0, func(context.Context) (int, error) {
		calls++
		return 0, exchange.ErrOrderNotFound
	})
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
	assert.False(t, degraded)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.retries)
}

func TestSleepInterruptedByContext(t *testing.T) {
	r := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Exec(ctx, r, exchange.OpCancelOrder, Policy{Retries: 3, Delay: time.Hour}, func(context.Context) error {
		return &exchange.RequestError{Op: "cancel", Err: errors.New("reset")}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBudgetPolicy(t *testing.T) {
	b := DefaultBudget()
	require.NoError(t, b.Validate())
	assert.Equal(t, Policy{Retries: 1, Delay: 5 * time.Second}, b.Policy(exchange.OpPlaceOrder))
	assert.Equal(t, 5, b.Policy(exchange.OpUpdatePortfolio).Retries)
	assert.Equal(t, 5, b.Policy(exchange.OpGetOrder).Retries)

	b.GetOpenOrders = 2
	assert.Equal(t, 2, b.Policy(exchange.OpGetOpenOrders).Retries)

	b.Order = -1
	assert.Error(t, b.Validate())
	b.Order = 0
	b.Delay = -time.Second
	assert.Error(t, b.Validate())
}

func TestEscalator(t *testing.T) {
	e := NewEscalator(3)
	assert.False(t, e.Record(true))
	assert.False(t, e.Record(true))
	assert.False(t, e.Record(false))
	assert.Equal(t, 0, e.Consecutive())
	assert.False(t, e.Record(true))
	assert.False(t, e.Record(true))
	assert.True(t, e.Record(true))

	never := NewEscalator(0)
	for i := 0; i < 100; i++ {
		assert.False(t, never.Record(true))
	}
	never.SetThreshold(100)
	assert.True(t, never.Record(true))
}
