package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineTransitions(t *testing.T) {
	sm := NewStateMachine()
	assert.NoError(t, sm.ValidateTransition(StatusOpen, StatusFilled))
	assert.NoError(t, sm.ValidateTransition(StatusOpen, StatusCancelled))
	assert.NoError(t, sm.ValidateTransition(StatusOpen, StatusRejected))
	assert.NoError(t, sm.ValidateTransition(StatusFilled, StatusFilled))
	assert.Error(t, sm.ValidateTransition(StatusFilled, StatusOpen))
	assert.Error(t, sm.ValidateTransition(StatusCancelled, StatusFilled))
}

func TestClassify(t *testing.T) {
	sm := NewStateMachine()
	cases := []struct {
		remote Status
		want   Outcome
	}{
		{StatusOpen, OutcomeKeep},
		{StatusFilled, OutcomeFill},
		{StatusCancelled, OutcomeRemove},
		{StatusRejected, OutcomeRemove},
		{Status("PARTIALLY_FILLED"), OutcomeKeep},
		{Status(""), OutcomeKeep},
	}
	for _, tc := range cases {
		t.Run(string(tc.remote), func(t *testing.T) {
			assert.Equal(t, tc.want, sm.Classify(tc.remote))
		})
	}
}

func TestNewTransaction(t *testing.T) {
	o := &Order{
		ID:            "O1",
		Amount:        decimal.NewFromInt(2),
		Status:        StatusOpen,
		ExecutedPrice: decimal.RequireFromString("100.5"),
		Commission:    decimal.RequireFromString("0.1"),
	}
	_, err := NewTransaction(o, time.Now())
	require.Error(t, err)

	o.Status = StatusFilled
	dt := time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)
	tx, err := NewTransaction(o, dt)
	require.NoError(t, err)
	assert.Equal(t, "O1", tx.OrderID)
	assert.True(t, tx.Price.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(2)))
	assert.True(t, tx.Commission.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, dt, tx.DT)
	assert.True(t, tx.Notional().Equal(decimal.NewFromInt(201)))
}

func TestResolveStyle(t *testing.T) {
	p := decimal.NewNullDecimal(decimal.NewFromInt(10))
	q := decimal.NewNullDecimal(decimal.NewFromInt(9))
	none := decimal.NullDecimal{}

	s, err := ResolveStyle(none, none, nil)
	require.NoError(t, err)
	assert.Equal(t, StyleMarket, s.Kind)

	s, err = ResolveStyle(p, none, nil)
	require.NoError(t, err)
	assert.Equal(t, StyleLimit, s.Kind)

	s, err = ResolveStyle(none, q, nil)
	require.NoError(t, err)
	assert.Equal(t, StyleStop, s.Kind)

	s, err = ResolveStyle(p, q, nil)
	require.NoError(t, err)
	assert.Equal(t, StyleStopLimit, s.Kind)
	assert.True(t, s.Limit.Decimal.Equal(decimal.NewFromInt(10)))
	assert.True(t, s.Stop.Decimal.Equal(decimal.NewFromInt(9)))

	explicit := LimitOrder(decimal.NewFromInt(5))
	_, err = ResolveStyle(p, none, &explicit)
	assert.ErrorIs(t, err, ErrConflictingStyle)

	s, err = ResolveStyle(none, none, &explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, s)

	bad := Style{Kind: StyleLimit}
	_, err = ResolveStyle(none, none, &bad)
	assert.Error(t, err)
}
