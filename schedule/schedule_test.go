package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func equityCalendar(t *testing.T) *WeeklyCalendar {
	t.Helper()
	cal, err := NewWeeklyCalendar(newYork(t),
		TimeOfDay{Hour: 9, Minute: 30}, TimeOfDay{Hour: 16},
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
	require.NoError(t, err)
	return cal
}

func assertStrictlyIncreasing(t *testing.T, ticks []Tick) {
	t.Helper()
	for i := 1; i < len(ticks); i++ {
		require.Truef(t, ticks[i].Time.After(ticks[i-1].Time), "tick %d (%s) not after %s", i, ticks[i].Time, ticks[i-1].Time)
	}
}

func TestMinuteEmissionWithSkew(t *testing.T) {
	loc := newYork(t)
	cal := equityCalendar(t)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, loc) // Tuesday
	sessions, err := cal.Sessions(day, day)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	ticks := Build(sessions, Options{Emission: EmitMinute, Skew: 2 * time.Second})
	require.Len(t, ticks, 391)
	assert.Equal(t, time.Date(2024, 3, 5, 9, 30, 2, 0, loc), ticks[0].Time)
	assert.Equal(t, time.Date(2024, 3, 5, 16, 0, 2, 0, loc), ticks[len(ticks)-1].Time)
	assertStrictlyIncreasing(t, ticks)
	for i := 1; i < len(ticks); i++ {
		assert.Equal(t, time.Minute, ticks[i].Time.Sub(ticks[i-1].Time))
	}

	assert.True(t, ticks[0].Events.Has(EventSessionStart))
	assert.True(t, ticks[0].Events.Has(EventBar))
	assert.True(t, ticks[390].Events.Has(EventSessionEnd))
	assert.Equal(t, EventBar, ticks[200].Events)
}

func TestPreSessionTick(t *testing.T) {
	loc := newYork(t)
	cal := equityCalendar(t)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, loc)
	sessions, _ := cal.Sessions(day, day)

	pre := &PreSession{Time: TimeOfDay{Hour: 8, Minute: 45}, Location: loc}
	ticks := Build(sessions, Options{Emission: EmitMinute, PreSession: pre, Skew: 2 * time.Second})
	require.Len(t, ticks, 392)
	assert.Equal(t, time.Date(2024, 3, 5, 8, 45, 2, 0, loc), ticks[0].Time)
	assert.Equal(t, EventBeforeTradingStart, ticks[0].Events)
}

func TestPreSessionInOtherTimezoneKeepsSessionDay(t *testing.T) {
	loc := newYork(t)
	cal, err := NewWeeklyCalendar(time.UTC, TimeOfDay{}, TimeOfDay{Hour: 23, Minute: 59},
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
	require.NoError(t, err)
	// 2024-03-04 是周一
	sessions, err := cal.Sessions(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	pre := PreSession{Time: TimeOfDay{Hour: 8, Minute: 45}, Location: loc}
	for _, s := range sessions {
		at := pre.At(s)
		y, m, d := s.Date.Date()
		assert.Equal(t, time.Date(y, m, d, 8, 45, 0, 0, loc), at)
		assert.False(t, at.Before(s.Date), "pre-session %s before session day %s", at, s.Date)
	}
	assert.Equal(t, time.Monday, pre.At(sessions[0]).In(loc).Weekday())

	ticks := Build(sessions, Options{Emission: EmitDaily, PreSession: &pre})
	assertStrictlyIncreasing(t, ticks)
	var pres []time.Time
	for _, tk := range ticks {
		if tk.Events.Has(EventBeforeTradingStart) {
			pres = append(pres, tk.Time)
			assert.Equal(t, pre.At(Session{Date: tk.Session}), tk.Time)
		}
	}
	require.Len(t, pres, 2)
	assert.Equal(t, time.Date(2024, 3, 4, 13, 45, 0, 0, time.UTC), pres[0].UTC())
}

func TestPeriodsPerYear(t *testing.T) {
	cal := equityCalendar(t)
	days := 5.0 * 365 / 7
	assert.InDelta(t, days, cal.PeriodsPerYear(EmitDaily), 1e-9)
	// 09:30 到 16:00 含两端共 391 根
	assert.InDelta(t, days*391, cal.PeriodsPerYear(EmitMinute), 1e-9)
	assert.InDelta(t, 365.0, AlwaysOpen().PeriodsPerYear(EmitDaily), 1e-9)
}

func TestPreSessionCoincidingWithOpenIsMerged(t *testing.T) {
	cal := AlwaysOpen()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	sessions, _ := cal.Sessions(day, day)
	ticks := Build(sessions, Options{Emission: EmitDaily, PreSession: &PreSession{Time: TimeOfDay{}}})
	require.Len(t, ticks, 2)
	assert.Equal(t, EventBeforeTradingStart|EventSessionStart, ticks[0].Events)
	assert.Equal(t, EventBar|EventSessionEnd, ticks[1].Events)
	assert.Equal(t, "bar|session_end", ticks[1].Events.String())
}

func TestDailyEmission(t *testing.T) {
	loc := newYork(t)
	cal := equityCalendar(t)
	// 周五到下周二，跳过周末
	sessions, err := cal.Sessions(time.Date(2024, 3, 8, 0, 0, 0, 0, loc), time.Date(2024, 3, 12, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	ticks := Build(sessions, Options{Emission: EmitDaily})
	assertStrictlyIncreasing(t, ticks)
	var bars []time.Time
	for _, tk := range ticks {
		if tk.Events.Has(EventBar) {
			bars = append(bars, tk.Time)
		}
	}
	require.Len(t, bars, 3)
	assert.Equal(t, time.Date(2024, 3, 11, 16, 0, 0, 0, loc), bars[1])
}

func TestParsers(t *testing.T) {
	tod, err := ParseTimeOfDay("08:45")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 8, Minute: 45}, tod)
	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)

	wd, err := ParseWeekday("Mon")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, wd)

	_, err = ParseEmission("hourly")
	assert.Error(t, err)

	_, err = NewWeeklyCalendar(time.UTC, TimeOfDay{Hour: 10}, TimeOfDay{Hour: 9})
	assert.Error(t, err)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return ctx.Err()
}

func TestRealtimeSkipsPastTicks(t *testing.T) {
	cal, err := NewWeeklyCalendar(time.UTC, TimeOfDay{Hour: 10}, TimeOfDay{Hour: 10, Minute: 5})
	require.NoError(t, err)
	start := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: time.Date(2024, 3, 5, 10, 2, 10, 0, time.UTC)}
	rt := NewRealtime(cal, Options{Emission: EmitMinute}, start, start.AddDate(0, 0, 1), clock, nil)

	ctx := context.Background()
	tk, err := rt.Next(ctx)
	require.NoError(t, err)
	// 10:00、10:01 已过期被丢弃，10:02 仍在宽限期内立即触发
	assert.Equal(t, time.Date(2024, 3, 5, 10, 2, 0, 0, time.UTC), tk.Time)

	tk, err = rt.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 3, 0, 0, time.UTC), tk.Time)
	assert.Equal(t, tk.Time, clock.Now())

	var last Tick
	count := 0
	for {
		tk, err := rt.Next(ctx)
		if err == ErrExhausted {
			break
		}
		require.NoError(t, err)
		require.True(t, tk.Time.After(last.Time))
		last = tk
		count++
	}
	// 当日剩余 10:04、10:05，次日 10:00–10:05
	assert.Equal(t, 2+6, count)
	assert.True(t, last.Events.Has(EventSessionEnd))
}

func TestSequence(t *testing.T) {
	ticks := []Tick{{Time: time.Unix(1, 0)}, {Time: time.Unix(2, 0)}}
	s := NewSequence(ticks)
	ctx := context.Background()
	for range ticks {
		_, err := s.Next(ctx)
		require.NoError(t, err)
	}
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, ErrExhausted)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewSequence(ticks).Next(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
