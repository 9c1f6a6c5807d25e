package schedule

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"live-trader-go/infrastructure/logger"
)

// ErrExhausted tick 序列已经结束。
var ErrExhausted = errors.New("schedule exhausted")

// Source 按顺序提供 tick。
type Source interface {
	Next(ctx context.Context) (Tick, error)
}

// Clock 抽象时间便于测试。
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock 系统时钟。
var SystemClock Clock = realClock{}

// Sequence 直接回放给定的 tick，不等待。
type Sequence struct {
	ticks []Tick
	idx   int
}

func NewSequence(ticks []Tick) *Sequence { return &Sequence{ticks: ticks} }

func (s *Sequence) Next(ctx context.Context) (Tick, error) {
	if err := ctx.Err(); err != nil {
		return Tick{}, err
	}
	if s.idx >= len(s.ticks) {
		return Tick{}, ErrExhausted
	}
	t := s.ticks[s.idx]
	s.idx++
	return t, nil
}

// Realtime 按日历逐日生成 tick 并等待到点触发。
// 已经过去超过 Grace 的 tick 被丢弃，避免在启动或阻塞之后集中补跑。
type Realtime struct {
	Grace time.Duration

	cal   Calendar
	opts  Options
	end   time.Time // 零值表示不结束
	clock Clock
	log   *logger.Logger

	day     time.Time
	pending []Tick
	last    time.Time
}

func NewRealtime(cal Calendar, opts Options, start, end time.Time, clock Clock, log *logger.Logger) *Realtime {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Realtime{
		Grace: 30 * time.Second,
		cal:   cal,
		opts:  opts,
		end:   end,
		clock: clock,
		log:   log.Named("schedule"),
		day:   TimeOfDay{}.On(start, cal.Location()),
	}
}

// fill 追加后续交易日的 tick，跨日的同一时刻合并事件。
func (r *Realtime) fill() error {
	for len(r.pending) == 0 {
		if !r.end.IsZero() && r.day.After(r.end) {
			return ErrExhausted
		}
		// 一次生成一周，日历可能跳过非交易日
		to := r.day.AddDate(0, 0, 6)
		if !r.end.IsZero() && to.After(r.end) {
			to = r.end
		}
		sessions, err := r.cal.Sessions(r.day, to)
		if err != nil {
			return err
		}
		r.day = TimeOfDay{}.On(to, r.cal.Location()).AddDate(0, 0, 1)
		for _, t := range Build(sessions, r.opts) {
			if !t.Time.After(r.last) {
				continue
			}
			if n := len(r.pending); n > 0 && r.pending[n-1].Time.Equal(t.Time) {
				r.pending[n-1].Events |= t.Events
				continue
			}
			r.pending = append(r.pending, t)
		}
	}
	return nil
}

func (r *Realtime) Next(ctx context.Context) (Tick, error) {
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return Tick{}, err
		}
		if err := r.fill(); err != nil {
			return Tick{}, err
		}
		t := r.pending[0]
		r.pending = r.pending[1:]
		r.last = t.Time

		now := r.clock.Now()
		if now.Sub(t.Time) > r.Grace {
			skipped++
			continue
		}
		if skipped > 0 {
			r.log.Info("skipped past ticks", zap.Int("count", skipped), zap.Time("resume_at", t.Time))
		}
		if wait := t.Time.Sub(now); wait > 0 {
			if err := r.clock.Sleep(ctx, wait); err != nil {
				return Tick{}, err
			}
		}
		return t, nil
	}
}
