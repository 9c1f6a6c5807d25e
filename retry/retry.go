// Package retry 对交易所调用做有界重试。
//
// 预算 Retries 表示失败后允许的重试次数，总尝试次数为 Retries+1。
// 只有 *exchange.RequestError 会触发重试，其他错误立即返回。
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"live-trader-go/exchange"
	"live-trader-go/infrastructure/logger"
)

// Policy 单个操作的重试参数。
type Policy struct {
	Retries int
	Delay   time.Duration
}

// Observer 接收重试事件，用于指标统计。
type Observer interface {
	OnRetry(op string, attempt int)
	OnExhausted(op string, attempts int)
}

// Sleeper 阻塞等待 d；ctx 取消时提前返回。
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier 执行重试循环。
type Retrier struct {
	sleep    Sleeper
	log      *logger.Logger
	observer Observer
}

type Option func(*Retrier)

// WithSleeper 替换等待函数，测试中用来避免真实 sleep。
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// WithObserver 注册重试事件观察者。
func WithObserver(o Observer) Option {
	return func(r *Retrier) { r.observer = o }
}

func New(log *logger.Logger, opts ...Option) *Retrier {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Retrier{sleep: sleepContext, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

// Do 执行 fn，遇到可重试错误时等待 p.Delay 后重试，最多 p.Retries 次。
// 预算用尽返回 *exchange.TooManyAttemptsError。
func Do[T any](ctx context.Context, r *Retrier, op string, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !exchange.IsRetryable(err) {
			return zero, err
		}
		if attempt > retries {
			if r.observer != nil {
				r.observer.OnExhausted(op, attempt)
			}
			r.log.Error("retry budget exhausted",
				zap.String("op", op),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return zero, &exchange.TooManyAttemptsError{Op: op, Attempts: attempt, Err: err}
		}
		r.log.Warn("request failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("retries", retries),
			zap.Duration("delay", p.Delay),
			zap.Error(err),
		)
		if r.observer != nil {
			r.observer.OnRetry(op, attempt)
		}
		if serr := r.sleep(ctx, p.Delay); serr != nil {
			return zero, fmt.Errorf("%s: retry interrupted: %w", op, errors.Join(serr, err))
		}
	}
}

// Read 读路径：用尽预算时返回 neutral 且 degraded=true，瞬时错误不向上传播。
// 非瞬时错误照常返回。
func Read[T any](ctx context.Context, r *Retrier, op string, p Policy, neutral T, fn func(ctx context.Context) (T, error)) (v T, degraded bool, err error) {
	v, err = Do(ctx, r, op, p, fn)
	var exhausted *exchange.TooManyAttemptsError
	if errors.As(err, &exhausted) {
		r.log.Warn("degrading to neutral result", zap.String("op", op), zap.Int("attempts", exhausted.Attempts))
		return neutral, true, nil
	}
	if err != nil {
		return neutral, false, err
	}
	return v, false, nil
}

// Exec 无返回值操作的 Do。
func Exec(ctx context.Context, r *Retrier, op string, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, r, op, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
