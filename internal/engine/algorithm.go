// Package engine 实盘执行循环：每个 tick 依次同步组合、对账挂单、记录成交、
// 调用策略、校验账户控制、生成绩效快照。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"live-trader-go/exchange"
	"live-trader-go/infrastructure/logger"
	"live-trader-go/infrastructure/monitor"
	"live-trader-go/order"
	"live-trader-go/perf"
	"live-trader-go/portfolio"
	"live-trader-go/retry"
	"live-trader-go/risk"
	"live-trader-go/schedule"
)

// ErrConnectivityLost 连续多个 tick 组合同步与对账全部失败。
var ErrConnectivityLost = errors.New("connectivity to exchange lost")

// ErrAlreadyRunning Run 不可重入。
var ErrAlreadyRunning = errors.New("algorithm already running")

// Config 执行循环配置
type Config struct {
	Budget          retry.Budget
	EscalateAfter   int // 0 表示从不升级
	StartDate       time.Time
	DataFrequency   exchange.Frequency
	TradingControls risk.TradingControls
	AccountControls risk.AccountControls
}

// Alerter 接收需要人工关注的事件，*alert.Manager 实现该接口。
type Alerter interface {
	SendWarning(message string, fields map[string]interface{}) error
	SendError(message string, fields map[string]interface{}) error
	SendCritical(message string, fields map[string]interface{}) error
}

type nopAlerter struct{}

func (nopAlerter) SendWarning(string, map[string]interface{}) error  { return nil }
func (nopAlerter) SendError(string, map[string]interface{}) error    { return nil }
func (nopAlerter) SendCritical(string, map[string]interface{}) error { return nil }

// Algorithm 执行循环。Portfolio 只由运行 Run 的 goroutine 修改。
type Algorithm struct {
	cfg      Config
	conn     exchange.Connector
	strategy Strategy
	log      *logger.Logger
	monitor  *monitor.Monitor
	tracker  *perf.Tracker
	retrier  *retry.Retrier
	alerter  Alerter
	sm       *order.StateMachine
	esc      *retry.Escalator

	portfolio *portfolio.Portfolio
	account   portfolio.Account
	prices    map[int64]decimal.Decimal

	budgetMu sync.RWMutex
	budget   retry.Budget

	// 当前 tick
	now          time.Time
	preSession   bool
	initializing bool
	callCtx      context.Context

	running  atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	mu        sync.Mutex
	snapshots []perf.Snapshot
}

type Option func(*Algorithm)

func WithLogger(l *logger.Logger) Option {
	return func(a *Algorithm) { a.log = l }
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(a *Algorithm) { a.monitor = m }
}

func WithTracker(t *perf.Tracker) Option {
	return func(a *Algorithm) { a.tracker = t }
}

func WithAlerter(al Alerter) Option {
	return func(a *Algorithm) { a.alerter = al }
}

// WithRetrier 替换默认重试器（测试中注入不等待的 sleeper）。
func WithRetrier(r *retry.Retrier) Option {
	return func(a *Algorithm) { a.retrier = r }
}

// New 创建执行循环。
func New(conn exchange.Connector, strat Strategy, cfg Config, opts ...Option) (*Algorithm, error) {
	if conn == nil {
		return nil, errors.New("connector is required")
	}
	if strat == nil {
		return nil, errors.New("strategy is required")
	}
	if err := cfg.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.DataFrequency == "" {
		cfg.DataFrequency = exchange.Minute
	}
	if cfg.StartDate.IsZero() {
		cfg.StartDate = time.Now().UTC()
	}

	a := &Algorithm{
		cfg:       cfg,
		conn:      conn,
		strategy:  strat,
		sm:        order.NewStateMachine(),
		esc:       retry.NewEscalator(cfg.EscalateAfter),
		portfolio: portfolio.New(cfg.StartDate, decimal.Zero),
		prices:    make(map[int64]decimal.Decimal),
		budget:    cfg.Budget,
		callCtx:   context.Background(),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.NewNop()
	}
	a.log = a.log.Named("algorithm")
	if a.monitor == nil {
		a.monitor = monitor.New(monitor.DefaultConfig())
	}
	if a.tracker == nil {
		a.tracker = perf.NewTracker()
	}
	if a.alerter == nil {
		a.alerter = nopAlerter{}
	}
	if a.retrier == nil {
		a.retrier = retry.New(a.log, retry.WithObserver(a.monitor))
	}
	return a, nil
}

// Run 依次消费 src 的 tick，直到调度结束、Stop 被调用或 ctx 取消。
// 已发出的交易所调用使用与取消信号解耦的 context，不会被中断。
func (a *Algorithm) Run(ctx context.Context, src schedule.Source) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(a.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()
	a.callCtx = context.WithoutCancel(runCtx)
	a.running.Store(true)
	defer a.running.Store(false)

	a.initializing = true
	err := a.safeCall("initialize", func() error { return a.strategy.Initialize(a) })
	a.initializing = false
	if err != nil {
		return fmt.Errorf("initialize strategy: %w", err)
	}

	a.log.Info("algorithm started",
		zap.String("exchange", a.conn.Name()),
		zap.Duration("time_skew", a.conn.TimeSkew()),
		zap.Int("escalate_after", a.cfg.EscalateAfter))

	for {
		if a.stopped() {
			a.log.Info("algorithm stopped")
			return nil
		}
		tick, err := src.Next(runCtx)
		switch {
		case errors.Is(err, schedule.ErrExhausted):
			a.log.Info("schedule exhausted")
			return nil
		case runCtx.Err() != nil:
			a.log.Info("algorithm stopped", zap.NamedError("reason", context.Cause(runCtx)))
			return nil
		case err != nil:
			return fmt.Errorf("next tick: %w", err)
		}
		// 等待 tick 期间收到停止信号
		if a.stopped() {
			a.monitor.RecordTickSkipped()
			a.log.Info("skipping tick after stop", zap.Time("tick", tick.Time))
			return nil
		}
		if err := a.HandleTick(tick); err != nil {
			return err
		}
	}
}

// Stop 停止处理后续 tick；正在执行的 tick 会完整结束。可重复调用。
func (a *Algorithm) Stop() {
	a.stopOnce.Do(func() {
		a.log.Info("stop requested")
		close(a.stopCh)
	})
}

func (a *Algorithm) stopped() bool {
	select {
	case <-a.stopCh:
		return true
	default:
		return false
	}
}

// Running 是否仍在处理 tick。
func (a *Algorithm) Running() bool { return a.running.Load() && !a.stopped() }

// Wait 等待 Run 返回，超时返回 false。未启动时立即返回 true。
func (a *Algorithm) Wait(timeout time.Duration) bool {
	if !a.started.Load() {
		return true
	}
	select {
	case <-a.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// HandleTick 处理一个 tick。只有连接持续中断时返回错误，其余步骤失败只记录日志。
func (a *Algorithm) HandleTick(t schedule.Tick) error {
	a.now = t.Time
	a.monitor.RecordTick()
	log := a.log.With(zap.Time("tick", t.Time), zap.Stringer("events", t.Events))

	// 1. 同步组合与账户
	synced := a.syncPortfolio()

	// 2. 对账挂单
	txns, reconciled, pending := a.reconcile(log)

	// 3. 记录成交
	for _, tx := range txns {
		a.tracker.RecordTransaction(tx)
		a.monitor.RecordTransaction()
	}

	if !synced && reconciled == 0 {
		a.monitor.RecordDegradedTick()
		if a.esc.Record(true) {
			log.Error("connectivity lost, stopping",
				zap.Int("consecutive_degraded_ticks", a.esc.Consecutive()),
				zap.Int("open_orders", pending))
			a.alert(a.alerter.SendCritical, "connectivity to exchange lost", map[string]interface{}{
				"exchange":     a.conn.Name(),
				"ticks":        a.esc.Consecutive(),
				"open_orders":  pending,
				"last_tick_at": t.Time,
			})
			return fmt.Errorf("%w after %d degraded ticks", ErrConnectivityLost, a.esc.Consecutive())
		}
	} else {
		a.esc.Record(false)
	}

	// 4. 策略
	data := &BarData{algo: a, dt: t.Time, freq: a.cfg.DataFrequency}
	if t.Events.Has(schedule.EventBeforeTradingStart) {
		if bts, ok := a.strategy.(BeforeTradingStarter); ok {
			a.preSession = true
			if err := a.safeCall("before_trading_start", func() error { return bts.BeforeTradingStart(a, data) }); err != nil {
				log.Error("before trading start failed", zap.Error(err))
			}
			a.preSession = false
		}
	}
	if t.Events.Has(schedule.EventBar) {
		if err := a.safeCall("handle_data", func() error { return a.strategy.HandleData(a, data) }); err != nil {
			log.Error("strategy failed", zap.Error(err))
		}
	}

	// 5. 账户控制每个 tick 都校验
	if err := a.cfg.AccountControls.Validate(a.portfolio, a.account); err != nil {
		a.monitor.RecordControlViolation("account")
		log.Warn("account control violated", zap.Error(err))
		a.alert(a.alerter.SendWarning, "account control violated", map[string]interface{}{"error": err.Error()})
	}

	// 6. 绩效快照，失败不影响交易
	if err := a.safeCall("snapshot", func() error { return a.snapshot(t.Time) }); err != nil {
		a.monitor.RecordSnapshotFailure()
		log.Warn("performance snapshot failed", zap.Error(err))
	}

	value, _ := a.portfolio.PortfolioValue.Float64()
	cash, _ := a.portfolio.Cash.Float64()
	a.monitor.UpdatePortfolio(value, cash)
	a.monitor.UpdateOpenOrders(a.portfolio.OpenOrders.Len())
	return nil
}

// syncPortfolio 刷新组合与账户，返回是否与交易所同步成功。
func (a *Algorithm) syncPortfolio() bool {
	ctx := a.callCtx
	_, degraded, err := retry.Read(ctx, a.retrier, exchange.OpUpdatePortfolio, a.policy(exchange.OpUpdatePortfolio), struct{}{},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.conn.UpdatePortfolio(ctx, a.portfolio)
		})
	if err != nil {
		a.log.Error("portfolio sync failed", zap.Error(err))
		return false
	}
	if degraded {
		return false
	}

	acct, _, err := retry.Read(ctx, a.retrier, exchange.OpAccount, a.policy(exchange.OpAccount), a.account,
		func(ctx context.Context) (portfolio.Account, error) {
			return a.conn.Account(ctx, a.portfolio)
		})
	if err != nil {
		a.log.Warn("account refresh failed", zap.Error(err))
	} else {
		a.account = acct
	}
	return true
}

// reconcile 逐个查询挂单的远端状态并应用状态迁移。
// 返回本 tick 的成交、成功查询的订单数与剩余挂单数。
func (a *Algorithm) reconcile(log *zap.Logger) ([]order.Transaction, int, int) {
	started := time.Now()
	defer func() { a.monitor.RecordReconcileLatency(time.Since(started).Seconds()) }()

	var (
		txns       []order.Transaction
		reconciled int
	)
	policy := a.policy(exchange.OpGetOrder)
	for _, local := range a.portfolio.OpenOrders.List() {
		id := local.ID
		remote, degraded, err := retry.Read(a.callCtx, a.retrier, exchange.OpGetOrder, policy, (*order.Order)(nil),
			func(ctx context.Context) (*order.Order, error) {
				return a.conn.GetOrder(ctx, id)
			})
		if err != nil {
			log.Error("order status lookup failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if degraded || remote == nil {
			continue
		}
		reconciled++

		transitionErr := a.sm.ValidateTransition(local.Status, remote.Status)
		outcome := a.sm.Classify(remote.Status)
		if transitionErr != nil && outcome != order.OutcomeKeep {
			log.Error("illegal order transition", zap.String("order_id", id), zap.Error(transitionErr))
			continue
		}

		switch outcome {
		case order.OutcomeFill:
			tx, err := order.NewTransaction(remote, a.now)
			if err != nil {
				log.Error("build transaction failed", zap.String("order_id", id), zap.Error(err))
				continue
			}
			if err := a.portfolio.ExecuteOrder(tx); err != nil {
				log.Error("execute order failed", zap.String("order_id", id), zap.Error(err))
				continue
			}
			txns = append(txns, tx)
			a.monitor.RecordOrderFilled()
			a.log.LogTransaction("order_filled", map[string]interface{}{
				"order_id":   id,
				"symbol":     tx.Asset.Symbol,
				"amount":     tx.Amount.String(),
				"price":      tx.Price.String(),
				"commission": tx.Commission.String(),
			})
		case order.OutcomeRemove:
			if err := a.portfolio.RemoveOrder(id); err != nil {
				log.Error("remove order failed", zap.String("order_id", id), zap.Error(err))
				continue
			}
			a.monitor.RecordOrderCancelled()
			a.log.LogOrder("order_removed", id, map[string]interface{}{"status": string(remote.Status)})
		default:
			if transitionErr != nil {
				log.Warn("unknown remote status treated as open", zap.String("order_id", id), zap.Error(transitionErr))
			}
			log.Info("order still open",
				zap.String("order_id", id),
				zap.String("status", string(remote.Status)),
				zap.Duration("elapsed", a.now.Sub(local.Created)))
		}
	}
	return txns, reconciled, a.portfolio.OpenOrders.Len()
}

func (a *Algorithm) snapshot(dt time.Time) error {
	snap, err := a.tracker.Snapshot(dt, a.portfolio)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.snapshots = append(a.snapshots, snap)
	a.mu.Unlock()
	return nil
}

// safeCall 把回调中的 panic 转为错误，单个步骤失败不终止循环。
func (a *Algorithm) safeCall(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", step, r)
		}
	}()
	return fn()
}

func (a *Algorithm) policy(op string) retry.Policy {
	a.budgetMu.RLock()
	defer a.budgetMu.RUnlock()
	return a.budget.Policy(op)
}

// SetRetryBudget 热更新重试预算与升级阈值，下一次调用生效。
func (a *Algorithm) SetRetryBudget(b retry.Budget, escalateAfter int) error {
	if err := b.Validate(); err != nil {
		return err
	}
	a.budgetMu.Lock()
	a.budget = b
	a.budgetMu.Unlock()
	a.esc.SetThreshold(escalateAfter)
	a.log.Info("retry budget updated",
		zap.Int("update_portfolio", b.UpdatePortfolio),
		zap.Int("check_open_orders", b.CheckOpenOrders),
		zap.Int("get_open_orders", b.GetOpenOrders),
		zap.Int("order", b.Order),
		zap.Duration("delay", b.Delay),
		zap.Int("escalate_after", escalateAfter))
	return nil
}

// RetryBudget 当前生效的重试预算。
func (a *Algorithm) RetryBudget() retry.Budget {
	a.budgetMu.RLock()
	defer a.budgetMu.RUnlock()
	return a.budget
}

// Snapshots 已记录快照的拷贝，可在其他 goroutine 调用。
func (a *Algorithm) Snapshots() []perf.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	res := make([]perf.Snapshot, len(a.snapshots))
	copy(res, a.snapshots)
	return res
}

// Portfolio 供策略只读访问。
func (a *Algorithm) Portfolio() *portfolio.Portfolio { return a.portfolio }

// Account 最近一次同步的账户指标。
func (a *Algorithm) Account() portfolio.Account { return a.account }

// Now 当前 tick 时间。
func (a *Algorithm) Now() time.Time { return a.now }

func (a *Algorithm) Logger() *logger.Logger { return a.log }

// alert 发送失败只记日志
func (a *Algorithm) alert(send func(string, map[string]interface{}) error, msg string, fields map[string]interface{}) {
	if err := send(msg, fields); err != nil {
		a.log.Warn("send alert failed", zap.String("alert", msg), zap.Error(err))
	}
}
