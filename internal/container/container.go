package container

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
	"live-trader-go/config"
	"live-trader-go/exchange"
	"live-trader-go/exchange/bitfinex"
	"live-trader-go/exchange/paper"
	"live-trader-go/infrastructure/alert"
	"live-trader-go/infrastructure/logger"
	"live-trader-go/infrastructure/monitor"
	iconfig "live-trader-go/internal/config"
	"live-trader-go/internal/engine"
	"live-trader-go/perf"
	"live-trader-go/retry"
	"live-trader-go/schedule"
	"live-trader-go/strategy"
)

// Options 构建容器时的外部注入项。
type Options struct {
	ConfigPath string            // 为空时不启用热更新
	Overrides  []config.Override // 命令行覆盖
	Source     schedule.Source   // 为空时按日历实时生成 tick
	Exit       func(code int)    // 关闭流程结束后调用，为空则不退出
	Out        io.Writer         // 最终报告输出，默认 stdout
	Logger     *logger.Logger    // 为空时按配置创建
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg  config.AppConfig
	opts Options

	// 基础设施
	logger    *logger.Logger
	ownLogger bool
	monitor   *monitor.Monitor
	alerts    *alert.Manager

	// 交易所
	conn   exchange.Connector
	paper  *paper.Connector
	stream *bitfinex.TickerStream
	asset  asset.Asset

	// 执行循环
	algo     *engine.Algorithm
	source   schedule.Source
	shutdown *engine.ShutdownHandler
	tracker  *perf.Tracker

	metrics   *httpServerComponent
	lifecycle *LifecycleManager
}

// New 加载配置文件并创建容器
func New(opts Options) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(opts.ConfigPath, opts.Overrides...)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg, opts), nil
}

// NewWithConfig 使用已校验的配置创建容器
func NewWithConfig(cfg config.AppConfig, opts Options) *Container {
	return &Container{
		cfg:       cfg,
		opts:      opts,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildExchange(); err != nil {
		return fmt.Errorf("build exchange failed: %w", err)
	}
	if err := c.buildEngine(); err != nil {
		return fmt.Errorf("build engine failed: %w", err)
	}
	if err := c.buildSchedule(); err != nil {
		return fmt.Errorf("build schedule failed: %w", err)
	}
	if err := c.registerLifecycleComponents(); err != nil {
		return fmt.Errorf("register components failed: %w", err)
	}
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	c.logger = c.opts.Logger
	if c.logger == nil {
		var err error
		c.logger, err = logger.New(c.cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
		c.ownLogger = true
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"env": c.cfg.Env})
	c.monitor = monitor.New(monitor.DefaultConfig())

	channels := []alert.Channel{alert.NewLogChannel("log", c.logger)}
	if c.cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookChannel("webhook", c.cfg.Alert.WebhookURL))
	}
	c.alerts = alert.NewManager(channels, c.cfg.Alert.Throttle)
	return nil
}

func (c *Container) buildExchange() error {
	ex := c.cfg.Exchange
	switch strings.ToLower(ex.Name) {
	case paper.Name:
		reg, err := asset.Load(paper.Name, []byte(bitfinex.DefaultAssets))
		if err != nil {
			return err
		}
		c.paper = paper.New(reg, ex.BaseCurrency, decimal.NewFromFloat(ex.PaperCash))
		c.conn = c.paper
	case bitfinex.Name:
		conn, err := bitfinex.New(bitfinex.Config{
			BaseURL:      ex.BaseURL,
			APIKey:       ex.APIKey,
			Secret:       ex.APISecret,
			BaseCurrency: ex.BaseCurrency,
			Rate:         ex.Rate,
			Burst:        ex.Burst,
		}, c.logger)
		if err != nil {
			return err
		}
		c.conn = conn
	default:
		return fmt.Errorf("unsupported exchange %q", ex.Name)
	}

	a, err := c.conn.Assets().Lookup(c.cfg.Strategy.Asset)
	if err != nil {
		return err
	}
	c.asset = a
	if ex.WSURL != "" {
		c.stream = bitfinex.NewTickerStream(ex.WSURL, []asset.Asset{a}, c.logger)
		if conn, ok := c.conn.(*bitfinex.Connector); ok {
			conn.AttachStream(c.stream)
		}
	}
	c.logger.Info(fmt.Sprintf("exchange %s ready with %d assets", c.conn.Name(), c.conn.Assets().Len()))
	return nil
}

func (c *Container) buildEngine() error {
	strat, err := strategy.New(c.cfg.Strategy.Name, c.cfg.Strategy.Asset, c.cfg.Strategy.Params)
	if err != nil {
		return err
	}
	trading, account := c.cfg.Risk.Build()
	freq := exchange.Minute
	if schedule.Emission(c.cfg.Schedule.Emission) == schedule.EmitDaily {
		freq = exchange.Daily
	}
	cal, err := c.cfg.Schedule.Calendar()
	if err != nil {
		return err
	}
	tracker := perf.NewTracker()
	tracker.SetAnnualization(cal.PeriodsPerYear(schedule.Emission(c.cfg.Schedule.Emission)))
	c.tracker = tracker

	retrier := retry.New(c.logger, retry.WithObserver(c.monitor))
	c.algo, err = engine.New(c.conn, strat, engine.Config{
		Budget:          c.cfg.Retry.Budget,
		EscalateAfter:   c.cfg.Retry.EscalateAfter,
		StartDate:       time.Now().UTC(),
		DataFrequency:   freq,
		TradingControls: trading,
		AccountControls: account,
	}, engine.WithLogger(c.logger),
		engine.WithMonitor(c.monitor),
		engine.WithRetrier(retrier),
		engine.WithTracker(tracker),
		engine.WithAlerter(c.alerts))
	if err != nil {
		return err
	}

	analyzer := perf.ConsoleAnalyzer{Out: c.opts.Out, CSVPath: c.cfg.Report.CSVPath, Log: c.logger}
	c.shutdown = engine.NewShutdownHandler(c.algo, analyzer, c.opts.Exit, c.logger)
	return nil
}

func (c *Container) buildSchedule() error {
	if c.opts.Source != nil {
		c.source = c.opts.Source
		return nil
	}
	cal, err := c.cfg.Schedule.Calendar()
	if err != nil {
		return err
	}
	opts, err := c.cfg.Schedule.Options(c.conn.TimeSkew())
	if err != nil {
		return err
	}
	c.source = schedule.NewRealtime(cal, opts, time.Now(), time.Time{}, nil, c.logger)
	return nil
}

func (c *Container) registerLifecycleComponents() error {
	if c.cfg.Metrics.Addr != "" {
		c.metrics = &httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		}
		c.lifecycle.Register(c.metrics)
	}
	if c.stream != nil {
		c.lifecycle.Register(&streamComponent{
			name:      "ticker_stream",
			stream:    c.stream,
			reconnect: 5 * time.Second,
			logger:    c.logger,
		})
		if c.paper != nil {
			c.lifecycle.Register(&priceFeedComponent{
				source:   c.stream,
				sink:     c.paper,
				assets:   []asset.Asset{c.asset},
				interval: time.Second,
				logger:   c.logger,
			})
		}
	}
	if c.opts.ConfigPath != "" {
		reloader, err := iconfig.NewHotReloader(c.opts.ConfigPath, iconfig.DefaultHotReloadConfig(), c.logger)
		if err != nil {
			return err
		}
		reloader.Register(c.algo)
		c.lifecycle.Register(reloader)
	}
	return nil
}

// Start 启动后台组件，不包括执行循环
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("container started")
	return nil
}

// Run 在当前 goroutine 运行执行循环，直到 tick 源耗尽、被停止或失去连接。
func (c *Container) Run(ctx context.Context) error {
	return c.algo.Run(ctx, c.source)
}

// Shutdown 停止执行循环并输出最终报告，可重复调用。
func (c *Container) Shutdown(reason string) (perf.Report, error) {
	return c.shutdown.Handle(reason)
}

// Stop 停止后台组件
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")
	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	if c.ownLogger {
		_ = c.logger.Close()
	}
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// MetricsAddr /metrics 实际监听地址，未启用时为空。
func (c *Container) MetricsAddr() string {
	if c.metrics == nil {
		return ""
	}
	return c.metrics.Addr()
}

func (c *Container) Algorithm() *engine.Algorithm { return c.algo }
func (c *Container) Alerts() *alert.Manager       { return c.alerts }
func (c *Container) Config() config.AppConfig     { return c.cfg }
func (c *Container) Logger() *logger.Logger       { return c.logger }
func (c *Container) Tracker() *perf.Tracker       { return c.tracker }
