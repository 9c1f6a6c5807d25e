package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"live-trader-go/infrastructure/logger"
	"live-trader-go/retry"
	"live-trader-go/risk"
	"live-trader-go/schedule"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Retry    RetryConfig    `yaml:"retry"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Risk     risk.Limits    `yaml:"risk"`
	Strategy StrategyConfig `yaml:"strategy"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Report   ReportConfig   `yaml:"report"`
	Alert    AlertConfig    `yaml:"alert"`
}

type ExchangeConfig struct {
	Name         string  `yaml:"name"` // bitfinex 或 paper
	BaseURL      string  `yaml:"baseURL"`
	WSURL        string  `yaml:"wsURL"`
	APIKey       string  `yaml:"apiKey"`
	APISecret    string  `yaml:"apiSecret"`
	BaseCurrency string  `yaml:"baseCurrency"`
	Rate         float64 `yaml:"rate"`  // REST 请求/秒
	Burst        int     `yaml:"burst"` // 令牌桶容量
	PaperCash    float64 `yaml:"paperCash"`
}

// RetryConfig 重试预算；EscalateAfter 为连续完全降级多少个 tick 后停止，0 表示从不。
type RetryConfig struct {
	retry.Budget  `yaml:",inline"`
	EscalateAfter int `yaml:"escalateAfter"`
}

type ScheduleConfig struct {
	Emission   string           `yaml:"emission"` // minute 或 daily
	Timezone   string           `yaml:"timezone"`
	Open       string           `yaml:"open"`
	Close      string           `yaml:"close"`
	Weekdays   []string         `yaml:"weekdays"` // 为空表示每天
	PreSession PreSessionConfig `yaml:"preSession"`
}

type PreSessionConfig struct {
	Disabled bool   `yaml:"disabled"`
	Time     string `yaml:"time"`
	Timezone string `yaml:"timezone"`
}

type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Asset  string             `yaml:"asset"`
	Params map[string]float64 `yaml:"params"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空则不启动 /metrics
}

type ReportConfig struct {
	CSVPath string `yaml:"csvPath"`
}

// Default 返回默认配置，YAML 中出现的字段覆盖默认值。
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Exchange: ExchangeConfig{
			Name:         "bitfinex",
			BaseCurrency: "usd",
			Rate:         1,
			Burst:        5,
			PaperCash:    10000,
		},
		Retry: RetryConfig{Budget: retry.DefaultBudget()},
		Schedule: ScheduleConfig{
			Emission: string(schedule.EmitMinute),
			Timezone: "UTC",
			Open:     "00:00",
			Close:    "23:59",
			PreSession: PreSessionConfig{
				Time:     "08:45",
				Timezone: "America/New_York",
			},
		},
		Strategy: StrategyConfig{Name: "buy_and_hold", Asset: "btc_usd"},
		Log:      logger.DefaultConfig(),
		Alert:    AlertConfig{Throttle: 5 * time.Minute},
	}
}

// AlertConfig 告警通道，webhookURL 为空时只写日志。
type AlertConfig struct {
	WebhookURL string        `yaml:"webhookURL"`
	Throttle   time.Duration `yaml:"throttle"` // 相同告警的最小间隔
}

// Override 在校验前修改配置，命令行参数通过它覆盖文件内容。
type Override func(*AppConfig)

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func read(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// LoadWithEnvOverrides 先加载工作目录下可选的 .env，再用环境变量覆盖密钥，
// 最后依次应用 overrides 并校验。
func LoadWithEnvOverrides(path string, overrides ...Override) (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("LIVE_EXCHANGE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("LIVE_EXCHANGE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	for _, o := range overrides {
		o(&cfg)
	}
	return cfg, Validate(cfg)
}

// Calendar 由 schedule 段构建交易日历。
func (s ScheduleConfig) Calendar() (schedule.Calendar, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	open, err := schedule.ParseTimeOfDay(s.Open)
	if err != nil {
		return nil, fmt.Errorf("schedule.open: %w", err)
	}
	closeAt, err := schedule.ParseTimeOfDay(s.Close)
	if err != nil {
		return nil, fmt.Errorf("schedule.close: %w", err)
	}
	days := make([]time.Weekday, 0, len(s.Weekdays))
	for _, w := range s.Weekdays {
		d, err := schedule.ParseWeekday(w)
		if err != nil {
			return nil, fmt.Errorf("schedule.weekdays: %w", err)
		}
		days = append(days, d)
	}
	return schedule.NewWeeklyCalendar(loc, open, closeAt, days...)
}

// Options 生成 tick 的参数，skew 来自交易所连接器。
func (s ScheduleConfig) Options(skew time.Duration) (schedule.Options, error) {
	em, err := schedule.ParseEmission(s.Emission)
	if err != nil {
		return schedule.Options{}, fmt.Errorf("schedule.emission: %w", err)
	}
	opts := schedule.Options{Emission: em, Skew: skew}
	if s.PreSession.Disabled || strings.TrimSpace(s.PreSession.Time) == "" {
		return opts, nil
	}
	at, err := schedule.ParseTimeOfDay(s.PreSession.Time)
	if err != nil {
		return opts, fmt.Errorf("schedule.preSession.time: %w", err)
	}
	tz := s.PreSession.Timezone
	if tz == "" {
		tz = s.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return opts, fmt.Errorf("schedule.preSession.timezone: %w", err)
	}
	opts.PreSession = &schedule.PreSession{Time: at, Location: loc}
	return opts, nil
}
