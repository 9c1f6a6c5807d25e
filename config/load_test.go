package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"live-trader-go/schedule"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
exchange:
  name: bitfinex
  apiKey: foo
  apiSecret: bar
  baseCurrency: usd
retry:
  updatePortfolio: 3
  delay: 2s
  escalateAfter: 4
schedule:
  emission: daily
  timezone: America/New_York
  open: "09:30"
  close: "16:00"
  weekdays: [mon, tue, wed, thu, fri]
risk:
  maxOrderSize: 2
  longOnly: true
strategy:
  name: buy_the_dip
  asset: eth_usd
  params:
    amount: 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Exchange.APIKey != "foo" || cfg.Strategy.Asset != "eth_usd" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	// 未出现的字段保留默认值
	if cfg.Retry.UpdatePortfolio != 3 || cfg.Retry.CheckOpenOrders != 5 || cfg.Retry.Order != 1 {
		t.Fatalf("unexpected retry budget: %+v", cfg.Retry)
	}
	if cfg.Retry.Delay != 2*time.Second || cfg.Retry.EscalateAfter != 4 {
		t.Fatalf("unexpected retry delay/escalation: %+v", cfg.Retry)
	}
	if !cfg.Risk.LongOnly || cfg.Risk.MaxOrderSize != 2 {
		t.Fatalf("unexpected risk: %+v", cfg.Risk)
	}
	if cfg.Strategy.Params["amount"] != 1 {
		t.Fatalf("unexpected params: %+v", cfg.Strategy.Params)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
exchange:
  name: bitfinex
  apiKey: foo
  apiSecret: bar
`)
	t.Setenv("LIVE_EXCHANGE_API_KEY", "env-key")
	t.Setenv("LIVE_EXCHANGE_API_SECRET", "env-secret")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" || cfg.Exchange.APISecret != "env-secret" {
		t.Fatalf("env overrides not applied: %+v", cfg.Exchange)
	}
}

func TestOverridesApplyBeforeValidation(t *testing.T) {
	// 文件里是缺少密钥的 bitfinex，覆盖为 paper 后可以通过校验
	t.Setenv("LIVE_EXCHANGE_API_KEY", "")
	t.Setenv("LIVE_EXCHANGE_API_SECRET", "")
	path := writeTempConfig(t, "exchange:\n  name: bitfinex\n")
	if _, err := LoadWithEnvOverrides(path); err == nil {
		t.Fatalf("expected missing key error")
	}
	cfg, err := LoadWithEnvOverrides(path, func(c *AppConfig) {
		c.Exchange.Name = "paper"
		c.Strategy.Name = "buy_the_dip"
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Exchange.Name != "paper" || cfg.Strategy.Name != "buy_the_dip" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestDefaultsForPaper(t *testing.T) {
	path := writeTempConfig(t, "exchange:\n  name: paper\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts, err := cfg.Schedule.Options(2 * time.Second)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Emission != schedule.EmitMinute || opts.Skew != 2*time.Second {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.PreSession == nil || opts.PreSession.Time.String() != "08:45:00" ||
		opts.PreSession.Location.String() != "America/New_York" {
		t.Fatalf("unexpected pre-session: %+v", opts.PreSession)
	}
	if cfg.Retry.Delay != 5*time.Second {
		t.Fatalf("unexpected default delay %s", cfg.Retry.Delay)
	}
}

func TestValidate(t *testing.T) {
	base := Default()
	base.Exchange.Name = "paper"
	if err := Validate(base); err != nil {
		t.Fatalf("default paper config should be valid: %v", err)
	}

	cases := map[string]func(*AppConfig){
		"empty env":        func(c *AppConfig) { c.Env = "" },
		"missing keys":     func(c *AppConfig) { c.Exchange.Name = "bitfinex" },
		"unknown exchange": func(c *AppConfig) { c.Exchange.Name = "kraken" },
		"negative budget":  func(c *AppConfig) { c.Retry.Order = -1 },
		"negative delay":   func(c *AppConfig) { c.Retry.Delay = -time.Second },
		"negative escal":   func(c *AppConfig) { c.Retry.EscalateAfter = -1 },
		"bad emission":     func(c *AppConfig) { c.Schedule.Emission = "hourly" },
		"bad timezone":     func(c *AppConfig) { c.Schedule.Timezone = "Mars/Olympus" },
		"close before":     func(c *AppConfig) { c.Schedule.Open, c.Schedule.Close = "16:00", "09:30" },
		"negative risk":    func(c *AppConfig) { c.Risk.MinCash = -1 },
		"no strategy":      func(c *AppConfig) { c.Strategy.Name = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			err := Validate(cfg)
			var inv ErrInvalid
			if !errors.As(err, &inv) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
