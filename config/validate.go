package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

func invalid(format string, args ...any) error {
	return ErrInvalid(fmt.Sprintf(format, args...))
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return invalid("env is required")
	}

	switch strings.ToLower(cfg.Exchange.Name) {
	case "bitfinex":
		if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
			return invalid("exchange.apiKey/apiSecret is required (or env overrides)")
		}
	case "paper":
		if cfg.Exchange.PaperCash < 0 {
			return invalid("exchange.paperCash must be >= 0")
		}
	default:
		return invalid("unknown exchange.name %q", cfg.Exchange.Name)
	}
	if cfg.Exchange.BaseCurrency == "" {
		return invalid("exchange.baseCurrency is required")
	}
	if cfg.Exchange.Rate < 0 || cfg.Exchange.Burst < 0 {
		return invalid("exchange.rate/burst must be >= 0")
	}

	if err := cfg.Retry.Budget.Validate(); err != nil {
		return ErrInvalid(err.Error())
	}
	if cfg.Retry.EscalateAfter < 0 {
		return invalid("retry.escalateAfter must be >= 0, got %d", cfg.Retry.EscalateAfter)
	}

	if _, err := cfg.Schedule.Calendar(); err != nil {
		return ErrInvalid(err.Error())
	}
	if _, err := cfg.Schedule.Options(0); err != nil {
		return ErrInvalid(err.Error())
	}

	r := cfg.Risk
	if r.MaxOrderSize < 0 || r.MaxOrderNotional < 0 || r.MaxPositionSize < 0 {
		return invalid("risk size limits must be >= 0")
	}
	if r.MaxOrdersPerDay < 0 {
		return invalid("risk.maxOrdersPerDay must be >= 0")
	}
	if r.MaxLeverage < 0 || r.MinCash < 0 {
		return invalid("risk.maxLeverage/minCash must be >= 0")
	}
	if r.MaxDrawdown < 0 || r.MaxDrawdown >= 1 {
		return invalid("risk.maxDrawdown must be in [0, 1), got %v", r.MaxDrawdown)
	}

	if cfg.Alert.Throttle < 0 {
		return invalid("alert.throttle must be >= 0")
	}
	if cfg.Alert.WebhookURL != "" {
		if u, err := url.ParseRequestURI(cfg.Alert.WebhookURL); err != nil || u.Host == "" {
			return invalid("alert.webhookURL %q is not an absolute url", cfg.Alert.WebhookURL)
		}
	}

	if cfg.Strategy.Name == "" {
		return invalid("strategy.name is required")
	}
	if cfg.Strategy.Asset == "" {
		return invalid("strategy.asset is required")
	}
	return nil
}
