package strategy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"live-trader-go/internal/engine"
)

// Name 策略名称，对应配置中的 strategy.name。
type Name string

const (
	BuyAndHold Name = "buy_and_hold"
	BuyTheDip  Name = "buy_the_dip"
)

// ErrUnknownStrategy 未注册的策略名称。
var ErrUnknownStrategy = errors.New("unknown strategy")

// Names 已注册的策略名称。
func Names() []string {
	return []string{string(BuyAndHold), string(BuyTheDip)}
}

// New 根据名称创建策略实例。params 中未识别的键视为配置错误。
func New(name, symbol string, params map[string]float64) (engine.Strategy, error) {
	if symbol == "" {
		return nil, errors.New("strategy asset is required")
	}
	p := newParams(params)
	var (
		strat engine.Strategy
		err   error
	)
	switch Name(name) {
	case BuyAndHold:
		strat, err = newBuyAndHold(symbol, p)
	case BuyTheDip:
		strat, err = newBuyTheDip(symbol, p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if unused := p.unused(); len(unused) > 0 {
		return nil, fmt.Errorf("%s: unknown params %v", name, unused)
	}
	return strat, nil
}

// params 记录读取过的键，用于发现拼写错误。
type params struct {
	raw  map[string]float64
	used map[string]bool
}

func newParams(raw map[string]float64) *params {
	return &params{raw: raw, used: make(map[string]bool)}
}

// positive 读取一个必须为正的参数，缺省时取 def。
func (p *params) positive(key string, def float64) (decimal.Decimal, error) {
	p.used[key] = true
	v, ok := p.raw[key]
	if !ok {
		return decimal.NewFromFloat(def), nil
	}
	if v <= 0 {
		return decimal.Zero, fmt.Errorf("param %s must be positive, got %v", key, v)
	}
	return decimal.NewFromFloat(v), nil
}

func (p *params) unused() []string {
	var keys []string
	for k := range p.raw {
		if !p.used[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
