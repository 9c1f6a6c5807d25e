// Package bitfinex 实现 Bitfinex 交易所适配器：v1 鉴权接口下单与查询，v2 公共接口取行情。
package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"live-trader-go/asset"
	"live-trader-go/exchange"
	"live-trader-go/infrastructure/logger"
	"live-trader-go/order"
	"live-trader-go/portfolio"
)

const Name = "bitfinex"

// DefaultAssets 内置交易对元数据。
const DefaultAssets = `{
	"btcusd": {"symbol": "btc_usd", "start_date": "2010-01-01"},
	"ltcusd": {"symbol": "ltc_usd", "start_date": "2010-01-01"},
	"ltcbtc": {"symbol": "ltc_btc", "start_date": "2010-01-01"},
	"ethusd": {"symbol": "eth_usd", "start_date": "2010-01-01"},
	"ethbtc": {"symbol": "eth_btc", "start_date": "2010-01-01"},
	"etcbtc": {"symbol": "etc_btc", "start_date": "2010-01-01"},
	"etcusd": {"symbol": "etc_usd", "start_date": "2010-01-01"},
	"zecusd": {"symbol": "zec_usd", "start_date": "2010-01-01"},
	"xmrusd": {"symbol": "xmr_usd", "start_date": "2010-01-01"},
	"xrpusd": {"symbol": "xrp_usd", "start_date": "2010-01-01"},
	"eosusd": {"symbol": "eos_usd", "start_date": "2010-01-01"},
	"eosbtc": {"symbol": "eos_btc", "start_date": "2010-01-01"}
}`

// Config 适配器参数。
type Config struct {
	BaseURL      string
	APIKey       string
	Secret       string
	BaseCurrency string
	Rate         float64
	Burst        int
	Assets       []byte // 为空时使用 DefaultAssets
}

// Connector Bitfinex 适配器。
type Connector struct {
	client       *Client
	registry     *asset.Registry
	baseCurrency string
	stream       *TickerStream
	now          func() time.Time
	log          *logger.Logger
}

var _ exchange.Connector = (*Connector)(nil)

// New 创建适配器并加载交易对。
func New(cfg Config, log *logger.Logger) (*Connector, error) {
	raw := cfg.Assets
	if len(raw) == 0 {
		raw = []byte(DefaultAssets)
	}
	reg, err := asset.Load(Name, raw)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Connector{
		client: &Client{
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			APIKey:     cfg.APIKey,
			Secret:     cfg.Secret,
			HTTPClient: NewDefaultHTTPClient(),
			Limiter:    NewTokenBucketLimiter(cfg.Rate, cfg.Burst),
		},
		registry:     reg,
		baseCurrency: strings.ToLower(cfg.BaseCurrency),
		now:          time.Now,
		log:          log.Named(Name),
	}, nil
}

// SetHTTPClient 替换底层 http.Client。
func (c *Connector) SetHTTPClient(hc *http.Client) { c.client.HTTPClient = hc }

// AttachStream 使用 websocket 行情缓存优先回答 Tickers。
func (c *Connector) AttachStream(s *TickerStream) { c.stream = s }

func (c *Connector) Name() string            { return Name }
func (c *Connector) Assets() *asset.Registry { return c.registry }

// TimeSkew 交易所未提供服务器时间接口，视为无偏差。
func (c *Connector) TimeSkew() time.Duration { return 0 }

func (c *Connector) UpdatePortfolio(ctx context.Context, p *portfolio.Portfolio) error {
	data, err := c.client.post(ctx, exchange.OpUpdatePortfolio, "balances", nil)
	if err != nil {
		return err
	}
	var balances []balance
	if err := json.Unmarshal(data, &balances); err != nil {
		return &exchange.ProtocolError{Op: exchange.OpUpdatePortfolio, Err: err}
	}
	var base *balance
	for i := range balances {
		b := balances[i]
		if b.Type == "exchange" && strings.EqualFold(b.Currency, c.baseCurrency) {
			base = &b
			break
		}
	}
	if base == nil {
		return &exchange.ProtocolError{Op: exchange.OpUpdatePortfolio, Err: fmt.Errorf("base currency %s not found in balances", c.baseCurrency)}
	}
	p.SetCash(base.Available)

	held := p.HeldAssets()
	if len(held) == 0 {
		p.Revalue(nil)
		return nil
	}
	tickers, err := c.Tickers(ctx, held)
	if err != nil {
		return err
	}
	p.Revalue(exchange.Quotes(tickers))
	return nil
}

// Account 交易所不提供保证金数据，由本地组合推导。
func (c *Connector) Account(ctx context.Context, p *portfolio.Portfolio) (portfolio.Account, error) {
	return portfolio.DeriveAccount(p), nil
}

func (c *Connector) PlaceOrder(ctx context.Context, a asset.Asset, amount decimal.Decimal, style order.Style) (string, error) {
	if !strings.EqualFold(a.Base(), c.baseCurrency) {
		return "", fmt.Errorf("%w: %s vs %s", exchange.ErrUnsupportedPair, a.Symbol, c.baseCurrency)
	}
	kind, price, degraded, err := orderType(style)
	if err != nil {
		return "", err
	}
	if degraded {
		c.log.Warn("stop limit orders are submitted as limit orders", zap.String("symbol", a.Symbol))
	}
	side := "buy"
	if amount.IsNegative() {
		side = "sell"
	}
	req := map[string]interface{}{
		"symbol":            a.ExchangeSymbol,
		"amount":            amount.Abs().String(),
		"price":             price.String(),
		"side":              side,
		"type":              kind,
		"exchange":          Name,
		"is_hidden":         false,
		"is_postonly":       false,
		"use_all_available": 0,
		"ocoorder":          false,
		"buy_price_oco":     0,
		"sell_price_oco":    0,
	}
	c.log.Debug("placing order",
		zap.String("symbol", a.Symbol),
		zap.String("amount", amount.String()),
		zap.String("type", kind),
		zap.String("price", price.String()),
	)
	data, err := c.client.post(ctx, exchange.OpPlaceOrder, "order/new", req)
	if err != nil {
		return "", err
	}
	var resp newOrderResp
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", &exchange.ProtocolError{Op: exchange.OpPlaceOrder, Err: err}
	}
	if resp.ID == 0 {
		return "", &exchange.ProtocolError{Op: exchange.OpPlaceOrder, Err: fmt.Errorf("empty order id")}
	}
	return strconv.FormatInt(resp.ID, 10), nil
}

func (c *Connector) GetOpenOrders(ctx context.Context, a *asset.Asset) ([]*order.Order, error) {
	data, err := c.client.post(ctx, exchange.OpGetOpenOrders, "orders", nil)
	if err != nil {
		return nil, err
	}
	var statuses []orderStatus
	if err := json.Unmarshal(data, &statuses); err != nil {
		return nil, &exchange.ProtocolError{Op: exchange.OpGetOpenOrders, Err: err}
	}
	res := make([]*order.Order, 0, len(statuses))
	for _, s := range statuses {
		o, err := c.toOrder(s)
		if err != nil {
			return nil, err
		}
		if a == nil || o.Asset.ID == a.ID {
			res = append(res, o)
		}
	}
	return res, nil
}

func (c *Connector) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	oid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, id)
	}
	data, err := c.client.post(ctx, exchange.OpGetOrder, "order/status", map[string]interface{}{"order_id": oid})
	if err != nil {
		return nil, err
	}
	s, err := decodeOrder(exchange.OpGetOrder, data)
	if err != nil {
		return nil, err
	}
	return c.toOrder(s)
}

// CancelOrder 撤单失败时查询订单，订单已终结则视为成功。
func (c *Connector) CancelOrder(ctx context.Context, id string) error {
	oid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, id)
	}
	_, cancelErr := c.client.post(ctx, exchange.OpCancelOrder, "order/cancel", map[string]interface{}{"order_id": oid})
	if cancelErr == nil {
		return nil
	}
	o, err := c.GetOrder(ctx, id)
	if err != nil {
		return cancelErr
	}
	if o.Status != order.StatusOpen {
		c.log.Info("order already final, cancel skipped", zap.String("order_id", id), zap.String("status", string(o.Status)))
		return nil
	}
	return cancelErr
}
