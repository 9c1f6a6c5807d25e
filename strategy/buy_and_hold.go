package strategy

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"live-trader-go/asset"
	"live-trader-go/internal/engine"
)

// buyAndHold 资金足够时以限价买入一次，之后只持有。
type buyAndHold struct {
	symbol string
	amount decimal.Decimal
	markup decimal.Decimal

	asset  asset.Asset
	bought bool
}

func newBuyAndHold(symbol string, p *params) (*buyAndHold, error) {
	amount, err := p.positive("amount", 1)
	if err != nil {
		return nil, err
	}
	markup, err := p.positive("limit_markup", 1.1)
	if err != nil {
		return nil, err
	}
	return &buyAndHold{symbol: symbol, amount: amount, markup: markup}, nil
}

func (s *buyAndHold) Initialize(api engine.API) error {
	a, err := api.Symbol(s.symbol)
	if err != nil {
		return err
	}
	s.asset = a
	api.Logger().Info("buy and hold initialized",
		zap.String("symbol", a.Symbol),
		zap.String("amount", s.amount.String()))
	return nil
}

func (s *buyAndHold) HandleData(api engine.API, data *engine.BarData) error {
	if s.bought {
		return nil
	}
	log := api.Logger()
	price, ok := data.Price(s.asset)
	if !ok {
		log.Info("no price yet", zap.String("symbol", s.asset.Symbol))
		return nil
	}
	cash := api.Portfolio().Cash
	if price.Mul(s.amount).GreaterThan(cash) {
		log.Info("not enough base currency to consider buying",
			zap.String("price", price.String()),
			zap.String("cash", cash.String()))
		return nil
	}
	open, err := api.GetOpenOrders(&s.asset)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		log.Info("skipping bar until all open orders execute", zap.Int("open", len(open)))
		return nil
	}

	limit := decimal.NewNullDecimal(price.Mul(s.markup))
	if _, err := api.Order(s.asset, s.amount, limit, decimal.NullDecimal{}, nil); err != nil {
		return err
	}
	s.bought = true
	return nil
}
