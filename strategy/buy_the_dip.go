package strategy

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"live-trader-go/asset"
	"live-trader-go/internal/engine"
)

// buyTheDip 价格低于持仓成本时加仓，高于成本一定比例时清仓止盈。
// 有挂单未终结时跳过当前 bar。
type buyTheDip struct {
	symbol     string
	increment  decimal.Decimal
	takeProfit decimal.Decimal
	buyMarkup  decimal.Decimal
	sellOffset decimal.Decimal

	asset asset.Asset
}

func newBuyTheDip(symbol string, p *params) (*buyTheDip, error) {
	s := &buyTheDip{symbol: symbol}
	var err error
	if s.increment, err = p.positive("amount", 1); err != nil {
		return nil, err
	}
	if s.takeProfit, err = p.positive("take_profit", 1.1); err != nil {
		return nil, err
	}
	if s.buyMarkup, err = p.positive("limit_markup", 1.1); err != nil {
		return nil, err
	}
	if s.sellOffset, err = p.positive("sell_discount", 0.95); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *buyTheDip) Initialize(api engine.API) error {
	a, err := api.Symbol(s.symbol)
	if err != nil {
		return err
	}
	s.asset = a
	api.Logger().Info("buy the dip initialized", zap.String("symbol", a.Symbol))
	return nil
}

func (s *buyTheDip) HandleData(api engine.API, data *engine.BarData) error {
	log := api.Logger().With(zap.Time("bar", data.Time()))
	price, ok := data.Price(s.asset)
	if !ok {
		log.Info("no price yet", zap.String("symbol", s.asset.Symbol))
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

	cash := api.Portfolio().Cash
	pos, held := api.Portfolio().Position(s.asset.ID)
	held = held && pos.Amount.IsPositive()

	if held && price.GreaterThan(pos.CostBasis.Mul(s.takeProfit)) {
		log.Info("price higher than cost basis, taking profit",
			zap.String("price", price.String()),
			zap.String("cost_basis", pos.CostBasis.String()))
		limit := decimal.NewNullDecimal(price.Mul(s.sellOffset))
		_, err := api.Order(s.asset, pos.Amount.Neg(), limit, decimal.NullDecimal{}, nil)
		return err
	}
	if held && !price.LessThan(pos.CostBasis) {
		log.Info("no buy or sell opportunity found")
		return nil
	}
	if price.Mul(s.increment).GreaterThan(cash) {
		log.Info("not enough base currency to consider buying", zap.String("cash", cash.String()))
		return nil
	}

	log.Info("buying",
		zap.String("price", price.String()),
		zap.String("cost_basis", pos.CostBasis.String()))
	limit := decimal.NewNullDecimal(price.Mul(s.buyMarkup))
	_, err = api.Order(s.asset, s.increment, limit, decimal.NullDecimal{}, nil)
	return err
}
