package portfolio

import "github.com/shopspring/decimal"

// Account 交易所回报的账户级指标，每个 tick 与 Portfolio 一起刷新，对策略只读。
// 交易所未提供的字段保持 Valid=false。
type Account struct {
	SettledCash                  decimal.NullDecimal
	AccruedInterest              decimal.NullDecimal
	BuyingPower                  decimal.NullDecimal
	EquityWithLoan               decimal.NullDecimal
	TotalPositionsValue          decimal.NullDecimal
	TotalPositionsExposure       decimal.NullDecimal
	RegTEquity                   decimal.NullDecimal
	RegTMargin                   decimal.NullDecimal
	InitialMarginRequirement     decimal.NullDecimal
	MaintenanceMarginRequirement decimal.NullDecimal
	AvailableFunds               decimal.NullDecimal
	ExcessLiquidity              decimal.NullDecimal
	Cushion                      decimal.NullDecimal
	DayTradesRemaining           decimal.NullDecimal
	Leverage                     decimal.NullDecimal
	NetLeverage                  decimal.NullDecimal
	NetLiquidation               decimal.NullDecimal
}

// DeriveAccount 在交易所不提供保证金数据时，用本地组合推导基础指标。
func DeriveAccount(p *Portfolio) Account {
	return Account{
		SettledCash:         decimal.NewNullDecimal(p.Cash),
		BuyingPower:         decimal.NewNullDecimal(p.Cash),
		TotalPositionsValue: decimal.NewNullDecimal(p.PositionsValue),
		AvailableFunds:      decimal.NewNullDecimal(p.Cash),
		Leverage:            decimal.NewNullDecimal(p.Leverage()),
		NetLiquidation:      decimal.NewNullDecimal(p.PortfolioValue),
	}
}
