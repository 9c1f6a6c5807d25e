package exchange

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
)

// Field 行情字段。
type Field string

const (
	FieldOpen       Field = "open"
	FieldHigh       Field = "high"
	FieldLow        Field = "low"
	FieldClose      Field = "close"
	FieldVolume     Field = "volume"
	FieldPrice      Field = "price"
	FieldLastTraded Field = "last_traded"
)

// ParseField 校验字段名。
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(s)); f {
	case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume, FieldPrice, FieldLastTraded:
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Frequency K 线周期。
type Frequency string

const (
	Minute Frequency = "1m"
	Daily  Frequency = "1d"
)

// ParseFrequency 接受 minute/1m 与 daily/1d。
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(s) {
	case "minute", "1m":
		return Minute, nil
	case "daily", "1d":
		return Daily, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidHistoryFrequency, s)
}

// Duration 单根 K 线的时长。
func (f Frequency) Duration() time.Duration {
	if f == Daily {
		return 24 * time.Hour
	}
	return time.Minute
}

// Value 单个字段的取值：价格类字段用 Price，volume 用 Volume，last_traded 用 LastTraded。
type Value struct {
	Field      Field
	Price      decimal.Decimal
	Volume     int64
	LastTraded time.Time
}

// Candle 一根 K 线。
type Candle struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Value 取出指定字段。
func (c Candle) Value(f Field) Value {
	v := Value{Field: f}
	switch f {
	case FieldOpen:
		v.Price = c.Open
	case FieldHigh:
		v.Price = c.High
	case FieldLow:
		v.Price = c.Low
	case FieldClose, FieldPrice:
		v.Price = c.Close
	case FieldVolume:
		v.Volume = c.Volume.IntPart()
	case FieldLastTraded:
		v.LastTraded = c.Time
	}
	return v
}

// Ticker 最新行情快照。
type Ticker struct {
	Asset     asset.Asset
	Timestamp time.Time
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	LastPrice decimal.Decimal
	Low       decimal.Decimal
	High      decimal.Decimal
	Volume    decimal.Decimal
}
