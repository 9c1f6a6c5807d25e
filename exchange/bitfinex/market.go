package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"live-trader-go/asset"
	"live-trader-go/exchange"
)

// v2Symbol btc_usd => tBTCUSD
func v2Symbol(a asset.Asset) string {
	return "t" + strings.ToUpper(a.Target()+a.Base())
}

func timeframe(freq exchange.Frequency) (string, error) {
	switch freq {
	case exchange.Minute:
		return "1m", nil
	case exchange.Daily:
		return "1D", nil
	}
	return "", fmt.Errorf("%w: %s", exchange.ErrInvalidHistoryFrequency, freq)
}

func num(raw json.RawMessage) (decimal.Decimal, error) {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func nums(op string, row []json.RawMessage, from int) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(row))
	for i := from; i < len(row); i++ {
		d, err := num(row[i])
		if err != nil {
			return nil, &exchange.ProtocolError{Op: op, Err: fmt.Errorf("field %d: %w", i, err)}
		}
		out[i] = d
	}
	return out, nil
}

// Tickers 批量获取 ticker。已挂载 websocket 缓存且数据齐全时不发请求。
func (c *Connector) Tickers(ctx context.Context, assets []asset.Asset) ([]exchange.Ticker, error) {
	if c.stream != nil {
		if cached, ok := c.stream.Snapshot(assets); ok {
			return cached, nil
		}
	}
	if len(assets) == 0 {
		return nil, nil
	}
	bySymbol := make(map[string]asset.Asset, len(assets))
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		s := v2Symbol(a)
		bySymbol[s] = a
		symbols = append(symbols, s)
	}
	data, err := c.client.get(ctx, exchange.OpTickers, "/v2/tickers", url.Values{"symbols": {strings.Join(symbols, ",")}})
	if err != nil {
		return nil, err
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, &exchange.ProtocolError{Op: exchange.OpTickers, Err: err}
	}
	ts := c.now().UTC()
	res := make([]exchange.Ticker, 0, len(rows))
	for _, row := range rows {
		t, err := parseTicker(row, bySymbol, ts)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// parseTicker [SYMBOL, BID, BID_SIZE, ASK, ASK_SIZE, DAILY_CHANGE, DAILY_CHANGE_PERC, LAST_PRICE, VOLUME, HIGH, LOW]
func parseTicker(row []json.RawMessage, bySymbol map[string]asset.Asset, ts time.Time) (exchange.Ticker, error) {
	if len(row) != 11 {
		return exchange.Ticker{}, &exchange.ProtocolError{Op: exchange.OpTickers, Err: fmt.Errorf("invalid ticker row with %d fields", len(row))}
	}
	var symbol string
	if err := json.Unmarshal(row[0], &symbol); err != nil {
		return exchange.Ticker{}, &exchange.ProtocolError{Op: exchange.OpTickers, Err: err}
	}
	a, ok := bySymbol[symbol]
	if !ok {
		return exchange.Ticker{}, &exchange.ProtocolError{Op: exchange.OpTickers, Err: fmt.Errorf("unexpected symbol %s", symbol)}
	}
	v, err := nums(exchange.OpTickers, row, 1)
	if err != nil {
		return exchange.Ticker{}, err
	}
	return exchange.Ticker{
		Asset:     a,
		Timestamp: ts,
		Bid:       v[1],
		Ask:       v[3],
		LastPrice: v[7],
		Volume:    v[8],
		High:      v[9],
		Low:       v[10],
	}, nil
}

// parseCandle [MTS, OPEN, CLOSE, HIGH, LOW, VOLUME]
func parseCandle(row []json.RawMessage) (exchange.Candle, error) {
	if len(row) < 6 {
		return exchange.Candle{}, &exchange.ProtocolError{Op: exchange.OpCandles, Err: fmt.Errorf("invalid candle row with %d fields", len(row))}
	}
	v, err := nums(exchange.OpCandles, row, 0)
	if err != nil {
		return exchange.Candle{}, err
	}
	return exchange.Candle{
		Time:   time.UnixMilli(v[0].IntPart()).UTC(),
		Open:   v[1],
		Close:  v[2],
		High:   v[3],
		Low:    v[4],
		Volume: v[5],
	}, nil
}

// Candles 取 end 之前（含）的 barCount 根 K 线，按时间升序。barCount<=0 时只取最新一根。
func (c *Connector) Candles(ctx context.Context, a asset.Asset, freq exchange.Frequency, end time.Time, barCount int) ([]exchange.Candle, error) {
	tf, err := timeframe(freq)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/v2/candles/trade:%s:%s", tf, v2Symbol(a))
	if barCount <= 0 || end.IsZero() {
		data, err := c.client.get(ctx, exchange.OpCandles, path+"/last", nil)
		if err != nil {
			return nil, err
		}
		var row []json.RawMessage
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, &exchange.ProtocolError{Op: exchange.OpCandles, Err: err}
		}
		candle, err := parseCandle(row)
		if err != nil {
			return nil, err
		}
		return []exchange.Candle{candle}, nil
	}

	start := end.Add(-time.Duration(barCount) * freq.Duration())
	q := url.Values{
		"start": {strconv.FormatInt(start.UnixMilli(), 10)},
		"end":   {strconv.FormatInt(end.UnixMilli(), 10)},
		"limit": {strconv.Itoa(barCount)},
		"sort":  {"1"},
	}
	data, err := c.client.get(ctx, exchange.OpCandles, path+"/hist", q)
	if err != nil {
		return nil, err
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, &exchange.ProtocolError{Op: exchange.OpCandles, Err: err}
	}
	res := make([]exchange.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseCandle(row)
		if err != nil {
			return nil, err
		}
		res = append(res, candle)
	}
	return res, nil
}

// SpotValue 实时场景只取最新一根 K 线，dt 不参与查询。
func (c *Connector) SpotValue(ctx context.Context, assets []asset.Asset, field exchange.Field, dt time.Time, freq exchange.Frequency) (map[int64]exchange.Value, error) {
	res := make(map[int64]exchange.Value, len(assets))
	for _, a := range assets {
		candles, err := c.Candles(ctx, a, freq, time.Time{}, 0)
		if err != nil {
			return nil, err
		}
		if len(candles) > 0 {
			res[a.ID] = candles[len(candles)-1].Value(field)
		}
	}
	return res, nil
}

func (c *Connector) HistoryWindow(ctx context.Context, assets []asset.Asset, end time.Time, barCount int, freq exchange.Frequency, field exchange.Field) (map[int64][]exchange.Value, error) {
	res := make(map[int64][]exchange.Value, len(assets))
	for _, a := range assets {
		candles, err := c.Candles(ctx, a, freq, end, barCount)
		if err != nil {
			return nil, err
		}
		values := make([]exchange.Value, 0, len(candles))
		for _, candle := range candles {
			values = append(values, candle.Value(field))
		}
		res[a.ID] = values
	}
	return res, nil
}
