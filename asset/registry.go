// Package asset 维护交易所提供的交易对静态元数据。
package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrSymbolNotFound 查询的 symbol 不存在。
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrMultipleSymbolsFound 同一 symbol（忽略大小写）出现多条记录。
	ErrMultipleSymbolsFound = errors.New("multiple symbols found")
	// ErrDuplicateID 两个交易对被分配到同一个 ID。
	ErrDuplicateID = errors.New("duplicate asset id")
)

// Asset 交易对，加载后不可变。
type Asset struct {
	ID             int64
	Symbol         string // 统一格式 target_base，例如 btc_usd
	ExchangeSymbol string // 交易所原始代码，例如 btcusd
	Exchange       string
	StartDate      time.Time
	EndDate        time.Time
}

// Base 返回计价币种（symbol 下划线后半段）。
func (a Asset) Base() string {
	if i := strings.LastIndex(a.Symbol, "_"); i >= 0 {
		return a.Symbol[i+1:]
	}
	return ""
}

// Target 返回交易币种。
func (a Asset) Target() string {
	if i := strings.Index(a.Symbol, "_"); i >= 0 {
		return a.Symbol[:i]
	}
	return a.Symbol
}

func (a Asset) String() string { return a.Symbol }

// Metadata 是交易所 JSON 元数据中的单条记录。
type Metadata struct {
	Symbol    string `json:"symbol"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	SID       int64  `json:"sid,omitempty"`
}

// Registry 只读的交易对索引。
type Registry struct {
	exchange   string
	bySymbol   map[string]Asset
	byExchange map[string]Asset
	byID       map[int64]Asset
}

// 未给出 end_date 时视为长期有效。
var openEnded = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// Load 解析 {"exchangeSymbol": {"symbol": "...", "start_date": "..."}} 格式的元数据。
func Load(exchange string, raw []byte) (*Registry, error) {
	var entries map[string]Metadata
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse asset metadata: %w", err)
	}
	return Build(exchange, entries)
}

// Build 按交易所代码排序后顺序分配 ID；元数据显式给出 sid 的优先使用。
// 重复的 symbol 或 ID 在加载阶段直接报错。
func Build(exchange string, entries map[string]Metadata) (*Registry, error) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := &Registry{
		exchange:   exchange,
		bySymbol:   make(map[string]Asset, len(entries)),
		byExchange: make(map[string]Asset, len(entries)),
		byID:       make(map[int64]Asset, len(entries)),
	}

	reserved := make(map[int64]string)
	for _, k := range keys {
		if sid := entries[k].SID; sid > 0 {
			if prev, ok := reserved[sid]; ok {
				return nil, fmt.Errorf("%w: %d used by %s and %s", ErrDuplicateID, sid, prev, k)
			}
			reserved[sid] = k
		}
	}

	next := int64(1)
	for _, k := range keys {
		md := entries[k]
		if md.Symbol == "" {
			return nil, fmt.Errorf("asset %s: symbol is required", k)
		}
		norm := strings.ToLower(md.Symbol)
		if prev, ok := r.bySymbol[norm]; ok {
			return nil, fmt.Errorf("%w: %s (%s, %s)", ErrMultipleSymbolsFound, md.Symbol, prev.ExchangeSymbol, k)
		}

		id := md.SID
		if id <= 0 {
			for {
				if _, taken := reserved[next]; !taken {
					break
				}
				next++
			}
			id = next
			reserved[id] = k
			next++
		}

		start, err := parseDate(md.StartDate)
		if err != nil {
			return nil, fmt.Errorf("asset %s start_date: %w", k, err)
		}
		end := openEnded
		if md.EndDate != "" {
			if end, err = parseDate(md.EndDate); err != nil {
				return nil, fmt.Errorf("asset %s end_date: %w", k, err)
			}
		}

		a := Asset{
			ID:             id,
			Symbol:         norm,
			ExchangeSymbol: k,
			Exchange:       exchange,
			StartDate:      start,
			EndDate:        end,
		}
		r.bySymbol[norm] = a
		r.byExchange[k] = a
		r.byID[id] = a
	}
	return r, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", s)
}

// Lookup 按统一 symbol 查找，忽略大小写。
func (r *Registry) Lookup(symbol string) (Asset, error) {
	a, ok := r.bySymbol[strings.ToLower(symbol)]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s on %s", ErrSymbolNotFound, symbol, r.exchange)
	}
	return a, nil
}

// ByExchangeSymbol 按交易所原始代码查找。
func (r *Registry) ByExchangeSymbol(code string) (Asset, error) {
	if a, ok := r.byExchange[code]; ok {
		return a, nil
	}
	// 部分接口返回的大小写与元数据不一致
	for k, a := range r.byExchange {
		if strings.EqualFold(k, code) {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: exchange symbol %s on %s", ErrSymbolNotFound, code, r.exchange)
}

// ByID 按 ID 查找。
func (r *Registry) ByID(id int64) (Asset, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// All 返回全部交易对，按 ID 排序。
func (r *Registry) All() []Asset {
	res := make([]Asset, 0, len(r.byID))
	for _, a := range r.byID {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Len 返回交易对数量。
func (r *Registry) Len() int { return len(r.byID) }

// Exchange 返回所属交易所名称。
func (r *Registry) Exchange() string { return r.exchange }
