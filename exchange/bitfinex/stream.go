package bitfinex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-trader-go/asset"
	"live-trader-go/exchange"
	"live-trader-go/infrastructure/logger"
)

const DefaultWSURL = "wss://api-pub.bitfinex.com/ws/2"

// TickerStream 订阅公共 ticker 频道并缓存最新快照。
type TickerStream struct {
	URL    string
	Dialer *websocket.Dialer
	MaxAge time.Duration // 超过该时长的缓存视为过期

	assets []asset.Asset
	log    *logger.Logger
	now    func() time.Time

	mu       sync.RWMutex
	channels map[int64]asset.Asset
	latest   map[int64]exchange.Ticker
}

func NewTickerStream(url string, assets []asset.Asset, log *logger.Logger) *TickerStream {
	if url == "" {
		url = DefaultWSURL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TickerStream{
		URL:      url,
		Dialer:   websocket.DefaultDialer,
		MaxAge:   time.Minute,
		assets:   assets,
		log:      log.Named("bitfinex_ws"),
		now:      time.Now,
		channels: make(map[int64]asset.Asset),
		latest:   make(map[int64]exchange.Ticker),
	}
}

type wsEvent struct {
	Event   string `json:"event"`
	ChanID  int64  `json:"chanId"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Msg     string `json:"msg"`
}

// Run 连接并持续读取，直到 ctx 取消或连接出错。
func (s *TickerStream) Run(ctx context.Context) error {
	if len(s.assets) == 0 {
		return fmt.Errorf("no assets subscribed")
	}
	conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, a := range s.assets {
		sub := map[string]string{"event": "subscribe", "channel": "ticker", "symbol": v2Symbol(a)}
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := s.handle(message); err != nil {
			s.log.Warn("drop ws message", zap.Error(err))
		}
	}
}

func (s *TickerStream) handle(message []byte) error {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '{' {
		var ev wsEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return err
		}
		switch ev.Event {
		case "subscribed":
			for _, a := range s.assets {
				if v2Symbol(a) == ev.Symbol {
					s.mu.Lock()
					s.channels[ev.ChanID] = a
					s.mu.Unlock()
				}
			}
		case "error":
			return fmt.Errorf("ws error: %s", ev.Msg)
		}
		return nil
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return err
	}
	if len(frame) < 2 {
		return nil
	}
	var chanID int64
	if err := json.Unmarshal(frame[0], &chanID); err != nil {
		return err
	}
	// 心跳 [chanId, "hb"]
	if bytes.HasPrefix(bytes.TrimSpace(frame[1]), []byte(`"`)) {
		return nil
	}
	s.mu.RLock()
	a, ok := s.channels[chanID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown channel %d", chanID)
	}
	var fields []json.RawMessage
	if err := json.Unmarshal(frame[1], &fields); err != nil {
		return err
	}
	// 频道数据不含 symbol，补齐成 REST 的 11 列格式复用解析
	symbol, _ := json.Marshal(v2Symbol(a))
	row := append([]json.RawMessage{symbol}, fields...)
	t, err := parseTicker(row, map[string]asset.Asset{v2Symbol(a): a}, s.now().UTC())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.latest[a.ID] = t
	s.mu.Unlock()
	return nil
}

// Snapshot 返回全部资产的缓存 ticker；有任何缺失或过期时 ok=false。
func (s *TickerStream) Snapshot(assets []asset.Asset) ([]exchange.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	res := make([]exchange.Ticker, 0, len(assets))
	for _, a := range assets {
		t, ok := s.latest[a.ID]
		if !ok || now.Sub(t.Timestamp) > s.MaxAge {
			return nil, false
		}
		res = append(res, t)
	}
	return res, true
}
