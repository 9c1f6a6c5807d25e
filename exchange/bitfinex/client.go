package bitfinex

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"live-trader-go/exchange"
)

const DefaultBaseURL = "https://api.bitfinex.com"

// Client 可签名的 REST 客户端；HTTPClient 可注入 httptest。
type Client struct {
	BaseURL    string
	APIKey     string
	Secret     string
	HTTPClient *http.Client
	Limiter    RateLimiter

	nonceMu   sync.Mutex
	lastNonce int64
	clock     func() time.Time
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

type apiMessage struct {
	Message string `json:"message"`
}

// Sign 对 payload 做 base64，再用 secret 计算 HMAC-SHA384 十六进制签名。
func Sign(payload []byte, secret string) (encoded, signature string) {
	encoded = base64.StdEncoding.EncodeToString(payload)
	mac := hmac.New(sha512.New384, []byte(secret))
	mac.Write([]byte(encoded))
	return encoded, hex.EncodeToString(mac.Sum(nil))
}

// nonce 单调递增的微秒时间戳。
func (c *Client) nonce() string {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	now := time.Now
	if c.clock != nil {
		now = c.clock
	}
	n := now().UnixMicro()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return strconv.FormatInt(n, 10)
}

// post 调用 v1 鉴权接口，返回原始 JSON。
func (c *Client) post(ctx context.Context, op, endpoint string, params map[string]interface{}) ([]byte, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	path := "/v1/" + endpoint
	body := map[string]interface{}{
		"request": path,
		"nonce":   c.nonce(),
		"options": map[string]interface{}{},
	}
	for k, v := range params {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	payload, sig := Sign(raw, c.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BFX-APIKEY", c.APIKey)
	req.Header.Set("X-BFX-PAYLOAD", payload)
	req.Header.Set("X-BFX-SIGNATURE", sig)
	return c.do(ctx, op, req)
}

// get 调用 v2 公共接口。
func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, op, req)
}

func (c *Client) do(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, &exchange.RequestError{Op: op, Err: err}
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &exchange.RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &exchange.RequestError{Op: op, Err: err}
	}
	if msg, ok := errorMessage(data); ok {
		if strings.Contains(strings.ToLower(msg), "no such order") {
			return nil, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, msg)
		}
		return nil, &exchange.RequestError{Op: op, Err: errors.New(msg)}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &exchange.RequestError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 300 {
		return nil, &exchange.ProtocolError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if !json.Valid(data) {
		return nil, &exchange.ProtocolError{Op: op, Err: fmt.Errorf("invalid json: %.64q", data)}
	}
	return data, nil
}

// errorMessage 识别 {"message": "..."} 形式的错误响应。
func errorMessage(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var m apiMessage
	if err := json.Unmarshal(trimmed, &m); err != nil || m.Message == "" {
		return "", false
	}
	return m.Message, true
}
