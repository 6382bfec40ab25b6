// Package binance is a REST and WebSocket client for the Binance spot
// market data API. Only the endpoints the collector and market service
// need are implemented.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantflow/quantflow/internal/crypto"
	"github.com/quantflow/quantflow/internal/domain"
)

// maxKlineLimit is the largest page size Binance accepts for klines.
const maxKlineLimit = 1000

// Client is the REST client for the Binance spot API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewClient creates a new Binance REST client.
//
// baseURL is the API root, e.g. "https://api.binance.com". apiKey and
// apiSecret may be empty; signed endpoints then return an error.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// normalizeSymbol converts a "BTC/USDT" pair to Binance's "BTCUSDT"
// form. Symbols already in that form pass through unchanged.
func normalizeSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] != '/' {
			out = append(out, symbol[i])
		}
	}
	return string(out)
}

// GetKlines fetches up to limit OHLCV bars for the symbol and interval.
// start and end bound the open time when non-zero. Bars are returned in
// ascending time order, as Binance serves them.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]Kline, error) {
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	params := url.Values{}
	params.Set("symbol", normalizeSymbol(symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	body, err := c.doRequest(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, fmt.Errorf("binance: get klines %s %s: %w", symbol, interval, err)
	}

	var klines []Kline
	if err := json.Unmarshal(body, &klines); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}
	return klines, nil
}

// GetTicker returns the latest traded price for the symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", normalizeSymbol(symbol))

	body, err := c.doRequest(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: get ticker %s: %w", symbol, err)
	}

	var tp TickerPrice
	if err := json.Unmarshal(body, &tp); err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(tp.Price, 64)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: parse ticker price: %w", err)
	}

	return domain.Ticker{
		Exchange:  "binance",
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GetAccount fetches the signed account endpoint. It requires API
// credentials and returns domain.ErrNotConfigured without them.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return Account{}, fmt.Errorf("binance: get account: %w", domain.ErrNotConfigured)
	}

	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	query += "&signature=" + crypto.SignQuery(c.apiSecret, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v3/account?"+query, nil)
	if err != nil {
		return Account{}, fmt.Errorf("binance: get account: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	body, err := c.send(req)
	if err != nil {
		return Account{}, fmt.Errorf("binance: get account: %w", err)
	}

	var acct Account
	if err := json.Unmarshal(body, &acct); err != nil {
		return Account{}, fmt.Errorf("binance: decode account: %w", err)
	}
	return acct, nil
}

// doRequest builds and sends an unsigned GET request.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req)
}

// send executes the request and maps non-2xx responses to errors.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusTeapot:
		// 418 is Binance's IP auto-ban response.
		return nil, fmt.Errorf("HTTP %d code %d: %s: %w",
			resp.StatusCode, apiErr.Code, apiErr.Msg, domain.ErrRateLimited)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("HTTP %d code %d: %s: %w",
			resp.StatusCode, apiErr.Code, apiErr.Msg, domain.ErrUnauthorized)
	default:
		return nil, fmt.Errorf("HTTP %d code %d: %s", resp.StatusCode, apiErr.Code, apiErr.Msg)
	}
}
