package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/quantflow/quantflow/internal/domain"
)

// Kline is one OHLCV row as returned by the Binance REST API.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Bar converts a Binance kline to a domain bar. The bar timestamp is
// the interval open time.
func (k Kline) Bar() domain.Bar {
	return domain.Bar{
		Timestamp: k.OpenTime,
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
	}
}

// UnmarshalJSON decodes the positional array format Binance uses for
// klines:
//
//	[openTime, "open", "high", "low", "close", "volume", closeTime, ...]
//
// Times are millisecond epochs and prices are decimal strings.
func (k *Kline) UnmarshalJSON(data []byte) error {
	var row []json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return fmt.Errorf("kline row: %w", err)
	}
	if len(row) < 7 {
		return fmt.Errorf("kline row: expected at least 7 fields, got %d", len(row))
	}

	var openMs, closeMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return fmt.Errorf("kline open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return fmt.Errorf("kline close time: %w", err)
	}
	k.OpenTime = time.UnixMilli(openMs).UTC()
	k.CloseTime = time.UnixMilli(closeMs).UTC()

	fields := []struct {
		idx int
		dst *float64
	}{
		{1, &k.Open},
		{2, &k.High},
		{3, &k.Low},
		{4, &k.Close},
		{5, &k.Volume},
	}
	for _, f := range fields {
		var s string
		if err := json.Unmarshal(row[f.idx], &s); err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		*f.dst = v
	}
	return nil
}

// TickerPrice is the response of GET /api/v3/ticker/price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Balance is one asset entry from the signed account endpoint.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// Account is the response of the signed GET /api/v3/account endpoint.
type Account struct {
	CanTrade  bool      `json:"canTrade"`
	Balances  []Balance `json:"balances"`
	UpdatedAt int64     `json:"updateTime"`
}

// errorResponse is the Binance API error envelope.
type errorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// wsKlineEvent is a kline stream event frame.
//
//	{"e":"kline","E":123456789,"s":"BTCUSDT","k":{...}}
type wsKlineEvent struct {
	EventType string      `json:"e"`
	EventTime int64       `json:"E"`
	Symbol    string      `json:"s"`
	Kline     wsKlineData `json:"k"`
}

type wsKlineData struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

// toKline converts a stream frame to the REST kline shape. It returns
// an error when any decimal field fails to parse.
func (d wsKlineData) toKline() (Kline, error) {
	k := Kline{
		OpenTime:  time.UnixMilli(d.OpenTime).UTC(),
		CloseTime: time.UnixMilli(d.CloseTime).UTC(),
	}
	fields := []struct {
		src string
		dst *float64
	}{
		{d.Open, &k.Open},
		{d.High, &k.High},
		{d.Low, &k.Low},
		{d.Close, &k.Close},
		{d.Volume, &k.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.src, 64)
		if err != nil {
			return Kline{}, fmt.Errorf("stream kline: %w", err)
		}
		*f.dst = v
	}
	return k, nil
}
