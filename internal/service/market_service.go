package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/platform/binance"
)

// ExchangeData is the slice of the exchange client the market service
// needs.
type ExchangeData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]binance.Kline, error)
	GetTicker(ctx context.Context, symbol string) (domain.Ticker, error)
}

// StockData fetches daily stock bars.
type StockData interface {
	GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// priceCacheTTL bounds how stale a cached ticker may be before the
// exchange is asked again.
const priceCacheTTL = 10 * time.Second

// MarketService serves price and kline queries cache-first: Redis, then
// Postgres, then the upstream exchange.
type MarketService struct {
	exchange     string
	klines       domain.KlineStore
	klineCache   domain.KlineCache
	prices       domain.PriceCache
	exchangeData ExchangeData
	stockData    StockData
	logger       *slog.Logger
}

// NewMarketService creates a MarketService. exchange names the upstream
// the collector writes rows under (e.g. "binance").
func NewMarketService(
	exchange string,
	klines domain.KlineStore,
	klineCache domain.KlineCache,
	prices domain.PriceCache,
	exchangeData ExchangeData,
	stockData StockData,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		exchange:     exchange,
		klines:       klines,
		klineCache:   klineCache,
		prices:       prices,
		exchangeData: exchangeData,
		stockData:    stockData,
		logger:       logger,
	}
}

// RecentKlines returns the newest limit bars for the instrument. It
// tries the Redis window first, then Postgres, and finally the exchange
// when local storage has nothing.
func (s *MarketService) RecentKlines(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Kline, error) {
	if limit <= 0 {
		limit = 100
	}

	cached, err := s.klineCache.Recent(ctx, s.exchange, symbol, timeframe, limit)
	if err == nil && len(cached) >= limit {
		return cached, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "market_service: kline cache read failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}

	stored, err := s.klines.Latest(ctx, s.exchange, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: recent klines %s %s: %w", symbol, timeframe, err)
	}
	if len(stored) > 0 {
		return stored, nil
	}

	// Cold start: nothing collected yet, go straight to the exchange.
	fetched, err := s.exchangeData.GetKlines(ctx, symbol, timeframe, limit, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("market_service: recent klines %s %s: %w", symbol, timeframe, err)
	}
	if len(fetched) == 0 {
		return nil, fmt.Errorf("market_service: recent klines %s %s: %w", symbol, timeframe, domain.ErrNoData)
	}

	out := make([]domain.Kline, 0, len(fetched))
	for _, k := range fetched {
		out = append(out, domain.Kline{
			Exchange:  s.exchange,
			Symbol:    symbol,
			Timeframe: timeframe,
			Bar:       k.Bar(),
		})
	}
	return out, nil
}

// KlineRange returns stored bars between from and to in ascending time
// order. It reads Postgres only; ranged history is the collector's job
// to fill.
func (s *MarketService) KlineRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]domain.Kline, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("market_service: kline range %s: from must precede to: %w", symbol, domain.ErrInvalidInput)
	}
	klines, err := s.klines.Range(ctx, s.exchange, symbol, timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("market_service: kline range %s %s: %w", symbol, timeframe, err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("market_service: kline range %s %s: %w", symbol, timeframe, domain.ErrNoData)
	}
	return klines, nil
}

// Ticker returns the latest price for the symbol, served from the
// price cache when fresh enough.
func (s *MarketService) Ticker(ctx context.Context, symbol string) (domain.Ticker, error) {
	price, ts, err := s.prices.GetPrice(ctx, s.exchange, symbol)
	if err == nil && time.Since(ts) < priceCacheTTL {
		return domain.Ticker{
			Exchange:  s.exchange,
			Symbol:    symbol,
			Price:     price,
			Timestamp: ts,
		}, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "market_service: price cache read failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}

	ticker, err := s.exchangeData.GetTicker(ctx, symbol)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("market_service: ticker %s: %w", symbol, err)
	}

	if cacheErr := s.prices.SetPrice(ctx, s.exchange, symbol, ticker.Price, ticker.Timestamp); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: price cache write failed",
			slog.String("symbol", symbol),
			slog.String("error", cacheErr.Error()),
		)
	}

	return ticker, nil
}

// StockBars returns daily stock bars from the stocks provider.
func (s *MarketService) StockBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	if s.stockData == nil {
		return nil, fmt.Errorf("market_service: stock bars: %w", domain.ErrNotConfigured)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("market_service: stock bars %s: from must precede to: %w", symbol, domain.ErrInvalidInput)
	}
	bars, err := s.stockData.GetDailyBars(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("market_service: stock bars %s: %w", symbol, err)
	}
	return bars, nil
}
