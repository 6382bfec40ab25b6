package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/notify"
	"github.com/quantflow/quantflow/internal/platform/binance"
)

// defaultFetchLimit is how many klines one poll fetches per symbol when
// the configured limit is missing.
const defaultFetchLimit = 200

// consecutiveFailureAlert is the failure streak that triggers a
// notification. Transient exchange hiccups stay quiet.
const consecutiveFailureAlert = 5

// KlineFetcher retrieves recent klines from an exchange REST API.
type KlineFetcher interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]binance.Kline, error)
}

// Collector polls the exchange for recent klines on a fixed interval and
// fans each batch out to the database, the cache, and the event bus.
// When a stream client is attached it also persists closed klines pushed
// over the exchange websocket, which keeps the hot window current
// between polls.
type Collector struct {
	fetcher    KlineFetcher
	stream     *binance.WSClient
	klines     domain.KlineStore
	cache      domain.KlineCache
	prices     domain.PriceCache
	bus        domain.EventBus
	notifier   *notify.Notifier
	exchange   string
	symbols    []string
	timeframe  string
	fetchLimit int
	logger     *slog.Logger

	failures int
}

// NewCollector creates a Collector. stream, bus, and notifier may be nil.
func NewCollector(
	fetcher KlineFetcher,
	stream *binance.WSClient,
	klines domain.KlineStore,
	cache domain.KlineCache,
	prices domain.PriceCache,
	bus domain.EventBus,
	notifier *notify.Notifier,
	exchange string,
	symbols []string,
	timeframe string,
	fetchLimit int,
	logger *slog.Logger,
) *Collector {
	if fetchLimit <= 0 {
		fetchLimit = defaultFetchLimit
	}
	return &Collector{
		fetcher:    fetcher,
		stream:     stream,
		klines:     klines,
		cache:      cache,
		prices:     prices,
		bus:        bus,
		notifier:   notifier,
		exchange:   exchange,
		symbols:    symbols,
		timeframe:  timeframe,
		fetchLimit: fetchLimit,
		logger:     logger,
	}
}

// Run executes a single collection pass over all configured symbols.
// Symbols fail independently; the pass returns the last error seen so a
// single bad symbol does not starve the rest.
func (c *Collector) Run(ctx context.Context) error {
	var lastErr error
	total := 0

	for _, symbol := range c.symbols {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("collector context cancelled: %w", err)
		}

		n, err := c.collectSymbol(ctx, symbol)
		if err != nil {
			c.logger.Error("kline collection failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		total += n
	}

	if lastErr != nil {
		c.recordFailure(ctx, lastErr)
		return lastErr
	}

	c.failures = 0
	c.logger.Info("collection pass complete",
		slog.Int("symbols", len(c.symbols)),
		slog.Int("klines", total),
	)
	return nil
}

// collectSymbol fetches the latest klines for one symbol and stores them.
func (c *Collector) collectSymbol(ctx context.Context, symbol string) (int, error) {
	raw, err := c.fetcher.GetKlines(ctx, symbol, c.timeframe, c.fetchLimit, time.Time{}, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("fetching klines for %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return 0, nil
	}

	klines := make([]domain.Kline, 0, len(raw))
	for _, k := range raw {
		klines = append(klines, domain.Kline{
			Exchange:  c.exchange,
			Symbol:    symbol,
			Timeframe: c.timeframe,
			Bar:       k.Bar(),
		})
	}

	if err := c.klines.UpsertBatch(ctx, klines); err != nil {
		return 0, fmt.Errorf("storing %d klines for %s: %w", len(klines), symbol, err)
	}

	// Cache and price updates are best effort; the database already has
	// the data.
	if err := c.cache.Push(ctx, c.exchange, symbol, c.timeframe, klines); err != nil {
		c.logger.Warn("kline cache push failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}

	latest := klines[len(klines)-1]
	if err := c.prices.SetPrice(ctx, c.exchange, symbol, latest.Close, latest.Timestamp); err != nil {
		c.logger.Warn("price cache update failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}

	c.publishUpdate(ctx, symbol, latest)
	return len(klines), nil
}

// RunLoop runs the collector on a repeating interval until the context
// is cancelled. If a stream client is configured it is connected first
// so websocket klines flow between polls.
func (c *Collector) RunLoop(ctx context.Context, interval time.Duration) error {
	if c.stream != nil {
		if err := c.startStream(ctx); err != nil {
			c.logger.Error("kline stream unavailable, falling back to polling only",
				slog.String("error", err.Error()),
			)
		}
	}

	// Run immediately on start.
	if err := c.Run(ctx); err != nil {
		c.logger.Error("collection pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collector loop stopped")
			if c.stream != nil {
				c.stream.Close()
			}
			return ctx.Err()
		case <-ticker.C:
			if err := c.Run(ctx); err != nil {
				c.logger.Error("collection pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// startStream connects the websocket client and registers a handler that
// persists each closed kline as it arrives.
func (c *Collector) startStream(ctx context.Context) error {
	c.stream.OnKline(func(symbol string, k binance.Kline) {
		kline := domain.Kline{
			Exchange:  c.exchange,
			Symbol:    symbol,
			Timeframe: c.timeframe,
			Bar:       k.Bar(),
		}

		// Stream callbacks run outside the loop's lifecycle; bound each
		// write so a stalled database cannot back up the reader.
		wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.klines.UpsertBatch(wctx, []domain.Kline{kline}); err != nil {
			c.logger.Warn("stream kline store failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			return
		}
		if err := c.cache.Push(wctx, c.exchange, symbol, c.timeframe, []domain.Kline{kline}); err != nil {
			c.logger.Warn("stream kline cache push failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
		if err := c.prices.SetPrice(wctx, c.exchange, symbol, kline.Close, kline.Timestamp); err != nil {
			c.logger.Warn("stream price cache update failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
		c.publishUpdate(wctx, symbol, kline)
	})

	if err := c.stream.Connect(ctx); err != nil {
		return fmt.Errorf("connecting kline stream: %w", err)
	}
	if err := c.stream.SubscribeKlines(ctx, c.symbols, c.timeframe); err != nil {
		return fmt.Errorf("subscribing kline stream: %w", err)
	}

	c.logger.Info("kline stream connected",
		slog.Int("symbols", len(c.symbols)),
		slog.String("timeframe", c.timeframe),
	)
	return nil
}

// publishUpdate broadcasts the newest kline on the collector channel so
// websocket clients can refresh their charts.
func (c *Collector) publishUpdate(ctx context.Context, symbol string, k domain.Kline) {
	if c.bus == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"type": "kline_update",
		"payload": map[string]any{
			"exchange":  c.exchange,
			"symbol":    symbol,
			"timeframe": c.timeframe,
			"timestamp": k.Timestamp,
			"close":     k.Close,
			"volume":    k.Volume,
		},
	})
	if err != nil {
		return
	}

	if err := c.bus.Publish(ctx, "collector", payload); err != nil {
		c.logger.Warn("collector event publish failed", slog.String("error", err.Error()))
	}
}

// recordFailure tracks consecutive failed passes and notifies once the
// streak crosses the alert threshold.
func (c *Collector) recordFailure(ctx context.Context, err error) {
	c.failures++
	if c.failures != consecutiveFailureAlert || c.notifier == nil {
		return
	}

	msg := fmt.Sprintf("kline collection has failed %d times in a row: %v", c.failures, err)
	if nerr := c.notifier.Notify(ctx, notify.EventCollectorError, "Collector failing", msg); nerr != nil {
		c.logger.Warn("collector alert failed", slog.String("error", nerr.Error()))
	}
}
