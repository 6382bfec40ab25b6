package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantflow/quantflow/internal/ai"
	"github.com/quantflow/quantflow/internal/backtest"
	"github.com/quantflow/quantflow/internal/crypto"
	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/pipeline"
	"github.com/quantflow/quantflow/internal/platform/binance"
	"github.com/quantflow/quantflow/internal/platform/yahoo"
	"github.com/quantflow/quantflow/internal/server"
	"github.com/quantflow/quantflow/internal/server/handler"
	"github.com/quantflow/quantflow/internal/server/ws"
	"github.com/quantflow/quantflow/internal/service"
	"github.com/quantflow/quantflow/internal/strategy"
)

// services bundles the service layer built on top of the wired
// dependencies. Modes share one instance.
type services struct {
	registry   *strategy.Registry
	users      *service.UserService
	strategies *service.StrategyService
	market     *service.MarketService
	orders     *service.OrderService
	backtests  *service.BacktestService
	ai         *service.AIService
}

// buildServices constructs the full service layer from config and deps.
func (a *App) buildServices(deps *Dependencies) *services {
	tokens := crypto.NewTokenAuth(a.cfg.Auth.TokenSecret, a.cfg.Auth.TokenTTL.Duration)
	registry := strategy.NewRegistry()

	exchangeClient := binance.NewClient(
		a.cfg.Exchange.BaseURL,
		a.cfg.Exchange.ApiKey,
		a.cfg.Exchange.ApiSecret,
	)
	stockClient := yahoo.NewClient(a.cfg.Stocks.BaseURL)
	aiClient := ai.NewClient(ai.ClientConfig{
		APIKey:      a.cfg.AI.ApiKey,
		BaseURL:     a.cfg.AI.BaseURL,
		Model:       a.cfg.AI.Model,
		Temperature: a.cfg.AI.Temperature,
		MaxTokens:   a.cfg.AI.MaxTokens,
	})

	userSvc := service.NewUserService(deps.UserStore, tokens, a.cfg.Auth.BcryptCost, a.logger)
	strategySvc := service.NewStrategyService(deps.StrategyStore, registry, a.logger)
	marketSvc := service.NewMarketService(
		a.cfg.Exchange.Name,
		deps.KlineStore, deps.KlineCache, deps.PriceCache,
		exchangeClient, stockClient,
		a.logger,
	)
	orderSvc := service.NewOrderService(
		deps.OrderStore, deps.TradeStore, marketSvc,
		deps.RateLimiter, deps.EventBus,
		a.cfg.Exchange.Name,
		a.cfg.Risk.MaxOrdersPerMinute,
		a.cfg.Risk.MaxPositionSize,
		a.cfg.Backtest.CommissionRate,
		a.logger,
	)
	backtestSvc := service.NewBacktestService(
		deps.BacktestStore, deps.StrategyStore, deps.KlineStore,
		registry, deps.Notifier, deps.EventBus,
		a.cfg.Exchange.Name,
		a.cfg.Backtest.InitialCapital,
		a.cfg.Backtest.CommissionRate,
		a.cfg.Backtest.MaxSweepSize,
		a.logger,
	)
	aiSvc := service.NewAIService(aiClient, marketSvc, backtestSvc, deps.StrategyStore, a.logger)

	return &services{
		registry:   registry,
		users:      userSvc,
		strategies: strategySvc,
		market:     marketSvc,
		orders:     orderSvc,
		backtests:  backtestSvc,
		ai:         aiSvc,
	}
}

// ServerMode runs the HTTP API, the websocket hub, and nothing else.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// CollectMode runs the kline collection and archival pipeline without
// the HTTP API.
func (a *App) CollectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting collect mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps)

	return g.Wait()
}

// FullMode runs every subsystem: HTTP API, websocket hub, kline
// collection, and archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)
	a.startPipeline(ctx, g, deps)

	return g.Wait()
}

// BacktestMode executes the single run described by the [backtest]
// config section against stored klines and prints the result as JSON.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	bt := a.cfg.Backtest
	a.logger.InfoContext(ctx, "starting one-shot backtest",
		slog.String("kind", bt.RunKind),
		slog.String("symbol", bt.RunSymbol),
		slog.String("timeframe", bt.RunTimeframe),
	)

	start, err := time.Parse("2006-01-02", bt.RunStart)
	if err != nil {
		return fmt.Errorf("backtest mode: parse run_start: %w", err)
	}
	end, err := time.Parse("2006-01-02", bt.RunEnd)
	if err != nil {
		return fmt.Errorf("backtest mode: parse run_end: %w", err)
	}

	registry := strategy.NewRegistry()
	strat, err := registry.New(bt.RunKind, bt.RunParams)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	klines, err := deps.KlineStore.Range(ctx, a.cfg.Collector.Exchange, bt.RunSymbol, bt.RunTimeframe, start, end)
	if err != nil {
		return fmt.Errorf("backtest mode: load klines: %w", err)
	}
	if len(klines) == 0 {
		return fmt.Errorf("backtest mode: no klines stored for %s %s in range", bt.RunSymbol, bt.RunTimeframe)
	}

	bars := make([]domain.Bar, len(klines))
	for i, k := range klines {
		bars[i] = k.Bar
	}

	engine, err := backtest.New(backtest.Config{
		Strategy:       strat,
		InitialCapital: bt.InitialCapital,
		CommissionRate: bt.CommissionRate,
		Logger:         a.logger,
	})
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	result := engine.Run(bars)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("backtest mode: encode result: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))

	a.logger.InfoContext(ctx, "backtest complete",
		slog.Int("bars", len(bars)),
		slog.Int("trades", result.TotalTrades),
		slog.Float64("total_return", result.TotalReturn),
	)
	return nil
}

// startHTTPServer adds the websocket hub and HTTP server goroutines to
// the given errgroup. The server is shut down gracefully when the
// context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.EventBus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("ws hub: %w", err)
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Auth:       handler.NewAuthHandler(svcs.users, a.logger),
		Strategies: handler.NewStrategyHandler(svcs.strategies, a.logger),
		Backtests:  handler.NewBacktestHandler(svcs.backtests, a.logger),
		Orders:     handler.NewOrderHandler(svcs.orders, a.logger),
		Market:     handler.NewMarketHandler(svcs.market, a.logger),
		AI:         handler.NewAIHandler(svcs.ai, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIRateLimit:  a.cfg.Server.RateLimitPerMinute,
		APIRateWindow: time.Minute,
	}, handlers, hub, svcs.users, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startPipeline adds the collector and archiver goroutines to the given
// errgroup.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	col := a.cfg.Collector

	client := binance.NewClient(
		a.cfg.Exchange.BaseURL,
		a.cfg.Exchange.ApiKey,
		a.cfg.Exchange.ApiSecret,
	)

	var stream *binance.WSClient
	if a.cfg.Exchange.WsURL != "" {
		stream = binance.NewWSClient(a.cfg.Exchange.WsURL)
	}

	collector := pipeline.NewCollector(
		client, stream,
		deps.KlineStore, deps.KlineCache, deps.PriceCache,
		deps.EventBus, deps.Notifier,
		col.Exchange, col.Symbols, col.Timeframe, col.FetchLimit,
		a.logger,
	)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil && col.ArchiveRetentionDays > 0 {
		archiver = pipeline.NewArchiver(deps.Archiver, deps.LockManager, col.ArchiveRetentionDays, a.logger)
	}

	orch := pipeline.NewOrchestrator(collector, archiver, col.FetchInterval.Duration, col.ArchiveCron, a.logger)
	g.Go(func() error {
		err := orch.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})
}
