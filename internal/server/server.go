package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/server/handler"
	"github.com/quantflow/quantflow/internal/server/middleware"
	"github.com/quantflow/quantflow/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// APIRateLimit is the per-client request budget for APIRateWindow.
	// Zero disables the per-IP limiter.
	APIRateLimit  int
	APIRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Auth       *handler.AuthHandler
	Strategies *handler.StrategyHandler
	Backtests  *handler.BacktestHandler
	Orders     *handler.OrderHandler
	Market     *handler.MarketHandler
	AI         *handler.AIHandler
}

// publicPaths are served without a bearer token.
var publicPaths = []string{
	"/api/health",
	"/api/auth/register",
	"/api/auth/login",
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket hub. limiter may be nil to disable the per-IP limiter.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, auth middleware.Authenticator, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Auth endpoints.
	mux.HandleFunc("POST /api/auth/register", handlers.Auth.Register)
	mux.HandleFunc("POST /api/auth/login", handlers.Auth.Login)
	mux.HandleFunc("GET /api/auth/me", handlers.Auth.Me)

	// Strategy endpoints.
	mux.HandleFunc("GET /api/strategies", handlers.Strategies.List)
	mux.HandleFunc("POST /api/strategies", handlers.Strategies.Create)
	mux.HandleFunc("GET /api/strategies/kinds", handlers.Strategies.Kinds)
	mux.HandleFunc("GET /api/strategies/{id}", handlers.Strategies.Get)
	mux.HandleFunc("PUT /api/strategies/{id}", handlers.Strategies.Update)
	mux.HandleFunc("DELETE /api/strategies/{id}", handlers.Strategies.Delete)

	// Backtest endpoints.
	mux.HandleFunc("POST /api/backtests", handlers.Backtests.Run)
	mux.HandleFunc("GET /api/backtests", handlers.Backtests.List)
	mux.HandleFunc("GET /api/backtests/{id}", handlers.Backtests.Get)

	// Order and trade endpoints.
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)
	mux.HandleFunc("GET /api/trades", handlers.Orders.ListTrades)

	// Market data endpoints.
	mux.HandleFunc("GET /api/market/klines", handlers.Market.Klines)
	mux.HandleFunc("GET /api/market/ticker", handlers.Market.Ticker)
	mux.HandleFunc("GET /api/market/stocks", handlers.Market.StockBars)

	// AI endpoints.
	mux.HandleFunc("POST /api/ai/analyze", handlers.AI.AnalyzeMarket)
	mux.HandleFunc("POST /api/ai/advise", handlers.AI.AdviseStrategy)

	// WebSocket endpoint. Authenticated via ?token= query parameter.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(auth, publicPaths)(h)

	if limiter != nil && cfg.APIRateLimit > 0 {
		window := cfg.APIRateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.APIRateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
