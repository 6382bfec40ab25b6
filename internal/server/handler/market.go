package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quantflow/quantflow/internal/domain"
)

// MarketService defines the methods the market handler requires from
// the service layer.
type MarketService interface {
	RecentKlines(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Kline, error)
	KlineRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]domain.Kline, error)
	Ticker(ctx context.Context, symbol string) (domain.Ticker, error)
	StockBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error)
}

// MarketHandler serves market data endpoints.
type MarketHandler struct {
	market MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(market MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{market: market, logger: logger}
}

// Klines returns bars for an instrument. With from/to parameters it
// serves a stored range; otherwise the most recent bars.
// GET /api/market/klines?symbol=BTC/USDT&timeframe=1h&limit=100
// GET /api/market/klines?symbol=BTC/USDT&timeframe=1h&from=2025-01-01&to=2025-02-01
func (h *MarketHandler) Klines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	timeframe := q.Get("timeframe")
	if symbol == "" || timeframe == "" {
		writeError(w, http.StatusBadRequest, "symbol and timeframe query parameters required")
		return
	}

	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from parameter")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to parameter")
		return
	}

	var klines []domain.Kline
	if !from.IsZero() || !to.IsZero() {
		if to.IsZero() {
			to = time.Now().UTC()
		}
		klines, err = h.market.KlineRange(r.Context(), symbol, timeframe, from, to)
	} else {
		limit := 100
		if v := q.Get("limit"); v != "" {
			if n, atoiErr := strconv.Atoi(v); atoiErr == nil && n > 0 {
				limit = n
			}
		}
		klines, err = h.market.RecentKlines(r.Context(), symbol, timeframe, limit)
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: klines failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeServiceError(w, err, "failed to load klines")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"klines": klines})
}

// Ticker returns the latest price for a symbol.
// GET /api/market/ticker?symbol=BTC/USDT
func (h *MarketHandler) Ticker(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter required")
		return
	}

	ticker, err := h.market.Ticker(r.Context(), symbol)
	if err != nil {
		writeServiceError(w, err, "failed to load ticker")
		return
	}

	writeJSON(w, http.StatusOK, ticker)
}

// StockBars returns daily stock bars.
// GET /api/market/stocks?symbol=AAPL&from=2025-01-01&to=2025-03-01
func (h *MarketHandler) StockBars(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter required")
		return
	}

	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from parameter")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to parameter")
		return
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, -3, 0)
	}

	bars, err := h.market.StockBars(r.Context(), symbol, from, to)
	if err != nil {
		writeServiceError(w, err, "failed to load stock bars")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bars": bars})
}
