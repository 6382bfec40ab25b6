package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quantflow/quantflow/internal/server/middleware"
)

// AIService defines the methods the AI handler requires from the
// service layer.
type AIService interface {
	AnalyzeMarket(ctx context.Context, symbol, timeframe string) (string, error)
	AdviseStrategy(ctx context.Context, userID int64, backtestID string) (string, error)
}

// AIHandler serves AI analysis endpoints.
type AIHandler struct {
	ai     AIService
	logger *slog.Logger
}

// NewAIHandler creates an AIHandler.
func NewAIHandler(ai AIService, logger *slog.Logger) *AIHandler {
	return &AIHandler{ai: ai, logger: logger}
}

type analyzeRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// AnalyzeMarket summarizes recent price action.
// POST /api/ai/analyze
func (h *AIHandler) AnalyzeMarket(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	if req.Timeframe == "" {
		req.Timeframe = "1h"
	}

	answer, err := h.ai.AnalyzeMarket(r.Context(), req.Symbol, req.Timeframe)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: market analysis failed",
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeServiceError(w, err, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"analysis": answer})
}

type adviseRequest struct {
	BacktestID string `json:"backtest_id"`
}

// AdviseStrategy suggests improvements based on a finished backtest.
// POST /api/ai/advise
func (h *AIHandler) AdviseStrategy(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req adviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BacktestID == "" {
		writeError(w, http.StatusBadRequest, "backtest_id required")
		return
	}

	answer, err := h.ai.AdviseStrategy(r.Context(), user.ID, req.BacktestID)
	if err != nil {
		writeServiceError(w, err, "advice failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"advice": answer})
}
