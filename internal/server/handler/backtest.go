package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/server/middleware"
	"github.com/quantflow/quantflow/internal/service"
)

// BacktestService defines the methods the backtest handler requires
// from the service layer.
type BacktestService interface {
	Run(ctx context.Context, userID int64, req service.RunBacktestRequest) (domain.BacktestRecord, error)
	Sweep(ctx context.Context, userID int64, base service.RunBacktestRequest, overrides []map[string]any) ([]domain.BacktestRecord, error)
	Get(ctx context.Context, userID int64, id string) (domain.BacktestRecord, error)
	List(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.BacktestRecord, error)
	ListByStrategy(ctx context.Context, userID, strategyID int64, opts domain.ListOpts) ([]domain.BacktestRecord, error)
}

// BacktestHandler serves backtest endpoints.
type BacktestHandler struct {
	backtests BacktestService
	logger    *slog.Logger
}

// NewBacktestHandler creates a BacktestHandler.
func NewBacktestHandler(backtests BacktestService, logger *slog.Logger) *BacktestHandler {
	return &BacktestHandler{backtests: backtests, logger: logger}
}

type runBacktestRequest struct {
	StrategyID     int64    `json:"strategy_id"`
	Symbol         string   `json:"symbol"`
	Timeframe      string   `json:"timeframe"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	InitialCapital float64  `json:"initial_capital"`
	CommissionRate *float64 `json:"commission_rate"`

	// ParamSets triggers a sweep when more than one set is given.
	ParamSets []map[string]any `json:"param_sets,omitempty"`
}

func (req runBacktestRequest) toService() (service.RunBacktestRequest, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return service.RunBacktestRequest{}, err
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return service.RunBacktestRequest{}, err
	}

	out := service.RunBacktestRequest{
		StrategyID:     req.StrategyID,
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: req.InitialCapital,
	}
	if req.CommissionRate != nil {
		out.CommissionRate = *req.CommissionRate
		out.CommissionSet = true
	}
	return out, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

// Run executes a backtest synchronously and returns the finished
// record. When param_sets holds multiple entries the request becomes a
// parameter sweep and all records are returned.
// POST /api/backtests
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req runBacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	svcReq, err := req.toService()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date or end_date")
		return
	}

	if len(req.ParamSets) > 1 {
		records, err := h.backtests.Sweep(r.Context(), user.ID, svcReq, req.ParamSets)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: backtest sweep failed",
				slog.Int64("strategy_id", req.StrategyID),
				slog.String("error", err.Error()),
			)
			writeServiceError(w, err, "backtest sweep failed")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"backtests": records})
		return
	}

	if len(req.ParamSets) == 1 {
		svcReq.ParamOverride = req.ParamSets[0]
	}

	record, err := h.backtests.Run(r.Context(), user.ID, svcReq)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: backtest failed",
			slog.Int64("strategy_id", req.StrategyID),
			slog.String("error", err.Error()),
		)
		writeServiceError(w, err, "backtest failed")
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// List returns the caller's backtest history. A strategy_id query
// filters to a single strategy.
// GET /api/backtests
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	opts := parseListOpts(r)

	var records []domain.BacktestRecord
	var err error
	if v := r.URL.Query().Get("strategy_id"); v != "" {
		strategyID, parseErr := strconv.ParseInt(v, 10, 64)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid strategy_id")
			return
		}
		records, err = h.backtests.ListByStrategy(r.Context(), user.ID, strategyID, opts)
	} else {
		records, err = h.backtests.List(r.Context(), user.ID, opts)
	}
	if err != nil {
		writeServiceError(w, err, "failed to list backtests")
		return
	}
	if records == nil {
		records = []domain.BacktestRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"backtests": records})
}

// Get returns one backtest record, including the full result payload
// (equity curve and trade log).
// GET /api/backtests/{id}
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	record, err := h.backtests.Get(r.Context(), user.ID, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to get backtest")
		return
	}

	resp := map[string]any{"backtest": record}
	if len(record.ResultJSON) > 0 {
		resp["result"] = json.RawMessage(record.ResultJSON)
	}
	writeJSON(w, http.StatusOK, resp)
}
