package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/server/middleware"
)

// StrategyService defines the methods the strategy handler requires
// from the service layer.
type StrategyService interface {
	Create(ctx context.Context, def domain.Strategy) (domain.Strategy, error)
	Get(ctx context.Context, userID, id int64) (domain.Strategy, error)
	List(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.Strategy, error)
	Update(ctx context.Context, userID int64, def domain.Strategy) (domain.Strategy, error)
	Delete(ctx context.Context, userID, id int64) error
	Kinds() []string
}

// StrategyHandler serves strategy CRUD endpoints.
type StrategyHandler struct {
	strategies StrategyService
	logger     *slog.Logger
}

// NewStrategyHandler creates a StrategyHandler.
func NewStrategyHandler(strategies StrategyService, logger *slog.Logger) *StrategyHandler {
	return &StrategyHandler{strategies: strategies, logger: logger}
}

type strategyRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Kind        string         `json:"kind"`
	Params      map[string]any `json:"params"`
	Status      string         `json:"status"`
}

// Create stores a new strategy definition.
// POST /api/strategies
func (h *StrategyHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := h.strategies.Create(r.Context(), domain.Strategy{
		UserID:      user.ID,
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
		Params:      req.Params,
		Status:      domain.StrategyStatus(req.Status),
	})
	if err != nil {
		writeServiceError(w, err, "failed to create strategy")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// List returns the caller's strategies.
// GET /api/strategies
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	defs, err := h.strategies.List(r.Context(), user.ID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list strategies failed",
			slog.String("error", err.Error()),
		)
		writeServiceError(w, err, "failed to list strategies")
		return
	}
	if defs == nil {
		defs = []domain.Strategy{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"strategies": defs})
}

// Get returns one strategy.
// GET /api/strategies/{id}
func (h *StrategyHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	def, err := h.strategies.Get(r.Context(), user.ID, id)
	if err != nil {
		writeServiceError(w, err, "failed to get strategy")
		return
	}

	writeJSON(w, http.StatusOK, def)
}

// Update replaces a strategy definition.
// PUT /api/strategies/{id}
func (h *StrategyHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := h.strategies.Update(r.Context(), user.ID, domain.Strategy{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
		Params:      req.Params,
		Status:      domain.StrategyStatus(req.Status),
	})
	if err != nil {
		writeServiceError(w, err, "failed to update strategy")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a strategy.
// DELETE /api/strategies/{id}
func (h *StrategyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	if err := h.strategies.Delete(r.Context(), user.ID, id); err != nil {
		writeServiceError(w, err, "failed to delete strategy")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Kinds lists the registered strategy kinds.
// GET /api/strategies/kinds
func (h *StrategyHandler) Kinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"kinds": h.strategies.Kinds()})
}
