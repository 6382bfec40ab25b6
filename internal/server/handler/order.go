package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/server/middleware"
	"github.com/quantflow/quantflow/internal/service"
)

// OrderService defines the methods the order handler requires from the
// service layer.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID int64, req service.PlaceOrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, userID int64, orderID string) error
	GetOrder(ctx context.Context, userID int64, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.Order, error)
	ListOpenOrders(ctx context.Context, userID int64) ([]domain.Order, error)
	ListTrades(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.Trade, error)
}

// OrderHandler serves paper order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// PlaceOrder creates a new paper order.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req service.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), user.ID, req)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: place order failed",
			slog.Int64("user_id", user.ID),
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeServiceError(w, err, "failed to place order")
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// ListOrders returns the caller's orders. open=true filters to pending
// orders only.
// GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var orders []domain.Order
	var err error
	if r.URL.Query().Get("open") == "true" {
		orders, err = h.orders.ListOpenOrders(r.Context(), user.ID)
	} else {
		orders, err = h.orders.ListOrders(r.Context(), user.ID, parseListOpts(r))
	}
	if err != nil {
		writeServiceError(w, err, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetOrder returns one order.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), user.ID, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to get order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// CancelOrder cancels a pending order.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.orders.CancelOrder(r.Context(), user.ID, pathParam(r, "id")); err != nil {
		writeServiceError(w, err, "failed to cancel order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTrades returns the caller's fills.
// GET /api/trades
func (h *OrderHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	trades, err := h.orders.ListTrades(r.Context(), user.ID, parseListOpts(r))
	if err != nil {
		writeServiceError(w, err, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}
