package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quantflow/quantflow/internal/domain"
)

// PlaceOrderRequest carries the parameters for a new paper order.
type PlaceOrderRequest struct {
	Symbol     string           `json:"symbol"`
	Side       domain.OrderSide `json:"side"`
	Type       domain.OrderType `json:"type"`
	Price      float64          `json:"price"`
	Amount     float64          `json:"amount"`
	StrategyID *int64           `json:"strategy_id,omitempty"`
}

// TickerSource serves the latest price used to fill market orders.
type TickerSource interface {
	Ticker(ctx context.Context, symbol string) (domain.Ticker, error)
}

// OrderService handles paper order placement. Market orders fill
// immediately at the latest ticker price and record a trade; limit
// orders are persisted as pending and never execute.
type OrderService struct {
	orders       domain.OrderStore
	trades       domain.TradeStore
	tickers      TickerSource
	limiter      domain.RateLimiter
	bus          domain.EventBus
	exchange     string
	maxPerMinute int
	maxPosition  float64
	commission   float64
	logger       *slog.Logger
}

// NewOrderService creates an OrderService. maxPerMinute bounds order
// placement per user; maxPosition bounds a single order's notional
// value (0 disables the check).
func NewOrderService(
	orders domain.OrderStore,
	trades domain.TradeStore,
	tickers TickerSource,
	limiter domain.RateLimiter,
	bus domain.EventBus,
	exchange string,
	maxPerMinute int,
	maxPosition float64,
	commission float64,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:       orders,
		trades:       trades,
		tickers:      tickers,
		limiter:      limiter,
		bus:          bus,
		exchange:     exchange,
		maxPerMinute: maxPerMinute,
		maxPosition:  maxPosition,
		commission:   commission,
		logger:       logger,
	}
}

func (s *OrderService) validate(req PlaceOrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("order_service: symbol required: %w", domain.ErrInvalidInput)
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return fmt.Errorf("order_service: invalid side %q: %w", req.Side, domain.ErrInvalidInput)
	}
	if req.Type != domain.OrderTypeMarket && req.Type != domain.OrderTypeLimit {
		return fmt.Errorf("order_service: invalid type %q: %w", req.Type, domain.ErrInvalidInput)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("order_service: amount must be positive: %w", domain.ErrInvalidInput)
	}
	if req.Type == domain.OrderTypeLimit && req.Price <= 0 {
		return fmt.Errorf("order_service: limit price must be positive: %w", domain.ErrInvalidInput)
	}
	return nil
}

// PlaceOrder validates, rate limits, persists, and (for market orders)
// fills a new paper order.
func (s *OrderService) PlaceOrder(ctx context.Context, userID int64, req PlaceOrderRequest) (domain.Order, error) {
	if err := s.validate(req); err != nil {
		return domain.Order{}, err
	}

	allowed, err := s.limiter.Allow(ctx, "orders:"+strconv.FormatInt(userID, 10), s.maxPerMinute, time.Minute)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Order{}, fmt.Errorf("order_service: user %d: %w", userID, domain.ErrRateLimited)
	}

	order := domain.Order{
		ID:         uuid.New().String(),
		UserID:     userID,
		Exchange:   s.exchange,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Price:      req.Price,
		Amount:     req.Amount,
		Status:     domain.OrderStatusPending,
		StrategyID: req.StrategyID,
		CreatedAt:  time.Now().UTC(),
	}

	if order.Type == domain.OrderTypeMarket {
		ticker, err := s.tickers.Ticker(ctx, req.Symbol)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order_service: fill price for %s: %w", req.Symbol, err)
		}
		if s.maxPosition > 0 && ticker.Price*req.Amount > s.maxPosition {
			return domain.Order{}, fmt.Errorf("order_service: order notional %.2f exceeds position limit: %w",
				ticker.Price*req.Amount, domain.ErrInvalidInput)
		}
		order.Price = ticker.Price
	} else if s.maxPosition > 0 && req.Price*req.Amount > s.maxPosition {
		return domain.Order{}, fmt.Errorf("order_service: order notional %.2f exceeds position limit: %w",
			req.Price*req.Amount, domain.ErrInvalidInput)
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: create order: %w", err)
	}

	if order.Type == domain.OrderTypeMarket {
		if err := s.fill(ctx, &order); err != nil {
			return domain.Order{}, err
		}
	}

	s.publish(ctx, "order_placed", order)

	s.logger.InfoContext(ctx, "order_service: order placed",
		slog.String("order_id", order.ID),
		slog.Int64("user_id", userID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("status", string(order.Status)),
	)

	return order, nil
}

// fill marks a market order filled at its ticker price and records the
// trade.
func (s *OrderService) fill(ctx context.Context, order *domain.Order) error {
	if err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusFilled); err != nil {
		return fmt.Errorf("order_service: fill order %s: %w", order.ID, err)
	}
	now := time.Now().UTC()
	order.Status = domain.OrderStatusFilled
	order.FilledPrice = order.Price
	order.FilledAt = &now

	trade := domain.Trade{
		UserID:     order.UserID,
		OrderID:    order.ID,
		Exchange:   order.Exchange,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Price:      order.Price,
		Amount:     order.Amount,
		Commission: order.Price * order.Amount * s.commission,
		Timestamp:  now,
	}
	if err := s.trades.Insert(ctx, trade); err != nil {
		return fmt.Errorf("order_service: record trade for %s: %w", order.ID, err)
	}
	return nil
}

// CancelOrder cancels a pending order. Filled and already-cancelled
// orders are rejected.
func (s *OrderService) CancelOrder(ctx context.Context, userID int64, orderID string) error {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("order_service: cancel %s: order is %s: %w", orderID, order.Status, domain.ErrInvalidInput)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCancelled); err != nil {
		return fmt.Errorf("order_service: cancel order %s: %w", orderID, err)
	}

	order.Status = domain.OrderStatusCancelled
	s.publish(ctx, "order_cancelled", order)

	s.logger.InfoContext(ctx, "order_service: order cancelled",
		slog.String("order_id", orderID),
		slog.Int64("user_id", userID),
	)

	return nil
}

// GetOrder loads a single order. Other users' orders read as not found.
func (s *OrderService) GetOrder(ctx context.Context, userID int64, orderID string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: get order %s: %w", orderID, err)
	}
	if order.UserID != userID {
		return domain.Order{}, fmt.Errorf("order_service: get order %s: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list orders for user %d: %w", userID, err)
	}
	return orders, nil
}

// ListOpenOrders returns the user's pending orders.
func (s *OrderService) ListOpenOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := s.orders.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("order_service: list open orders for user %d: %w", userID, err)
	}
	return orders, nil
}

// ListTrades returns the user's fills, newest first.
func (s *OrderService) ListTrades(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list trades for user %d: %w", userID, err)
	}
	return trades, nil
}

// publish emits an order lifecycle event. Publish failures are logged,
// not propagated; the order state is already persisted.
func (s *OrderService) publish(ctx context.Context, event string, order domain.Order) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":    event,
		"order_id": order.ID,
		"symbol":   order.Symbol,
		"side":     string(order.Side),
		"status":   string(order.Status),
	})
	if err := s.bus.Publish(ctx, "orders", evt); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "order_service: publish event failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}
