package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/strategy"
)

// StrategyService manages stored strategy definitions. Every write is
// validated against the strategy registry so only runnable definitions
// are persisted.
type StrategyService struct {
	strategies domain.StrategyStore
	registry   *strategy.Registry
	logger     *slog.Logger
}

// NewStrategyService creates a StrategyService.
func NewStrategyService(strategies domain.StrategyStore, registry *strategy.Registry, logger *slog.Logger) *StrategyService {
	return &StrategyService{
		strategies: strategies,
		registry:   registry,
		logger:     logger,
	}
}

// validate checks that the definition names a registered kind and that
// the kind accepts the given params.
func (s *StrategyService) validate(def domain.Strategy) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("strategy_service: name required: %w", domain.ErrInvalidInput)
	}
	if _, err := s.registry.New(def.Kind, def.Params); err != nil {
		return fmt.Errorf("strategy_service: %v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

// Create validates and stores a new strategy definition.
func (s *StrategyService) Create(ctx context.Context, def domain.Strategy) (domain.Strategy, error) {
	if err := s.validate(def); err != nil {
		return domain.Strategy{}, err
	}
	if def.Status == "" {
		def.Status = domain.StrategyStatusInactive
	}

	created, err := s.strategies.Create(ctx, def)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("strategy_service: create %q: %w", def.Name, err)
	}

	s.logger.InfoContext(ctx, "strategy_service: strategy created",
		slog.Int64("strategy_id", created.ID),
		slog.Int64("user_id", created.UserID),
		slog.String("kind", created.Kind),
	)

	return created, nil
}

// Get loads a strategy and verifies it belongs to the user.
func (s *StrategyService) Get(ctx context.Context, userID, id int64) (domain.Strategy, error) {
	def, err := s.strategies.GetByID(ctx, id)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("strategy_service: get %d: %w", id, err)
	}
	if def.UserID != userID {
		// Hide other users' strategies entirely.
		return domain.Strategy{}, fmt.Errorf("strategy_service: get %d: %w", id, domain.ErrNotFound)
	}
	return def, nil
}

// List returns the user's strategies.
func (s *StrategyService) List(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.Strategy, error) {
	defs, err := s.strategies.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("strategy_service: list for user %d: %w", userID, err)
	}
	return defs, nil
}

// Update validates and stores changes to an existing definition. Only
// the owner may update it.
func (s *StrategyService) Update(ctx context.Context, userID int64, def domain.Strategy) (domain.Strategy, error) {
	existing, err := s.Get(ctx, userID, def.ID)
	if err != nil {
		return domain.Strategy{}, err
	}

	def.UserID = existing.UserID
	if def.Status == "" {
		def.Status = existing.Status
	}
	if err := s.validate(def); err != nil {
		return domain.Strategy{}, err
	}

	if err := s.strategies.Update(ctx, def); err != nil {
		return domain.Strategy{}, fmt.Errorf("strategy_service: update %d: %w", def.ID, err)
	}

	s.logger.InfoContext(ctx, "strategy_service: strategy updated",
		slog.Int64("strategy_id", def.ID),
		slog.Int64("user_id", userID),
	)

	return s.Get(ctx, userID, def.ID)
}

// Delete removes a strategy. Only the owner may delete it.
func (s *StrategyService) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.strategies.Delete(ctx, id); err != nil {
		return fmt.Errorf("strategy_service: delete %d: %w", id, err)
	}

	s.logger.InfoContext(ctx, "strategy_service: strategy deleted",
		slog.Int64("strategy_id", id),
		slog.Int64("user_id", userID),
	)

	return nil
}

// Kinds returns the registered strategy kinds available for new
// definitions.
func (s *StrategyService) Kinds() []string {
	return s.registry.List()
}
