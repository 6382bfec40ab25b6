package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quantflow/quantflow/internal/backtest"
	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/notify"
	"github.com/quantflow/quantflow/internal/strategy"
)

// RunBacktestRequest carries the parameters for a backtest run.
// InitialCapital falls back to the service default when zero.
// CommissionRate does too, unless CommissionSet marks an explicit
// zero-commission run.
type RunBacktestRequest struct {
	StrategyID     int64     `json:"strategy_id"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	InitialCapital float64   `json:"initial_capital"`
	CommissionRate float64   `json:"commission_rate"`
	CommissionSet  bool      `json:"commission_set"`

	// ParamOverride merges over the stored strategy params, used by
	// parameter sweeps.
	ParamOverride map[string]any `json:"param_override,omitempty"`
}

// BacktestService runs the simulation engine over stored klines and
// persists the results.
type BacktestService struct {
	backtests  domain.BacktestStore
	strategies domain.StrategyStore
	klines     domain.KlineStore
	registry   *strategy.Registry
	notifier   *notify.Notifier
	bus        domain.EventBus

	exchange          string
	defaultCapital    float64
	defaultCommission float64
	maxSweepSize      int
	logger            *slog.Logger
}

// NewBacktestService creates a BacktestService.
func NewBacktestService(
	backtests domain.BacktestStore,
	strategies domain.StrategyStore,
	klines domain.KlineStore,
	registry *strategy.Registry,
	notifier *notify.Notifier,
	bus domain.EventBus,
	exchange string,
	defaultCapital float64,
	defaultCommission float64,
	maxSweepSize int,
	logger *slog.Logger,
) *BacktestService {
	if maxSweepSize <= 0 {
		maxSweepSize = 20
	}
	return &BacktestService{
		backtests:         backtests,
		strategies:        strategies,
		klines:            klines,
		registry:          registry,
		notifier:          notifier,
		bus:               bus,
		exchange:          exchange,
		defaultCapital:    defaultCapital,
		defaultCommission: defaultCommission,
		maxSweepSize:      maxSweepSize,
		logger:            logger,
	}
}

// Run executes one backtest synchronously and returns the finished
// record. Failures after record creation are persisted with failed
// status so the run is still visible in history.
func (s *BacktestService) Run(ctx context.Context, userID int64, req RunBacktestRequest) (domain.BacktestRecord, error) {
	def, err := s.strategies.GetByID(ctx, req.StrategyID)
	if err != nil {
		return domain.BacktestRecord{}, fmt.Errorf("backtest_service: strategy %d: %w", req.StrategyID, err)
	}
	if def.UserID != userID {
		return domain.BacktestRecord{}, fmt.Errorf("backtest_service: strategy %d: %w", req.StrategyID, domain.ErrNotFound)
	}
	if req.Symbol == "" || req.Timeframe == "" {
		return domain.BacktestRecord{}, fmt.Errorf("backtest_service: symbol and timeframe required: %w", domain.ErrInvalidInput)
	}
	if !req.StartDate.Before(req.EndDate) {
		return domain.BacktestRecord{}, fmt.Errorf("backtest_service: start date must precede end date: %w", domain.ErrInvalidInput)
	}

	capital := req.InitialCapital
	if capital <= 0 {
		capital = s.defaultCapital
	}
	commission := s.defaultCommission
	if req.CommissionSet || req.CommissionRate > 0 {
		commission = req.CommissionRate
	}

	params := def.Params
	if len(req.ParamOverride) > 0 {
		merged := make(map[string]any, len(def.Params)+len(req.ParamOverride))
		for k, v := range def.Params {
			merged[k] = v
		}
		for k, v := range req.ParamOverride {
			merged[k] = v
		}
		params = merged
	}

	strat, err := s.registry.New(def.Kind, params)
	if err != nil {
		return domain.BacktestRecord{}, fmt.Errorf("backtest_service: build strategy %q: %w", def.Kind, domain.ErrInvalidInput)
	}

	record := domain.BacktestRecord{
		ID:             uuid.New().String(),
		StrategyID:     def.ID,
		UserID:         userID,
		Exchange:       s.exchange,
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		InitialCapital: capital,
		CommissionRate: commission,
		Status:         domain.BacktestStatusRunning,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.backtests.Create(ctx, record); err != nil {
		return domain.BacktestRecord{}, fmt.Errorf("backtest_service: create record: %w", err)
	}

	result, runErr := s.execute(ctx, strat, capital, commission, record)
	if runErr != nil {
		record.Status = domain.BacktestStatusFailed
		record.Error = runErr.Error()
		if finishErr := s.backtests.Finish(ctx, record); finishErr != nil {
			s.logger.ErrorContext(ctx, "backtest_service: persist failed run",
				slog.String("backtest_id", record.ID),
				slog.String("error", finishErr.Error()),
			)
		}
		return record, runErr
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return record, fmt.Errorf("backtest_service: marshal result: %w", err)
	}

	record.Status = domain.BacktestStatusFinished
	record.FinalCapital = result.FinalCapital
	record.TotalReturn = result.TotalReturn
	record.SharpeRatio = result.SharpeRatio
	record.MaxDrawdown = result.MaxDrawdown
	record.WinRate = result.WinRate
	record.TotalTrades = result.TotalTrades
	record.ResultJSON = resultJSON

	if err := s.backtests.Finish(ctx, record); err != nil {
		return record, fmt.Errorf("backtest_service: finish record: %w", err)
	}

	s.announce(ctx, record)

	s.logger.InfoContext(ctx, "backtest_service: backtest finished",
		slog.String("backtest_id", record.ID),
		slog.Int64("strategy_id", def.ID),
		slog.Float64("total_return", record.TotalReturn),
		slog.Int("total_trades", record.TotalTrades),
	)

	return record, nil
}

// execute loads the bar feed and runs the engine.
func (s *BacktestService) execute(ctx context.Context, strat backtest.Strategy, capital, commission float64, record domain.BacktestRecord) (backtest.Result, error) {
	klines, err := s.klines.Range(ctx, record.Exchange, record.Symbol, record.Timeframe, record.StartDate, record.EndDate)
	if err != nil {
		return backtest.Result{}, fmt.Errorf("backtest_service: load klines: %w", err)
	}
	if len(klines) == 0 {
		return backtest.Result{}, fmt.Errorf("backtest_service: %s %s %s..%s: %w",
			record.Symbol, record.Timeframe,
			record.StartDate.Format("2006-01-02"), record.EndDate.Format("2006-01-02"),
			domain.ErrNoData)
	}

	bars := make([]domain.Bar, len(klines))
	for i, k := range klines {
		bars[i] = k.Bar
	}

	engine, err := backtest.New(backtest.Config{
		Strategy:       strat,
		InitialCapital: capital,
		CommissionRate: commission,
		Logger:         s.logger,
	})
	if err != nil {
		return backtest.Result{}, fmt.Errorf("backtest_service: engine config: %w", err)
	}

	return engine.Run(bars), nil
}

// announce notifies operators and publishes a websocket event. Both are
// best effort.
func (s *BacktestService) announce(ctx context.Context, record domain.BacktestRecord) {
	if s.notifier != nil {
		msg := fmt.Sprintf("%s %s return %.2f%% sharpe %.2f drawdown %.2f%% trades %d",
			record.Symbol, record.Timeframe,
			record.TotalReturn*100, record.SharpeRatio, record.MaxDrawdown*100, record.TotalTrades)
		if err := s.notifier.Notify(ctx, notify.EventBacktestFinished, "Backtest finished", msg); err != nil {
			s.logger.WarnContext(ctx, "backtest_service: notify failed",
				slog.String("backtest_id", record.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":        notify.EventBacktestFinished,
			"backtest_id":  record.ID,
			"strategy_id":  record.StrategyID,
			"symbol":       record.Symbol,
			"total_return": record.TotalReturn,
			"total_trades": record.TotalTrades,
		})
		if err := s.bus.Publish(ctx, "backtests", evt); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "backtest_service: publish event failed",
				slog.String("backtest_id", record.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Sweep runs one backtest per parameter override concurrently and
// returns the finished records in the same order as the overrides.
// The sweep size is capped; a request over the cap is rejected rather
// than truncated.
func (s *BacktestService) Sweep(ctx context.Context, userID int64, base RunBacktestRequest, overrides []map[string]any) ([]domain.BacktestRecord, error) {
	if len(overrides) == 0 {
		return nil, fmt.Errorf("backtest_service: sweep needs at least one parameter set: %w", domain.ErrInvalidInput)
	}
	if len(overrides) > s.maxSweepSize {
		return nil, fmt.Errorf("backtest_service: sweep size %d exceeds limit %d: %w",
			len(overrides), s.maxSweepSize, domain.ErrInvalidInput)
	}

	records := make([]domain.BacktestRecord, len(overrides))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, override := range overrides {
		req := base
		req.ParamOverride = override
		g.Go(func() error {
			record, err := s.Run(gctx, userID, req)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backtest_service: sweep: %w", err)
	}
	return records, nil
}

// Get loads a stored run. Other users' runs read as not found.
func (s *BacktestService) Get(ctx context.Context, userID int64, id string) (domain.BacktestRecord, error) {
	record, err := s.backtests.GetByID(ctx, id)
	if err != nil {
		return domain.BacktestRecord{}, fmt.Errorf("backtest_service: get %s: %w", id, err)
	}
	if record.UserID != userID {
		return domain.BacktestRecord{}, fmt.Errorf("backtest_service: get %s: %w", id, domain.ErrNotFound)
	}
	return record, nil
}

// List returns the user's runs, newest first.
func (s *BacktestService) List(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.BacktestRecord, error) {
	records, err := s.backtests.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("backtest_service: list for user %d: %w", userID, err)
	}
	return records, nil
}

// ListByStrategy returns runs for one strategy, newest first. The
// strategy must belong to the user.
func (s *BacktestService) ListByStrategy(ctx context.Context, userID, strategyID int64, opts domain.ListOpts) ([]domain.BacktestRecord, error) {
	def, err := s.strategies.GetByID(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("backtest_service: strategy %d: %w", strategyID, err)
	}
	if def.UserID != userID {
		return nil, fmt.Errorf("backtest_service: strategy %d: %w", strategyID, domain.ErrNotFound)
	}

	records, err := s.backtests.ListByStrategy(ctx, strategyID, opts)
	if err != nil {
		return nil, fmt.Errorf("backtest_service: list for strategy %d: %w", strategyID, err)
	}
	return records, nil
}
