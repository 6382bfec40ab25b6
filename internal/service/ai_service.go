package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quantflow/quantflow/internal/ai"
	"github.com/quantflow/quantflow/internal/backtest"
	"github.com/quantflow/quantflow/internal/domain"
)

// AIService answers market analysis and strategy advice questions by
// rendering local data into prompts for the chat client.
type AIService struct {
	client     *ai.Client
	market     *MarketService
	backtests  *BacktestService
	strategies domain.StrategyStore
	logger     *slog.Logger
}

// NewAIService creates an AIService.
func NewAIService(
	client *ai.Client,
	market *MarketService,
	backtests *BacktestService,
	strategies domain.StrategyStore,
	logger *slog.Logger,
) *AIService {
	return &AIService{
		client:     client,
		market:     market,
		backtests:  backtests,
		strategies: strategies,
		logger:     logger,
	}
}

// AnalyzeMarket summarizes recent price action for an instrument.
func (s *AIService) AnalyzeMarket(ctx context.Context, symbol, timeframe string) (string, error) {
	if !s.client.Configured() {
		return "", fmt.Errorf("ai_service: analyze market: %w", domain.ErrNotConfigured)
	}

	klines, err := s.market.RecentKlines(ctx, symbol, timeframe, 100)
	if err != nil {
		return "", fmt.Errorf("ai_service: analyze market %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, len(klines))
	for i, k := range klines {
		bars[i] = k.Bar
	}

	system, user := ai.MarketAnalysisPrompt(symbol, timeframe, bars)
	answer, err := s.client.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("ai_service: analyze market %s: %w", symbol, err)
	}

	s.logger.InfoContext(ctx, "ai_service: market analysis served",
		slog.String("symbol", symbol),
		slog.String("timeframe", timeframe),
	)

	return answer, nil
}

// AdviseStrategy suggests improvements based on a finished backtest.
func (s *AIService) AdviseStrategy(ctx context.Context, userID int64, backtestID string) (string, error) {
	if !s.client.Configured() {
		return "", fmt.Errorf("ai_service: advise strategy: %w", domain.ErrNotConfigured)
	}

	record, err := s.backtests.Get(ctx, userID, backtestID)
	if err != nil {
		return "", fmt.Errorf("ai_service: advise strategy: %w", err)
	}
	if record.Status != domain.BacktestStatusFinished {
		return "", fmt.Errorf("ai_service: backtest %s is %s: %w", backtestID, record.Status, domain.ErrInvalidInput)
	}

	def, err := s.strategies.GetByID(ctx, record.StrategyID)
	if err != nil {
		return "", fmt.Errorf("ai_service: advise strategy %d: %w", record.StrategyID, err)
	}

	var result backtest.Result
	if len(record.ResultJSON) > 0 {
		if err := json.Unmarshal(record.ResultJSON, &result); err != nil {
			return "", fmt.Errorf("ai_service: decode result: %w", err)
		}
	} else {
		result = backtest.Result{
			InitialCapital: record.InitialCapital,
			FinalCapital:   record.FinalCapital,
			TotalReturn:    record.TotalReturn,
			SharpeRatio:    record.SharpeRatio,
			MaxDrawdown:    record.MaxDrawdown,
			WinRate:        record.WinRate,
			TotalTrades:    record.TotalTrades,
		}
	}

	system, user := ai.StrategyAdvicePrompt(def.Name, def.Params, result)
	answer, err := s.client.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("ai_service: advise strategy: %w", err)
	}

	s.logger.InfoContext(ctx, "ai_service: strategy advice served",
		slog.String("backtest_id", backtestID),
		slog.Int64("strategy_id", def.ID),
	)

	return answer, nil
}
