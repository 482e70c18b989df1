package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"promptswap/internal/models"
	"promptswap/internal/portfolio"
	"promptswap/internal/repository"
)

var ErrReviewResultNotFound = errors.New("review result not found")

type OrderPlacer interface {
	Execute(ctx context.Context, agent *models.Agent, result *models.ReviewResult, snap *portfolio.Snapshot) (*models.LimitOrder, error)
}

type RebalanceService struct {
	Repo      repository.Repository
	Portfolio Snapshotter
	Executor  OrderPlacer
	Logger    *zap.Logger
}

func (s *RebalanceService) Execute(ctx context.Context, resultID uint64) (*models.LimitOrder, error) {
	result, err := s.Repo.GetReviewResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrReviewResultNotFound
	}
	agent, err := s.Repo.GetAgent(ctx, result.AgentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	snap, err := s.Portfolio.Build(ctx, agent)
	if err != nil {
		return nil, err
	}
	order, err := s.Executor.Execute(ctx, agent, result, snap)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("manual rebalance refused", zap.Uint64("review_result_id", resultID), zap.Error(err))
		}
		return nil, err
	}
	return order, nil
}
