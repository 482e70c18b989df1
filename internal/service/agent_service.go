package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"promptswap/internal/models"
	"promptswap/internal/portfolio"
	"promptswap/internal/repository"
)

var ErrAgentNotFound = errors.New("agent not found")

const (
	minAgentTokens   = 2
	maxAgentTokens   = 5
	maxFloorSumTotal = 95.0
)

type InvalidAgentError struct {
	Reason string
}

func (e *InvalidAgentError) Error() string { return "invalid agent: " + e.Reason }

type Snapshotter interface {
	Build(ctx context.Context, agent *models.Agent) (*portfolio.Snapshot, error)
}

type AgentService struct {
	Repo      repository.Repository
	Portfolio Snapshotter
	Logger    *zap.Logger
}

func (s *AgentService) Start(ctx context.Context, agentID uint64) (*models.Agent, error) {
	agent, err := s.load(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status == models.AgentStatusActive {
		return agent, nil
	}
	if err := ValidateAgent(agent); err != nil {
		return nil, err
	}
	snap, err := s.Portfolio.Build(ctx, agent)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	balance := snap.TotalValue
	if err := s.Repo.UpdateAgent(ctx, agent.ID, map[string]any{
		"status":            models.AgentStatusActive,
		"start_balance_usd": balance,
		"started_at":        now,
	}); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("agent started", zap.Uint64("agent_id", agent.ID), zap.String("start_balance", balance.String()))
	}
	return s.load(ctx, agentID)
}

func (s *AgentService) Stop(ctx context.Context, agentID uint64) (*models.Agent, error) {
	agent, err := s.load(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != models.AgentStatusActive {
		return agent, nil
	}
	if err := s.Repo.UpdateAgent(ctx, agent.ID, map[string]any{"status": models.AgentStatusInactive}); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("agent stopped", zap.Uint64("agent_id", agent.ID))
	}
	return s.load(ctx, agentID)
}

func (s *AgentService) load(ctx context.Context, agentID uint64) (*models.Agent, error) {
	agent, err := s.Repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

func ValidateAgent(agent *models.Agent) error {
	if strings.TrimSpace(agent.Model) == "" {
		return &InvalidAgentError{Reason: "model is required"}
	}
	if n := len(agent.Tokens); n < minAgentTokens || n > maxAgentTokens {
		return &InvalidAgentError{Reason: fmt.Sprintf("agent needs %d to %d tokens, has %d", minAgentTokens, maxAgentTokens, n)}
	}
	seen := map[string]bool{}
	sum := 0.0
	for _, tok := range agent.Tokens {
		token := strings.ToUpper(strings.TrimSpace(tok.Token))
		if token == "" {
			return &InvalidAgentError{Reason: "token symbol is empty"}
		}
		if seen[token] {
			return &InvalidAgentError{Reason: "duplicate token " + token}
		}
		seen[token] = true
		if tok.MinAllocationPercent < 0 || tok.MinAllocationPercent > 100 {
			return &InvalidAgentError{Reason: fmt.Sprintf("%s floor must be within [0, 100]", token)}
		}
		sum += tok.MinAllocationPercent
	}
	if sum > maxFloorSumTotal {
		return &InvalidAgentError{Reason: fmt.Sprintf("floors add up to %v%%, at most %v%% allowed", sum, maxFloorSumTotal)}
	}
	for _, interval := range models.ReviewIntervals {
		if agent.ReviewInterval == interval {
			return nil
		}
	}
	return &InvalidAgentError{Reason: "unknown review interval " + agent.ReviewInterval}
}
