// Package memrepository keeps every table in process memory. It backs tests
// and local runs started without a database DSN.
package memrepository

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"promptswap/internal/models"
	"promptswap/internal/repository"
)

type Store struct {
	mu sync.RWMutex

	nextID  uint64
	agents  map[uint64]models.Agent
	rawLogs []models.ReviewRawLog
	results []models.ReviewResult
	orders  []models.LimitOrder
	news    []models.NewsItem
}

func New() *Store {
	return &Store{agents: map[uint64]models.Agent{}}
}

var _ repository.Repository = (*Store)(nil)

func (s *Store) id() uint64 {
	s.nextID++
	return s.nextID
}

// PutAgent stores an agent, assigning ids when missing. It is the seeding
// entry point; the engine itself never creates agents.
func (s *Store) PutAgent(agent models.Agent) models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.ID == 0 {
		agent.ID = s.id()
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	tokens := make([]models.AgentToken, len(agent.Tokens))
	for i, tok := range agent.Tokens {
		if tok.ID == 0 {
			tok.ID = s.id()
		}
		tok.AgentID = agent.ID
		tok.Position = i
		tokens[i] = tok
	}
	agent.Tokens = tokens
	s.agents[agent.ID] = agent
	return copyAgent(agent)
}

func (s *Store) GetAgent(ctx context.Context, id uint64) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	out := copyAgent(a)
	return &out, nil
}

func (s *Store) ListAgents(ctx context.Context, params repository.ListAgentsParams) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if params.UserID != nil && a.UserID != *params.UserID {
			continue
		}
		if params.Status != nil && a.Status != *params.Status {
			continue
		}
		if params.ReviewInterval != nil && a.ReviewInterval != *params.ReviewInterval {
			continue
		}
		out = append(out, copyAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, params.Limit, params.Offset, 500), nil
}

func (s *Store) UpdateAgent(ctx context.Context, id uint64, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			a.Status, _ = v.(string)
		case "start_balance_usd":
			a.StartBalanceUSD = toDecimalPtr(v)
		case "started_at":
			a.StartedAt = toTimePtr(v)
		case "manual_rebalance":
			a.ManualRebalance, _ = v.(bool)
		}
	}
	a.UpdatedAt = time.Now().UTC()
	s.agents[id] = a
	return nil
}

func (s *Store) InsertReviewRawLog(ctx context.Context, item *models.ReviewRawLog) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	item.CreatedAt = time.Now().UTC()
	s.rawLogs = append(s.rawLogs, *item)
	return nil
}

func (s *Store) ListReviewRawLogs(ctx context.Context, params repository.ListReviewRawLogsParams) ([]models.ReviewRawLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ReviewRawLog
	for i := len(s.rawLogs) - 1; i >= 0; i-- {
		l := s.rawLogs[i]
		if l.AgentID != params.AgentID {
			continue
		}
		if params.RunID != nil && l.RunID != *params.RunID {
			continue
		}
		if params.Stage != nil && l.Stage != *params.Stage {
			continue
		}
		out = append(out, l)
	}
	return page(out, params.Limit, params.Offset, 100), nil
}

func (s *Store) InsertReviewResult(ctx context.Context, item *models.ReviewResult) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	item.CreatedAt = time.Now().UTC()
	s.results = append(s.results, *item)
	return nil
}

func (s *Store) GetReviewResult(ctx context.Context, id uint64) (*models.ReviewResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.ID == id {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListReviewResults(ctx context.Context, params repository.ListReviewResultsParams) ([]models.ReviewResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ReviewResult
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].AgentID == params.AgentID {
			out = append(out, s.results[i])
		}
	}
	return page(out, params.Limit, params.Offset, 50), nil
}

func (s *Store) UpdateReviewResult(ctx context.Context, id uint64, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.results {
		if s.results[i].ID != id {
			continue
		}
		for k, v := range updates {
			switch k {
			case "error":
				s.results[i].Error = toJSON(v)
			case "log":
				s.results[i].Log, _ = v.(string)
			case "raw_log_id":
				if p, ok := v.(*uint64); ok {
					s.results[i].RawLogID = p
				}
			}
		}
	}
	return nil
}

func (s *Store) InsertLimitOrder(ctx context.Context, item *models.LimitOrder) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = models.LimitOrderStatusOpen
	}
	s.orders = append(s.orders, *item)
	return nil
}

func (s *Store) GetLimitOrderByReviewResultID(ctx context.Context, reviewResultID uint64) (*models.LimitOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ReviewResultID == reviewResultID {
			out := o
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListLimitOrders(ctx context.Context, params repository.ListLimitOrdersParams) ([]models.LimitOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	statuses := map[string]bool{}
	for _, st := range params.Statuses {
		statuses[strings.TrimSpace(st)] = true
	}
	var out []models.LimitOrder
	for i := len(s.orders) - 1; i >= 0; i-- {
		o := s.orders[i]
		if params.AgentID != nil && o.AgentID != *params.AgentID {
			continue
		}
		if len(statuses) > 0 && !statuses[o.Status] {
			continue
		}
		out = append(out, o)
	}
	return page(out, params.Limit, params.Offset, 100), nil
}

func (s *Store) UpdateLimitOrderStatus(ctx context.Context, id uint64, status string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID != id {
			continue
		}
		s.orders[i].Status = status
		s.orders[i].UpdatedAt = time.Now().UTC()
		if reason, ok := updates["cancellation_reason"].(string); ok {
			s.orders[i].CancellationReason = reason
		}
		if v, ok := updates["executed_quantity"]; ok {
			s.orders[i].ExecutedQuantity = toDecimalPtr(v)
		}
	}
	return nil
}

func (s *Store) UpsertNewsItems(ctx context.Context, items []models.NewsItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for _, n := range s.news {
		seen[n.Link] = true
	}
	var inserted int64
	for _, item := range items {
		if seen[item.Link] {
			continue
		}
		seen[item.Link] = true
		item.ID = s.id()
		item.CreatedAt = time.Now().UTC()
		s.news = append(s.news, item)
		inserted++
	}
	return inserted, nil
}

func (s *Store) ListNewsItems(ctx context.Context, params repository.ListNewsItemsParams) ([]models.NewsItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token := strings.ToUpper(strings.TrimSpace(params.Token))
	var out []models.NewsItem
	for _, n := range s.news {
		if params.Since != nil && n.PublishedAt.Before(*params.Since) {
			continue
		}
		if token != "" && !mentions(n, token) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return page(out, params.Limit, 0, 20), nil
}

// Orders returns a snapshot of every stored limit order.
func (s *Store) Orders() []models.LimitOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LimitOrder(nil), s.orders...)
}

// Results returns a snapshot of every stored review result.
func (s *Store) Results() []models.ReviewResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ReviewResult(nil), s.results...)
}

// RawLogs returns a snapshot of every stored raw log.
func (s *Store) RawLogs() []models.ReviewRawLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ReviewRawLog(nil), s.rawLogs...)
}

func mentions(n models.NewsItem, token string) bool {
	var tokens []string
	if err := json.Unmarshal(n.Tokens, &tokens); err != nil {
		return false
	}
	for _, t := range tokens {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

func copyAgent(a models.Agent) models.Agent {
	a.Tokens = append([]models.AgentToken(nil), a.Tokens...)
	return a
}

func page[T any](items []T, limit, offset, fallback int) []T {
	if limit <= 0 {
		limit = fallback
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
