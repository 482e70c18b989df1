package repository

import (
	"context"
	"time"

	"promptswap/internal/models"
)

type AgentRepository interface {
	// GetAgent returns the agent with its tokens ordered by position, or nil when absent.
	GetAgent(ctx context.Context, id uint64) (*models.Agent, error)
	ListAgents(ctx context.Context, params ListAgentsParams) ([]models.Agent, error)
	UpdateAgent(ctx context.Context, id uint64, updates map[string]any) error
}

type ReviewRepository interface {
	InsertReviewRawLog(ctx context.Context, item *models.ReviewRawLog) error
	ListReviewRawLogs(ctx context.Context, params ListReviewRawLogsParams) ([]models.ReviewRawLog, error)

	InsertReviewResult(ctx context.Context, item *models.ReviewResult) error
	GetReviewResult(ctx context.Context, id uint64) (*models.ReviewResult, error)
	// ListReviewResults returns newest first.
	ListReviewResults(ctx context.Context, params ListReviewResultsParams) ([]models.ReviewResult, error)
	UpdateReviewResult(ctx context.Context, id uint64, updates map[string]any) error
}

type OrderRepository interface {
	InsertLimitOrder(ctx context.Context, item *models.LimitOrder) error
	GetLimitOrderByReviewResultID(ctx context.Context, reviewResultID uint64) (*models.LimitOrder, error)
	ListLimitOrders(ctx context.Context, params ListLimitOrdersParams) ([]models.LimitOrder, error)
	UpdateLimitOrderStatus(ctx context.Context, id uint64, status string, updates map[string]any) error
}

type NewsRepository interface {
	// UpsertNewsItems inserts unseen links and returns how many rows were new.
	UpsertNewsItems(ctx context.Context, items []models.NewsItem) (int64, error)
	ListNewsItems(ctx context.Context, params ListNewsItemsParams) ([]models.NewsItem, error)
}

// Repository is everything the review engine reads and writes.
type Repository interface {
	AgentRepository
	ReviewRepository
	OrderRepository
	NewsRepository
}

type ListAgentsParams struct {
	Limit          int
	Offset         int
	UserID         *uint64
	Status         *string
	ReviewInterval *string
}

type ListReviewRawLogsParams struct {
	Limit   int
	Offset  int
	AgentID uint64
	RunID   *string
	Stage   *string
}

type ListReviewResultsParams struct {
	Limit   int
	Offset  int
	AgentID uint64
}

type ListLimitOrdersParams struct {
	Limit    int
	Offset   int
	AgentID  *uint64
	Statuses []string
}

type ListNewsItemsParams struct {
	Limit int
	Token string
	Since *time.Time
}
