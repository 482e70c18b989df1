package gormrepository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promptswap/internal/models"
	"promptswap/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.Repository = (*Store)(nil)

// --- agents ------------------------------------------------------------------

func (s *Store) GetAgent(ctx context.Context, id uint64) (*models.Agent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if id == 0 {
		return nil, nil
	}
	var item models.Agent
	err := s.db.WithContext(ctx).
		Preload("Tokens", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") }).
		Where("id = ?", id).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAgents(ctx context.Context, params repository.ListAgentsParams) ([]models.Agent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Agent{}).
		Preload("Tokens", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") })
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.ReviewInterval != nil && strings.TrimSpace(*params.ReviewInterval) != "" {
		query = query.Where("review_interval = ?", strings.TrimSpace(*params.ReviewInterval))
	}
	var items []models.Agent
	if err := query.Order("id asc").
		Limit(normalizeLimit(params.Limit, 500)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateAgent(ctx context.Context, id uint64, updates map[string]any) error {
	if s == nil || s.db == nil {
		return nil
	}
	if id == 0 || len(updates) == 0 {
		return nil
	}
	next := map[string]any{"updated_at": time.Now().UTC()}
	for k, v := range updates {
		next[k] = v
	}
	return s.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", id).Updates(next).Error
}

// --- review logs & results ----------------------------------------------------

func (s *Store) InsertReviewRawLog(ctx context.Context, item *models.ReviewRawLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListReviewRawLogs(ctx context.Context, params repository.ListReviewRawLogsParams) ([]models.ReviewRawLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ReviewRawLog{}).Where("agent_id = ?", params.AgentID)
	if params.RunID != nil && strings.TrimSpace(*params.RunID) != "" {
		query = query.Where("run_id = ?", strings.TrimSpace(*params.RunID))
	}
	if params.Stage != nil && strings.TrimSpace(*params.Stage) != "" {
		query = query.Where("stage = ?", strings.TrimSpace(*params.Stage))
	}
	var items []models.ReviewRawLog
	if err := query.Order("id desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertReviewResult(ctx context.Context, item *models.ReviewResult) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetReviewResult(ctx context.Context, id uint64) (*models.ReviewResult, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if id == 0 {
		return nil, nil
	}
	var item models.ReviewResult
	err := s.db.WithContext(ctx).Model(&models.ReviewResult{}).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListReviewResults(ctx context.Context, params repository.ListReviewResultsParams) ([]models.ReviewResult, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ReviewResult
	if err := s.db.WithContext(ctx).
		Model(&models.ReviewResult{}).
		Where("agent_id = ?", params.AgentID).
		Order("created_at desc").
		Order("id desc").
		Limit(normalizeLimit(params.Limit, 50)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateReviewResult(ctx context.Context, id uint64, updates map[string]any) error {
	if s == nil || s.db == nil {
		return nil
	}
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.ReviewResult{}).Where("id = ?", id).Updates(updates).Error
}

// --- limit orders -------------------------------------------------------------

func (s *Store) InsertLimitOrder(ctx context.Context, item *models.LimitOrder) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetLimitOrderByReviewResultID(ctx context.Context, reviewResultID uint64) (*models.LimitOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if reviewResultID == 0 {
		return nil, nil
	}
	var item models.LimitOrder
	err := s.db.WithContext(ctx).
		Model(&models.LimitOrder{}).
		Where("review_result_id = ?", reviewResultID).
		Order("id asc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListLimitOrders(ctx context.Context, params repository.ListLimitOrdersParams) ([]models.LimitOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.LimitOrder{})
	if params.AgentID != nil {
		query = query.Where("agent_id = ?", *params.AgentID)
	}
	if statuses := cleanStrings(params.Statuses); len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var items []models.LimitOrder
	if err := query.Order("created_at desc").
		Order("id desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateLimitOrderStatus(ctx context.Context, id uint64, status string, updates map[string]any) error {
	if s == nil || s.db == nil {
		return nil
	}
	if id == 0 || strings.TrimSpace(status) == "" {
		return nil
	}
	next := map[string]any{
		"status":     strings.TrimSpace(status),
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		next[k] = v
	}
	return s.db.WithContext(ctx).Model(&models.LimitOrder{}).Where("id = ?", id).Updates(next).Error
}

// --- news ----------------------------------------------------------------------

func (s *Store) UpsertNewsItems(ctx context.Context, items []models.NewsItem) (int64, error) {
	if s == nil || s.db == nil || len(items) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "link"}},
			DoNothing: true,
		}).
		Create(&items)
	return res.RowsAffected, res.Error
}

func (s *Store) ListNewsItems(ctx context.Context, params repository.ListNewsItemsParams) ([]models.NewsItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.NewsItem{})
	if token := strings.ToUpper(strings.TrimSpace(params.Token)); token != "" {
		query = query.Where("tokens @> ?::jsonb", "["+strconv.Quote(token)+"]")
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("published_at >= ?", *params.Since)
	}
	var items []models.NewsItem
	if err := query.Order("published_at desc").
		Limit(normalizeLimit(params.Limit, 20)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}
