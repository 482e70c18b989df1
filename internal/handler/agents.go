package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"promptswap/internal/models"
	"promptswap/internal/repository"
)

type Reviewer interface {
	RunReview(ctx context.Context, agentID uint64) (*models.ReviewResult, error)
}

type AgentLifecycle interface {
	Start(ctx context.Context, agentID uint64) (*models.Agent, error)
	Stop(ctx context.Context, agentID uint64) (*models.Agent, error)
}

type ManualRebalancer interface {
	Execute(ctx context.Context, resultID uint64) (*models.LimitOrder, error)
}

type AgentHandler struct {
	Repo      repository.Repository
	Reviews   Reviewer
	Agents    AgentLifecycle
	Rebalance ManualRebalancer
}

func (h *AgentHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/agents/:id")
	g.POST("/review", h.review)
	g.GET("/review-results", h.listResults)
	g.GET("/review-logs", h.listRawLogs)
	g.GET("/orders", h.listOrders)
	g.POST("/start", h.start)
	g.POST("/stop", h.stop)
	r.POST("/api/v1/review-results/:id/rebalance", h.rebalance)
}

type reviewResultView struct {
	ID            uint64          `json:"id"`
	AgentID       uint64          `json:"agent_id"`
	RunID         string          `json:"run_id"`
	Rebalance     *bool           `json:"rebalance"`
	NewAllocation *float64        `json:"new_allocation"`
	ShortReport   string          `json:"short_report"`
	Log           string          `json:"log"`
	Error         json.RawMessage `json:"error"`
	RawLogID      *uint64         `json:"raw_log_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

func resultView(r models.ReviewResult) reviewResultView {
	v := reviewResultView{
		ID:            r.ID,
		AgentID:       r.AgentID,
		RunID:         r.RunID,
		Rebalance:     r.Rebalance,
		NewAllocation: r.NewAllocation,
		ShortReport:   r.ShortReport,
		Log:           r.Log,
		RawLogID:      r.RawLogID,
		CreatedAt:     r.CreatedAt,
	}
	if r.HasError() {
		v.Error = json.RawMessage(r.Error)
	}
	return v
}

func (h *AgentHandler) review(c *gin.Context) {
	id := idParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid agent id", nil)
		return
	}
	if h.Reviews == nil {
		Error(c, http.StatusInternalServerError, "reviews unavailable", nil)
		return
	}
	result, err := h.Reviews.RunReview(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, resultView(*result), nil)
}

func (h *AgentHandler) listResults(c *gin.Context) {
	id := idParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid agent id", nil)
		return
	}
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListReviewResults(c.Request.Context(), repository.ListReviewResultsParams{
		AgentID: id,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	out := make([]reviewResultView, 0, len(items))
	for _, it := range items {
		out = append(out, resultView(it))
	}
	Ok(c, out, map[string]any{"limit": limit, "offset": offset})
}

func (h *AgentHandler) listRawLogs(c *gin.Context) {
	id := idParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid agent id", nil)
		return
	}
	items, err := h.Repo.ListReviewRawLogs(c.Request.Context(), repository.ListReviewRawLogsParams{
		AgentID: id,
		RunID:   stringQueryPtr(c, "run_id"),
		Stage:   stringQueryPtr(c, "stage"),
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *AgentHandler) listOrders(c *gin.Context) {
	id := idParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid agent id", nil)
		return
	}
	params := repository.ListLimitOrdersParams{
		AgentID: &id,
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
	}
	if st := stringQueryPtr(c, "status"); st != nil {
		params.Statuses = []string{*st}
	}
	items, err := h.Repo.ListLimitOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *AgentHandler) start(c *gin.Context) {
	h.lifecycle(c, h.Agents.Start)
}

func (h *AgentHandler) stop(c *gin.Context) {
	h.lifecycle(c, h.Agents.Stop)
}

func (h *AgentHandler) lifecycle(c *gin.Context, fn func(context.Context, uint64) (*models.Agent, error)) {
	id := idParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid agent id", nil)
		return
	}
	agent, err := fn(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{
		"id":                agent.ID,
		"status":            agent.Status,
		"start_balance_usd": agent.StartBalanceUSD,
		"started_at":        agent.StartedAt,
	}, nil)
}

func (h *AgentHandler) rebalance(c *gin.Context) {
	id := idParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid review result id", nil)
		return
	}
	if h.Rebalance == nil {
		Error(c, http.StatusInternalServerError, "rebalance unavailable", nil)
		return
	}
	order, err := h.Rebalance.Execute(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	if order == nil {
		Ok(c, nil, map[string]any{"reason": "allocation already in place"})
		return
	}
	Ok(c, order, nil)
}
