package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"promptswap/internal/models"
	"promptswap/internal/rebalance"
	memrepository "promptswap/internal/repository/memory"
	"promptswap/internal/review"
	"promptswap/internal/service"
)

type stubReviewer struct {
	result *models.ReviewResult
	err    error
}

func (s stubReviewer) RunReview(ctx context.Context, agentID uint64) (*models.ReviewResult, error) {
	return s.result, s.err
}

type stubLifecycle struct{}

func (stubLifecycle) Start(ctx context.Context, id uint64) (*models.Agent, error) {
	if id == 404 {
		return nil, service.ErrAgentNotFound
	}
	return &models.Agent{ID: id, Status: models.AgentStatusActive}, nil
}

func (stubLifecycle) Stop(ctx context.Context, id uint64) (*models.Agent, error) {
	return &models.Agent{ID: id, Status: models.AgentStatusInactive}, nil
}

type stubRebalancer struct {
	err error
}

func (s stubRebalancer) Execute(ctx context.Context, resultID uint64) (*models.LimitOrder, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.LimitOrder{ID: 1, ReviewResultID: resultID, Side: "BUY"}, nil
}

func newRouter(h *AgentHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r)
	return r
}

func do(r *gin.Engine, method, path string) (*httptest.ResponseRecorder, apiResponse) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	var body apiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestAgentHandler_ReviewStatuses(t *testing.T) {
	cases := []struct {
		name   string
		rev    stubReviewer
		path   string
		status int
	}{
		{"ok", stubReviewer{result: &models.ReviewResult{ID: 3, AgentID: 1}}, "/api/v1/agents/1/review", http.StatusOK},
		{"busy", stubReviewer{err: review.ErrAlreadyReviewing}, "/api/v1/agents/1/review", http.StatusConflict},
		{"missing", stubReviewer{err: review.ErrAgentNotFound}, "/api/v1/agents/1/review", http.StatusNotFound},
		{"bad id", stubReviewer{}, "/api/v1/agents/abc/review", http.StatusBadRequest},
	}
	for _, c := range cases {
		r := newRouter(&AgentHandler{Repo: memrepository.New(), Reviews: c.rev})
		w, body := do(r, http.MethodPost, c.path)
		if w.Code != c.status {
			t.Fatalf("%s: status=%d want=%d body=%s", c.name, w.Code, c.status, w.Body.String())
		}
		if c.status == http.StatusConflict && body.Message != "already reviewing" {
			t.Fatalf("%s: message=%q", c.name, body.Message)
		}
	}
}

func TestAgentHandler_ListResultsSurfacesError(t *testing.T) {
	store := memrepository.New()
	ctx := context.Background()
	_ = store.InsertReviewResult(ctx, &models.ReviewResult{AgentID: 1, ShortReport: "hold"})
	_ = store.InsertReviewResult(ctx, &models.ReviewResult{AgentID: 1, Error: datatypes.JSON(`{"message":"failed to fetch market data","stage":"portfolio"}`)})
	_ = store.InsertReviewResult(ctx, &models.ReviewResult{AgentID: 2})
	r := newRouter(&AgentHandler{Repo: store})

	w, _ := do(r, http.MethodGet, "/api/v1/agents/1/review-results?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body struct {
		Data []reviewResultView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 2 {
		t.Fatalf("results=%d want=2", len(body.Data))
	}
	if !strings.Contains(string(body.Data[0].Error), "failed to fetch market data") {
		t.Fatalf("latest error=%s want market data failure", body.Data[0].Error)
	}
	if e := string(body.Data[1].Error); e != "" && e != "null" {
		t.Fatalf("older result error=%s want null", body.Data[1].Error)
	}
}

func TestAgentHandler_Rebalance(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"placed", nil, http.StatusOK},
		{"duplicate", rebalance.ErrDuplicateOrder, http.StatusConflict},
		{"policy", &rebalance.PolicyError{Reason: "order notional 1 below exchange minimum 5"}, http.StatusUnprocessableEntity},
		{"exchange", &rebalance.ExchangeError{Message: "insufficient balance", Err: errors.New("-2010")}, http.StatusBadGateway},
		{"missing", service.ErrReviewResultNotFound, http.StatusNotFound},
	}
	for _, c := range cases {
		r := newRouter(&AgentHandler{Repo: memrepository.New(), Rebalance: stubRebalancer{err: c.err}})
		w, body := do(r, http.MethodPost, "/api/v1/review-results/9/rebalance")
		if w.Code != c.status {
			t.Fatalf("%s: status=%d want=%d", c.name, w.Code, c.status)
		}
		if c.name == "exchange" && body.Message != "insufficient balance" {
			t.Fatalf("message=%q want parsed exchange message", body.Message)
		}
	}
}

func TestAgentHandler_StartStop(t *testing.T) {
	r := newRouter(&AgentHandler{Repo: memrepository.New(), Agents: stubLifecycle{}})
	if w, _ := do(r, http.MethodPost, "/api/v1/agents/5/start"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"active"`) {
		t.Fatalf("start status=%d body=%s", w.Code, w.Body.String())
	}
	if w, _ := do(r, http.MethodPost, "/api/v1/agents/5/stop"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"inactive"`) {
		t.Fatalf("stop status=%d body=%s", w.Code, w.Body.String())
	}
	if w, _ := do(r, http.MethodPost, "/api/v1/agents/404/start"); w.Code != http.StatusNotFound {
		t.Fatalf("missing agent status=%d want 404", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	down := errors.New("connection refused")
	(&HealthHandler{Checks: map[string]func(context.Context) error{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return down },
	}}).Register(r)
	(&MetricsHandler{}).Register(r)

	if w, _ := do(r, http.MethodGet, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("healthz=%d", w.Code)
	}
	w, _ := do(r, http.MethodGet, "/readyz")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "redis_unreachable") {
		t.Fatalf("readyz=%d body=%s", w.Code, w.Body.String())
	}
	if w, _ := do(r, http.MethodGet, "/metrics"); w.Code != http.StatusOK {
		t.Fatalf("metrics=%d", w.Code)
	}
}
