package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuditWrites(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(AuditWrites(zap.New(core)))
	r.POST("/api/v1/agents/:id/review", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/api/v1/agents/:id/review-results", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/v1/agents/1/review", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/agents/1/review-results", nil),
		httptest.NewRequest(http.MethodPost, "/healthz", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d want=1", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].ContextMap()["status"] != int64(http.StatusConflict) {
		t.Fatalf("entry=%+v want warn with status 409", entries[0])
	}
}
