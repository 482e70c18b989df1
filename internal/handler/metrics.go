package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsHandler struct {
	Path string
}

func (h *MetricsHandler) Register(r *gin.Engine) {
	path := strings.TrimSpace(h.Path)
	if path == "" {
		path = "/metrics"
	}
	r.GET(path, gin.WrapH(promhttp.Handler()))
}
