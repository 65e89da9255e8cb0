package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/corp-reports/internal/service"
)

// OpsHandler serves the stub's health and Prometheus endpoints.
type OpsHandler struct {
	metrics   *service.MetricsService
	companies *CompanyHandler
	stream    ReportStreamConfig
	started   time.Time
}

// NewOpsHandler constructs handler. metrics may be nil, in which case
// /metrics answers 503.
func NewOpsHandler(metrics *service.MetricsService, companies *CompanyHandler, stream ReportStreamConfig) *OpsHandler {
	return &OpsHandler{metrics: metrics, companies: companies, stream: stream, started: time.Now()}
}

// Prometheus serves the private metrics registry.
func (h *OpsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health reports liveness plus the knobs that shape report streaming.
func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"companies":   len(h.companies.companies),
		"chunk_size":  h.stream.ChunkSize,
		"chunk_delay": h.stream.ChunkDelay.String(),
	})
}
