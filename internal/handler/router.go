package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/internal/middleware"
	"github.com/noah-isme/corp-reports/internal/service"
	"github.com/noah-isme/corp-reports/pkg/logger"
	"github.com/noah-isme/corp-reports/pkg/middleware/cors"
	"github.com/noah-isme/corp-reports/pkg/middleware/requestid"
)

// RouterDeps wires the stub report server.
type RouterDeps struct {
	Companies *CompanyHandler
	Reports   *ReportHandler
	Metrics   *service.MetricsService
	Logger    *zap.Logger
	// AllowedOrigins feeds the CORS middleware; empty allows any origin.
	AllowedOrigins []string
}

// NewRouter builds the stub report server. Report routes live under /api so
// the default API_BASE_PATH points straight at it.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Companies == nil {
		deps.Companies = NewCompanyHandler(nil)
	}
	if deps.Reports == nil {
		deps.Reports = NewReportHandler(deps.Companies, nil, ReportStreamConfig{}, deps.Logger)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(cors.New(deps.AllowedOrigins))

	ops := NewOpsHandler(deps.Metrics, deps.Companies, deps.Reports.cfg)
	r.GET("/health", ops.Health)
	r.GET("/metrics", ops.Prometheus)

	api := r.Group("/api")
	api.GET("/companies", deps.Companies.List)
	api.GET("/report/:kind", deps.Reports.Download)
	return r
}
