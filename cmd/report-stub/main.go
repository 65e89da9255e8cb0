package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/corp-reports/internal/handler"
	"github.com/noah-isme/corp-reports/internal/service"
	"github.com/noah-isme/corp-reports/pkg/config"
	"github.com/noah-isme/corp-reports/pkg/export"
	"github.com/noah-isme/corp-reports/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "report-stub")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	companies := handler.NewCompanyHandler(nil)
	reports := handler.NewReportHandler(companies, export.NewXLSXExporter("Report"), handler.ReportStreamConfig{
		DateFormat: cfg.Reports.DateFormat,
		ChunkSize:  cfg.Stub.ChunkSize,
		ChunkDelay: cfg.Stub.ChunkDelay,
	}, logr)

	r := handler.NewRouter(handler.RouterDeps{
		Companies:      companies,
		Reports:        reports,
		Metrics:        service.NewMetricsService(),
		Logger:         logr,
		AllowedOrigins: cfg.Stub.AllowedOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.Stub.Port)
	logr.Sugar().Infow("stub report server starting", "addr", addr, "env", cfg.Env, "chunk_size", cfg.Stub.ChunkSize, "chunk_delay", cfg.Stub.ChunkDelay)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
