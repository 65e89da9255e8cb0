package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/internal/models"
	"github.com/noah-isme/corp-reports/internal/repository"
	"github.com/noah-isme/corp-reports/internal/service"
	"github.com/noah-isme/corp-reports/pkg/breaker"
	"github.com/noah-isme/corp-reports/pkg/cache"
	"github.com/noah-isme/corp-reports/pkg/config"
	"github.com/noah-isme/corp-reports/pkg/logger"
	"github.com/noah-isme/corp-reports/pkg/storage"
)

func main() {
	cmd := &cli.Command{
		Name:  "reports",
		Usage: "download a member, enrollment or termination report for a corporate account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Value: "member", Usage: "report kind: member, enrollment or termination"},
			&cli.StringFlag{Name: "account", Usage: "corporate account number", Required: true},
			&cli.StringFlag{Name: "from", Usage: "first day of the range (2006-01-02)"},
			&cli.StringFlag{Name: "to", Usage: "last day of the range (2006-01-02)"},
			&cli.BoolFlag{Name: "refresh", Usage: "ignore the cached account list"},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg, "reports")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	kind, err := models.ReportKindByEndpoint(cmd.String("kind"))
	if err != nil {
		return err
	}
	rng, err := parseRange(cmd.String("from"), cmd.String("to"))
	if err != nil {
		return err
	}

	metrics := service.NewMetricsService()
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logr.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close() //nolint:errcheck
	}

	var redisClient *redis.Client
	if cfg.Reference.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis, logr)
		if err != nil {
			logr.Warn("reference cache disabled", zap.Error(err))
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "corp-reports", logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reference.CacheTTL, logr, redisClient != nil)

	store, err := storage.NewLocalStorage(cfg.Downloads.Dir)
	if err != nil {
		return err
	}
	if removed, err := store.CleanupPartials(cfg.Downloads.PartialFileTTL); err != nil {
		logr.Warn("partial file cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		logr.Info("removed stale partial files", zap.Strings("files", removed))
	}

	client := breaker.NewClient("report-server", cfg.API.Timeout, cfg.Breaker, logr)
	reference := service.NewReferenceDataService(client, cacheSvc, metrics, service.ReferenceDataConfig{
		BaseURL:  cfg.API.BasePath,
		CacheTTL: cfg.Reference.CacheTTL,
	}, logr)
	if cmd.Bool("refresh") {
		if err := reference.Invalidate(ctx); err != nil {
			logr.Warn("reference cache invalidate failed", zap.Error(err))
		}
	}

	ctrl := service.NewSubmissionController(kind, service.ControllerDeps{
		Loader: reference,
		Transport: service.NewReportTransport(client, metrics, service.ReportTransportConfig{
			BaseURL:    cfg.API.BasePath,
			DateFormat: cfg.Reports.DateFormat,
			MaxBytes:   cfg.Reports.MaxBytes,
		}, logr),
		Saver:              service.NewFileSaver(store, logr),
		Notifier:           service.NewLogNotifier(logr),
		Metrics:            metrics,
		Logger:             logr,
		FilenameDateFormat: cfg.Reports.FilenameDateFormat,
		Hooks: service.ControllerHooks{
			OnProgress: func(percent int) {
				logr.Debug("report progress", zap.Int("percent", percent))
			},
		},
	})
	defer ctrl.Dispose()

	if err := ctrl.LoadReferenceData(ctx); err != nil {
		return err
	}
	if snap := ctrl.Snapshot(); snap.ReferenceErr != nil {
		return fmt.Errorf("load corporate accounts: %w", snap.ReferenceErr)
	}

	if err := ctrl.SetAccount(cmd.String("account")); err != nil {
		return err
	}
	if err := ctrl.SetDateRange(rng); err != nil {
		return err
	}
	if err := ctrl.Submit(ctx); err != nil {
		return err
	}

	if artifact := ctrl.Snapshot().Submission.Artifact; artifact != nil {
		fmt.Println(store.Path(artifact.SuggestedFileName))
	}
	return nil
}

// parseRange accepts an empty range, a full range or a single bound; a single
// bound is passed through so validation reports it.
func parseRange(from, to string) (*models.DayRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	rng := &models.DayRange{}
	if from != "" {
		day, err := models.ParseDay(from)
		if err != nil {
			return nil, err
		}
		rng.From = day
	}
	if to != "" {
		day, err := models.ParseDay(to)
		if err != nil {
			return nil, err
		}
		rng.To = day
	}
	return rng, nil
}
