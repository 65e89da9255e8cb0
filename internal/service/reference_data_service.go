package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/internal/dto"
	"github.com/noah-isme/corp-reports/internal/models"
	appErrors "github.com/noah-isme/corp-reports/pkg/errors"
	"github.com/noah-isme/corp-reports/pkg/middleware/requestid"
)

const (
	companiesCacheKey = "reference:companies"
	maxCompaniesBody  = 10 << 20
)

// ReferenceDataConfig tunes the account list loader.
type ReferenceDataConfig struct {
	BaseURL  string
	CacheTTL time.Duration
}

// ReferenceDataService loads the selectable corporate accounts. One instance
// is shared by every report screen.
type ReferenceDataService struct {
	client  *http.Client
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ReferenceDataConfig
}

// NewReferenceDataService constructs the loader. cache and metrics may be nil.
func NewReferenceDataService(client *http.Client, cache *CacheService, metrics *MetricsService, cfg ReferenceDataConfig, logger *zap.Logger) *ReferenceDataService {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ReferenceDataService{client: client, cache: cache, metrics: metrics, logger: logger, cfg: cfg}
}

// Load starts one fetch of the account list. The returned channel yields
// Loading, then exactly one of Loaded or Errored, then closes. When ctx is
// cancelled first the channel closes without a terminal state. Failures are
// reported as Errored and never returned or panicked.
func (s *ReferenceDataService) Load(ctx context.Context) <-chan models.LoadState[[]models.Account] {
	out := make(chan models.LoadState[[]models.Account], 2)
	out <- models.Loading[[]models.Account]()
	go func() {
		defer close(out)
		accounts, err := s.fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.metrics.RecordReferenceLoad("error")
			s.logger.Sugar().Warnw("corporate account load failed", "error", err)
			out <- models.Errored[[]models.Account](err)
			return
		}
		s.metrics.RecordReferenceLoad("loaded")
		out <- models.Loaded(accounts)
	}()
	return out
}

// Invalidate drops the cached account list so the next Load hits the server.
func (s *ReferenceDataService) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx, companiesCacheKey)
}

func (s *ReferenceDataService) fetch(ctx context.Context) ([]models.Account, error) {
	var cached []models.Account
	if hit, _ := s.cache.Get(ctx, companiesCacheKey, &cached); hit {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/companies", nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrReferenceData.Code, appErrors.ErrReferenceData.Status, "failed to build companies request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestid.Header, requestid.FromContext(ctx))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrReferenceData.Code, appErrors.ErrReferenceData.Status, appErrors.ErrReferenceData.Message)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, appErrors.Wrap(fmt.Errorf("GET /companies: %s", resp.Status), appErrors.ErrReferenceData.Code, resp.StatusCode, appErrors.ErrReferenceData.Message)
	}

	var payload []dto.CompanyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCompaniesBody)).Decode(&payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrReferenceData.Code, appErrors.ErrReferenceData.Status, "invalid companies payload")
	}

	accounts := make([]models.Account, 0, len(payload))
	for _, company := range payload {
		acct := company.ToAccount()
		if acct.AccountNumber == "" {
			continue
		}
		accounts = append(accounts, acct)
	}

	_ = s.cache.Set(ctx, companiesCacheKey, accounts, s.cfg.CacheTTL)
	return accounts, nil
}
