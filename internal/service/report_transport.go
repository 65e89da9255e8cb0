package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/internal/models"
	appErrors "github.com/noah-isme/corp-reports/pkg/errors"
	"github.com/noah-isme/corp-reports/pkg/middleware/requestid"
)

// ReportTransportConfig tunes report downloads.
type ReportTransportConfig struct {
	BaseURL    string
	DateFormat string
	ChunkSize  int
	// MaxBytes bounds the buffered report body.
	MaxBytes int64
}

const (
	defaultMaxReportBytes = 256 << 20
	maxPreallocBytes      = 8 << 20
)

// ReportTransport issues report requests and turns the streamed response
// body into progress events followed by one terminal event.
type ReportTransport struct {
	client  *http.Client
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ReportTransportConfig
}

// NewReportTransport constructs the transport. metrics may be nil.
func NewReportTransport(client *http.Client, metrics *MetricsService, cfg ReportTransportConfig, logger *zap.Logger) *ReportTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = "01/02/2006"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 32 * 1024
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxReportBytes
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ReportTransport{client: client, metrics: metrics, logger: logger, cfg: cfg}
}

// Submit starts one report download. The channel yields progress events with
// non-decreasing percentages, then exactly one complete or failed event, then
// closes. Nothing is sent once ctx is cancelled, and no complete event is
// produced for a cancelled request.
func (t *ReportTransport) Submit(ctx context.Context, criteria models.ReportCriteria) <-chan models.TransportEvent {
	out := make(chan models.TransportEvent)
	go func() {
		defer close(out)
		t.run(ctx, criteria, out)
	}()
	return out
}

func (t *ReportTransport) run(ctx context.Context, criteria models.ReportCriteria, out chan<- models.TransportEvent) {
	emit := func(ev models.TransportEvent) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		t.logger.Sugar().Errorw("report download failed", "kind", criteria.Kind.Endpoint, "account", criteria.AccountNumber, "error", err)
		emit(models.FailedEvent(err))
	}

	reqID := requestid.FromContext(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.reportURL(criteria), nil)
	if err != nil {
		fail(appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "failed to build report request"))
		return
	}
	req.Header.Set(requestid.Header, reqID)
	req.Header.Set("Accept", "application/octet-stream, application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	start := time.Now()
	t.logger.Sugar().Infow("report request started", "request_id", reqID, "kind", criteria.Kind.Endpoint, "account", criteria.AccountNumber)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fail(appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, appErrors.ErrTransport.Message))
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		fail(appErrors.Wrap(fmt.Errorf("GET %s: %s", req.URL.Path, resp.Status), appErrors.ErrTransport.Code, resp.StatusCode, appErrors.ErrTransport.Message))
		return
	}

	tooLarge := func(size int64) {
		fail(appErrors.Wrap(fmt.Errorf("GET %s: body of %d bytes exceeds limit of %d", req.URL.Path, size, t.cfg.MaxBytes),
			appErrors.ErrTransport.Code, http.StatusBadGateway, "report exceeds size limit"))
	}
	if resp.ContentLength > t.cfg.MaxBytes {
		tooLarge(resp.ContentLength)
		return
	}

	tracker := newProgressTracker(resp.ContentLength)
	if !emit(models.ProgressEvent(0)) {
		return
	}

	// Content-Length is only a hint for the initial buffer.
	body := &bytes.Buffer{}
	if resp.ContentLength > 0 {
		body.Grow(int(min(resp.ContentLength, maxPreallocBytes)))
	}
	buf := make([]byte, t.cfg.ChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if int64(body.Len()+n) > t.cfg.MaxBytes {
				tooLarge(int64(body.Len() + n))
				return
			}
			body.Write(buf[:n])
			t.metrics.AddDownloadBytes(criteria.Kind.Endpoint, n)
			if percent, changed := tracker.add(n); changed {
				if !emit(models.ProgressEvent(percent)) {
					return
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return
			}
			fail(appErrors.Wrap(readErr, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "report download interrupted"))
			return
		}
	}

	t.logger.Sugar().Infow("report download finished", "request_id", reqID, "kind", criteria.Kind.Endpoint, "bytes", body.Len(), "elapsed", time.Since(start))
	emit(models.CompleteEvent(&models.DownloadArtifact{Data: body.Bytes()}))
}

func (t *ReportTransport) reportURL(criteria models.ReportCriteria) string {
	query := url.Values{}
	if criteria.StartDate != nil {
		query.Set("StartDate", criteria.StartDate.UTC().Format(t.cfg.DateFormat))
	}
	if criteria.EndDate != nil {
		query.Set("EndDate", criteria.EndDate.UTC().Format(t.cfg.DateFormat))
	}
	query.Set("Corpacct", criteria.AccountNumber)
	return fmt.Sprintf("%s/report/%s?%s", t.cfg.BaseURL, url.PathEscape(criteria.Kind.Endpoint), query.Encode())
}

// progressTracker converts bytes received into a bounded, non-decreasing
// percentage. Unknown totals keep the last reported value.
type progressTracker struct {
	total  int64
	loaded int64
	last   int
}

func newProgressTracker(total int64) *progressTracker {
	return &progressTracker{total: total}
}

func (p *progressTracker) add(n int) (int, bool) {
	p.loaded += int64(n)
	if p.total <= 0 {
		return p.last, false
	}
	percent := int(math.Round(100 * float64(p.loaded) / float64(p.total)))
	if percent > 100 {
		percent = 100
	}
	if percent < p.last {
		percent = p.last
	}
	if percent == p.last {
		return percent, false
	}
	p.last = percent
	return percent, true
}
