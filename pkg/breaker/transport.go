package breaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/pkg/config"
)

// ErrOpen is returned when the breaker rejects a request without sending it.
var ErrOpen = errors.New("report server circuit open")

var errServerStatus = errors.New("server error status")

// abandonedError marks a round trip the caller cancelled. It says nothing
// about the server, so the breaker records it as a success.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }

func (e *abandonedError) Unwrap() error { return e.err }

func countsAsSuccess(err error) bool {
	var abandoned *abandonedError
	return err == nil || errors.As(err, &abandoned)
}

// Transport wraps an http.RoundTripper with a gobreaker circuit breaker.
// Connection failures and 5xx responses count as failures; 5xx responses are
// still handed back to the caller so it can read the status. Requests whose
// context was cancelled by the caller never count against the server. Client
// timeouts surface as DeadlineExceeded and still do.
type Transport struct {
	next   http.RoundTripper
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewTransport builds a breaker-guarded round tripper named name.
func NewTransport(name string, next http.RoundTripper, cfg config.BreakerConfig, logger *zap.Logger) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	t := &Transport{next: next, logger: logger}
	t.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	result, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			if errors.Is(req.Context().Err(), context.Canceled) {
				return nil, &abandonedError{err: err}
			}
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrOpen, req.URL.Path)
	}
	if errors.Is(err, errServerStatus) {
		return result.(*http.Response), nil
	}
	var abandoned *abandonedError
	if errors.As(err, &abandoned) {
		return nil, abandoned.err
	}
	if err != nil {
		t.logger.Debug("outbound request failed",
			zap.String("path", req.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	return result.(*http.Response), nil
}

// State reports the breaker state name.
func (t *Transport) State() string {
	return t.cb.State().String()
}

// NewClient returns an http.Client whose transport is guarded by a breaker.
func NewClient(name string, timeout time.Duration, cfg config.BreakerConfig, logger *zap.Logger) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(name, http.DefaultTransport, cfg, logger),
	}
}
