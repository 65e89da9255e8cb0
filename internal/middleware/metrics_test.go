package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	method string
	path   string
	status int
}

type observerStub struct {
	seen []observation
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.seen = append(o.seen, observation{method: method, path: path, status: status})
}

func TestMetricsRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &observerStub{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/api/report/:kind", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	for _, path := range []string{"/api/report/member", "/nope"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, obs.seen, 2)
	assert.Equal(t, observation{method: http.MethodGet, path: "/api/report/:kind", status: http.StatusAccepted}, obs.seen[0])
	assert.Equal(t, observation{method: http.MethodGet, path: unmatchedRoute, status: http.StatusNotFound}, obs.seen[1])
}

func TestMetricsToleratesNilObserver(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
