package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendlens/admin-api/pkg/metrics"
)

func TestMetricsEndpointServesApplicationMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := metrics.NewMetrics("scrape_test", "delivery")
	m.DispatchPasses.Inc()

	h := New()
	engine := gin.New()
	engine.Use(h.Middleware())
	engine.GET("/metrics", h.Handler())

	scrape := func() string {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		engine.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		return w.Body.String()
	}

	body := scrape()
	assert.Contains(t, body, "scrape_test_delivery_dispatch_passes_total 1",
		"application metrics must be reachable from the scrape endpoint")

	// The request instruments observe after the handler returns, so they
	// show up on the second scrape.
	body = scrape()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, "http_request_duration_seconds")
}
