package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/metrics"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg, "test")

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/migrations/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/migrations/a", "/migrations/b", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	count, err := testutil.GatherAndCount(reg, "test_http_requests_total")
	require.NoError(t, err)
	// one series for the pattern and one for unmatched
	assert.Equal(t, 2, count)
}
