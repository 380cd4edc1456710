package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_CountsByRoute(t *testing.T) {
	// Подготовка
	gin.SetMode(gin.TestMode)
	m := NewMetrics("http", prometheus.NewRegistry())
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/incidents/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Действие
	for _, path := range []string{"/incidents/1", "/incidents/2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	// Проверки
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/incidents/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsInFlight.WithLabelValues("GET")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "incident_reporting_http_requests_total")
}
