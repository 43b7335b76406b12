package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/compozy/blockgate/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("Should default the path", func(t *testing.T) {
		cfg := FromAppConfig(&config.MonitoringConfig{Enabled: true})
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "/metrics", cfg.Path)
	})

	t.Run("Should reject paths under the API prefix", func(t *testing.T) {
		assert.ErrorContains(t, (&Config{Path: "/api/metrics"}).Validate(), "/api/")
		assert.Error(t, (&Config{Path: "metrics"}).Validate())
		assert.Error(t, (&Config{Path: "/metrics?x=1"}).Validate())
	})
}

func TestMonitoringService(t *testing.T) {
	t.Run("Should expose HTTP metrics when enabled", func(t *testing.T) {
		svc, err := NewMonitoringService(t.Context(), &Config{Enabled: true, Path: "/metrics"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = svc.Shutdown(t.Context()) })
		require.True(t, svc.IsInitialized())
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.Use(svc.GinMiddleware(t.Context()))
		router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
		router.GET(svc.Path(), gin.WrapH(svc.ExporterHandler()))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "blockgate_http_requests_total")
		assert.Contains(t, w.Body.String(), "blockgate_uptime_seconds")
		assert.Contains(t, w.Body.String(), "go_goroutines")
	})

	t.Run("Should answer 503 when disabled", func(t *testing.T) {
		svc, err := NewMonitoringService(t.Context(), DefaultConfig())
		require.NoError(t, err)
		assert.False(t, svc.IsInitialized())
		assert.NotNil(t, svc.Meter())
		w := httptest.NewRecorder()
		svc.ExporterHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("Should fall back to a no-op service on invalid config", func(t *testing.T) {
		svc := NewMonitoringServiceWithFallback(t.Context(), &Config{Enabled: true, Path: ""})
		assert.False(t, svc.IsInitialized())
	})
}
