package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestHTTPMetrics(t *testing.T) {
	setup := func(t *testing.T) (*gin.Engine, *sdkmetric.ManualReader) {
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.Use(HTTPMetrics(t.Context(), provider.Meter("test")))
		router.GET("/executions/:executionId", func(c *gin.Context) {
			c.JSON(http.StatusAccepted, gin.H{"id": c.Param("executionId")})
		})
		return router, reader
	}

	t.Run("Should label requests by route template", func(t *testing.T) {
		router, reader := setup(t)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/executions/abc", http.NoBody))
		require.Equal(t, http.StatusAccepted, w.Code)
		got := collect(t, reader)
		total, ok := got["blockgate_http_requests_total"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, total.DataPoints, 1)
		dp := total.DataPoints[0]
		assert.Equal(t, int64(1), dp.Value)
		path, _ := dp.Attributes.Value(attribute.Key("path"))
		assert.Equal(t, "/executions/:executionId", path.AsString())
		status, _ := dp.Attributes.Value(attribute.Key("status_code"))
		assert.Equal(t, "202", status.AsString())
		_, ok = got["blockgate_http_request_duration_seconds"].Data.(metricdata.Histogram[float64])
		assert.True(t, ok)
	})

	t.Run("Should group unmatched routes", func(t *testing.T) {
		router, reader := setup(t)
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/1", http.NoBody))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/2", http.NoBody))
		total := collect(t, reader)["blockgate_http_requests_total"].Data.(metricdata.Sum[int64])
		require.Len(t, total.DataPoints, 1)
		path, _ := total.DataPoints[0].Attributes.Value(attribute.Key("path"))
		assert.Equal(t, "unmatched", path.AsString())
		assert.Equal(t, int64(2), total.DataPoints[0].Value)
	})
}
