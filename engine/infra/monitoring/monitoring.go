package monitoring

import (
	"context"
	"fmt"
	"net/http"

	"github.com/compozy/blockgate/engine/infra/monitoring/middleware"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "blockgate"

// Service owns the meter provider and the Prometheus registry behind /metrics.
type Service struct {
	meter       metric.Meter
	provider    *sdkmetric.MeterProvider
	handler     http.Handler
	config      *Config
	initialized bool
}

func newDisabledService(cfg *Config) *Service {
	return &Service{config: cfg, meter: noop.NewMeterProvider().Meter(meterName)}
}

// NewMonitoringService builds a Prometheus backed meter, or a no-op meter
// when monitoring is disabled.
func NewMonitoringService(ctx context.Context, cfg *Config) (*Service, error) {
	log := logger.FromContext(ctx)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		log.Debug("Monitoring disabled, using no-op meter")
		return newDisabledService(cfg), nil
	}
	registry := prom.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	s := &Service{
		meter:       provider.Meter(meterName),
		provider:    provider,
		handler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{ErrorLog: promErrorLog{ctx: ctx}}),
		config:      cfg,
		initialized: true,
	}
	InitSystemMetrics(ctx, s.meter)
	log.Info("Monitoring service initialized", "path", cfg.Path)
	return s, nil
}

// NewMonitoringServiceWithFallback degrades to a no-op meter instead of
// failing startup.
func NewMonitoringServiceWithFallback(ctx context.Context, cfg *Config) *Service {
	s, err := NewMonitoringService(ctx, cfg)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to initialize monitoring, using no-op implementation", "error", err)
		if cfg == nil {
			cfg = DefaultConfig()
		}
		return newDisabledService(cfg)
	}
	return s
}

func (s *Service) Meter() metric.Meter {
	return s.meter
}

func (s *Service) Path() string {
	return s.config.Path
}

func (s *Service) IsInitialized() bool {
	return s.initialized
}

// GinMiddleware returns the HTTP metrics middleware, or a pass-through when
// monitoring is disabled.
func (s *Service) GinMiddleware(ctx context.Context) gin.HandlerFunc {
	if !s.initialized {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.HTTPMetrics(ctx, s.meter)
}

// ExporterHandler serves the Prometheus exposition format, or 503 when
// monitoring is disabled.
func (s *Service) ExporterHandler() http.Handler {
	if s.initialized {
		return s.handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "monitoring disabled", http.StatusServiceUnavailable)
	})
}

// promErrorLog routes exposition errors to the structured logger.
type promErrorLog struct {
	ctx context.Context
}

func (l promErrorLog) Println(v ...any) {
	logger.FromContext(l.ctx).Error("Prometheus exposition failed", "error", fmt.Sprint(v...))
}

// SetAsGlobal installs the provider as the global OpenTelemetry meter provider.
func (s *Service) SetAsGlobal() {
	if s.provider != nil {
		otel.SetMeterProvider(s.provider)
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider != nil {
		return s.provider.Shutdown(ctx)
	}
	return nil
}
