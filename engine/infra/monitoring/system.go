package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/blockgate/pkg/logger"
	"github.com/compozy/blockgate/pkg/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	buildInfo      metric.Float64Gauge
	uptimeGauge    metric.Float64ObservableGauge
	startTime      time.Time
	systemInitOnce sync.Once
)

func initSystemMetrics(ctx context.Context, meter metric.Meter) {
	systemInitOnce.Do(func() {
		log := logger.FromContext(ctx)
		var err error
		buildInfo, err = meter.Float64Gauge(
			"blockgate_build_info",
			metric.WithDescription("Build information (value=1)"),
		)
		if err != nil {
			log.Error("Failed to create build info gauge", "error", err)
		}
		uptimeGauge, err = meter.Float64ObservableGauge(
			"blockgate_uptime_seconds",
			metric.WithDescription("Service uptime in seconds"),
		)
		if err != nil {
			log.Error("Failed to create uptime gauge", "error", err)
			return
		}
		startTime = time.Now()
		if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveFloat64(uptimeGauge, time.Since(startTime).Seconds())
			return nil
		}, uptimeGauge); err != nil {
			log.Error("Failed to register uptime callback", "error", err)
		}
	})
}

// InitSystemMetrics registers uptime and records build info once.
func InitSystemMetrics(ctx context.Context, meter metric.Meter) {
	initSystemMetrics(ctx, meter)
	if buildInfo == nil {
		return
	}
	info := version.Get()
	buildInfo.Record(ctx, 1, metric.WithAttributes(
		attribute.String("version", info.Version),
		attribute.String("commit_hash", info.CommitHash),
		attribute.String("go_version", info.GoVersion),
	))
}
