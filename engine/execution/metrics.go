package execution

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/blockgate/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeCompleted = "completed"
	outcomeRunning   = "running"
	outcomeFailed    = "failed"
	outcomeTimeout   = "timeout"
	outcomeReplayed  = "replayed"
)

var (
	executionsTotal   metric.Int64Counter
	executionDuration metric.Float64Histogram
	staleReaped       metric.Int64Counter
	metricsOnce       sync.Once
)

// InitMetrics registers execution instruments on meter.
func InitMetrics(meter metric.Meter) error {
	var err error
	metricsOnce.Do(func() {
		executionsTotal, err = meter.Int64Counter(
			"blockgate_block_executions_total",
			metric.WithDescription("Block executions by block type and outcome"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return
		}
		executionDuration, err = meter.Float64Histogram(
			"blockgate_block_execution_duration_seconds",
			metric.WithDescription("Time spent inside block actions"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(metrics.ExecutionDurationBuckets...),
		)
		if err != nil {
			return
		}
		staleReaped, err = meter.Int64Counter(
			"blockgate_stale_executions_reaped_total",
			metric.WithDescription("Running executions failed by the reaper"),
			metric.WithUnit("1"),
		)
	})
	return err
}

func recordOutcome(ctx context.Context, blockType, outcome string) {
	if executionsTotal != nil {
		executionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("block_type", blockType),
			attribute.String("outcome", outcome),
		))
	}
}

func recordDuration(ctx context.Context, blockType string, d time.Duration) {
	if executionDuration != nil {
		executionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("block_type", blockType)))
	}
}

func recordReaped(ctx context.Context, n int64) {
	if staleReaped != nil && n > 0 {
		staleReaped.Add(ctx, n)
	}
}
