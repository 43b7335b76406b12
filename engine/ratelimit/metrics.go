package ratelimit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	rateLimitBlocksTotal metric.Int64Counter
	rateLimitFailures    metric.Int64Counter
	metricsOnce          sync.Once
)

// InitMetrics registers the rate limiter counters on meter.
func InitMetrics(meter metric.Meter) error {
	var err error
	metricsOnce.Do(func() {
		rateLimitBlocksTotal, err = meter.Int64Counter(
			"rate_limit_blocks_total",
			metric.WithDescription("Total number of requests blocked by rate limiting"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return
		}
		rateLimitFailures, err = meter.Int64Counter(
			"rate_limit_check_failures_total",
			metric.WithDescription("Bucket checks that failed and were treated as blocked"),
			metric.WithUnit("1"),
		)
	})
	return err
}

func recordBlocked(ctx context.Context, bucket Bucket, service string) {
	if rateLimitBlocksTotal != nil {
		rateLimitBlocksTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("bucket", string(bucket)),
				attribute.String("service", service),
			),
		)
	}
}

func recordFailure(ctx context.Context, bucket Bucket) {
	if rateLimitFailures != nil {
		rateLimitFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", string(bucket))))
	}
}
