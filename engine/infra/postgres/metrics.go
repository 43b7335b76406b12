package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const postgresMeterName = "blockgate.postgres"

var (
	postgresMetricsOnce        sync.Once
	postgresMetricsErr         error
	postgresConnectionsOpen    metric.Int64ObservableGauge
	postgresConnectionsInUse   metric.Int64ObservableGauge
	postgresConnectionsIdle    metric.Int64ObservableGauge
	postgresMaxConfiguredConns metric.Int64ObservableGauge
	postgresPools              sync.Map
)

// poolMetrics registers one pool with the shared gauge callback.
type poolMetrics struct {
	label string
	pool  atomic.Pointer[pgxpool.Pool]
}

func trackPool(label string, pool *pgxpool.Pool) (*poolMetrics, error) {
	if err := ensurePostgresMetrics(); err != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", err)
	}
	if label == "" {
		label = "default"
	}
	p := &poolMetrics{label: label}
	p.pool.Store(pool)
	postgresPools.Store(p, p)
	return p, nil
}

func (p *poolMetrics) unregister() {
	if p == nil {
		return
	}
	postgresPools.Delete(p)
	p.pool.Store(nil)
}

func ensurePostgresMetrics() error {
	postgresMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(postgresMeterName)
		gauges := []struct {
			dst  *metric.Int64ObservableGauge
			name string
			desc string
		}{
			{&postgresConnectionsOpen, "blockgate_postgres_connections_open", "Number of open Postgres connections"},
			{&postgresConnectionsInUse, "blockgate_postgres_connections_in_use", "Postgres connections currently in use"},
			{&postgresConnectionsIdle, "blockgate_postgres_connections_idle", "Number of idle Postgres connections"},
			{&postgresMaxConfiguredConns, "blockgate_postgres_max_open_connections", "Configured pool size"},
		}
		for _, g := range gauges {
			gauge, err := meter.Int64ObservableGauge(g.name, metric.WithDescription(g.desc))
			if err != nil {
				postgresMetricsErr = err
				return
			}
			*g.dst = gauge
		}
		_, postgresMetricsErr = meter.RegisterCallback(
			observePools,
			postgresConnectionsOpen,
			postgresConnectionsInUse,
			postgresConnectionsIdle,
			postgresMaxConfiguredConns,
		)
	})
	return postgresMetricsErr
}

func observePools(_ context.Context, observer metric.Observer) error {
	postgresPools.Range(func(_, value any) bool {
		p, ok := value.(*poolMetrics)
		if !ok {
			return true
		}
		pool := p.pool.Load()
		if pool == nil {
			return true
		}
		stats := pool.Stat()
		attrs := metric.WithAttributes(attribute.String("pool", p.label))
		observer.ObserveInt64(postgresConnectionsOpen, int64(stats.TotalConns()), attrs)
		observer.ObserveInt64(postgresConnectionsInUse, int64(stats.AcquiredConns()), attrs)
		observer.ObserveInt64(postgresConnectionsIdle, int64(stats.IdleConns()), attrs)
		observer.ObserveInt64(postgresMaxConfiguredConns, int64(stats.MaxConns()), attrs)
		return true
	})
	return nil
}
