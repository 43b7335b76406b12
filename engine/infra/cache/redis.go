package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/compozy/blockgate/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	healthKey = "blockgate:health_check"
	healthTTL = 10 * time.Second
)

// Redis owns the shared client used by the rate limiter store and the
// health endpoint.
type Redis struct {
	client    *redis.Client
	log       logger.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewRedis connects and pings the configured server.
func NewRedis(ctx context.Context, cfg *Config) (*Redis, error) {
	if cfg == nil {
		return nil, errors.New("redis config is required")
	}
	opt, err := cfg.options()
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.pingTimeout())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", opt.Addr, err)
	}
	log := logger.FromContext(ctx).With("component", "redis")
	log.Info("Redis connection established", "addr", opt.Addr, "db", opt.DB, "tls", opt.TLSConfig != nil)
	return &Redis{client: client, log: log}, nil
}

func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// HealthCheck verifies the server accepts writes, which the limiter store needs.
func (r *Redis) HealthCheck(ctx context.Context) error {
	if err := r.client.Set(ctx, healthKey, "ok", healthTTL).Err(); err != nil {
		return fmt.Errorf("redis write probe: %w", err)
	}
	if err := r.client.Del(ctx, healthKey).Err(); err != nil {
		r.log.Debug("Failed to remove health probe key", "error", err)
	}
	return nil
}

// Close may be called more than once.
func (r *Redis) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.client.Close()
		if r.closeErr != nil {
			r.log.Error("Failed to close redis connection", "error", r.closeErr)
		}
	})
	return r.closeErr
}
