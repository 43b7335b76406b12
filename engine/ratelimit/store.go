package ratelimit

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewStore returns a redis backed bucket store, or an in-memory one when
// client is nil. Memory buckets are per process and reset on restart.
func NewStore(client redis.UniversalClient, prefix string, maxRetry int) (limiter.Store, error) {
	opts := limiter.StoreOptions{
		Prefix:          prefix,
		MaxRetry:        maxRetry,
		CleanUpInterval: time.Minute,
	}
	if client == nil {
		return memory.NewStoreWithOptions(opts), nil
	}
	store, err := sredis.NewStoreWithOptions(client, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
	}
	return store, nil
}
