package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/compozy/blockgate/pkg/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ulule/limiter/v3"
)

// Bucket names one of the four quota checks.
type Bucket string

const (
	BucketServiceMinute Bucket = "service_minute"
	BucketServiceDay    Bucket = "service_day"
	BucketUserMinute    Bucket = "user_minute"
	BucketUserDay       Bucket = "user_day"
)

const (
	minute = time.Minute
	day    = 24 * time.Hour

	limiterCacheSize = 512
)

// Decision is the outcome of evaluating the buckets for one request. When
// Allowed is false, Bucket names the first exceeded bucket. Limit, Remaining
// and Reset describe the most constrained bucket that was evaluated.
type Decision struct {
	Allowed      bool
	Bucket       Bucket
	Limit        int64
	Remaining    int64
	Reset        time.Time
	RetryAfter   time.Duration
	FailedClosed bool
}

type check struct {
	bucket Bucket
	key    string
	limit  int64
	period time.Duration
}

// Checker evaluates service and user quotas over a shared bucket store.
type Checker struct {
	store         limiter.Store
	limiters      *lru.Cache[string, *limiter.Limiter]
	userPerMinute int64
	userPerDay    int64
	failHint      time.Duration
	now           func() time.Time
}

func NewChecker(store limiter.Store, cfg *config.RateLimitConfig) (*Checker, error) {
	cache, err := lru.New[string, *limiter.Limiter](limiterCacheSize)
	if err != nil {
		return nil, err
	}
	hint := cfg.FailClosedRetryHint
	if hint <= 0 {
		hint = time.Minute
	}
	return &Checker{
		store:         store,
		limiters:      cache,
		userPerMinute: cfg.UserPerMinute,
		userPerDay:    cfg.UserPerDay,
		failHint:      hint,
		now:           time.Now,
	}, nil
}

// plan lists the buckets in evaluation order: per-minute before per-day,
// service before user. User buckets exist only when an end user is present.
func (c *Checker) plan(g *reqctx.GatewayContext) []check {
	svc := g.Service
	base := fmt.Sprintf("%s:%s", svc.ServiceName, svc.KeyPrefix)
	checks := []check{
		{BucketServiceMinute, "svc:" + base + ":min", svc.RateLimitPerMinute, minute},
		{BucketServiceDay, "svc:" + base + ":day", svc.RateLimitPerDay, day},
	}
	if g.HasUser() {
		user := fmt.Sprintf("user:%s:%s", base, g.ExternalUserID)
		checks = append(checks,
			check{BucketUserMinute, user + ":min", c.userPerMinute, minute},
			check{BucketUserDay, user + ":day", c.userPerDay, day},
		)
	}
	return checks
}

func (c *Checker) limiterFor(limit int64, period time.Duration) *limiter.Limiter {
	id := fmt.Sprintf("%d/%s", limit, period)
	if lim, ok := c.limiters.Get(id); ok {
		return lim
	}
	lim := limiter.New(c.store, limiter.Rate{Limit: limit, Period: period})
	c.limiters.Add(id, lim)
	return lim
}

// Check consumes one token from every applicable bucket until one is
// exhausted. Store errors block the request.
func (c *Checker) Check(ctx context.Context, g *reqctx.GatewayContext) *Decision {
	log := logger.FromContext(ctx)
	decision := &Decision{Allowed: true, Remaining: -1}
	for _, chk := range c.plan(g) {
		if chk.limit <= 0 {
			continue
		}
		res, err := c.limiterFor(chk.limit, chk.period).Get(ctx, chk.key)
		if err != nil {
			log.Error("Rate limit check failed, blocking request", "bucket", chk.bucket, "error", err)
			recordFailure(ctx, chk.bucket)
			return &Decision{
				Bucket:       chk.bucket,
				Limit:        chk.limit,
				Remaining:    0,
				Reset:        c.now().Add(c.failHint),
				RetryAfter:   c.failHint,
				FailedClosed: true,
			}
		}
		reset := time.Unix(res.Reset, 0)
		if res.Reached {
			retry := reset.Sub(c.now())
			if retry < time.Second {
				retry = time.Second
			}
			recordBlocked(ctx, chk.bucket, g.Service.ServiceName)
			return &Decision{
				Bucket:     chk.bucket,
				Limit:      res.Limit,
				Remaining:  0,
				Reset:      reset,
				RetryAfter: retry,
			}
		}
		if decision.Remaining < 0 || res.Remaining < decision.Remaining {
			decision.Bucket = chk.bucket
			decision.Limit = res.Limit
			decision.Remaining = res.Remaining
			decision.Reset = reset
		}
	}
	return decision
}
