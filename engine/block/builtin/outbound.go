package builtin

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/compozy/blockgate/pkg/config"
	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/slok/goresilience"
	"github.com/slok/goresilience/circuitbreaker"
	"github.com/slok/goresilience/timeout"
	"golang.org/x/time/rate"
)

const hostCacheSize = 512

// hostGuard throttles and breaks calls to a single upstream host.
type hostGuard struct {
	limiter *rate.Limiter
	runner  goresilience.Runner
}

// Outbound is the HTTP client shared by built-in blocks.
type Outbound struct {
	client *resty.Client
	cfg    config.BlocksConfig
	mu     sync.Mutex
	hosts  *lru.Cache[string, *hostGuard]
}

// NewOutbound builds the client. Guards are kept for the most recently used
// hosts only; an evicted host starts over with a fresh throttle and breaker.
func NewOutbound(cfg config.BlocksConfig) (*Outbound, error) {
	hosts, err := lru.New[string, *hostGuard](hostCacheSize)
	if err != nil {
		return nil, err
	}
	client := resty.New().
		SetTimeout(cfg.HTTPTimeout).
		SetHeader("User-Agent", "blockgate/1").
		SetRetryCount(0)
	return &Outbound{client: client, cfg: cfg, hosts: hosts}, nil
}

// Client exposes the underlying client for tests that need to point it at a stub.
func (o *Outbound) Client() *resty.Client {
	return o.client
}

func (o *Outbound) guard(host string) *hostGuard {
	o.mu.Lock()
	defer o.mu.Unlock()
	if g, ok := o.hosts.Get(host); ok {
		return g
	}
	limit := rate.Inf
	if o.cfg.PerHostRPS > 0 {
		limit = rate.Limit(o.cfg.PerHostRPS)
	}
	burst := max(o.cfg.PerHostBurst, 1)
	chain := []goresilience.Middleware{}
	if o.cfg.HTTPTimeout > 0 {
		chain = append(chain, timeout.NewMiddleware(timeout.Config{Timeout: o.cfg.HTTPTimeout}))
	}
	if o.cfg.BreakerErrPercent > 0 {
		chain = append(chain, circuitbreaker.NewMiddleware(circuitbreaker.Config{
			ErrorPercentThresholdToOpen:        o.cfg.BreakerErrPercent,
			MinimumRequestToOpen:               10,
			SuccessfulRequiredOnHalfOpen:       1,
			WaitDurationInOpenState:            30 * time.Second,
			MetricsSlidingWindowBucketQuantity: 10,
			MetricsBucketDuration:              time.Second,
		}))
	}
	g := &hostGuard{limiter: rate.NewLimiter(limit, burst), runner: goresilience.RunnerChain(chain...)}
	o.hosts.Add(host, g)
	return g
}

// Do sends method to rawURL through the host's throttle and breaker. Server
// errors count against the breaker; client errors are returned as responses.
func (o *Outbound) Do(ctx context.Context, method, rawURL string, prepare func(*resty.Request)) (*resty.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}
	g := o.guard(u.Host)
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for %s rate limit: %w", u.Host, err)
	}
	// The timeout middleware may abandon the call while it is still running,
	// so the response only crosses back through the channel.
	responses := make(chan *resty.Response, 1)
	err = g.runner.Run(ctx, func(ctx context.Context) error {
		req := o.client.R().SetContext(ctx)
		if prepare != nil {
			prepare(req)
		}
		r, err := req.Execute(method, rawURL)
		if err != nil {
			return err
		}
		responses <- r
		if r.StatusCode() >= 500 {
			return fmt.Errorf("upstream %s returned %d", u.Host, r.StatusCode())
		}
		return nil
	})
	var resp *resty.Response
	select {
	case resp = <-responses:
	default:
	}
	return resp, err
}
