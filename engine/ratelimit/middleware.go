package ratelimit

import (
	"strconv"

	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/gin-gonic/gin"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Middleware enforces quotas; it must run after the request context middleware.
func Middleware(checker *Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, ok := reqctx.FromContext(c.Request.Context())
		if !ok {
			router.RespondWithError(c, router.Internal(nil))
			return
		}
		decision := checker.Check(c.Request.Context(), g)
		writeHeaders(c, decision)
		if !decision.Allowed {
			router.RespondWithError(c, router.NewAPIError(router.ErrRateLimitedCode, "Rate limit exceeded").
				WithDetails(map[string]any{"bucket": decision.Bucket}).
				WithRetryAfter(decision.RetryAfter))
			return
		}
		c.Next()
	}
}

func writeHeaders(c *gin.Context, d *Decision) {
	if d.Limit <= 0 {
		return
	}
	c.Header(HeaderLimit, strconv.FormatInt(d.Limit, 10))
	c.Header(HeaderRemaining, strconv.FormatInt(max(d.Remaining, 0), 10))
	c.Header(HeaderReset, strconv.FormatInt(d.Reset.Unix(), 10))
}
