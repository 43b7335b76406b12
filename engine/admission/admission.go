// Package admission assembles the per-route middleware chain: service key
// authentication, request context validation, then quota checks.
package admission

import (
	"github.com/compozy/blockgate/engine/ratelimit"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/gin-gonic/gin"
)

type Admission struct {
	auth    *servicekey.Authenticator
	builder *reqctx.Builder
	checker *ratelimit.Checker
}

func New(auth *servicekey.Authenticator, builder *reqctx.Builder, checker *ratelimit.Checker) *Admission {
	return &Admission{auth: auth, builder: builder, checker: checker}
}

// Require returns the handlers that admit a request needing scope. The order
// is fixed so unauthenticated callers never consume quota.
func (a *Admission) Require(scope servicekey.Scope, opts reqctx.Options) gin.HandlersChain {
	chain := gin.HandlersChain{
		servicekey.Middleware(a.auth, scope),
		reqctx.Middleware(a.builder, opts),
	}
	if a.checker != nil {
		chain = append(chain, ratelimit.Middleware(a.checker))
	}
	return chain
}

// Handle appends handler to the admission chain for scope.
func (a *Admission) Handle(scope servicekey.Scope, opts reqctx.Options, handler gin.HandlerFunc) gin.HandlersChain {
	return append(a.Require(scope, opts), handler)
}
