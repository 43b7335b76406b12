package reqctx

import (
	"net"
	"strings"

	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID         = "X-Canvas-User-Id"
	HeaderWorkspaceID    = "X-Canvas-Workspace-Id"
	HeaderRequestID      = "X-Request-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// RequestID ensures every request carries an id, echoes it on the response
// and attaches a request-scoped logger to the context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = core.MustNewID().String()
			c.Request.Header.Set(HeaderRequestID, id)
		}
		c.Header(HeaderRequestID, id)
		log := logger.FromContext(c.Request.Context()).With(
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), log))
		c.Next()
	}
}

// ClientIP resolves the caller address: first hop of X-Forwarded-For, then
// X-Real-IP, then the transport peer.
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(c.GetHeader("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(c.Request.RemoteAddr)
	}
	return host
}

func HeadersFrom(c *gin.Context) Headers {
	return Headers{
		ExternalUserID:      c.GetHeader(HeaderUserID),
		ExternalWorkspaceID: c.GetHeader(HeaderWorkspaceID),
		RequestID:           c.GetHeader(HeaderRequestID),
		IdempotencyKey:      c.GetHeader(HeaderIdempotencyKey),
		ClientIP:            ClientIP(c),
		UserAgent:           c.Request.UserAgent(),
	}
}

// Middleware builds the gateway context; it must run after service key auth.
func Middleware(builder *Builder, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		principal, ok := servicekey.PrincipalFromContext(ctx)
		if !ok {
			router.RespondWithError(c, router.NewAPIError(router.ErrUnauthorizedCode, "Missing service key"))
			return
		}
		gctx, err := builder.Build(principal, HeadersFrom(c), opts)
		if err != nil {
			router.RespondWithError(c, ToAPIError(err))
			return
		}
		log := logger.FromContext(ctx).With("service", principal.ServiceName, "key_prefix", principal.KeyPrefix)
		if gctx.HasUser() {
			log = log.With("canvas_user_id", gctx.ExternalUserID)
		}
		ctx = logger.ContextWithLogger(WithGatewayContext(ctx, gctx), log)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
