package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/gin-gonic/gin"
)

const corsMaxAge = 12 * time.Hour

// LoggerMiddleware logs one line per request with the request-scoped logger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log := logger.FromContext(c.Request.Context())
		status := c.Writer.Status()
		keyvals := []any{
			"latency", time.Since(start),
			"client_ip", reqctx.ClientIP(c),
			"status_code", status,
			"body_size", c.Writer.Size(),
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			keyvals = append(keyvals, "error", msg)
		}
		if status >= http.StatusInternalServerError {
			log.Warn("Request completed", keyvals...)
			return
		}
		log.Info("Request completed", keyvals...)
	}
}

// CORSMiddleware answers preflight requests. The gateway is called by
// backend services, so origins are reflected rather than enumerated.
func CORSMiddleware() gin.HandlerFunc {
	allowHeaders := "Content-Type, Authorization, " +
		servicekey.HeaderServiceKey + ", " +
		reqctx.HeaderUserID + ", " +
		reqctx.HeaderWorkspaceID + ", " +
		reqctx.HeaderRequestID + ", " +
		reqctx.HeaderIdempotencyKey
	maxAge := strconv.Itoa(int(corsMaxAge.Seconds()))
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Headers", allowHeaders)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Expose-Headers", reqctx.HeaderRequestID+", Retry-After")
		c.Header("Access-Control-Max-Age", maxAge)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
