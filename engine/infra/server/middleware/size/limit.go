package size

import (
	"fmt"
	"net/http"

	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/gin-gonic/gin"
)

// BodySizeLimiter rejects bodies larger than limit bytes. A declared
// Content-Length over the limit is refused before the handler runs; bodies
// without one are capped while being read and fail JSON binding.
func BodySizeLimiter(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			router.RespondWithError(c, router.InvalidParams("Request body too large", map[string]string{
				"body": fmt.Sprintf("must not exceed %d bytes", limit),
			}))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
