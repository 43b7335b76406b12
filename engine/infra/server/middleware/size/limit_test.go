package size

import (
	"net/http"
	"strings"
	"testing"

	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/infra/server/router/routertest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBodySizeLimiter(t *testing.T) {
	engine := routertest.NewEngine(t)
	engine.POST("/echo", BodySizeLimiter(32), func(c *gin.Context) {
		var body map[string]any
		if apiErr := router.BindJSON(c, &body); apiErr != nil {
			router.RespondWithError(c, apiErr)
			return
		}
		router.RespondOK(c, body)
	})

	t.Run("Should accept bodies within the limit", func(t *testing.T) {
		w := routertest.Perform(t, engine, http.MethodPost, "/echo", map[string]any{"a": 1}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should reject bodies over the limit with INVALID_PARAMS", func(t *testing.T) {
		w := routertest.Perform(t, engine, http.MethodPost, "/echo", map[string]any{
			"text": strings.Repeat("x", 64),
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := routertest.DecodeError(t, w)
		assert.Equal(t, router.ErrInvalidParamsCode, env.Code)
		assert.Contains(t, env.Details, "body")
	})
}
