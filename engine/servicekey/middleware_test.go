package servicekey

import (
	"net/http"
	"testing"

	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/infra/server/router/routertest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	setup := func(t *testing.T, key *Key, hash string, required ...Scope) (*gin.Engine, *Authenticator) {
		repo := &mockRepository{}
		if key != nil {
			repo.On("GetByHash", mock.Anything, "canvas", hash).Return(key, nil)
			repo.On("TouchLastUsed", mock.Anything, key.ID, mock.Anything).Return(nil)
		}
		auth := NewAuthenticator(repo, "canvas", testPrefix, 2)
		engine := routertest.NewEngine(t)
		engine.GET("/whoami", Middleware(auth, required...), func(c *gin.Context) {
			p, ok := PrincipalFromContext(c.Request.Context())
			require.True(t, ok)
			c.JSON(http.StatusOK, gin.H{"service": p.ServiceName})
		})
		return engine, auth
	}

	t.Run("Should return 401 when no key is presented", func(t *testing.T) {
		engine, _ := setup(t, nil, "")
		w := routertest.Perform(t, engine, http.MethodGet, "/whoami", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, router.ErrUnauthorizedCode, routertest.DecodeError(t, w).Code)
	})

	t.Run("Should accept the key from the Authorization header", func(t *testing.T) {
		gen, key := newTestKey(t)
		engine, auth := setup(t, key, gen.Hash, ScopeBlocksList)
		w := routertest.Perform(t, engine, http.MethodGet, "/whoami", nil, map[string]string{
			"Authorization": "Bearer " + gen.Raw,
		})
		auth.Wait()
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "canvas")
	})

	t.Run("Should return 403 with the missing scopes", func(t *testing.T) {
		gen, key := newTestKey(t)
		engine, _ := setup(t, key, gen.Hash, ScopeUsersProvision)
		w := routertest.Perform(t, engine, http.MethodGet, "/whoami", nil, map[string]string{
			HeaderServiceKey: gen.Raw,
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
		env := routertest.DecodeError(t, w)
		assert.Equal(t, router.ErrInsufficientScopeCode, env.Code)
		assert.Equal(t, map[string]any{"missingScopes": []any{"users:provision"}}, env.Details)
	})
}
