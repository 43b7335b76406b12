package router

import (
	"net/http"
	"testing"

	"github.com/compozy/blockgate/engine/admission/admissiontest"
	"github.com/compozy/blockgate/engine/block/builtin"
	srrouter "github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/infra/server/router/routertest"
	"github.com/compozy/blockgate/engine/servicekey"
	keytest "github.com/compozy/blockgate/engine/servicekey/testutil"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*gin.Engine, map[string]string) {
	t.Helper()
	catalog, _, err := builtin.Load(builtin.Deps{Config: config.Default().Blocks})
	require.NoError(t, err)
	h, err := NewHandler(catalog)
	require.NoError(t, err)
	keys := keytest.NewInMemoryRepo()
	engine := routertest.NewEngine(t)
	Register(engine.Group("/api/v1/gateway"), admissiontest.NewForTest(t, keys), h)
	raw := keys.Issue(t, "canvas", 0, servicekey.ScopeBlocksList)
	return engine, map[string]string{servicekey.HeaderServiceKey: raw}
}

func TestListBlocks(t *testing.T) {
	t.Run("Should list visible non-trigger blocks with paging metadata", func(t *testing.T) {
		engine, headers := setup(t)
		w := routertest.Perform(t, engine, http.MethodGet, "/api/v1/gateway/blocks", nil, headers)
		require.Equal(t, http.StatusOK, w.Code)
		var res ListResponse
		routertest.DecodeData(t, w, &res)
		assert.Equal(t, 50, res.Limit)
		assert.Equal(t, 0, res.Offset)
		types := make([]string, 0, len(res.Blocks))
		for _, b := range res.Blocks {
			types = append(types, b.Type)
		}
		assert.NotContains(t, types, "schedule")
		assert.NotContains(t, types, "echo")
		assert.Contains(t, types, "gmail")
		assert.Equal(t, len(types), res.Total)
	})

	t.Run("Should include hidden blocks and cap the limit", func(t *testing.T) {
		engine, headers := setup(t)
		w := routertest.Perform(t, engine, http.MethodGet,
			"/api/v1/gateway/blocks?includeHidden=true&limit=500&category=BLOCKS", nil, headers)
		require.Equal(t, http.StatusOK, w.Code)
		var res ListResponse
		routertest.DecodeData(t, w, &res)
		assert.Equal(t, 100, res.Limit)
		found := false
		for _, b := range res.Blocks {
			assert.Equal(t, "blocks", b.Category)
			found = found || b.Type == "echo"
		}
		assert.True(t, found)
	})

	t.Run("Should reject malformed paging", func(t *testing.T) {
		engine, headers := setup(t)
		w := routertest.Perform(t, engine, http.MethodGet, "/api/v1/gateway/blocks?offset=-1", nil, headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, srrouter.ErrInvalidParamsCode, routertest.DecodeError(t, w).Code)
	})
}

func TestBlockSchema(t *testing.T) {
	t.Run("Should return input and credential metadata", func(t *testing.T) {
		engine, headers := setup(t)
		w := routertest.Perform(t, engine, http.MethodGet, "/api/v1/gateway/blocks/gmail_send/schema", nil, headers)
		require.Equal(t, http.StatusOK, w.Code)
		var res map[string]any
		routertest.DecodeData(t, w, &res)
		assert.Equal(t, "gmail", res["type"])
		creds, ok := res["credentials"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, creds["required"])
		inputs, ok := res["inputs"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, inputs["properties"], "operation")
	})

	t.Run("Should answer INVALID_BLOCK_TYPE for unknown blocks", func(t *testing.T) {
		engine, headers := setup(t)
		w := routertest.Perform(t, engine, http.MethodGet, "/api/v1/gateway/blocks/nonexistent/schema", nil, headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, srrouter.ErrInvalidBlockTypeCode, routertest.DecodeError(t, w).Code)
	})
}
