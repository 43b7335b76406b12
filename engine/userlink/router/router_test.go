package router

import (
	"net/http"
	"testing"

	"github.com/compozy/blockgate/engine/admission/admissiontest"
	srrouter "github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/infra/server/router/routertest"
	"github.com/compozy/blockgate/engine/servicekey"
	keytest "github.com/compozy/blockgate/engine/servicekey/testutil"
	"github.com/compozy/blockgate/engine/userlink"
	"github.com/compozy/blockgate/engine/userlink/testutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const canvasUser = "11111111-1111-1111-1111-111111111111"

type fixture struct {
	engine *gin.Engine
	keys   *keytest.InMemoryRepo
	repo   *testutil.InMemoryRepo
}

func setup(t *testing.T) *fixture {
	t.Helper()
	keys := keytest.NewInMemoryRepo()
	repo := testutil.NewInMemoryRepo()
	engine := routertest.NewEngine(t)
	settings := userlink.Settings{Credits: decimal.NewFromInt(10), WorkflowName: "My first workflow"}
	Register(engine.Group("/api/v1/gateway"), admissiontest.NewForTest(t, keys),
		NewHandler(repo, nil, settings, "canvas"))
	return &fixture{engine: engine, keys: keys, repo: repo}
}

func TestProvisionAndLookup(t *testing.T) {
	t.Run("Should provision then resolve the same user with a workspace", func(t *testing.T) {
		f := setup(t)
		key := f.keys.Issue(t, "canvas", 0, servicekey.ScopeUsersProvision, servicekey.ScopeUsersRead)
		headers := map[string]string{servicekey.HeaderServiceKey: key}

		w := routertest.Perform(t, f.engine, http.MethodPost, "/api/v1/gateway/users/provision", map[string]any{
			"canvasUserId": canvasUser,
			"email":        "new@example.com",
			"name":         "New User",
		}, headers)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var created userlink.ProvisionResult
		routertest.DecodeData(t, w, &created)
		assert.False(t, created.SimUserID.IsZero())

		w = routertest.Perform(t, f.engine, http.MethodGet, "/api/v1/gateway/users/"+canvasUser, nil, headers)
		require.Equal(t, http.StatusOK, w.Code)
		var found userlink.LookupResult
		routertest.DecodeData(t, w, &found)
		assert.Equal(t, created.SimUserID, found.SimUserID)
		assert.NotNil(t, found.SimWorkspaceID)
	})

	t.Run("Should answer 409 with alreadyExisted on a repeat", func(t *testing.T) {
		f := setup(t)
		key := f.keys.Issue(t, "canvas", 0, servicekey.ScopeUsersProvision)
		body := map[string]any{"canvasUserId": canvasUser, "email": "dup@example.com"}
		headers := map[string]string{servicekey.HeaderServiceKey: key}
		require.Equal(t, http.StatusCreated,
			routertest.Perform(t, f.engine, http.MethodPost, "/api/v1/gateway/users/provision", body, headers).Code)
		w := routertest.Perform(t, f.engine, http.MethodPost, "/api/v1/gateway/users/provision", body, headers)
		require.Equal(t, http.StatusConflict, w.Code)
		var res userlink.ProvisionResult
		routertest.DecodeData(t, w, &res)
		assert.True(t, res.AlreadyExisted)
	})

	t.Run("Should accept uppercase ids and store them canonically", func(t *testing.T) {
		f := setup(t)
		key := f.keys.Issue(t, "canvas", 0, servicekey.ScopeUsersProvision, servicekey.ScopeUsersRead)
		headers := map[string]string{servicekey.HeaderServiceKey: key}
		w := routertest.Perform(t, f.engine, http.MethodPost, "/api/v1/gateway/users/provision", map[string]any{
			"canvasUserId":      "AAAAAAAA-AAAA-4AAA-8AAA-AAAAAAAAAAAA",
			"canvasWorkspaceId": "BBBBBBBB-BBBB-4BBB-8BBB-BBBBBBBBBBBB",
			"email":             "upper@example.com",
		}, headers)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = routertest.Perform(t, f.engine, http.MethodGet,
			"/api/v1/gateway/users/aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", nil, headers)
		assert.Equal(t, http.StatusOK, w.Code)
		w = routertest.Perform(t, f.engine, http.MethodPost, "/api/v1/gateway/users/provision", map[string]any{
			"canvasUserId": "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa",
			"email":        "upper@example.com",
		}, headers)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Should reject a malformed workspace id", func(t *testing.T) {
		f := setup(t)
		key := f.keys.Issue(t, "canvas", 0, servicekey.ScopeUsersProvision)
		w := routertest.Perform(t, f.engine, http.MethodPost, "/api/v1/gateway/users/provision",
			map[string]any{"canvasUserId": canvasUser, "email": "a@b.com", "canvasWorkspaceId": "ws-1"},
			map[string]string{servicekey.HeaderServiceKey: key})
		require.Equal(t, http.StatusBadRequest, w.Code)
		details, ok := routertest.DecodeError(t, w).Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "must be a valid UUID", details["canvasWorkspaceId"])
		assert.Equal(t, 0, f.repo.UserCount())
	})

	t.Run("Should reject invalid bodies with field details", func(t *testing.T) {
		f := setup(t)
		key := f.keys.Issue(t, "canvas", 0, servicekey.ScopeUsersProvision)
		w := routertest.Perform(t, f.engine, http.MethodPost, "/api/v1/gateway/users/provision",
			map[string]any{"canvasUserId": "abc", "email": "not-an-email"},
			map[string]string{servicekey.HeaderServiceKey: key})
		require.Equal(t, http.StatusBadRequest, w.Code)
		env := routertest.DecodeError(t, w)
		assert.Equal(t, srrouter.ErrInvalidParamsCode, env.Code)
		details, ok := env.Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "must be a valid UUID", details["canvasUserId"])
		assert.Equal(t, "must be a valid email address", details["email"])
	})

	t.Run("Should return USER_NOT_PROVISIONED for unknown users", func(t *testing.T) {
		f := setup(t)
		key := f.keys.Issue(t, "canvas", 0, servicekey.ScopeUsersRead)
		w := routertest.Perform(t, f.engine, http.MethodGet, "/api/v1/gateway/users/"+canvasUser, nil,
			map[string]string{servicekey.HeaderServiceKey: key})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, srrouter.ErrUserNotProvisionedCode, routertest.DecodeError(t, w).Code)
	})

	t.Run("Should require the provision scope", func(t *testing.T) {
		f := setup(t)
		key := f.keys.Issue(t, "canvas", 0, servicekey.ScopeUsersRead)
		w := routertest.Perform(t, f.engine, http.MethodPost, "/api/v1/gateway/users/provision",
			map[string]any{"canvasUserId": canvasUser, "email": "a@b.com"},
			map[string]string{servicekey.HeaderServiceKey: key})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, srrouter.ErrInsufficientScopeCode, routertest.DecodeError(t, w).Code)
		assert.Equal(t, 0, f.repo.UserCount())
	})
}
