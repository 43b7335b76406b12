package router

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/compozy/blockgate/engine/admission/admissiontest"
	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/engine/block/builtin"
	"github.com/compozy/blockgate/engine/execution"
	"github.com/compozy/blockgate/engine/execution/testutil"
	srrouter "github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/infra/server/router/routertest"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/engine/servicekey"
	keytest "github.com/compozy/blockgate/engine/servicekey/testutil"
	"github.com/compozy/blockgate/engine/userlink"
	linktest "github.com/compozy/blockgate/engine/userlink/testutil"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	canvasUser   = "11111111-1111-1111-1111-111111111111"
	unknownUser  = "22222222-2222-2222-2222-222222222222"
	executePath  = "/api/v1/gateway/execute"
	statusPrefix = "/api/v1/gateway/executions/"
)

type fixture struct {
	engine  *gin.Engine
	records *testutil.InMemoryRepo
	users   *linktest.InMemoryRepo
	headers map[string]string
	release chan struct{}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{records: testutil.NewInMemoryRepo(), release: make(chan struct{})}
	descs := append(builtin.Descriptors(),
		&block.Descriptor{Type: "export", Name: "Export", Category: "tools", Action: "export_start"},
		&block.Descriptor{Type: "hang", Name: "Hang", Category: "tools", Action: "hang_wait"},
	)
	catalog, err := block.NewCatalog(descs...)
	require.NoError(t, err)
	_, registry, err := builtin.Load(builtin.Deps{Config: config.BlocksConfig{HTTPTimeout: time.Second}})
	require.NoError(t, err)
	require.NoError(t, registry.Register(
		block.ActionFunc{Name: "export_start", Fn: func(context.Context, map[string]any, *block.ExecContext) (*block.Result, error) {
			return &block.Result{Success: true, Output: map[string]any{
				"status": "running", "jobId": "j1", "message": "processing",
			}}, nil
		}},
		block.ActionFunc{Name: "hang_wait", Fn: func(ctx context.Context, _ map[string]any, _ *block.ExecContext) (*block.Result, error) {
			select {
			case <-f.release:
				return &block.Result{Success: true}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}},
	))

	users := linktest.NewInMemoryRepo()
	f.users = users
	_, err = userlink.NewProvision(users, nil, userlink.Settings{Credits: decimal.NewFromInt(1)},
		&userlink.ProvisionInput{Provider: "canvas", ExternalUserID: canvasUser, Email: "ada@example.com"},
	).Execute(t.Context())
	require.NoError(t, err)

	cfg := &config.ExecutionConfig{
		DefaultTimeout:    5 * time.Second,
		MinTimeout:        time.Second,
		MaxTimeout:        5 * time.Minute,
		BackgroundCeiling: 10 * time.Second,
	}
	svc := execution.NewService(catalog, registry, f.records, users, "canvas", cfg)
	t.Cleanup(svc.Wait)
	t.Cleanup(func() { close(f.release) })

	keys := keytest.NewInMemoryRepo()
	f.engine = routertest.NewEngine(t)
	Register(f.engine.Group("/api/v1/gateway"), admissiontest.NewForTest(t, keys), NewHandler(svc, cfg))
	f.headers = map[string]string{
		servicekey.HeaderServiceKey: keys.Issue(t, "canvas", 0, servicekey.ScopeBlocksExecute),
		reqctx.HeaderUserID:         canvasUser,
	}
	return f
}

func (f *fixture) as(userID string) map[string]string {
	h := map[string]string{servicekey.HeaderServiceKey: f.headers[servicekey.HeaderServiceKey]}
	if userID != "" {
		h[reqctx.HeaderUserID] = userID
	}
	return h
}

func TestExecute(t *testing.T) {
	t.Run("Should return USER_NOT_PROVISIONED for an unknown user", func(t *testing.T) {
		f := setup(t)
		w := routertest.Perform(t, f.engine, http.MethodPost, executePath, map[string]any{
			"blockType": "gmail",
			"params":    map[string]any{"operation": "send", "to": "x@example.com"},
		}, f.as(unknownUser))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, srrouter.ErrUserNotProvisionedCode, routertest.DecodeError(t, w).Code)
		assert.Equal(t, 0, f.records.Len())
	})

	t.Run("Should resolve a user whatever case the header uses", func(t *testing.T) {
		f := setup(t)
		_, err := userlink.NewProvision(f.users, nil, userlink.Settings{Credits: decimal.NewFromInt(1)},
			&userlink.ProvisionInput{
				Provider:       "canvas",
				ExternalUserID: "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa",
				Email:          "grace@example.com",
			},
		).Execute(t.Context())
		require.NoError(t, err)
		w := routertest.Perform(t, f.engine, http.MethodPost, executePath, map[string]any{
			"blockType": "echo",
			"params":    map[string]any{"message": "hi"},
			"context":   map[string]any{"executionId": "exec-case"},
		}, f.as("AAAAAAAA-AAAA-4AAA-8AAA-AAAAAAAAAAAA"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = routertest.Perform(t, f.engine, http.MethodGet, statusPrefix+"exec-case", nil,
			f.as("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should return INVALID_BLOCK_TYPE for an unknown block", func(t *testing.T) {
		f := setup(t)
		w := routertest.Perform(t, f.engine, http.MethodPost, executePath, map[string]any{
			"blockType": "nonexistent_block",
			"params":    map[string]any{},
		}, f.headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, srrouter.ErrInvalidBlockTypeCode, routertest.DecodeError(t, w).Code)
	})

	t.Run("Should map missing downstream credentials", func(t *testing.T) {
		f := setup(t)
		w := routertest.Perform(t, f.engine, http.MethodPost, executePath, map[string]any{
			"blockType": "gmail",
			"inputs":    map[string]any{"operation": "send", "to": "x@example.com", "subject": "hi", "body": "yo"},
		}, f.headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, srrouter.ErrMissingCredentialsCode, routertest.DecodeError(t, w).Code)
	})

	t.Run("Should return 202 for async jobs and completed once the record is terminal", func(t *testing.T) {
		f := setup(t)
		w := routertest.Perform(t, f.engine, http.MethodPost, executePath, map[string]any{
			"blockType": "export",
			"params":    map[string]any{},
			"context":   map[string]any{"executionId": "exec-d"},
		}, f.headers)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		var running execution.RunningPayload
		routertest.DecodeData(t, w, &running)
		assert.Equal(t, execution.StatusRunning, running.Status)
		assert.Equal(t, statusPrefix+"exec-d", running.PollURL)

		w = routertest.Perform(t, f.engine, http.MethodGet, running.PollURL, nil, f.as(""))
		assert.Equal(t, http.StatusAccepted, w.Code)

		now := time.Now().UTC()
		written, err := f.records.Finish(t.Context(), "exec-d", &execution.Terminal{
			Level:   execution.LevelInfo,
			EndedAt: now,
			Response: &execution.ResponseSnapshot{
				Output: map[string]any{"rows": 10},
				Timing: execution.Timing{StartedAt: now.Add(-time.Second), CompletedAt: now, DurationMs: 1000},
			},
		})
		require.NoError(t, err)
		require.True(t, written)

		w = routertest.Perform(t, f.engine, http.MethodGet, running.PollURL, nil, f.as(""))
		require.Equal(t, http.StatusOK, w.Code)
		var completed execution.CompletedPayload
		routertest.DecodeData(t, w, &completed)
		assert.Equal(t, execution.StatusCompleted, completed.Status)
		assert.Equal(t, float64(10), completed.Output["rows"])
	})

	t.Run("Should time out at the requested bound", func(t *testing.T) {
		f := setup(t)
		started := time.Now()
		w := routertest.Perform(t, f.engine, http.MethodPost, executePath, map[string]any{
			"blockType": "hang",
			"params":    map[string]any{},
			"options":   map[string]any{"timeout": 1000},
		}, f.headers)
		elapsed := time.Since(started)
		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Equal(t, srrouter.ErrTimeoutCode, routertest.DecodeError(t, w).Code)
		assert.GreaterOrEqual(t, elapsed, time.Second)
		assert.Less(t, elapsed, 1500*time.Millisecond)
	})

	t.Run("Should validate the body before running anything", func(t *testing.T) {
		f := setup(t)
		cases := []struct {
			body  map[string]any
			field string
		}{
			{map[string]any{"blockType": "echo"}, "params"},
			{map[string]any{"blockType": "echo", "params": map[string]any{}, "options": map[string]any{"timeout": 999}}, "timeout"},
			{map[string]any{"blockType": "echo", "params": map[string]any{}, "options": map[string]any{"timeout": 300001}}, "timeout"},
			{map[string]any{"blockType": "echo", "params": map[string]any{}, "options": map[string]any{"timeout": int64(288230376151716728)}}, "timeout"},
			{map[string]any{"params": map[string]any{}}, "blockType"},
		}
		for _, tc := range cases {
			w := routertest.Perform(t, f.engine, http.MethodPost, executePath, tc.body, f.headers)
			require.Equal(t, http.StatusBadRequest, w.Code, tc.field)
			env := routertest.DecodeError(t, w)
			assert.Equal(t, srrouter.ErrInvalidParamsCode, env.Code)
			assert.Contains(t, env.Details, tc.field)
		}
		assert.Equal(t, 0, f.records.Len())
	})

	t.Run("Should let params replace inputs key by key", func(t *testing.T) {
		f := setup(t)
		w := routertest.Perform(t, f.engine, http.MethodPost, executePath, map[string]any{
			"blockType": "echo",
			"inputs":    map[string]any{"payload": map[string]any{"x": 1, "y": 2}, "message": "from inputs"},
			"params":    map[string]any{"payload": map[string]any{"x": 3}},
		}, f.headers)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var completed execution.CompletedPayload
		routertest.DecodeData(t, w, &completed)
		params, ok := completed.Output["params"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, map[string]any{"x": float64(3)}, params["payload"])
		assert.Equal(t, "from inputs", params["message"])
	})

	t.Run("Should require the user header", func(t *testing.T) {
		f := setup(t)
		w := routertest.Perform(t, f.engine, http.MethodPost, executePath, map[string]any{
			"blockType": "echo", "params": map[string]any{},
		}, f.as(""))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, srrouter.ErrInvalidParamsCode, routertest.DecodeError(t, w).Code)
	})

	t.Run("Should replay a stored failure with its status", func(t *testing.T) {
		f := setup(t)
		body := map[string]any{
			"blockType": "schedule",
			"params":    map[string]any{},
			"context":   map[string]any{"executionId": "exec-f"},
		}
		first := routertest.Perform(t, f.engine, http.MethodPost, executePath, body, f.headers)
		require.Equal(t, http.StatusInternalServerError, first.Code, first.Body.String())
		w := routertest.Perform(t, f.engine, http.MethodGet, statusPrefix+"exec-f", nil, f.as(""))
		assert.Equal(t, first.Code, w.Code)
		assert.Equal(t, routertest.DecodeError(t, first).Code, routertest.DecodeError(t, w).Code)
	})
}
