package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/engine/execution"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/compozy/blockgate/engine/userlink"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key"}
}

func TestServiceKeyRepo(t *testing.T) {
	t.Run("Should load an active key by hash", func(t *testing.T) {
		mock := newMock(t)
		repo := NewServiceKeyRepo(mock)
		id := core.MustNewID()
		now := time.Now()
		var never *time.Time
		rows := mock.NewRows(serviceKeyColumns).AddRow(
			id, "canvas", "hash", "bgk_abcd", []string{"blocks:execute"},
			int64(60), int64(1000), map[string]any{}, true, never, never, now, now,
		)
		mock.ExpectQuery("SELECT (.+) FROM service_keys WHERE (.+) LIMIT 1").
			WithArgs("hash", "canvas").
			WillReturnRows(rows)
		key, err := repo.GetByHash(t.Context(), "canvas", "hash")
		require.NoError(t, err)
		assert.Equal(t, id, key.ID)
		assert.Equal(t, []string{"blocks:execute"}, key.Scopes)
		assert.Equal(t, int64(60), key.RateLimitPerMinute)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should map missing rows to ErrKeyNotFound", func(t *testing.T) {
		mock := newMock(t)
		repo := NewServiceKeyRepo(mock)
		mock.ExpectQuery("SELECT (.+) FROM service_keys").
			WithArgs("nope", "canvas").
			WillReturnError(pgx.ErrNoRows)
		_, err := repo.GetByHash(t.Context(), "canvas", "nope")
		assert.ErrorIs(t, err, servicekey.ErrKeyNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should return the database timestamps on create", func(t *testing.T) {
		mock := newMock(t)
		repo := NewServiceKeyRepo(mock)
		now := time.Now().UTC()
		mock.ExpectQuery("INSERT INTO service_keys (.+) RETURNING created_at, updated_at").
			WithArgs(
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		key := &servicekey.Key{ID: core.MustNewID(), ServiceName: "canvas", KeyHash: "h", IsActive: true}
		require.NoError(t, repo.Create(t.Context(), key))
		assert.Equal(t, now, key.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func testAccount() *userlink.Account {
	userID, wsID := core.MustNewID(), core.MustNewID()
	return &userlink.Account{
		User:    &userlink.User{ID: userID, Email: "ada@example.com", Name: "Ada"},
		Credits: decimal.NewFromInt(10),
		Link: &userlink.Link{
			ID: core.MustNewID(), Provider: "canvas", ExternalID: "ext-1", UserID: userID,
		},
		Workspace:  &userlink.Workspace{ID: wsID, Name: "Ada's Workspace", Slug: "ada-workspace", OwnerID: userID},
		Permission: &userlink.Permission{ID: core.MustNewID(), WorkspaceID: wsID, UserID: userID, Permission: userlink.PermissionAdmin},
		Workflow:   &userlink.Workflow{ID: core.MustNewID(), WorkspaceID: wsID, UserID: userID, Name: "Getting Started"},
	}
}

func TestUserLinkRepo_CreateAccount(t *testing.T) {
	t.Run("Should write every row in one transaction", func(t *testing.T) {
		mock := newMock(t)
		repo := NewUserLinkRepo(mock)
		mock.ExpectBegin()
		for _, table := range []string{"users", "usage_limits", "identity_links", "workspaces", "workspace_permissions", "workflows"} {
			mock.ExpectExec("INSERT INTO " + table).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectCommit()
		require.NoError(t, repo.CreateAccount(t.Context(), testAccount()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back when a later insert fails", func(t *testing.T) {
		mock := newMock(t)
		repo := NewUserLinkRepo(mock)
		mock.ExpectBegin()
		for _, table := range []string{"users", "usage_limits", "identity_links"} {
			mock.ExpectExec("INSERT INTO " + table).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectExec("INSERT INTO workspaces").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()
		err := repo.CreateAccount(t.Context(), testAccount())
		require.Error(t, err)
		assert.NotErrorIs(t, err, userlink.ErrUserExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should report a concurrent insert as ErrUserExists", func(t *testing.T) {
		mock := newMock(t)
		repo := NewUserLinkRepo(mock)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO usage_limits").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO identity_links").WillReturnError(uniqueViolation())
		mock.ExpectRollback()
		err := repo.CreateAccount(t.Context(), testAccount())
		assert.ErrorIs(t, err, userlink.ErrUserExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserLinkRepo_Lookups(t *testing.T) {
	t.Run("Should map a missing link to ErrLinkNotFound", func(t *testing.T) {
		mock := newMock(t)
		repo := NewUserLinkRepo(mock)
		mock.ExpectQuery("SELECT (.+) FROM identity_links WHERE (.+)").
			WillReturnError(pgx.ErrNoRows)
		_, err := repo.GetLink(t.Context(), "canvas", "ext-1")
		assert.ErrorIs(t, err, userlink.ErrLinkNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should pick the oldest owned workspace", func(t *testing.T) {
		mock := newMock(t)
		repo := NewUserLinkRepo(mock)
		owner, wsID := core.MustNewID(), core.MustNewID()
		mock.ExpectQuery("SELECT (.+) FROM workspaces WHERE owner_id = \\$1 ORDER BY created_at ASC, id ASC LIMIT 1").
			WithArgs(owner).
			WillReturnRows(mock.NewRows(workspaceColumns).AddRow(wsID, "Ada's Workspace", "ada", owner, time.Now()))
		ws, err := repo.OwnedWorkspace(t.Context(), owner)
		require.NoError(t, err)
		assert.Equal(t, wsID, ws.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should fail seeding a missing workflow", func(t *testing.T) {
		mock := newMock(t)
		repo := NewUserLinkRepo(mock)
		mock.ExpectExec("UPDATE workflows SET state").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		err := repo.SeedWorkflowState(t.Context(), core.MustNewID(), map[string]any{"nodes": []any{}})
		assert.ErrorContains(t, err, "not found")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExecutionRepo(t *testing.T) {
	t.Run("Should map a missing record to ErrExecutionNotFound", func(t *testing.T) {
		mock := newMock(t)
		repo := NewExecutionRepo(mock)
		mock.ExpectQuery("SELECT (.+) FROM execution_logs WHERE execution_id = \\$1 LIMIT 1").
			WithArgs("exec-1").
			WillReturnError(pgx.ErrNoRows)
		_, err := repo.Get(t.Context(), "exec-1")
		assert.ErrorIs(t, err, execution.ErrExecutionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should report a duplicate execution id as not inserted", func(t *testing.T) {
		mock := newMock(t)
		repo := NewExecutionRepo(mock)
		mock.ExpectExec("INSERT INTO execution_logs (.+) ON CONFLICT \\(execution_id\\) DO NOTHING").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		inserted, err := repo.Insert(t.Context(), &execution.Record{
			ID: core.MustNewID(), ExecutionID: "exec-1", BlockType: "echo", Level: execution.LevelInfo,
			StartedAt: time.Now(),
		})
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should only finish records that are still running", func(t *testing.T) {
		mock := newMock(t)
		repo := NewExecutionRepo(mock)
		mock.ExpectExec("UPDATE execution_logs SET (.+) WHERE execution_id = \\$\\d+ AND ended_at IS NULL").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		written, err := repo.Finish(t.Context(), "exec-1", &execution.Terminal{
			Level: execution.LevelInfo, EndedAt: time.Now(), Response: &execution.ResponseSnapshot{},
		})
		require.NoError(t, err)
		assert.False(t, written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should fail stale records older than the cutoff", func(t *testing.T) {
		mock := newMock(t)
		repo := NewExecutionRepo(mock)
		mock.ExpectExec("UPDATE execution_logs SET (.+) WHERE ended_at IS NULL AND started_at < \\$\\d+").
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))
		n, err := repo.FailStale(t.Context(), time.Now().Add(-time.Hour), &execution.Terminal{
			Level: execution.LevelError, EndedAt: time.Now(), Response: &execution.ResponseSnapshot{},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
