package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/engine/userlink"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

var (
	linkColumns      = []string{"id", "provider", "external_id", "user_id", "metadata", "created_at", "updated_at"}
	userColumns      = []string{"id", "email", "name", "email_verified", "created_at", "updated_at"}
	workspaceColumns = []string{"id", "name", "slug", "owner_id", "created_at"}
)

// UserLinkRepo implements userlink.Repository.
type UserLinkRepo struct {
	db DB
}

func NewUserLinkRepo(db DB) *UserLinkRepo {
	return &UserLinkRepo{db: db}
}

func (r *UserLinkRepo) GetLink(ctx context.Context, provider, externalID string) (*userlink.Link, error) {
	sb := squirrel.Select(linkColumns...).
		From("identity_links").
		Where(squirrel.Eq{"provider": provider, "external_id": externalID})
	var link userlink.Link
	if err := getOne(ctx, r.db, &link, sb, userlink.ErrLinkNotFound); err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *UserLinkRepo) GetUser(ctx context.Context, id core.ID) (*userlink.User, error) {
	sb := squirrel.Select(userColumns...).From("users").Where(squirrel.Eq{"id": id})
	var user userlink.User
	if err := getOne(ctx, r.db, &user, sb, userlink.ErrUserNotFound); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserLinkRepo) GetUserByEmail(ctx context.Context, email string) (*userlink.User, error) {
	sb := squirrel.Select(userColumns...).From("users").Where("lower(email) = lower(?)", email)
	var user userlink.User
	if err := getOne(ctx, r.db, &user, sb, userlink.ErrUserNotFound); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserLinkRepo) OwnedWorkspace(ctx context.Context, userID core.ID) (*userlink.Workspace, error) {
	sb := squirrel.Select(workspaceColumns...).
		From("workspaces").
		Where(squirrel.Eq{"owner_id": userID}).
		OrderBy("created_at ASC", "id ASC")
	var ws userlink.Workspace
	if err := getOne(ctx, r.db, &ws, sb, userlink.ErrWorkspaceNotFound); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *UserLinkRepo) CreateLink(ctx context.Context, link *userlink.Link) error {
	if err := insertLink(ctx, r.db, link); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", userlink.ErrUserExists, err)
		}
		return err
	}
	return nil
}

// CreateAccount writes the user, credit allowance, link, workspace, owner
// permission and starter workflow in one transaction.
func (r *UserLinkRepo) CreateAccount(ctx context.Context, account *userlink.Account) error {
	err := withTransaction(ctx, r.db, func(tx pgx.Tx) error {
		u := account.User
		inserts := []squirrel.InsertBuilder{
			squirrel.Insert("users").
				Columns("id", "email", "name", "email_verified").
				Values(u.ID, u.Email, u.Name, u.EmailVerified),
			squirrel.Insert("usage_limits").
				Columns("user_id", "credits_balance").
				Values(u.ID, account.Credits),
		}
		for _, ib := range inserts {
			if err := execInsert(ctx, tx, ib); err != nil {
				return err
			}
		}
		if err := insertLink(ctx, tx, account.Link); err != nil {
			return err
		}
		ws, perm, wf := account.Workspace, account.Permission, account.Workflow
		inserts = []squirrel.InsertBuilder{
			squirrel.Insert("workspaces").
				Columns("id", "name", "slug", "owner_id").
				Values(ws.ID, ws.Name, ws.Slug, ws.OwnerID),
			squirrel.Insert("workspace_permissions").
				Columns("id", "workspace_id", "user_id", "permission").
				Values(perm.ID, perm.WorkspaceID, perm.UserID, perm.Permission),
			squirrel.Insert("workflows").
				Columns("id", "workspace_id", "user_id", "name").
				Values(wf.ID, wf.WorkspaceID, wf.UserID, wf.Name),
		}
		for _, ib := range inserts {
			if err := execInsert(ctx, tx, ib); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %w", userlink.ErrUserExists, err)
	}
	return err
}

func (r *UserLinkRepo) SeedWorkflowState(ctx context.Context, workflowID core.ID, state map[string]any) error {
	query, args, err := squirrel.Update("workflows").
		Set("state", state).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": workflowID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building workflow state update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating workflow state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s not found", workflowID)
	}
	return nil
}

func insertLink(ctx context.Context, db DB, link *userlink.Link) error {
	metadata := link.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return execInsert(ctx, db, squirrel.Insert("identity_links").
		Columns("id", "provider", "external_id", "user_id", "metadata").
		Values(link.ID, link.Provider, link.ExternalID, link.UserID, metadata))
}

func execInsert(ctx context.Context, db DB, ib squirrel.InsertBuilder) error {
	query, args, err := ib.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("executing insert: %w", err)
	}
	return nil
}

// getOne scans the first row of sb into dst, returning notFound when empty.
func getOne(ctx context.Context, db DB, dst any, sb squirrel.SelectBuilder, notFound error) error {
	query, args, err := sb.Limit(1).PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	if err := pgxscan.Get(ctx, db, dst, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound
		}
		return fmt.Errorf("scanning row: %w", err)
	}
	return nil
}
