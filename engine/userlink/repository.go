package userlink

import (
	"context"

	"github.com/compozy/blockgate/engine/core"
)

type Repository interface {
	GetLink(ctx context.Context, provider, externalID string) (*Link, error)
	GetUser(ctx context.Context, id core.ID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// OwnedWorkspace returns the oldest workspace owned by the user.
	OwnedWorkspace(ctx context.Context, userID core.ID) (*Workspace, error)
	CreateLink(ctx context.Context, link *Link) error
	// CreateAccount persists every part of account atomically.
	CreateAccount(ctx context.Context, account *Account) error
	SeedWorkflowState(ctx context.Context, workflowID core.ID, state map[string]any) error
}
