package userlink

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/shopspring/decimal"
)

const metadataWorkspaceKey = "canvasWorkspaceId"

type ProvisionInput struct {
	Provider            string
	ExternalUserID      string
	Email               string
	Name                string
	ExternalWorkspaceID string
	Metadata            map[string]any
}

type ProvisionResult struct {
	SimUserID      core.ID   `json:"simUserId"`
	CanvasUserID   string    `json:"canvasUserId"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"createdAt"`
	LinkID         core.ID   `json:"linkId"`
	AlreadyExisted bool      `json:"alreadyExisted,omitempty"`
}

// Settings carries the defaults applied to new accounts.
type Settings struct {
	Credits      decimal.Decimal
	WorkflowName string
}

type Provision struct {
	repo     Repository
	seeder   *Seeder
	settings Settings
	input    *ProvisionInput
	now      func() time.Time
}

func NewProvision(repo Repository, seeder *Seeder, settings Settings, input *ProvisionInput) *Provision {
	return &Provision{
		repo:     repo,
		seeder:   seeder,
		settings: settings,
		input:    input,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Execute links the external user, creating an account when needed. Exactly
// one of three outcomes applies: existing link, new link to an account with
// the same email, or a brand new account.
func (uc *Provision) Execute(ctx context.Context) (*ProvisionResult, error) {
	log := logger.FromContext(ctx).With("canvas_user_id", uc.input.ExternalUserID)
	email := normalizeEmail(uc.input.Email)
	existing, err := uc.existingLink(ctx)
	if err != nil || existing != nil {
		return existing, err
	}
	user, err := uc.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		link, err := uc.linkExisting(ctx, user)
		if err != nil {
			return nil, err
		}
		log.Info("Linked external user to existing account", "user_id", user.ID)
		return &ProvisionResult{
			SimUserID:    user.ID,
			CanvasUserID: link.ExternalID,
			Email:        user.Email,
			CreatedAt:    link.CreatedAt,
			LinkID:       link.ID,
		}, nil
	case !errors.Is(err, ErrUserNotFound):
		return nil, fmt.Errorf("looking up user by email: %w", err)
	}
	account, err := uc.newAccount(email)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}
	log.Info("Provisioned new account", "user_id", account.User.ID, "workspace_id", account.Workspace.ID)
	if uc.seeder != nil {
		uc.seeder.Seed(ctx, account.Workflow)
	}
	return &ProvisionResult{
		SimUserID:    account.User.ID,
		CanvasUserID: account.Link.ExternalID,
		Email:        account.User.Email,
		CreatedAt:    account.Link.CreatedAt,
		LinkID:       account.Link.ID,
	}, nil
}

func (uc *Provision) existingLink(ctx context.Context) (*ProvisionResult, error) {
	link, err := uc.repo.GetLink(ctx, uc.input.Provider, uc.input.ExternalUserID)
	if errors.Is(err, ErrLinkNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up identity link: %w", err)
	}
	user, err := uc.repo.GetUser(ctx, link.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading linked user %s: %w", link.UserID, err)
	}
	return &ProvisionResult{
		SimUserID:      user.ID,
		CanvasUserID:   link.ExternalID,
		Email:          user.Email,
		CreatedAt:      link.CreatedAt,
		LinkID:         link.ID,
		AlreadyExisted: true,
	}, nil
}

func (uc *Provision) linkExisting(ctx context.Context, user *User) (*Link, error) {
	link, err := uc.buildLink(user.ID)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.CreateLink(ctx, link); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("creating identity link: %w", err)
	}
	return link, nil
}

func (uc *Provision) buildLink(userID core.ID) (*Link, error) {
	id, err := core.NewID()
	if err != nil {
		return nil, err
	}
	now := uc.now()
	return &Link{
		ID:         id,
		Provider:   uc.input.Provider,
		ExternalID: uc.input.ExternalUserID,
		UserID:     userID,
		Metadata:   uc.linkMetadata(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (uc *Provision) linkMetadata() map[string]any {
	if len(uc.input.Metadata) == 0 && uc.input.ExternalWorkspaceID == "" {
		return nil
	}
	meta := make(map[string]any, len(uc.input.Metadata)+1)
	maps.Copy(meta, uc.input.Metadata)
	if uc.input.ExternalWorkspaceID != "" {
		meta[metadataWorkspaceKey] = uc.input.ExternalWorkspaceID
	}
	return meta
}

func (uc *Provision) newAccount(email string) (*Account, error) {
	ids := make([]core.ID, 4)
	for i := range ids {
		id, err := core.NewID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate id: %w", err)
		}
		ids[i] = id
	}
	userID, wsID, permID, wfID := ids[0], ids[1], ids[2], ids[3]
	name := strings.TrimSpace(uc.input.Name)
	if name == "" {
		name = DeriveName(email)
	}
	link, err := uc.buildLink(userID)
	if err != nil {
		return nil, err
	}
	now := link.CreatedAt
	wsName := WorkspaceName(name)
	return &Account{
		User: &User{
			ID:            userID,
			Email:         email,
			Name:          name,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		Credits: uc.settings.Credits,
		Link:    link,
		Workspace: &Workspace{
			ID:        wsID,
			Name:      wsName,
			Slug:      WorkspaceSlug(wsName, wsID.String()),
			OwnerID:   userID,
			CreatedAt: now,
		},
		Permission: &Permission{
			ID:          permID,
			WorkspaceID: wsID,
			UserID:      userID,
			Permission:  PermissionAdmin,
			CreatedAt:   now,
		},
		Workflow: &Workflow{
			ID:          wfID,
			WorkspaceID: wsID,
			UserID:      userID,
			Name:        uc.settings.WorkflowName,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
