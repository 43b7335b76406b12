package userlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/blockgate/engine/core"
)

// Resolution is the internal identity behind an external user id.
type Resolution struct {
	Link      *Link
	User      *User
	Workspace *Workspace
}

// LookupResult is the response shape for a user lookup.
type LookupResult struct {
	CanvasUserID   string    `json:"canvasUserId"`
	SimUserID      core.ID   `json:"simUserId"`
	SimWorkspaceID *core.ID  `json:"simWorkspaceId"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	LinkedAt       time.Time `json:"linkedAt"`
}

// Resolve finds the linked user and owned workspace. A missing workspace is
// not an error here; callers that need one decide how to treat it.
func Resolve(ctx context.Context, repo Repository, provider, externalID string) (*Resolution, error) {
	link, err := repo.GetLink(ctx, provider, externalID)
	if err != nil {
		return nil, err
	}
	user, err := repo.GetUser(ctx, link.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading linked user %s: %w", link.UserID, err)
	}
	ws, err := repo.OwnedWorkspace(ctx, user.ID)
	if err != nil && !errors.Is(err, ErrWorkspaceNotFound) {
		return nil, fmt.Errorf("loading workspace for user %s: %w", user.ID, err)
	}
	return &Resolution{Link: link, User: user, Workspace: ws}, nil
}

type Lookup struct {
	repo       Repository
	provider   string
	externalID string
}

func NewLookup(repo Repository, provider, externalID string) *Lookup {
	return &Lookup{repo: repo, provider: provider, externalID: externalID}
}

func (uc *Lookup) Execute(ctx context.Context) (*LookupResult, error) {
	res, err := Resolve(ctx, uc.repo, uc.provider, uc.externalID)
	if err != nil {
		return nil, err
	}
	out := &LookupResult{
		CanvasUserID: res.Link.ExternalID,
		SimUserID:    res.User.ID,
		Email:        res.User.Email,
		Name:         res.User.Name,
		LinkedAt:     res.Link.CreatedAt,
	}
	if res.Workspace != nil {
		id := res.Workspace.ID
		out.SimWorkspaceID = &id
	}
	return out, nil
}
