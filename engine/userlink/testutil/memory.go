package testutil

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/engine/userlink"
)

// InMemoryRepo is a userlink.Repository with the same uniqueness rules as
// the postgres schema.
type InMemoryRepo struct {
	mu         sync.Mutex
	links      map[string]*userlink.Link
	users      map[core.ID]*userlink.User
	workspaces map[core.ID]*userlink.Workspace
	workflows  map[core.ID]map[string]any
	credits    map[core.ID]string

	// FailCreateAccount, when set, is returned by CreateAccount before any write.
	FailCreateAccount error
	// FailSeed, when set, is returned by SeedWorkflowState.
	FailSeed error
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		links:      map[string]*userlink.Link{},
		users:      map[core.ID]*userlink.User{},
		workspaces: map[core.ID]*userlink.Workspace{},
		workflows:  map[core.ID]map[string]any{},
		credits:    map[core.ID]string{},
	}
}

func linkKey(provider, externalID string) string {
	return provider + "\x00" + externalID
}

func (r *InMemoryRepo) GetLink(_ context.Context, provider, externalID string) (*userlink.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[linkKey(provider, externalID)]
	if !ok {
		return nil, userlink.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (r *InMemoryRepo) GetUser(_ context.Context, id core.ID) (*userlink.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, userlink.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *InMemoryRepo) GetUserByEmail(_ context.Context, email string) (*userlink.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, userlink.ErrUserNotFound
}

func (r *InMemoryRepo) OwnedWorkspace(_ context.Context, userID core.ID) (*userlink.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ws := range r.workspaces {
		if ws.OwnerID == userID {
			cp := *ws
			return &cp, nil
		}
	}
	return nil, userlink.ErrWorkspaceNotFound
}

func (r *InMemoryRepo) CreateLink(_ context.Context, link *userlink.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLink(link)
}

func (r *InMemoryRepo) insertLink(link *userlink.Link) error {
	key := linkKey(link.Provider, link.ExternalID)
	if _, ok := r.links[key]; ok {
		return userlink.ErrUserExists
	}
	cp := *link
	r.links[key] = &cp
	return nil
}

func (r *InMemoryRepo) CreateAccount(_ context.Context, account *userlink.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreateAccount != nil {
		return r.FailCreateAccount
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, account.User.Email) {
			return userlink.ErrUserExists
		}
	}
	if _, ok := r.links[linkKey(account.Link.Provider, account.Link.ExternalID)]; ok {
		return userlink.ErrUserExists
	}
	user := *account.User
	ws := *account.Workspace
	r.users[user.ID] = &user
	r.workspaces[ws.ID] = &ws
	r.credits[user.ID] = account.Credits.String()
	r.workflows[account.Workflow.ID] = nil
	return r.insertLink(account.Link)
}

func (r *InMemoryRepo) SeedWorkflowState(_ context.Context, workflowID core.ID, state map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSeed != nil {
		return r.FailSeed
	}
	if _, ok := r.workflows[workflowID]; !ok {
		return userlink.ErrWorkspaceNotFound
	}
	r.workflows[workflowID] = maps.Clone(state)
	return nil
}

// WorkflowState returns the seeded state of a workflow and whether it exists.
func (r *InMemoryRepo) WorkflowState(id core.ID) (map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.workflows[id]
	return state, ok
}

// Credits returns the starting allowance recorded for a user.
func (r *InMemoryRepo) Credits(id core.ID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.credits[id]
}

// UserCount reports how many users exist.
func (r *InMemoryRepo) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// WorkflowIDs lists every workflow created so far.
func (r *InMemoryRepo) WorkflowIDs() []core.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]core.ID, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}
	return ids
}
