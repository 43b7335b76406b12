package block

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/compozy/blockgate/engine/core"
	"github.com/shopspring/decimal"
)

// Usage counts what one action invocation consumed.
type Usage struct {
	TokensUsed      int64           `json:"tokensUsed"`
	APICallsMade    int64           `json:"apiCallsMade"`
	CreditsConsumed decimal.Decimal `json:"creditsConsumed"`
}

// Result is what an action reports. A non-nil error from Execute and a
// Result with Success false are both failures.
type Result struct {
	Success bool
	Output  map[string]any
	Error   string
	Usage   Usage
}

// ExecContext is the minimal context for a single action invocation. The
// state collections start empty since no workflow graph is being run.
type ExecContext struct {
	ExecutionID string
	WorkflowID  string
	WorkspaceID core.ID
	UserID      core.ID
	NodeID      string
	BlockType   string

	BlockStates    map[string]any
	BlockLogs      []map[string]any
	ExecutedBlocks []string
	ActivePath     []string
	Environment    map[string]string
}

// NewExecContext returns a context with empty state collections. An empty
// workflowID is replaced by a synthetic id derived from executionID.
func NewExecContext(executionID, workflowID string, workspaceID, userID core.ID) *ExecContext {
	if workflowID == "" {
		workflowID = SyntheticWorkflowID(executionID)
	}
	return &ExecContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		WorkspaceID: workspaceID,
		UserID:      userID,
		BlockStates: map[string]any{},
		BlockLogs:   []map[string]any{},
		Environment: map[string]string{},
	}
}

func SyntheticWorkflowID(executionID string) string {
	return "gateway-" + executionID
}

// Action is an executable binding a block resolves to.
type Action interface {
	ID() string
	Execute(ctx context.Context, params map[string]any, ec *ExecContext) (*Result, error)
}

// ActionFunc adapts a function into an Action.
type ActionFunc struct {
	Name string
	Fn   func(ctx context.Context, params map[string]any, ec *ExecContext) (*Result, error)
}

func (a ActionFunc) ID() string { return a.Name }

func (a ActionFunc) Execute(ctx context.Context, params map[string]any, ec *ExecContext) (*Result, error) {
	return a.Fn(ctx, params, ec)
}

type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: map[string]Action{}}
}

func (r *Registry) Register(actions ...Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range actions {
		if _, dup := r.actions[a.ID()]; dup {
			return fmt.Errorf("action %q already registered", a.ID())
		}
		r.actions[a.ID()] = a
	}
	return nil
}

func (r *Registry) Get(id string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[id]
	return a, ok
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.actions))
	for id := range r.actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CredentialProvider returns downstream credentials for an internal user.
// Implementations return an error wrapping ErrMissingCredentials when the
// user has not connected the provider.
type CredentialProvider interface {
	Credential(ctx context.Context, userID core.ID, provider string) (string, error)
}

// NoCredentials is the provider used when no credential store is configured.
type NoCredentials struct{}

func (NoCredentials) Credential(_ context.Context, _ core.ID, provider string) (string, error) {
	return "", fmt.Errorf("%w: no %s credential connected", ErrMissingCredentials, provider)
}
