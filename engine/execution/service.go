package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/engine/userlink"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/compozy/blockgate/pkg/logger"
)

// Request is one execute call after protocol validation.
type Request struct {
	BlockType      string
	BlockVersion   string
	Params         map[string]any
	WorkflowID     string
	ExecutionID    string
	NodeID         string
	Timeout        time.Duration
	RetryOnFailure bool
}

type job struct {
	executionID string
	blockType   string
	action      block.Action
	params      map[string]any
	ec          *block.ExecContext
	timeout     time.Duration
	retry       bool
}

// Service executes blocks for provisioned users and owns the execution log.
type Service struct {
	catalog  *block.Catalog
	registry *block.Registry
	records  Repository
	users    userlink.Repository
	provider string
	cfg      config.ExecutionConfig
	runner   *Runner
	now      func() time.Time
	inflight sync.WaitGroup
}

func NewService(
	catalog *block.Catalog,
	registry *block.Registry,
	records Repository,
	users userlink.Repository,
	provider string,
	cfg *config.ExecutionConfig,
) *Service {
	return &Service{
		catalog:  catalog,
		registry: registry,
		records:  records,
		users:    users,
		provider: provider,
		cfg:      ResolveConfig(cfg),
		runner:   NewRunner(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Execute resolves the caller, the block and its action, then either replays
// a stored outcome for the execution id or runs the action once.
func (s *Service) Execute(ctx context.Context, g *reqctx.GatewayContext, req *Request) (*Reply, error) {
	identity, err := userlink.Resolve(ctx, s.users, s.provider, g.ExternalUserID)
	if err != nil {
		if errors.Is(err, userlink.ErrLinkNotFound) {
			return nil, fail(router.ErrUserNotProvisionedCode, "User has not been provisioned")
		}
		return nil, fmt.Errorf("resolving user: %w", err)
	}
	if identity.Workspace == nil {
		return nil, fmt.Errorf("user %s has no owned workspace", identity.User.ID)
	}
	desc, err := s.catalog.Resolve(req.BlockType)
	if err != nil {
		return nil, fail(router.ErrInvalidBlockTypeCode, fmt.Sprintf("Unknown block type %q", req.BlockType))
	}
	params := block.Hydrate(ctx, desc, req.Params)
	action, err := s.bind(desc, params)
	if err != nil {
		return nil, err
	}
	executionID := req.ExecutionID
	if executionID == "" {
		executionID = g.IdempotencyKey
	}
	if executionID == "" {
		executionID = core.MustNewID().String()
	}
	log := logger.FromContext(ctx).With("execution_id", executionID, "block_type", desc.Type)
	ctx = logger.ContextWithLogger(ctx, log)
	if reply, found, err := s.replay(ctx, g, executionID); found {
		recordOutcome(ctx, desc.Type, outcomeReplayed)
		return reply, err
	}
	rec := s.newRecord(g, req, desc, action.ID(), executionID, params, identity)
	inserted, err := s.records.Insert(ctx, rec)
	switch {
	case err != nil:
		log.Warn("Failed to write running execution record", "error", err)
	case !inserted:
		reply, found, err := s.replay(ctx, g, executionID)
		if found {
			return reply, err
		}
		return nil, fmt.Errorf("execution %s was claimed concurrently and cannot be read", executionID)
	}
	ec := block.NewExecContext(executionID, req.WorkflowID, identity.Workspace.ID, identity.User.ID)
	ec.NodeID = req.NodeID
	ec.BlockType = desc.Type
	return s.race(ctx, &job{
		executionID: executionID,
		blockType:   desc.Type,
		action:      action,
		params:      params,
		ec:          ec,
		timeout:     s.timeout(req.Timeout),
		retry:       req.RetryOnFailure,
	})
}

// Status reads the stored outcome of an execution started by the same caller.
func (s *Service) Status(ctx context.Context, g *reqctx.GatewayContext, executionID string) (*Reply, error) {
	rec, err := s.records.Get(ctx, executionID)
	if errors.Is(err, ErrExecutionNotFound) {
		return nil, fail(router.ErrNotFoundCode, "Execution not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading execution %s: %w", executionID, err)
	}
	if !ownedBy(rec, g) {
		return nil, fail(router.ErrNotFoundCode, "Execution not found")
	}
	return replyFromRecord(rec)
}

// Wait blocks until background executions finish.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) bind(desc *block.Descriptor, params map[string]any) (block.Action, error) {
	actionID, err := block.ResolveAction(desc, params)
	if err != nil {
		return nil, fail(router.ErrInvalidBlockTypeCode, fmt.Sprintf("Block %q has no executable action", desc.Type))
	}
	action, ok := s.registry.Get(actionID)
	if !ok {
		return nil, fail(router.ErrInvalidBlockTypeCode, fmt.Sprintf("Action %q is not available", actionID))
	}
	return action, nil
}

// replay returns the stored state for executionID when a record exists.
func (s *Service) replay(ctx context.Context, g *reqctx.GatewayContext, executionID string) (*Reply, bool, error) {
	rec, err := s.records.Get(ctx, executionID)
	switch {
	case errors.Is(err, ErrExecutionNotFound):
		return nil, false, nil
	case err != nil:
		logger.FromContext(ctx).Warn("Failed to read execution record", "error", err)
		return nil, false, nil
	}
	if !ownedBy(rec, g) {
		return nil, true, router.InvalidParams("Execution id already in use", map[string]string{
			"executionId": "belongs to another caller",
		})
	}
	reply, err := replyFromRecord(rec)
	return reply, true, err
}

func ownedBy(rec *Record, g *reqctx.GatewayContext) bool {
	if g.Service == nil || rec.CallerService != g.Service.ServiceName {
		return false
	}
	return !g.HasUser() || rec.CallerUserID == g.ExternalUserID
}

func (s *Service) timeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return s.cfg.DefaultTimeout
	}
	return requested
}

func (s *Service) newRecord(
	g *reqctx.GatewayContext,
	req *Request,
	desc *block.Descriptor,
	actionID, executionID string,
	params map[string]any,
	identity *userlink.Resolution,
) *Record {
	version := req.BlockVersion
	if version == "" {
		version = desc.Version
	}
	var workflowID *string
	if req.WorkflowID != "" {
		workflowID = &req.WorkflowID
	}
	return &Record{
		ID:                core.MustNewID(),
		ExecutionID:       executionID,
		WorkflowID:        workflowID,
		BlockType:         desc.Type,
		BlockVersion:      version,
		CallerService:     g.Service.ServiceName,
		CallerUserID:      g.ExternalUserID,
		CallerWorkspaceID: g.ExternalWorkspaceID,
		CallerWorkflowID:  req.WorkflowID,
		CallerNodeID:      req.NodeID,
		Level:             LevelInfo,
		StartedAt:         s.now(),
		Payload: Payload{Request: RequestSnapshot{
			BlockType:      desc.Type,
			Action:         actionID,
			Params:         core.RedactParams(params),
			TimeoutMs:      s.timeout(req.Timeout).Milliseconds(),
			RetryOnFailure: req.RetryOnFailure,
			RequestID:      g.RequestID,
			UserID:         identity.User.ID,
			WorkspaceID:    identity.Workspace.ID,
		}},
	}
}

type outcome struct {
	reply *Reply
	err   error
}

// race waits for the action up to the job timeout. The action keeps running
// on a detached context bounded by the background ceiling and records its
// own outcome; the timeout arm never writes to the store.
func (s *Service) race(ctx context.Context, j *job) (*Reply, error) {
	ceiling := max(s.cfg.BackgroundCeiling, j.timeout)
	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ceiling)
	done := make(chan outcome, 1)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		reply, err := s.invoke(bgCtx, j)
		done <- outcome{reply: reply, err: err}
	}()
	timer := time.NewTimer(j.timeout)
	defer timer.Stop()
	select {
	case out := <-done:
		return out.reply, out.err
	case <-timer.C:
		logger.FromContext(ctx).Warn("Execution timed out", "timeout", j.timeout)
		recordOutcome(ctx, j.blockType, outcomeTimeout)
		return nil, &Failure{
			Code:    router.ErrTimeoutCode,
			Message: fmt.Sprintf("Execution timed out after %dms", j.timeout.Milliseconds()),
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) invoke(ctx context.Context, j *job) (*Reply, error) {
	log := logger.FromContext(ctx)
	started := s.now()
	attempt := s.runner.Run(ctx, j.action, j.params, j.ec, j.retry)
	ended := s.now()
	recordDuration(ctx, j.blockType, ended.Sub(started))
	var usage block.Usage
	if attempt.Result != nil {
		usage = attempt.Result.Usage
	}
	timing := Timing{StartedAt: started, CompletedAt: ended, DurationMs: ended.Sub(started).Milliseconds()}
	if attempt.Succeeded() {
		output := attempt.Result.Output
		if st, async := DetectAsync(output, ended); async {
			if err := s.records.UpdateProgress(ctx, j.executionID, st); err != nil {
				log.Warn("Failed to store execution progress", "error", err)
			}
			recordOutcome(ctx, j.blockType, outcomeRunning)
			return runningReply(j.executionID, j.blockType, st), nil
		}
		resp := &ResponseSnapshot{Output: output, Usage: usage, Timing: timing, Attempts: attempt.Attempts}
		s.finish(ctx, j.executionID, LevelInfo, resp)
		recordOutcome(ctx, j.blockType, outcomeCompleted)
		return completedReply(j.executionID, j.blockType, resp), nil
	}
	var message string
	if attempt.Result != nil {
		message = attempt.Result.Error
	}
	failure := classify(attempt.Err, message)
	log.Info("Block execution failed", "code", failure.Code, "attempts", attempt.Attempts)
	resp := &ResponseSnapshot{Error: failure, Usage: usage, Timing: timing, Attempts: attempt.Attempts}
	s.finish(ctx, j.executionID, LevelError, resp)
	if failure.Code == router.ErrTimeoutCode {
		recordOutcome(ctx, j.blockType, outcomeTimeout)
	} else {
		recordOutcome(ctx, j.blockType, outcomeFailed)
	}
	return nil, failure
}

// finish writes the terminal state. Store failures are logged and never
// change what the caller receives.
func (s *Service) finish(ctx context.Context, executionID, level string, resp *ResponseSnapshot) {
	written, err := s.records.Finish(ctx, executionID, &Terminal{
		Level:      level,
		EndedAt:    resp.Timing.CompletedAt,
		DurationMs: resp.Timing.DurationMs,
		Response:   resp,
		APICalls:   resp.Usage.APICallsMade,
		Credits:    resp.Usage.CreditsConsumed,
	})
	log := logger.FromContext(ctx)
	switch {
	case err != nil:
		log.Warn("Failed to write terminal execution record", "error", err)
	case !written:
		log.Debug("Execution record was already terminal or missing")
	}
}
