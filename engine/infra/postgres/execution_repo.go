package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/blockgate/engine/execution"
)

var executionColumns = []string{
	"id",
	"execution_id",
	"workflow_id",
	"block_type",
	"block_version",
	"caller_service",
	"caller_user_id",
	"caller_workspace_id",
	"caller_workflow_id",
	"caller_node_id",
	"level",
	"started_at",
	"ended_at",
	"total_duration_ms",
	"payload",
	"api_calls",
	"credits_consumed",
}

// ExecutionRepo implements execution.Repository over execution_logs. Every
// terminal write is guarded by ended_at IS NULL.
type ExecutionRepo struct {
	db DB
}

func NewExecutionRepo(db DB) *ExecutionRepo {
	return &ExecutionRepo{db: db}
}

func (r *ExecutionRepo) Get(ctx context.Context, executionID string) (*execution.Record, error) {
	sb := squirrel.Select(executionColumns...).
		From("execution_logs").
		Where(squirrel.Eq{"execution_id": executionID})
	var rec execution.Record
	if err := getOne(ctx, r.db, &rec, sb, execution.ErrExecutionNotFound); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ExecutionRepo) Insert(ctx context.Context, rec *execution.Record) (bool, error) {
	query, args, err := squirrel.Insert("execution_logs").
		Columns(
			"id", "execution_id", "workflow_id", "block_type", "block_version",
			"caller_service", "caller_user_id", "caller_workspace_id", "caller_workflow_id", "caller_node_id",
			"level", "started_at", "payload",
		).
		Values(
			rec.ID, rec.ExecutionID, rec.WorkflowID, rec.BlockType, rec.BlockVersion,
			rec.CallerService, rec.CallerUserID, rec.CallerWorkspaceID, rec.CallerWorkflowID, rec.CallerNodeID,
			rec.Level, rec.StartedAt, rec.Payload,
		).
		Suffix("ON CONFLICT (execution_id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building execution insert: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("inserting execution: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ExecutionRepo) UpdateProgress(ctx context.Context, executionID string, progress *execution.AsyncStatus) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encoding progress: %w", err)
	}
	query, args, err := squirrel.Update("execution_logs").
		Set("payload", squirrel.Expr("jsonb_set(payload, '{progress}', ?::jsonb)", string(raw))).
		Where(squirrel.Eq{"execution_id": executionID}).
		Where("ended_at IS NULL").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building progress update: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}
	return nil
}

func (r *ExecutionRepo) Finish(ctx context.Context, executionID string, t *execution.Terminal) (bool, error) {
	ub, err := terminalUpdate(t)
	if err != nil {
		return false, err
	}
	query, args, err := ub.
		Set("total_duration_ms", t.DurationMs).
		Where(squirrel.Eq{"execution_id": executionID}).
		Where("ended_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building terminal update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("finishing execution: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ExecutionRepo) FailStale(ctx context.Context, cutoff time.Time, t *execution.Terminal) (int64, error) {
	ub, err := terminalUpdate(t)
	if err != nil {
		return 0, err
	}
	query, args, err := ub.
		Set("total_duration_ms", squirrel.Expr("(extract(epoch FROM (?::timestamptz - started_at)) * 1000)::bigint", t.EndedAt)).
		Where("ended_at IS NULL").
		Where(squirrel.Lt{"started_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building stale update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failing stale executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func terminalUpdate(t *execution.Terminal) (squirrel.UpdateBuilder, error) {
	raw, err := json.Marshal(t.Response)
	if err != nil {
		return squirrel.UpdateBuilder{}, fmt.Errorf("encoding response: %w", err)
	}
	return squirrel.Update("execution_logs").
		Set("level", t.Level).
		Set("ended_at", t.EndedAt).
		Set("payload", squirrel.Expr("payload || jsonb_build_object('response', ?::jsonb)", string(raw))).
		Set("api_calls", t.APICalls).
		Set("credits_consumed", t.Credits).
		PlaceholderFormat(squirrel.Dollar), nil
}
